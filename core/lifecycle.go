package core

import (
	"context"
	"errors"
	"fmt"
	"io"

	"pkt.systems/sshtabs/schema"
)

// EnsureConnected starts the connection controller. Only the first call has
// any effect; later calls never dial again.
func (s *Session) EnsureConnected(ctx context.Context) {
	s.connectOnce.Do(func() {
		s.mu.Lock()
		if s.released || s.state != schema.StateInitializing {
			s.mu.Unlock()
			return
		}
		dialCtx, cancel := context.WithCancel(ctx)
		s.cancelDial = cancel
		s.mu.Unlock()
		go s.connect(dialCtx)
	})
}

func (s *Session) connect(ctx context.Context) {
	// Credentials resolve before connecting; a bad key file never dials.
	target, err := s.resolveTarget()
	if err != nil {
		s.fail(err)
		return
	}
	if !s.transition(schema.StateConnecting, fmt.Sprintf("Connecting to %s...", s.profile.Addr())) {
		return
	}
	s.log.Info("session connect start")

	conn, err := s.deps.Transport.Connect(ctx, target)
	if err != nil {
		s.fail(err)
		return
	}
	if !s.stillConnecting() {
		_ = conn.Close()
		return
	}

	s.mu.Lock()
	shellSize := s.size
	s.mu.Unlock()
	ch, err := conn.OpenShell(ctx, shellSize)
	if err != nil {
		_ = conn.Close()
		if !errors.Is(err, schema.ErrChannel) {
			err = fmt.Errorf("%w: %v", schema.ErrChannel, err)
		}
		s.fail(err)
		return
	}

	s.mu.Lock()
	if s.released || s.state != schema.StateConnecting {
		s.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return
	}
	size := s.size
	buf := s.deps.Emulators(size.Cols, size.Rows)
	s.conn, s.ch, s.buf = conn, ch, buf
	s.setStateLocked(schema.StateConnected)
	s.history.add("Connection ready...")
	if size != shellSize {
		s.queue(nil, &size)
	}
	s.screen = blankScreen(size)
	s.scheduleLocked()
	s.mu.Unlock()

	s.log.Info("session connected", "cols", size.Cols, "rows", size.Rows)
	s.deps.Events.OnState(s.id, schema.StateConnected)

	go s.writer(ch)
	go s.pump(ch)
	if replies, ok := buf.(ReplySource); ok {
		go s.forwardReplies(replies.Replies())
	}
}

func (s *Session) resolveTarget() (Target, error) {
	cred := s.profile.Credential
	target := Target{
		Host:     s.profile.Host,
		Port:     s.profile.Port,
		Username: s.profile.Username,
		Password: cred.Password,
		KeyPath:  cred.KeyPath,
	}
	if target.Port == 0 {
		target.Port = schema.DefaultPort
	}
	if cred.HasKey() {
		data, err := s.deps.ReadKey(cred.KeyPath)
		if err != nil {
			return Target{}, fmt.Errorf("%w: %v", schema.ErrCredentialLoad, err)
		}
		target.PrivateKey = data
	}
	return target, nil
}

func (s *Session) stillConnecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.released && s.state == schema.StateConnecting
}

// transition moves to state and records line in the lifecycle log.
func (s *Session) transition(state schema.ConnectionState, line string) bool {
	s.mu.Lock()
	if s.released || !s.setStateLocked(state) {
		s.mu.Unlock()
		return false
	}
	if line != "" {
		s.history.add(line)
	}
	s.mu.Unlock()
	s.deps.Events.OnState(s.id, state)
	return true
}

func (s *Session) setStateLocked(state schema.ConnectionState) bool {
	if !CanTransition(s.state, state) {
		s.log.Warn("session transition rejected", "from", s.state, "to", state)
		return false
	}
	s.log.Debug("session transition", "from", s.state, "to", state)
	s.state = state
	return true
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	if s.released || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if !s.setStateLocked(schema.StateError) {
		s.mu.Unlock()
		return
	}
	s.err = err
	s.history.add(errorLine(err))
	s.mu.Unlock()
	s.log.Warn("session connect failed", "err", err)
	s.deps.Events.OnState(s.id, schema.StateError)
}

func errorLine(err error) string {
	switch {
	case errors.Is(err, schema.ErrCredentialLoad):
		return "Error loading private key: " + err.Error()
	case errors.Is(err, schema.ErrChannel):
		return "Shell error: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}

// pump applies every inbound chunk to the buffer in arrival order.
func (s *Session) pump(ch Channel) {
	buf := make([]byte, 32*1024)
	for {
		n, err := ch.Read(buf)
		if n > 0 {
			s.feed(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("session read ended", "err", err)
			}
			break
		}
	}
	s.mu.Lock()
	released := s.released
	if !released {
		s.history.add("Connection closed.")
	}
	s.mu.Unlock()
	if released {
		return
	}
	s.log.Info("session remote closed")
	if s.onClosed != nil {
		s.onClosed(s.id)
	} else {
		s.release()
	}
}

func (s *Session) feed(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released || s.state != schema.StateConnected || s.buf == nil {
		return
	}
	s.buf.Feed(data)
	s.scheduleLocked()
}

// writer drains pending input in arrival order. A pending window change is
// applied before the bytes queued with it.
func (s *Session) writer(ch Channel) {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		data, resize := s.takeOutbound()
		if resize != nil {
			if err := ch.SetWindowSize(*resize); err != nil {
				s.log.Debug("session window change failed", "err", err)
			}
		}
		if len(data) == 0 {
			continue
		}
		if _, err := ch.Write(data); err != nil {
			s.log.Debug("session write failed", "err", err, "bytes", len(data))
		}
	}
}

func (s *Session) forwardReplies(r io.Reader) {
	buf := make([]byte, 1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			// Feed may be blocked on this reader while holding the session
			// lock, so replies are queued without taking it.
			select {
			case <-s.done:
				return
			default:
			}
			s.queue(buf[:n], nil)
		}
		if err != nil {
			return
		}
	}
}

// release closes every owned handle exactly once. A session that is not yet
// terminal moves to closed; an errored session keeps its error state.
func (s *Session) release() bool {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return false
	}
	s.released = true
	from := s.state
	if !s.state.Terminal() {
		s.setStateLocked(schema.StateClosed)
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = false
	cancel := s.cancelDial
	ch, conn, buf := s.ch, s.conn, s.buf
	s.cancelDial, s.ch, s.conn, s.buf = nil, nil, nil, nil
	close(s.done)
	state := s.state
	s.mu.Unlock()

	s.takeOutbound()

	if cancel != nil {
		cancel()
	}
	if ch != nil {
		_ = ch.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if buf != nil {
		buf.Dispose()
	}
	s.log.Info("session released", "from", from)
	if state != from {
		s.deps.Events.OnState(s.id, state)
	}
	return true
}
