package core

import (
	"context"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

// Session is one remote shell: a profile snapshot, its lifecycle state and
// the transport and emulation handles it exclusively owns.
type Session struct {
	id        schema.SessionID
	profile   schema.Profile
	createdAt time.Time
	deps      RegistryDeps
	interval  time.Duration
	log       pslog.Logger
	onClosed  func(schema.SessionID)

	connectOnce sync.Once

	mu         sync.Mutex
	state      schema.ConnectionState
	err        error
	size       Size
	conn       Conn
	ch         Channel
	buf        Buffer
	cancelDial context.CancelFunc
	released   bool
	history    lifecycleLog
	timer      Timer
	pending    bool
	screen     schema.ScreenSnapshot
	seq        uint64
	done       chan struct{}

	// Outbound input is guarded by outMu alone; the writer drains it.
	outMu     sync.Mutex
	outData   []byte
	outResize *Size
	wake      chan struct{}
}

func newSession(profile schema.Profile, size Size, deps RegistryDeps, interval time.Duration, onClosed func(schema.SessionID)) *Session {
	id := newSessionID()
	s := &Session{
		id:        id,
		profile:   profile,
		createdAt: time.Now(),
		deps:      deps,
		interval:  interval,
		onClosed:  onClosed,
		state:     schema.StateInitializing,
		size:      size,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	s.log = deps.Logger.With("session", id, "profile", profile.ID, "host", profile.Addr())
	s.screen = blankScreen(size)
	return s
}

// ID returns the session id.
func (s *Session) ID() schema.SessionID {
	return s.id
}

// Profile returns the profile snapshot taken when the session was opened.
func (s *Session) Profile() schema.Profile {
	return s.profile
}

// State returns the current lifecycle state.
func (s *Session) State() schema.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that moved the session into the error state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the session has released its handles.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Screen returns the most recent extracted screen snapshot.
func (s *Session) Screen() schema.ScreenSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyScreen(s.screen)
}

// Snapshot returns a read-only view of the session.
func (s *Session) Snapshot(active bool) schema.SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.SessionSnapshot{
		ID:        s.id,
		ProfileID: s.profile.ID,
		Name:      s.profile.Label(),
		State:     s.state,
		Active:    active,
		CreatedAt: s.createdAt,
		Log:       s.history.snapshot(),
		Screen:    copyScreen(s.screen),
	}
}

// Send queues raw input bytes for the remote shell. Input is accepted only
// while connected; otherwise it is discarded and false is returned. Accepted
// bytes are never dropped, however slow the remote is.
func (s *Session) Send(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != schema.StateConnected || s.released {
		return false
	}
	s.queue(data, nil)
	return true
}

// queue appends data to the pending input and keeps only the latest window
// size. It does not take s.mu.
func (s *Session) queue(data []byte, resize *Size) {
	s.outMu.Lock()
	s.outData = append(s.outData, data...)
	if resize != nil {
		size := *resize
		s.outResize = &size
	}
	s.outMu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// takeOutbound hands everything pending to the writer.
func (s *Session) takeOutbound() ([]byte, *Size) {
	s.outMu.Lock()
	defer s.outMu.Unlock()
	data, resize := s.outData, s.outResize
	s.outData, s.outResize = nil, nil
	return data, resize
}

// resize applies a new viewport size: the local buffer first, then the
// remote window, then an extraction is scheduled.
func (s *Session) resize(size Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.size == size {
		return
	}
	s.size = size
	if s.released || s.state != schema.StateConnected || s.buf == nil {
		return
	}
	s.buf.Resize(size.Cols, size.Rows)
	s.queue(nil, &size)
	s.scheduleLocked()
}

// scheduleLocked arms the coalescing timer unless one is already pending.
func (s *Session) scheduleLocked() {
	if s.pending || s.released {
		return
	}
	s.pending = true
	s.timer = s.deps.AfterFunc(s.interval, s.extract)
}

func (s *Session) extract() {
	s.mu.Lock()
	s.pending = false
	s.timer = nil
	if s.released || s.buf == nil {
		s.mu.Unlock()
		return
	}
	lines := normalizeLines(s.buf.ViewportLines(), s.size.Rows)
	s.seq++
	s.screen = schema.ScreenSnapshot{
		Lines:  lines,
		Cursor: s.buf.CursorPosition(),
		Cols:   s.size.Cols,
		Rows:   s.size.Rows,
		Seq:    s.seq,
	}
	seq := s.seq
	s.mu.Unlock()
	s.deps.Events.OnScreen(s.id, seq)
}

// normalizeLines returns exactly rows lines; blank lines become a single space.
func normalizeLines(lines []string, rows int) []string {
	if rows < 0 {
		rows = 0
	}
	out := make([]string, rows)
	for i := 0; i < rows; i++ {
		line := ""
		if i < len(lines) {
			line = strings.TrimRight(lines[i], " ")
		}
		if line == "" {
			line = " "
		}
		out[i] = line
	}
	return out
}

func blankScreen(size Size) schema.ScreenSnapshot {
	return schema.ScreenSnapshot{
		Lines: normalizeLines(nil, size.Rows),
		Cols:  size.Cols,
		Rows:  size.Rows,
	}
}

func copyScreen(in schema.ScreenSnapshot) schema.ScreenSnapshot {
	out := in
	out.Lines = append([]string(nil), in.Lines...)
	return out
}
