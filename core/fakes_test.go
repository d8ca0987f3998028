package core

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"pkt.systems/sshtabs/schema"
)

// callLog records collaborator calls across fakes in order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
	l.mu.Unlock()
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.list() {
		if c == call {
			n++
		}
	}
	return n
}

func (l *callLog) index(call string) int {
	for i, c := range l.list() {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeTransport struct {
	log        *callLog
	mu         sync.Mutex
	dials      int
	targets    []Target
	connectErr error
	shellErr   error
	gate       chan struct{}
	channels   []*fakeChannel
}

func (t *fakeTransport) Connect(ctx context.Context, target Target) (Conn, error) {
	t.mu.Lock()
	t.dials++
	t.targets = append(t.targets, target)
	gate := t.gate
	err := t.connectErr
	t.mu.Unlock()
	t.log.add("transport.connect")
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", schema.ErrNetwork, ctx.Err())
		}
	}
	if err != nil {
		return nil, err
	}
	t.log.add("conn.acquire")
	return &fakeConn{t: t}, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

func (t *fakeTransport) target(i int) Target {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.targets[i]
}

func (t *fakeTransport) channel(i int) *fakeChannel {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i >= len(t.channels) {
		return nil
	}
	return t.channels[i]
}

type fakeConn struct {
	t    *fakeTransport
	once sync.Once
}

func (c *fakeConn) OpenShell(_ context.Context, size Size) (Channel, error) {
	c.t.mu.Lock()
	err := c.t.shellErr
	c.t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	ch := &fakeChannel{log: c.t.log, out: make(chan []byte, 64), closed: make(chan struct{}), size: size}
	c.t.mu.Lock()
	c.t.channels = append(c.t.channels, ch)
	c.t.mu.Unlock()
	c.t.log.add("channel.acquire")
	return ch, nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { c.t.log.add("conn.release") })
	return nil
}

type fakeChannel struct {
	log       *callLog
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	eofOnce   sync.Once
	mu        sync.Mutex
	written   strings.Builder
	size      Size
}

func (c *fakeChannel) Read(p []byte) (int, error) {
	select {
	case data, ok := <-c.out:
		if !ok {
			return 0, io.EOF
		}
		return copy(p, data), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written.Write(p)
	return len(p), nil
}

func (c *fakeChannel) SetWindowSize(size Size) error {
	c.mu.Lock()
	c.size = size
	c.mu.Unlock()
	c.log.add("channel.window %dx%d", size.Cols, size.Rows)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.log.add("channel.release")
	})
	return nil
}

// remote delivers output from the remote side.
func (c *fakeChannel) remote(data string) {
	c.out <- []byte(data)
}

// hangup simulates the remote closing the channel.
func (c *fakeChannel) hangup() {
	c.eofOnce.Do(func() { close(c.out) })
}

func (c *fakeChannel) input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

type fakeBuffer struct {
	log      *callLog
	mu       sync.Mutex
	fed      strings.Builder
	feeds    int
	cols     int
	rows     int
	disposed int
	reads    int
}

type fakeEmulators struct {
	log     *callLog
	mu      sync.Mutex
	buffers []*fakeBuffer
}

func (f *fakeEmulators) New(cols, rows int) Buffer {
	b := &fakeBuffer{log: f.log, cols: cols, rows: rows}
	f.mu.Lock()
	f.buffers = append(f.buffers, b)
	f.mu.Unlock()
	f.log.add("buffer.acquire")
	return b
}

func (f *fakeEmulators) buffer(i int) *fakeBuffer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.buffers) {
		return nil
	}
	return f.buffers[i]
}

func (b *fakeBuffer) Feed(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fed.Write(data)
	b.feeds++
}

func (b *fakeBuffer) Resize(cols, rows int) {
	b.mu.Lock()
	b.cols, b.rows = cols, rows
	b.mu.Unlock()
	b.log.add("buffer.resize %dx%d", cols, rows)
}

func (b *fakeBuffer) ViewportLines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reads++
	return strings.Split(b.fed.String(), "\n")
}

func (b *fakeBuffer) CursorPosition() schema.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := strings.Split(b.fed.String(), "\n")
	return schema.Position{X: len(lines[len(lines)-1]), Y: len(lines) - 1}
}

func (b *fakeBuffer) Dispose() {
	b.mu.Lock()
	b.disposed++
	b.mu.Unlock()
	b.log.add("buffer.release")
}

func (b *fakeBuffer) stats() (feeds, reads, disposed int, fed string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.feeds, b.reads, b.disposed, b.fed.String()
}

// fakeClock collects scheduled calls until fired.
type fakeClock struct {
	mu     sync.Mutex
	timers []*fakeTimer
	armed  int
}

type fakeTimer struct {
	mu      sync.Mutex
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func (c *fakeClock) AfterFunc(_ time.Duration, f func()) Timer {
	t := &fakeTimer{f: f}
	c.mu.Lock()
	c.timers = append(c.timers, t)
	c.armed++
	c.mu.Unlock()
	return t
}

// fire runs every pending timer and returns how many ran.
func (c *fakeClock) fire() int {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	ran := 0
	for _, t := range timers {
		t.mu.Lock()
		run := !t.stopped && !t.fired
		t.fired = true
		t.mu.Unlock()
		if run {
			t.f()
			ran++
		}
	}
	return ran
}

func (c *fakeClock) armedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.armed
}

func (c *fakeClock) pendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		t.mu.Lock()
		if !t.stopped && !t.fired {
			n++
		}
		t.mu.Unlock()
	}
	return n
}

type harness struct {
	log       *callLog
	transport *fakeTransport
	emulators *fakeEmulators
	clock     *fakeClock
	events    *recordingSink
	reg       *Registry
	keyFiles  map[string]string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := &callLog{}
	h := &harness{
		log:       log,
		transport: &fakeTransport{log: log},
		emulators: &fakeEmulators{log: log},
		clock:     &fakeClock{},
		events:    &recordingSink{},
		keyFiles:  map[string]string{},
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	reg, err := NewRegistry(ctx, RegistryDeps{
		Transport: h.transport,
		Emulators: h.emulators.New,
		AfterFunc: h.clock.AfterFunc,
		Events:    h.events,
		ReadKey: func(path string) ([]byte, error) {
			data, ok := h.keyFiles[path]
			if !ok {
				return nil, fmt.Errorf("open %s: permission denied", path)
			}
			return []byte(data), nil
		},
	}, RegistryOptions{Viewport: Size{Cols: 80, Rows: 24}})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	h.reg = reg
	t.Cleanup(reg.CloseAll)
	return h
}

func testProfile(name string) schema.Profile {
	return schema.Profile{
		ID:       schema.ProfileID("p-" + name),
		Name:     name,
		Host:     name + ".example.org",
		Port:     22,
		Username: "root",
		Credential: schema.Credential{
			Password: "secret",
		},
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitState(t *testing.T, reg *Registry, id schema.SessionID, want schema.ConnectionState) {
	t.Helper()
	waitFor(t, "state "+string(want), func() bool {
		snap, err := reg.Get(id)
		return err == nil && snap.State == want
	})
}

type recordingSink struct {
	mu      sync.Mutex
	states  map[schema.SessionID][]schema.ConnectionState
	screens int
	tables  int
}

func (r *recordingSink) OnScreen(schema.SessionID, uint64) {
	r.mu.Lock()
	r.screens++
	r.mu.Unlock()
}

func (r *recordingSink) OnState(id schema.SessionID, state schema.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.states == nil {
		r.states = make(map[schema.SessionID][]schema.ConnectionState)
	}
	r.states[id] = append(r.states[id], state)
}

func (r *recordingSink) OnSessions() {
	r.mu.Lock()
	r.tables++
	r.mu.Unlock()
}

func (r *recordingSink) statesOf(id schema.SessionID) []schema.ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schema.ConnectionState(nil), r.states[id]...)
}
