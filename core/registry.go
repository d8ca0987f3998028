package core

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

// Registry owns the ordered table of open sessions and the active pointer.
// Insertion order is tab order and cycle order.
type Registry struct {
	ctx      context.Context
	deps     RegistryDeps
	interval time.Duration
	log      pslog.Logger

	mu       sync.Mutex
	sessions []*Session
	activeID schema.SessionID
	viewport Size
	onEmpty  func()
}

// NewRegistry constructs a Registry. Dial contexts derive from ctx, so
// cancelling ctx aborts every in-flight connection attempt.
func NewRegistry(ctx context.Context, deps RegistryDeps, opts RegistryOptions) (*Registry, error) {
	if ctx == nil {
		return nil, errors.New("missing context")
	}
	if deps.Transport == nil {
		return nil, errors.New("registry requires a transport")
	}
	if deps.Emulators == nil {
		return nil, errors.New("registry requires an emulator factory")
	}
	if deps.Events == nil {
		deps.Events = nopSink{}
	}
	if deps.Logger == nil {
		deps.Logger = pslog.Ctx(ctx)
	}
	if deps.ReadKey == nil {
		deps.ReadKey = os.ReadFile
	}
	if deps.AfterFunc == nil {
		deps.AfterFunc = realAfterFunc
	}
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Registry{
		ctx:      ctx,
		deps:     deps,
		interval: interval,
		log:      deps.Logger,
		viewport: ClampViewport(opts.Viewport),
	}, nil
}

// OnEmpty registers a hook invoked after a close leaves the table empty.
func (r *Registry) OnEmpty(fn func()) {
	r.mu.Lock()
	r.onEmpty = fn
	r.mu.Unlock()
}

// Open creates a session for a copy of profile, appends it, makes it active
// and starts connecting in the background.
func (r *Registry) Open(profile schema.Profile) schema.SessionID {
	r.mu.Lock()
	s := newSession(profile, r.viewport, r.deps, r.interval, r.closeFromSession)
	r.sessions = append(r.sessions, s)
	r.activeID = s.id
	count := len(r.sessions)
	r.mu.Unlock()

	s.log.Info("registry session opened", "sessions", count)
	r.deps.Events.OnSessions()
	s.EnsureConnected(r.ctx)
	return s.id
}

func (r *Registry) closeFromSession(id schema.SessionID) {
	if err := r.Close(id); err != nil && !errors.Is(err, schema.ErrSessionNotFound) {
		r.log.Warn("registry session close failed", "session", id, "err", err)
	}
}

// Close releases the session's handles and removes it. When the active
// session closes the tab before it becomes active; when none remain the
// empty hook fires.
func (r *Registry) Close(id schema.SessionID) error {
	r.mu.Lock()
	idx := r.indexLocked(id)
	if idx < 0 {
		r.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	s := r.sessions[idx]
	s.release()
	r.sessions = append(r.sessions[:idx], r.sessions[idx+1:]...)
	if r.activeID == id {
		r.activeID = ""
		if len(r.sessions) > 0 {
			next := idx - 1
			if next < 0 {
				next = 0
			}
			r.activeID = r.sessions[next].id
		}
	}
	empty := len(r.sessions) == 0
	hook := r.onEmpty
	count := len(r.sessions)
	r.mu.Unlock()

	s.log.Info("registry session closed", "sessions", count)
	r.deps.Events.OnSessions()
	if empty && hook != nil {
		hook()
	}
	return nil
}

// CloseAll closes every session in registry order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	ids := make([]schema.SessionID, 0, len(r.sessions))
	for _, s := range r.sessions {
		ids = append(ids, s.id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Close(id)
	}
	if len(ids) > 0 {
		r.log.Info("registry closed all", "count", len(ids))
	}
}

// SetActive makes id the active session.
func (r *Registry) SetActive(id schema.SessionID) error {
	r.mu.Lock()
	if r.indexLocked(id) < 0 {
		r.mu.Unlock()
		return schema.ErrSessionNotFound
	}
	changed := r.activeID != id
	r.activeID = id
	r.mu.Unlock()
	if changed {
		r.deps.Events.OnSessions()
	}
	return nil
}

// Next activates the following session, wrapping around.
func (r *Registry) Next() {
	r.cycle(1)
}

// Previous activates the preceding session, wrapping around.
func (r *Registry) Previous() {
	r.cycle(-1)
}

func (r *Registry) cycle(step int) {
	r.mu.Lock()
	n := len(r.sessions)
	if n <= 1 {
		r.mu.Unlock()
		return
	}
	idx := r.indexLocked(r.activeID)
	if idx < 0 {
		idx = 0
	} else {
		idx = ((idx+step)%n + n) % n
	}
	r.activeID = r.sessions[idx].id
	r.mu.Unlock()
	r.deps.Events.OnSessions()
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ActiveID returns the active session id, or "" when there is none.
func (r *Registry) ActiveID() schema.SessionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// Sessions returns an ordered read-only view of every session.
func (r *Registry) Sessions() []schema.SessionSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schema.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Snapshot(s.id == r.activeID))
	}
	return out
}

// Active returns the active session view.
func (r *Registry) Active() (schema.SessionSnapshot, bool) {
	s := r.active()
	if s == nil {
		return schema.SessionSnapshot{}, false
	}
	return s.Snapshot(true), true
}

// Get returns the session view for id.
func (r *Registry) Get(id schema.SessionID) (schema.SessionSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(id)
	if idx < 0 {
		return schema.SessionSnapshot{}, schema.ErrSessionNotFound
	}
	s := r.sessions[idx]
	return s.Snapshot(s.id == r.activeID), nil
}

// SendActive forwards raw input to the active session. It reports false when
// there is no active session or it is not connected.
func (r *Registry) SendActive(data []byte) bool {
	s := r.active()
	if s == nil {
		return false
	}
	return s.Send(data)
}

// Resize records the viewport and propagates it to every session.
func (r *Registry) Resize(size Size) {
	size = ClampViewport(size)
	r.mu.Lock()
	if r.viewport == size {
		r.mu.Unlock()
		return
	}
	r.viewport = size
	sessions := append([]*Session(nil), r.sessions...)
	r.mu.Unlock()
	r.log.Debug("registry resize", "cols", size.Cols, "rows", size.Rows, "sessions", len(sessions))
	for _, s := range sessions {
		s.resize(size)
	}
}

// Viewport returns the size used for new sessions.
func (r *Registry) Viewport() Size {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewport
}

func (r *Registry) active() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.indexLocked(r.activeID)
	if idx < 0 {
		return nil
	}
	return r.sessions[idx]
}

func (r *Registry) indexLocked(id schema.SessionID) int {
	if id == "" {
		return -1
	}
	for i, s := range r.sessions {
		if s.id == id {
			return i
		}
	}
	return -1
}
