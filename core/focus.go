package core

import (
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/internal/keys"
	"pkt.systems/sshtabs/schema"
)

// ProfileSource is the subset of the profile store the router needs.
type ProfileSource interface {
	List() []schema.Profile
	Remove(id schema.ProfileID) error
}

// Action tells the UI what to do after a key was routed.
type Action int

const (
	// ActionNone means the key was consumed or ignored.
	ActionNone Action = iota
	// ActionAddProfile opens the add-profile form.
	ActionAddProfile
	// ActionEditProfile opens the edit form for Result.Profile.
	ActionEditProfile
	// ActionQuit ends the program; every session is already closed.
	ActionQuit
)

// Result is the outcome of routing one key.
type Result struct {
	Action  Action
	Profile schema.Profile
	// Err is a non-fatal failure to surface as a notice.
	Err error
}

// Router sends keys either to the profile list or to the active session.
type Router struct {
	reg      *Registry
	profiles ProfileSource
	log      pslog.Logger

	mu        sync.Mutex
	zone      schema.Zone
	listIndex int
}

// NewRouter constructs a Router in the list zone and registers itself as
// the registry's empty hook.
func NewRouter(reg *Registry, profiles ProfileSource, logger pslog.Logger) *Router {
	if logger == nil {
		logger = reg.log
	}
	r := &Router{reg: reg, profiles: profiles, log: logger, zone: schema.ZoneList}
	reg.OnEmpty(r.returnToList)
	return r
}

// Zone returns the focused zone.
func (r *Router) Zone() schema.Zone {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zone
}

// ListIndex returns the selected list slot; slot 0 is the add-profile entry.
func (r *Router) ListIndex() int {
	n := len(r.profiles.List())
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clampLocked(n)
}

// SelectProfile moves the list selection to the profile with id.
func (r *Router) SelectProfile(id schema.ProfileID) {
	for i, p := range r.profiles.List() {
		if p.ID == id {
			r.mu.Lock()
			r.listIndex = i + 1
			r.mu.Unlock()
			return
		}
	}
}

func (r *Router) returnToList() {
	r.mu.Lock()
	changed := r.zone != schema.ZoneList
	r.zone = schema.ZoneList
	r.mu.Unlock()
	if changed {
		r.log.Debug("focus zone changed", "zone", schema.ZoneList, "reason", "no sessions")
	}
}

func (r *Router) setZone(zone schema.Zone) {
	r.mu.Lock()
	r.zone = zone
	r.mu.Unlock()
	r.log.Debug("focus zone changed", "zone", zone)
}

func (r *Router) clampLocked(profileCount int) int {
	if r.listIndex > profileCount {
		r.listIndex = profileCount
	}
	if r.listIndex < 0 {
		r.listIndex = 0
	}
	return r.listIndex
}

// Handle routes one key.
func (r *Router) Handle(k keys.Key) Result {
	if r.Zone() == schema.ZoneContent {
		if r.reg.Len() == 0 {
			r.returnToList()
		} else {
			return r.handleContent(k)
		}
	}
	return r.handleList(k)
}

func (r *Router) handleList(k keys.Key) Result {
	profiles := r.profiles.List()
	r.mu.Lock()
	idx := r.clampLocked(len(profiles))
	r.mu.Unlock()

	switch {
	case k.Kind == keys.Up:
		r.moveTo(idx-1, len(profiles))
	case k.Kind == keys.Down:
		r.moveTo(idx+1, len(profiles))
	case k.Kind == keys.Enter || k.Kind == keys.Right:
		if idx == 0 {
			return Result{Action: ActionAddProfile}
		}
		r.reg.Open(profiles[idx-1])
		r.setZone(schema.ZoneContent)
	case k.Kind == keys.Backspace || k.Kind == keys.Delete:
		if idx == 0 {
			return Result{}
		}
		err := r.profiles.Remove(profiles[idx-1].ID)
		r.moveTo(idx-1, len(profiles)-1)
		if err != nil {
			r.log.Warn("focus profile remove failed", "profile", profiles[idx-1].ID, "err", err)
			return Result{Err: err}
		}
	case k.Is('e'):
		if idx == 0 {
			return Result{}
		}
		return Result{Action: ActionEditProfile, Profile: profiles[idx-1]}
	case k.Is('w'):
		if id := r.reg.ActiveID(); id != "" {
			_ = r.reg.Close(id)
		}
	case k.Is('q') || k.Is('Q') || k.Kind == keys.CtrlC || k.Kind == keys.Esc:
		r.reg.CloseAll()
		return Result{Action: ActionQuit}
	case k.Kind == keys.CtrlRight:
		if r.reg.Len() > 0 {
			r.setZone(schema.ZoneContent)
		}
	}
	return Result{}
}

func (r *Router) moveTo(idx, profileCount int) {
	r.mu.Lock()
	r.listIndex = idx
	r.clampLocked(profileCount)
	r.mu.Unlock()
}

func (r *Router) handleContent(k keys.Key) Result {
	switch k.Kind {
	case keys.CtrlQ:
		r.setZone(schema.ZoneList)
		return Result{}
	case keys.CtrlRight:
		r.reg.Next()
		return Result{}
	case keys.CtrlLeft:
		r.reg.Previous()
		return Result{}
	}
	active, ok := r.reg.Active()
	if !ok {
		r.returnToList()
		return Result{}
	}
	if active.State != schema.StateConnected {
		if k.Kind == keys.CtrlC && active.State == schema.StateError {
			_ = r.reg.Close(active.ID)
		}
		return Result{}
	}
	r.reg.SendActive(k.Raw)
	return Result{}
}
