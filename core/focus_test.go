package core

import (
	"errors"
	"sync"
	"testing"

	"pkt.systems/sshtabs/internal/keys"
	"pkt.systems/sshtabs/schema"
)

type memoryProfiles struct {
	mu        sync.Mutex
	profiles  []schema.Profile
	removeErr error
}

func (m *memoryProfiles) List() []schema.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]schema.Profile(nil), m.profiles...)
}

func (m *memoryProfiles) Remove(id schema.ProfileID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.profiles {
		if p.ID == id {
			m.profiles = append(m.profiles[:i], m.profiles[i+1:]...)
			return m.removeErr
		}
	}
	return schema.ErrProfileNotFound
}

func newRouterHarness(t *testing.T, names ...string) (*harness, *Router, *memoryProfiles) {
	t.Helper()
	h := newHarness(t)
	store := &memoryProfiles{}
	for _, name := range names {
		store.profiles = append(store.profiles, testProfile(name))
	}
	return h, NewRouter(h.reg, store, nil), store
}

func press(r *Router, input string) Result {
	var last Result
	for _, k := range keys.Decode([]byte(input)) {
		last = r.Handle(k)
	}
	return last
}

const (
	keyUp        = "\x1b[A"
	keyDown      = "\x1b[B"
	keyEnter     = "\r"
	keyCtrlRight = "\x1b[1;5C"
	keyCtrlLeft  = "\x1b[1;5D"
	keyCtrlQ     = "\x11"
	keyCtrlC     = "\x03"
	keyDelete    = "\x1b[3~"
)

func TestRouterStartsInListZone(t *testing.T) {
	_, r, _ := newRouterHarness(t, "a")
	if r.Zone() != schema.ZoneList || r.ListIndex() != 0 {
		t.Fatalf("expected list zone at slot 0, got %s/%d", r.Zone(), r.ListIndex())
	}
}

func TestRouterSlotZeroOpensAddFlow(t *testing.T) {
	h, r, _ := newRouterHarness(t, "a")
	res := press(r, keyEnter)
	if res.Action != ActionAddProfile {
		t.Fatalf("expected add-profile action, got %v", res.Action)
	}
	if h.reg.Len() != 0 || h.transport.dialCount() != 0 {
		t.Fatalf("slot 0 must not open a session")
	}
	if r.Zone() != schema.ZoneList {
		t.Fatalf("expected to stay in list zone")
	}
}

func TestRouterListNavigationClamps(t *testing.T) {
	_, r, _ := newRouterHarness(t, "a", "b")
	press(r, keyUp)
	if r.ListIndex() != 0 {
		t.Fatalf("expected clamp at 0, got %d", r.ListIndex())
	}
	press(r, keyDown+keyDown+keyDown+keyDown)
	if r.ListIndex() != 2 {
		t.Fatalf("expected clamp at profile count, got %d", r.ListIndex())
	}
}

func TestRouterOpensSessionAndForwardsKeys(t *testing.T) {
	h, r, _ := newRouterHarness(t, "a", "b")
	press(r, keyDown+keyDown+keyEnter)
	if r.Zone() != schema.ZoneContent {
		t.Fatalf("expected content zone after opening")
	}
	active, ok := h.reg.Active()
	if !ok || active.Name != "b" {
		t.Fatalf("expected session for profile b, got %+v", active)
	}
	waitState(t, h.reg, active.ID, schema.StateConnected)

	press(r, "ls -l"+keyEnter+keyUp+keyCtrlC)
	ch := h.transport.channel(0)
	want := "ls -l\r\x1b[A\x03"
	waitFor(t, "forwarded keys", func() bool { return ch.input() == want })
}

func TestRouterContentNavigation(t *testing.T) {
	h, r, _ := newRouterHarness(t, "a", "b", "c")
	for i := 1; i <= 3; i++ {
		press(r, keyCtrlQ)
		r.SelectProfile(testProfile([]string{"a", "b", "c"}[i-1]).ID)
		press(r, keyEnter)
	}
	if h.reg.Len() != 3 || r.Zone() != schema.ZoneContent {
		t.Fatalf("expected three sessions in content zone")
	}
	start := h.reg.ActiveID()
	press(r, keyCtrlRight+keyCtrlRight+keyCtrlRight)
	if h.reg.ActiveID() != start {
		t.Fatalf("expected cycling three times to return to the start")
	}
	press(r, keyCtrlLeft)
	if h.reg.ActiveID() == start {
		t.Fatalf("expected ctrl+left to move")
	}
	press(r, keyCtrlQ)
	if r.Zone() != schema.ZoneList {
		t.Fatalf("expected ctrl+q to return to the list")
	}
	press(r, keyCtrlRight)
	if r.Zone() != schema.ZoneContent {
		t.Fatalf("expected ctrl+right to enter content")
	}
}

func TestRouterCtrlRightNeedsSessions(t *testing.T) {
	_, r, _ := newRouterHarness(t, "a")
	press(r, keyCtrlRight)
	if r.Zone() != schema.ZoneList {
		t.Fatalf("content zone must be unreachable without sessions")
	}
}

func TestRouterReturnsToListWhenLastSessionCloses(t *testing.T) {
	h, r, _ := newRouterHarness(t, "a")
	press(r, keyDown+keyEnter)
	id := h.reg.ActiveID()
	waitState(t, h.reg, id, schema.StateConnected)
	if r.Zone() != schema.ZoneContent {
		t.Fatalf("expected content zone")
	}
	h.transport.channel(0).hangup()
	waitFor(t, "list zone", func() bool { return r.Zone() == schema.ZoneList })
	if h.reg.Len() != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestRouterCtrlCClosesErroredSession(t *testing.T) {
	h, r, _ := newRouterHarness(t, "a")
	h.transport.connectErr = schema.ErrNetwork
	press(r, keyDown+keyEnter)
	id := h.reg.ActiveID()
	waitState(t, h.reg, id, schema.StateError)

	press(r, "xyz")
	if h.reg.Len() != 1 {
		t.Fatalf("other keys must be swallowed by an errored session")
	}
	press(r, keyCtrlC)
	if h.reg.Len() != 0 {
		t.Fatalf("expected ctrl+c to close the errored session")
	}
	if r.Zone() != schema.ZoneList {
		t.Fatalf("expected list zone after closing the last session")
	}
}

func TestRouterDeleteProfileKeepsSessions(t *testing.T) {
	h, r, store := newRouterHarness(t, "a", "b")
	press(r, keyDown+keyEnter+keyCtrlQ)
	press(r, keyDown)
	if r.ListIndex() != 2 {
		t.Fatalf("expected slot 2, got %d", r.ListIndex())
	}
	press(r, keyDelete)
	if len(store.List()) != 1 || store.List()[0].Name != "a" {
		t.Fatalf("expected profile b removed, got %+v", store.List())
	}
	if r.ListIndex() != 1 {
		t.Fatalf("expected index to move up, got %d", r.ListIndex())
	}
	press(r, "\x7f")
	if len(store.List()) != 0 || r.ListIndex() != 0 {
		t.Fatalf("expected profile a removed and index at 0")
	}
	if h.reg.Len() != 1 {
		t.Fatalf("removing profiles must not touch open sessions")
	}
	press(r, "\x7f")
	if h.reg.Len() != 1 {
		t.Fatalf("backspace on slot 0 is a no-op")
	}
}

func TestRouterDeleteSurfacesPersistError(t *testing.T) {
	_, r, store := newRouterHarness(t, "a")
	store.removeErr = schema.ErrConfigPersist
	res := press(r, keyDown+keyDelete)
	if !errors.Is(res.Err, schema.ErrConfigPersist) {
		t.Fatalf("expected persist error notice, got %v", res.Err)
	}
}

func TestRouterEditAction(t *testing.T) {
	_, r, _ := newRouterHarness(t, "a")
	if res := press(r, "e"); res.Action != ActionNone {
		t.Fatalf("edit on slot 0 must be ignored")
	}
	res := press(r, keyDown+"e")
	if res.Action != ActionEditProfile || res.Profile.Name != "a" {
		t.Fatalf("expected edit action for profile a, got %+v", res)
	}
}

func TestRouterQuitClosesAll(t *testing.T) {
	for _, quit := range []string{"q", "Q", keyCtrlC, "\x1b"} {
		h, r, _ := newRouterHarness(t, "a")
		press(r, keyDown+keyEnter)
		waitState(t, h.reg, h.reg.ActiveID(), schema.StateConnected)
		press(r, keyCtrlQ)
		res := press(r, quit)
		if res.Action != ActionQuit {
			t.Fatalf("%q: expected quit, got %v", quit, res.Action)
		}
		if h.reg.Len() != 0 || h.log.count("conn.release") != 1 {
			t.Fatalf("%q: expected every session closed before quit", quit)
		}
	}
}

func TestRouterCloseActiveFromList(t *testing.T) {
	h, r, _ := newRouterHarness(t, "a")
	press(r, keyDown+keyEnter+keyCtrlQ)
	press(r, "w")
	if h.reg.Len() != 0 {
		t.Fatalf("expected w to close the active session")
	}
}
