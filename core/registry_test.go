package core

import (
	"errors"
	"math/rand"
	"testing"

	"pkt.systems/sshtabs/schema"
)

func TestOpenConnectAndCloseReleasesHandles(t *testing.T) {
	h := newHarness(t)
	id := h.reg.Open(testProfile("a"))
	waitState(t, h.reg, id, schema.StateConnected)

	states := h.events.statesOf(id)
	if len(states) < 2 || states[0] != schema.StateConnecting || states[1] != schema.StateConnected {
		t.Fatalf("expected connecting then connected, got %v", states)
	}
	if h.reg.ActiveID() != id {
		t.Fatalf("expected opened session to be active")
	}

	if err := h.reg.Close(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, call := range []string{"conn.release", "channel.release", "buffer.release"} {
		if n := h.log.count(call); n != 1 {
			t.Fatalf("expected exactly one %s, got %d (%v)", call, n, h.log.list())
		}
	}
	if h.reg.Len() != 0 {
		t.Fatalf("expected session removed")
	}
	if _, err := h.reg.Get(id); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if err := h.reg.Close(id); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("expected second close to report not found, got %v", err)
	}
	if n := h.log.count("conn.release"); n != 1 {
		t.Fatalf("expected no double release, got %d", n)
	}
	if h.reg.ActiveID() != "" {
		t.Fatalf("expected no active session")
	}
}

func TestActivePointerAlwaysValid(t *testing.T) {
	h := newHarness(t)
	h.transport.connectErr = schema.ErrNetwork
	rng := rand.New(rand.NewSource(7))
	for step := 0; step < 200; step++ {
		sessions := h.reg.Sessions()
		switch op := rng.Intn(5); {
		case op < 2 || len(sessions) == 0:
			h.reg.Open(testProfile("x"))
		case op == 2:
			_ = h.reg.Close(sessions[rng.Intn(len(sessions))].ID)
		case op == 3:
			h.reg.Next()
		default:
			_ = h.reg.SetActive(sessions[rng.Intn(len(sessions))].ID)
		}
		active := h.reg.ActiveID()
		sessions = h.reg.Sessions()
		if active == "" {
			if len(sessions) != 0 {
				t.Fatalf("step %d: no active session with %d open", step, len(sessions))
			}
			continue
		}
		found := 0
		for _, s := range sessions {
			if s.ID == active {
				found++
			}
			if s.Active != (s.ID == active) {
				t.Fatalf("step %d: active flag mismatch for %s", step, s.ID)
			}
		}
		if found != 1 {
			t.Fatalf("step %d: active %s not a member of sessions", step, active)
		}
	}
}

func TestCloseActivePicksPreviousTab(t *testing.T) {
	h := newHarness(t)
	a := h.reg.Open(testProfile("a"))
	b := h.reg.Open(testProfile("b"))
	c := h.reg.Open(testProfile("c"))
	if err := h.reg.SetActive(b); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := h.reg.Close(b); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := h.reg.ActiveID(); got != a {
		t.Fatalf("expected previous tab active, got %s", got)
	}
	if err := h.reg.Close(a); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := h.reg.ActiveID(); got != c {
		t.Fatalf("expected first remaining tab active, got %s", got)
	}
	if err := h.reg.SetActive("missing"); !errors.Is(err, schema.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestCloseInactiveKeepsActive(t *testing.T) {
	h := newHarness(t)
	a := h.reg.Open(testProfile("a"))
	b := h.reg.Open(testProfile("b"))
	if err := h.reg.Close(a); err != nil {
		t.Fatalf("close: %v", err)
	}
	if got := h.reg.ActiveID(); got != b {
		t.Fatalf("expected active to stay on %s, got %s", b, got)
	}
}

func TestNextAndPreviousCycle(t *testing.T) {
	h := newHarness(t)
	h.reg.Open(testProfile("a"))
	h.reg.Open(testProfile("b"))
	h.reg.Open(testProfile("c"))
	start := h.reg.ActiveID()
	seen := map[schema.SessionID]bool{}
	for i := 0; i < 3; i++ {
		h.reg.Next()
		seen[h.reg.ActiveID()] = true
	}
	if h.reg.ActiveID() != start {
		t.Fatalf("expected three Next calls to wrap to %s, got %s", start, h.reg.ActiveID())
	}
	if len(seen) != 3 {
		t.Fatalf("expected to visit every session, got %d", len(seen))
	}
	h.reg.Previous()
	h.reg.Next()
	if h.reg.ActiveID() != start {
		t.Fatalf("expected Previous then Next to return to start")
	}
}

func TestNextIsNoopWithSingleSession(t *testing.T) {
	h := newHarness(t)
	id := h.reg.Open(testProfile("a"))
	h.reg.Next()
	h.reg.Previous()
	if h.reg.ActiveID() != id {
		t.Fatalf("expected single session to stay active")
	}
}

func TestRemoteHangupRemovesSession(t *testing.T) {
	h := newHarness(t)
	id := h.reg.Open(testProfile("a"))
	waitState(t, h.reg, id, schema.StateConnected)
	emptied := make(chan struct{})
	h.reg.OnEmpty(func() { close(emptied) })

	h.transport.channel(0).hangup()
	waitFor(t, "session removal", func() bool { return h.reg.Len() == 0 })
	<-emptied
	if n := h.log.count("buffer.release"); n != 1 {
		t.Fatalf("expected buffer released once, got %d", n)
	}
	states := h.events.statesOf(id)
	if states[len(states)-1] != schema.StateClosed {
		t.Fatalf("expected closed as final state, got %v", states)
	}
}

func TestCloseWhileConnectingCancelsDial(t *testing.T) {
	h := newHarness(t)
	h.transport.gate = make(chan struct{})
	id := h.reg.Open(testProfile("a"))
	waitState(t, h.reg, id, schema.StateConnecting)
	waitFor(t, "dial", func() bool { return h.transport.dialCount() == 1 })

	if err := h.reg.Close(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.reg.Len() != 0 {
		t.Fatalf("expected session removed")
	}
	waitFor(t, "closed event", func() bool {
		states := h.events.statesOf(id)
		return len(states) > 0 && states[len(states)-1] == schema.StateClosed
	})
	if n := h.log.count("conn.acquire"); n != 0 {
		t.Fatalf("expected cancelled dial to acquire nothing, got %d", n)
	}
	if n := h.log.count("buffer.acquire"); n != 0 {
		t.Fatalf("expected no buffer for cancelled dial, got %d", n)
	}
}

func TestOpenCopiesProfile(t *testing.T) {
	h := newHarness(t)
	profile := testProfile("a")
	id := h.reg.Open(profile)
	profile.Name = "renamed"
	profile.Host = "elsewhere"
	waitState(t, h.reg, id, schema.StateConnected)
	snap, err := h.reg.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Name != "a" {
		t.Fatalf("expected profile snapshot to be isolated, got %q", snap.Name)
	}
	if got := h.transport.target(0).Host; got != "a.example.org" {
		t.Fatalf("expected original host dialed, got %q", got)
	}
}

func TestCloseAllReleasesEverything(t *testing.T) {
	h := newHarness(t)
	ids := []schema.SessionID{
		h.reg.Open(testProfile("a")),
		h.reg.Open(testProfile("b")),
	}
	for _, id := range ids {
		waitState(t, h.reg, id, schema.StateConnected)
	}
	h.reg.CloseAll()
	if h.reg.Len() != 0 {
		t.Fatalf("expected no sessions")
	}
	if n := h.log.count("conn.release"); n != 2 {
		t.Fatalf("expected two connection releases, got %d", n)
	}
	if n := h.log.count("buffer.release"); n != 2 {
		t.Fatalf("expected two buffer releases, got %d", n)
	}
}
