package core

import (
	"strings"
	"testing"

	"pkt.systems/sshtabs/schema"
)

func connectedHarness(t *testing.T) (*harness, schema.SessionID, *fakeChannel, *fakeBuffer) {
	t.Helper()
	h := newHarness(t)
	id := h.reg.Open(testProfile("a"))
	waitState(t, h.reg, id, schema.StateConnected)
	h.clock.fire()
	return h, id, h.transport.channel(0), h.emulators.buffer(0)
}

func TestChunksWithinWindowCoalesce(t *testing.T) {
	h, id, ch, buf := connectedHarness(t)
	armed := h.clock.armedCount()

	chunks := []string{"hel", "lo\nwor", "ld\n", "$ "}
	for _, c := range chunks {
		ch.remote(c)
	}
	waitFor(t, "chunks fed", func() bool {
		feeds, _, _, _ := buf.stats()
		return feeds == len(chunks)
	})
	if got := h.clock.armedCount() - armed; got != 1 {
		t.Fatalf("expected one extraction scheduled for %d chunks, got %d", len(chunks), got)
	}
	_, readsBefore, _, _ := buf.stats()
	if ran := h.clock.fire(); ran != 1 {
		t.Fatalf("expected one extraction, got %d", ran)
	}
	_, readsAfter, _, fed := buf.stats()
	if readsAfter-readsBefore != 1 {
		t.Fatalf("expected one buffer read, got %d", readsAfter-readsBefore)
	}
	if fed != strings.Join(chunks, "") {
		t.Fatalf("expected every byte fed in order, got %q", fed)
	}

	snap, err := h.reg.Get(id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if snap.Screen.Lines[0] != "hello" || snap.Screen.Lines[1] != "world" || snap.Screen.Lines[2] != "$" {
		t.Fatalf("unexpected lines %q", snap.Screen.Lines[:3])
	}
	if snap.Screen.Cursor != (schema.Position{X: 2, Y: 2}) {
		t.Fatalf("unexpected cursor %+v", snap.Screen.Cursor)
	}
}

func TestExtractionReturnsViewportRows(t *testing.T) {
	h, id, ch, buf := connectedHarness(t)
	ch.remote("one\n\nthree")
	waitFor(t, "chunk fed", func() bool {
		feeds, _, _, _ := buf.stats()
		return feeds == 1
	})
	h.clock.fire()
	snap, _ := h.reg.Get(id)
	if len(snap.Screen.Lines) != 24 {
		t.Fatalf("expected 24 rows, got %d", len(snap.Screen.Lines))
	}
	if snap.Screen.Lines[1] != " " || snap.Screen.Lines[23] != " " {
		t.Fatalf("expected blank lines rendered as a space, got %q %q", snap.Screen.Lines[1], snap.Screen.Lines[23])
	}
	if snap.Screen.Seq == 0 {
		t.Fatalf("expected sequence to advance")
	}
}

func TestResizeOrdersBufferBeforeTransport(t *testing.T) {
	h, _, _, _ := connectedHarness(t)
	h.reg.Resize(Size{Cols: 100, Rows: 30})
	waitFor(t, "window change", func() bool { return h.log.index("channel.window 100x30") >= 0 })
	bufIdx := h.log.index("buffer.resize 100x30")
	winIdx := h.log.index("channel.window 100x30")
	if bufIdx < 0 || bufIdx > winIdx {
		t.Fatalf("expected buffer resize before window change, got %v", h.log.list())
	}
	if h.clock.pendingCount() != 1 {
		t.Fatalf("expected extraction scheduled after resize")
	}
	h.clock.fire()
	snap, _ := h.reg.Active()
	if snap.Screen.Cols != 100 || snap.Screen.Rows != 30 || len(snap.Screen.Lines) != 30 {
		t.Fatalf("expected snapshot at new size, got %dx%d", snap.Screen.Cols, snap.Screen.Rows)
	}
	if h.reg.Viewport() != (Size{Cols: 100, Rows: 30}) {
		t.Fatalf("expected viewport remembered")
	}
}

func TestResizeClampsToMinimum(t *testing.T) {
	h := newHarness(t)
	h.reg.Resize(Size{Cols: 2, Rows: 1})
	if got := h.reg.Viewport(); got != MinViewport {
		t.Fatalf("expected clamp to %+v, got %+v", MinViewport, got)
	}
}

func TestNewSessionUsesRememberedViewport(t *testing.T) {
	h := newHarness(t)
	h.reg.Resize(Size{Cols: 120, Rows: 40})
	id := h.reg.Open(testProfile("a"))
	waitState(t, h.reg, id, schema.StateConnected)
	buf := h.emulators.buffer(0)
	if buf.cols != 120 || buf.rows != 40 {
		t.Fatalf("expected buffer created at viewport size, got %dx%d", buf.cols, buf.rows)
	}
	if size := h.transport.channel(0).size; size != (Size{Cols: 120, Rows: 40}) {
		t.Fatalf("expected pty sized to viewport, got %+v", size)
	}
}

func TestCloseStopsPendingExtraction(t *testing.T) {
	h, id, ch, buf := connectedHarness(t)
	ch.remote("data")
	waitFor(t, "chunk fed", func() bool {
		feeds, _, _, _ := buf.stats()
		return feeds == 1
	})
	if h.clock.pendingCount() != 1 {
		t.Fatalf("expected pending extraction")
	}
	if err := h.reg.Close(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	if h.clock.pendingCount() != 0 {
		t.Fatalf("expected pending extraction cancelled")
	}
	_, reads, _, _ := buf.stats()
	h.clock.fire()
	if _, after, _, _ := buf.stats(); after != reads {
		t.Fatalf("expected no extraction after close")
	}
}
