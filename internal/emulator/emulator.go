// Package emulator adapts the charmbracelet virtual terminal to the session
// core's emulation buffer.
package emulator

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/vt"
	"pkt.systems/sshtabs/core"
	"pkt.systems/sshtabs/schema"
)

// Emulator is a terminal emulation buffer backed by vt.Emulator.
type Emulator struct {
	mu       sync.Mutex
	term     *vt.Emulator
	cols     int
	rows     int
	disposed bool
}

// New returns an emulator of the given size.
func New(cols, rows int) *Emulator {
	if cols < 1 {
		cols = 1
	}
	if rows < 1 {
		rows = 1
	}
	return &Emulator{term: vt.NewEmulator(cols, rows), cols: cols, rows: rows}
}

// Factory adapts New to core.EmulatorFactory.
func Factory(cols, rows int) core.Buffer {
	return New(cols, rows)
}

// Feed applies remote output to the screen.
func (e *Emulator) Feed(data []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	_, _ = e.term.Write(data)
}

// Resize changes the grid size.
func (e *Emulator) Resize(cols, rows int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed || cols < 1 || rows < 1 {
		return
	}
	e.cols, e.rows = cols, rows
	e.term.Resize(cols, rows)
}

// ViewportLines returns the visible rows as plain text.
func (e *Emulator) ViewportLines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return nil
	}
	return plainLines(e.term.Render(), e.rows)
}

// CursorPosition returns the cursor cell.
func (e *Emulator) CursorPosition() schema.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return schema.Position{}
	}
	pos := e.term.CursorPosition()
	return schema.Position{X: clamp(pos.X, 0, e.cols-1), Y: clamp(pos.Y, 0, e.rows-1)}
}

// Replies returns the stream of terminal responses (device attribute and
// cursor position reports) that must reach the remote side.
func (e *Emulator) Replies() io.Reader {
	return e.term
}

// Dispose releases the emulator. Pending Replies readers return an error.
func (e *Emulator) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return
	}
	e.disposed = true
	_ = e.term.Close()
}

func plainLines(rendered string, rows int) []string {
	rendered = strings.ReplaceAll(rendered, "\r\n", "\n")
	lines := strings.Split(rendered, "\n")
	if len(lines) > rows {
		lines = lines[:rows]
	}
	out := make([]string, rows)
	for i := range out {
		if i < len(lines) {
			out[i] = strings.TrimRight(ansi.Strip(lines[i]), " ")
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
