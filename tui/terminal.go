package tui

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal is the process terminal in raw mode.
type Terminal struct {
	in    *os.File
	out   *os.File
	state *term.State
}

// OpenTerminal switches in to raw mode. Callers must Restore on every exit
// path.
func OpenTerminal(in, out *os.File) (*Terminal, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return nil, errors.New("stdin is not a terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return &Terminal{in: in, out: out, state: state}, nil
}

func (t *Terminal) Read(p []byte) (int, error) { return t.in.Read(p) }

func (t *Terminal) Write(p []byte) (int, error) { return t.out.Write(p) }

// Fd exposes the output descriptor so color profile detection sees a tty.
func (t *Terminal) Fd() uintptr { return t.out.Fd() }

// Size returns the terminal size, falling back to 80x24.
func (t *Terminal) Size() (int, int) {
	cols, rows, err := term.GetSize(int(t.out.Fd()))
	if err != nil || cols <= 0 || rows <= 0 {
		return 80, 24
	}
	return cols, rows
}

// Resizes delivers a value for every SIGWINCH until ctx ends.
func (t *Terminal) Resizes(ctx context.Context) <-chan struct{} {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, unix.SIGWINCH)
	out := make(chan struct{}, 1)
	go func() {
		defer signal.Stop(sig)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sig:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}

// Restore leaves raw mode. It is safe to call more than once.
func (t *Terminal) Restore() error {
	if t.state == nil {
		return nil
	}
	err := term.Restore(int(t.in.Fd()), t.state)
	t.state = nil
	return err
}
