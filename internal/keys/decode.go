// Package keys decodes raw terminal input into key events while keeping the
// original bytes so they can be forwarded verbatim to a remote shell.
package keys

import (
	"io"
	"time"
	"unicode"
	"unicode/utf8"

	uv "github.com/charmbracelet/ultraviolet"
)

// EscTimeout is how long an incomplete escape sequence waits for the rest of
// its bytes before it is decoded as-is.
const EscTimeout = uv.DefaultEscTimeout

const readBufSize = 4096

// Kind classifies a decoded key.
type Kind int

const (
	Rune Kind = iota
	Enter
	Backspace
	Delete
	Up
	Down
	Left
	Right
	Home
	End
	PageUp
	PageDown
	Tab
	ShiftTab
	Esc
	CtrlC
	CtrlQ
	CtrlLeft
	CtrlRight
	// Ctrl is any other control key; Key.Rune holds the lowercase letter.
	Ctrl
	// Alt is ESC followed by a printable rune; Key.Rune holds the rune.
	Alt
	// Unknown is an unrecognized sequence or a non-key terminal event.
	Unknown
)

var kindNames = map[Kind]string{
	Rune: "rune", Enter: "enter", Backspace: "backspace", Delete: "delete",
	Up: "up", Down: "down", Left: "left", Right: "right", Home: "home", End: "end",
	PageUp: "pgup", PageDown: "pgdown", Tab: "tab", ShiftTab: "shift+tab", Esc: "esc",
	CtrlC: "ctrl+c", CtrlQ: "ctrl+q", CtrlLeft: "ctrl+left", CtrlRight: "ctrl+right",
	Ctrl: "ctrl", Alt: "alt", Unknown: "unknown",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "invalid"
}

// Key is one decoded keystroke.
type Key struct {
	Kind Kind
	Rune rune
	// Raw holds the exact input bytes that produced the key.
	Raw []byte
}

// Is reports whether k is the printable rune r.
func (k Key) Is(r rune) bool {
	return k.Kind == Rune && k.Rune == r
}

// Read decodes r until EOF and sends every key to out, then closes out.
func Read(r io.Reader, out chan<- Key) {
	ReadTimeout(r, out, EscTimeout)
}

// ReadTimeout is Read with an explicit escape timeout. Bytes that may start
// a longer sequence are held back until more input arrives or timeout passes.
func ReadTimeout(r io.Reader, out chan<- Key, timeout time.Duration) {
	defer close(out)
	reads := make(chan []byte)
	go func() {
		defer close(reads)
		for {
			buf := make([]byte, readBufSize)
			n, err := r.Read(buf)
			if n > 0 {
				reads <- buf[:n]
			}
			if err != nil {
				return
			}
		}
	}()

	var dec uv.EventDecoder
	var pending []byte
	var expire <-chan time.Time
	for {
		expired := false
		select {
		case chunk, ok := <-reads:
			if !ok {
				_, keys := scan(&dec, pending, true)
				for _, k := range keys {
					out <- k
				}
				return
			}
			pending = append(pending, chunk...)
		case <-expire:
			expired = true
		}
		n, keys := scan(&dec, pending, expired)
		for _, k := range keys {
			out <- k
		}
		pending = append(pending[:0], pending[n:]...)
		expire = nil
		if len(pending) > 0 {
			expire = time.After(timeout)
		}
	}
}

// Decode decodes a complete input buffer. A trailing lone ESC decodes as Esc.
func Decode(data []byte) []Key {
	var dec uv.EventDecoder
	_, keys := scan(&dec, data, true)
	return keys
}

// scan decodes as many keys from buf as it can and returns the number of
// bytes consumed. Unless expired, a possibly incomplete tail is left behind.
func scan(dec *uv.EventDecoder, buf []byte, expired bool) (int, []Key) {
	var keys []Key
	total := 0
	for len(buf) > 0 {
		if len(buf) > 1 && buf[0] == 0x1b && buf[1] == 0x1b {
			keys = append(keys, Key{Kind: Esc, Raw: clone(buf[:1])})
			buf = buf[1:]
			total++
			continue
		}
		n, ev := dec.Decode(buf)
		if n <= 0 {
			break
		}
		if !expired && n == len(buf) && incomplete(buf, n, ev) {
			break
		}
		keys = append(keys, toKey(ev, clone(buf[:n])))
		buf = buf[n:]
		total += n
	}
	return total, keys
}

func incomplete(buf []byte, n int, ev uv.Event) bool {
	if _, ok := ev.(uv.UnknownEvent); ok {
		return true
	}
	return buf[0] == 0x1b && n <= 2
}

func toKey(ev uv.Event, raw []byte) Key {
	k := Key{Kind: Unknown, Raw: raw}
	press, ok := ev.(uv.KeyPressEvent)
	if !ok {
		return k
	}
	ctrl := press.Mod&uv.ModCtrl != 0
	switch press.Code {
	case uv.KeyEnter, uv.KeyKpEnter:
		k.Kind = Enter
	case uv.KeyBackspace:
		k.Kind = Backspace
	case uv.KeyDelete:
		k.Kind = Delete
	case uv.KeyEscape:
		k.Kind = Esc
	case uv.KeyTab:
		k.Kind = Tab
		if press.Mod&uv.ModShift != 0 {
			k.Kind = ShiftTab
		}
	case uv.KeyUp:
		k.Kind = Up
	case uv.KeyDown:
		k.Kind = Down
	case uv.KeyLeft:
		k.Kind = Left
		if ctrl {
			k.Kind = CtrlLeft
		}
	case uv.KeyRight:
		k.Kind = Right
		if ctrl {
			k.Kind = CtrlRight
		}
	case uv.KeyHome:
		k.Kind = Home
	case uv.KeyEnd:
		k.Kind = End
	case uv.KeyPgUp:
		k.Kind = PageUp
	case uv.KeyPgDown:
		k.Kind = PageDown
	default:
		return runeKey(press, k)
	}
	return k
}

func runeKey(press uv.KeyPressEvent, k Key) Key {
	ctrl := press.Mod&uv.ModCtrl != 0
	alt := press.Mod&uv.ModAlt != 0
	switch {
	case ctrl && !alt && press.Code == 'c':
		k.Kind = CtrlC
	case ctrl && !alt && press.Code == 'q':
		k.Kind = CtrlQ
	case ctrl && !alt && press.Code == 'h':
		k.Kind = Backspace
	case ctrl && !alt && press.Code < uv.KeyExtended:
		k.Kind, k.Rune = Ctrl, press.Code
	case alt && !ctrl && press.Code < uv.KeyExtended && unicode.IsPrint(press.Code):
		k.Kind, k.Rune = Alt, press.Code
		if press.ShiftedCode != 0 {
			k.Rune = press.ShiftedCode
		}
	case press.Text != "":
		r, _ := utf8.DecodeRuneInString(press.Text)
		k.Kind, k.Rune = Rune, r
	}
	return k
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
