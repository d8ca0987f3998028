package keys

import "testing"

func edit(e *LineEditor, input string) {
	for _, k := range Decode([]byte(input)) {
		e.Handle(k)
	}
}

func TestLineEditorInsertAndMove(t *testing.T) {
	var e LineEditor
	edit(&e, "hllo\x1b[D\x1b[D\x1b[De")
	if e.String() != "hello" || e.Cursor() != 2 {
		t.Fatalf("unexpected buffer %q cursor %d", e.String(), e.Cursor())
	}
	edit(&e, "\x1b[F!")
	if e.String() != "hello!" {
		t.Fatalf("expected append at end, got %q", e.String())
	}
	edit(&e, "\x7f\x7f")
	if e.String() != "hell" || e.Len() != 4 {
		t.Fatalf("expected backspace, got %q", e.String())
	}
}

func TestLineEditorControlKeys(t *testing.T) {
	var e LineEditor
	e.SetString("ssh deploy@web")
	edit(&e, "\x17")
	if e.String() != "ssh " {
		t.Fatalf("expected word deleted, got %q", e.String())
	}
	edit(&e, "\x01x")
	if e.String() != "xssh " || e.Cursor() != 1 {
		t.Fatalf("expected insert at start, got %q", e.String())
	}
	edit(&e, "\x0b")
	if e.String() != "x" {
		t.Fatalf("expected kill to end, got %q", e.String())
	}
	e.SetString("abc")
	edit(&e, "\x1b[D\x15")
	if e.String() != "c" || e.Cursor() != 0 {
		t.Fatalf("expected kill to start, got %q cursor %d", e.String(), e.Cursor())
	}
	e.Clear()
	if e.Len() != 0 || e.Cursor() != 0 {
		t.Fatalf("expected cleared editor")
	}
}
