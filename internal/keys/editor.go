package keys

// LineEditor is a single-line text buffer with a cursor.
type LineEditor struct {
	buf    []rune
	cursor int
}

func (e *LineEditor) String() string {
	return string(e.buf)
}

// Len returns the number of runes.
func (e *LineEditor) Len() int {
	return len(e.buf)
}

// Cursor returns the cursor position in runes.
func (e *LineEditor) Cursor() int {
	return e.cursor
}

// Clear empties the buffer.
func (e *LineEditor) Clear() {
	e.buf = nil
	e.cursor = 0
}

// SetString replaces the buffer and moves the cursor to the end.
func (e *LineEditor) SetString(value string) {
	if value == "" {
		e.Clear()
		return
	}
	e.buf = []rune(value)
	e.cursor = len(e.buf)
}

// Handle applies an editing key and reports whether it was consumed.
func (e *LineEditor) Handle(k Key) bool {
	switch k.Kind {
	case Rune:
		e.insert(k.Rune)
	case Backspace:
		e.backspace()
	case Delete:
		e.delete()
	case Left:
		if e.cursor > 0 {
			e.cursor--
		}
	case Right:
		if e.cursor < len(e.buf) {
			e.cursor++
		}
	case Home:
		e.cursor = 0
	case End:
		e.cursor = len(e.buf)
	case Ctrl:
		switch k.Rune {
		case 'a':
			e.cursor = 0
		case 'e':
			e.cursor = len(e.buf)
		case 'u':
			e.buf = append([]rune(nil), e.buf[e.cursor:]...)
			e.cursor = 0
		case 'k':
			e.buf = e.buf[:e.cursor]
		case 'w':
			e.deleteWordBackward()
		default:
			return false
		}
	default:
		return false
	}
	return true
}

func (e *LineEditor) insert(r rune) {
	if e.cursor < 0 {
		e.cursor = 0
	}
	if e.cursor > len(e.buf) {
		e.cursor = len(e.buf)
	}
	e.buf = append(e.buf[:e.cursor], append([]rune{r}, e.buf[e.cursor:]...)...)
	e.cursor++
}

func (e *LineEditor) backspace() {
	if e.cursor <= 0 {
		return
	}
	e.buf = append(e.buf[:e.cursor-1], e.buf[e.cursor:]...)
	e.cursor--
}

func (e *LineEditor) delete() {
	if e.cursor < 0 || e.cursor >= len(e.buf) {
		return
	}
	e.buf = append(e.buf[:e.cursor], e.buf[e.cursor+1:]...)
}

func (e *LineEditor) deleteWordBackward() {
	if e.cursor <= 0 {
		return
	}
	start := e.cursor
	for start > 0 && isSpace(e.buf[start-1]) {
		start--
	}
	for start > 0 && !isSpace(e.buf[start-1]) {
		start--
	}
	e.buf = append(e.buf[:start], e.buf[e.cursor:]...)
	e.cursor = start
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t'
}
