package tui

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/charmbracelet/x/ansi"

	"pkt.systems/sshtabs/internal/keys"
	"pkt.systems/sshtabs/schema"
)

type formField int

const (
	fieldName formField = iota
	fieldHost
	fieldUser
	fieldPort
	fieldPassword
	fieldKey
	fieldSave
	fieldCount
)

var fieldLabels = [...]string{
	fieldName:     "Name",
	fieldHost:     "Host",
	fieldUser:     "User",
	fieldPort:     "Port",
	fieldPassword: "Password",
	fieldKey:      "Private Key",
}

type formOutcome int

const (
	formContinue formOutcome = iota
	formCancel
	formSubmit
	formPickKey
)

// profileForm edits the fields of a new or existing profile.
type profileForm struct {
	editing schema.ProfileID
	inputs  [fieldSave]keys.LineEditor
	focus   formField
	err     string
}

func newProfileForm(existing *schema.Profile) *profileForm {
	f := &profileForm{}
	if existing == nil {
		f.inputs[fieldUser].SetString(schema.DefaultUsername)
		f.inputs[fieldPort].SetString(strconv.Itoa(schema.DefaultPort))
		return f
	}
	f.editing = existing.ID
	f.inputs[fieldName].SetString(existing.Name)
	f.inputs[fieldHost].SetString(existing.Host)
	f.inputs[fieldUser].SetString(existing.Username)
	if existing.Port > 0 {
		f.inputs[fieldPort].SetString(strconv.Itoa(existing.Port))
	}
	f.inputs[fieldPassword].SetString(existing.Credential.Password)
	f.inputs[fieldKey].SetString(existing.Credential.KeyPath)
	return f
}

func (f *profileForm) title() string {
	if f.editing != "" {
		return "Edit Server"
	}
	return "Add Server"
}

func (f *profileForm) move(step int) {
	next := int(f.focus) + step
	if next < 0 {
		next = int(fieldCount) - 1
	}
	if next >= int(fieldCount) {
		next = 0
	}
	f.focus = formField(next)
}

func (f *profileForm) handle(k keys.Key) formOutcome {
	switch k.Kind {
	case keys.Esc, keys.CtrlC:
		return formCancel
	case keys.Up, keys.ShiftTab:
		f.move(-1)
		return formContinue
	case keys.Down, keys.Tab:
		f.move(1)
		return formContinue
	case keys.Enter:
		switch f.focus {
		case fieldKey:
			return formPickKey
		case fieldSave:
			return formSubmit
		}
		f.move(1)
		return formContinue
	}
	switch f.focus {
	case fieldSave:
		if k.Is(' ') {
			return formSubmit
		}
	case fieldKey:
		switch {
		case k.Is(' '):
			return formPickKey
		case k.Kind == keys.Backspace || k.Kind == keys.Delete:
			f.inputs[fieldKey].Clear()
		}
	case fieldPort:
		if k.Kind == keys.Rune && !unicode.IsDigit(k.Rune) {
			return formContinue
		}
		f.inputs[fieldPort].Handle(k)
	default:
		f.inputs[f.focus].Handle(k)
	}
	return formContinue
}

func (f *profileForm) setKeyPath(path string) {
	f.inputs[fieldKey].SetString(path)
	f.focus = fieldKey
}

func (f *profileForm) value(field formField) string {
	return strings.TrimSpace(f.inputs[field].String())
}

// profile validates the form and returns the normalized profile.
func (f *profileForm) profile() (schema.Profile, error) {
	port := 0
	if raw := f.value(fieldPort); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return schema.Profile{}, fmt.Errorf("%w: port must be a number", schema.ErrInvalidProfile)
		}
		port = n
	}
	return schema.NormalizeProfile(schema.Profile{
		ID:       f.editing,
		Name:     f.value(fieldName),
		Host:     f.value(fieldHost),
		Port:     port,
		Username: f.value(fieldUser),
		Credential: schema.Credential{
			Password: f.inputs[fieldPassword].String(),
			KeyPath:  f.value(fieldKey),
		},
	})
}

// fields converts a validated profile into a full update.
func fields(p schema.Profile) schema.ProfileFields {
	return schema.ProfileFields{
		Name:     &p.Name,
		Host:     &p.Host,
		Port:     &p.Port,
		Username: &p.Username,
		Password: &p.Credential.Password,
		KeyPath:  &p.Credential.KeyPath,
	}
}

const formLabelWidth = 13

func (f *profileForm) lines(width int, st styles) []string {
	out := []string{st.title.Render(f.title()), ""}
	for field := fieldName; field < fieldSave; field++ {
		marker := "  "
		if field == f.focus {
			marker = "> "
		}
		label := fmt.Sprintf("%-*s", formLabelWidth, fieldLabels[field])
		avail := width - len(marker) - formLabelWidth
		out = append(out, marker+label+f.fieldValue(field, avail))
	}
	out = append(out, "")
	save := "[ Save ]"
	if f.focus == fieldSave {
		out = append(out, "> "+st.selected.Render(save))
	} else {
		out = append(out, "  "+save)
	}
	if f.err != "" {
		out = append(out, "", st.errorText.Render(ansi.Truncate(f.err, width, "…")))
	}
	for i, line := range out {
		out[i] = ansi.Truncate(line, width, "")
	}
	return out
}

func (f *profileForm) fieldValue(field formField, avail int) string {
	if avail < 1 {
		return ""
	}
	input := &f.inputs[field]
	text := input.String()
	if field == fieldPassword {
		text = strings.Repeat("*", input.Len())
	}
	if field == fieldKey && text == "" && field != f.focus {
		return "(none)"
	}
	if field == fieldKey {
		if field == f.focus {
			hint := "  Enter to browse"
			return ansi.Truncate(text, avail-len(hint), "…") + hint
		}
		return ansi.Truncate(text, avail, "…")
	}
	if field != f.focus {
		return ansi.Truncate(text, avail, "…")
	}
	runes := []rune(text)
	cursor := input.Cursor()
	// Keep the cursor in view for long values.
	start := 0
	if cursor >= avail {
		start = cursor - avail + 1
	}
	visible := runes[start:]
	cursor -= start
	if len(visible) > avail {
		visible = visible[:avail]
	}
	return overlayCell(string(visible), cursor)
}
