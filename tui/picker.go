package tui

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/mattn/go-runewidth"

	"pkt.systems/sshtabs/internal/keys"
)

type pickOutcome int

const (
	pickContinue pickOutcome = iota
	pickCancel
	pickSelect
)

type pickEntry struct {
	name string
	dir  bool
}

// filePicker browses the local filesystem for a private key file.
type filePicker struct {
	dir     string
	entries []pickEntry
	index   int
	err     error
	readDir func(string) ([]os.DirEntry, error)
}

func newFilePicker(start string, readDir func(string) ([]os.DirEntry, error)) *filePicker {
	if readDir == nil {
		readDir = os.ReadDir
	}
	p := &filePicker{readDir: readDir}
	p.load(start)
	return p
}

func (p *filePicker) load(dir string) {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	p.dir = dir
	p.index = 0
	p.err = nil
	p.entries = []pickEntry{{name: "..", dir: true}}
	items, err := p.readDir(dir)
	if err != nil {
		p.err = err
		return
	}
	var dirs, files []pickEntry
	for _, item := range items {
		isDir := item.IsDir()
		if item.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(filepath.Join(dir, item.Name())); err == nil {
				isDir = info.IsDir()
			}
		}
		if isDir {
			dirs = append(dirs, pickEntry{name: item.Name(), dir: true})
		} else {
			files = append(files, pickEntry{name: item.Name()})
		}
	}
	byName := func(list []pickEntry) {
		sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	}
	byName(dirs)
	byName(files)
	p.entries = append(p.entries, dirs...)
	p.entries = append(p.entries, files...)
}

func (p *filePicker) selected() pickEntry {
	return p.entries[p.index]
}

// handle applies a key and returns the selected file path on pickSelect.
func (p *filePicker) handle(k keys.Key) (pickOutcome, string) {
	switch k.Kind {
	case keys.Esc, keys.CtrlC:
		return pickCancel, ""
	case keys.Up:
		if p.index > 0 {
			p.index--
		}
	case keys.Down:
		if p.index < len(p.entries)-1 {
			p.index++
		}
	case keys.Home:
		p.index = 0
	case keys.End:
		p.index = len(p.entries) - 1
	case keys.Backspace, keys.Left:
		p.load(filepath.Dir(p.dir))
	case keys.Enter, keys.Right:
		entry := p.selected()
		switch {
		case entry.name == "..":
			p.load(filepath.Dir(p.dir))
		case entry.dir:
			p.load(filepath.Join(p.dir, entry.name))
		case k.Kind == keys.Enter:
			return pickSelect, filepath.Join(p.dir, entry.name)
		}
	}
	return pickContinue, ""
}

func (p *filePicker) lines(width, height int, st styles) []string {
	out := []string{
		st.title.Render(runewidth.Truncate("Select private key", width, "")),
		st.meta.Render(runewidth.Truncate(p.dir, width, "…")),
	}
	if p.err != nil {
		out = append(out, st.errorText.Render(runewidth.Truncate("cannot read directory: "+p.err.Error(), width, "…")))
	}
	visible := max(height-len(out), 1)
	start := 0
	if p.index >= visible {
		start = p.index - visible + 1
	}
	end := min(len(p.entries), start+visible)
	for i := start; i < end; i++ {
		name := p.entries[i].name
		if p.entries[i].dir && name != ".." {
			name += "/"
		}
		text := runewidth.FillRight(runewidth.Truncate("  "+name, width, "…"), width)
		if i == p.index {
			text = st.selected.Render(text)
		}
		out = append(out, text)
	}
	return out
}

// pickerStart returns the directory the picker opens in.
func pickerStart(current, home string) string {
	if current != "" {
		return filepath.Dir(current)
	}
	if home != "" {
		sshDir := filepath.Join(home, ".ssh")
		if info, err := os.Stat(sshDir); err == nil && info.IsDir() {
			return sshDir
		}
		return home
	}
	return "."
}
