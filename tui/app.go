// Package tui renders the two-pane session manager and drives its input loop.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"pkt.systems/pslog"
	"pkt.systems/sshtabs/core"
	"pkt.systems/sshtabs/internal/eventbus"
	"pkt.systems/sshtabs/internal/keys"
	"pkt.systems/sshtabs/schema"
)

// ProfileStore is the profile persistence the UI edits.
type ProfileStore interface {
	List() []schema.Profile
	Add(profile schema.Profile) (schema.Profile, error)
	Update(id schema.ProfileID, fields schema.ProfileFields) (schema.Profile, error)
	Remove(id schema.ProfileID) error
}

// Console is the terminal the app draws on.
type Console interface {
	io.Reader
	io.Writer
	Size() (cols, rows int)
}

// Deps are the collaborators of an App.
type Deps struct {
	Registry *core.Registry
	Router   *core.Router
	Profiles ProfileStore
	Events   <-chan eventbus.Event
	Logger   pslog.Logger
}

// Options tune the presentation.
type Options struct {
	Theme          schema.ThemeName
	SidebarPercent int
	ShowBanner     bool
	Version        string
	// Notice is shown on the first frame, e.g. a profile load failure.
	Notice string
}

// App is the interactive UI. It is single-use.
type App struct {
	reg      *core.Registry
	router   *core.Router
	profiles ProfileStore
	events   <-chan eventbus.Event
	log      pslog.Logger
	opts     Options

	screen *screen
	styles styles
	lay    layout

	banner bool
	notice string
	form   *profileForm
	picker *filePicker
	dirty  bool

	readDir func(string) ([]os.DirEntry, error)
	homeDir func() (string, error)
}

// New constructs an App.
func New(deps Deps, opts Options) (*App, error) {
	if deps.Registry == nil || deps.Router == nil || deps.Profiles == nil {
		return nil, errors.New("tui: registry, router and profiles are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &App{
		reg:      deps.Registry,
		router:   deps.Router,
		profiles: deps.Profiles,
		events:   deps.Events,
		log:      logger,
		opts:     opts,
		banner:   opts.ShowBanner,
		notice:   opts.Notice,
		readDir:  os.ReadDir,
		homeDir:  os.UserHomeDir,
	}, nil
}

// Run draws on console until the user quits or ctx ends. Every session is
// closed before the alternate screen is left.
func (a *App) Run(ctx context.Context, console Console, resizes <-chan struct{}) error {
	a.screen = newScreen(console)
	a.styles = newStyles(lipgloss.NewRenderer(console), themeForName(a.opts.Theme))
	a.screen.EnterAltScreen()
	defer a.screen.ExitAltScreen()
	defer a.reg.CloseAll()

	a.resize(console)
	a.render()
	a.log.Info("tui start", "width", a.lay.width, "height", a.lay.height, "view_cols", a.lay.view.Cols, "view_rows", a.lay.view.Rows)

	keyCh := make(chan keys.Key, 64)
	go keys.Read(console, keyCh)

	events := a.events
	for {
		select {
		case <-ctx.Done():
			a.log.Info("tui exit", "reason", "context")
			return nil
		case k, ok := <-keyCh:
			if !ok {
				a.log.Info("tui exit", "reason", "input closed")
				return nil
			}
			if a.handleKey(k) {
				return nil
			}
			a.dirty = true
		case _, ok := <-resizes:
			if !ok {
				resizes = nil
				break
			}
			a.resize(console)
			a.dirty = true
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			a.handleEvent(ev)
		}
		if a.dirty {
			a.render()
			a.dirty = false
		}
	}
}

func (a *App) resize(console Console) {
	cols, rows := console.Size()
	a.lay = computeLayout(cols, rows, a.opts.SidebarPercent)
	a.reg.Resize(a.lay.view)
	a.log.Debug("tui resize", "width", a.lay.width, "height", a.lay.height)
}

func (a *App) handleEvent(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.EventScreen:
		if ev.SessionID == a.reg.ActiveID() {
			a.dirty = true
		}
	default:
		a.dirty = true
	}
}

// handleKey routes one key and reports whether the app should exit.
func (a *App) handleKey(k keys.Key) bool {
	if a.banner {
		if k.Is('q') || k.Kind == keys.CtrlC {
			a.log.Info("tui exit", "reason", "banner")
			return true
		}
		a.banner = false
		return false
	}
	if a.picker != nil {
		a.handlePicker(k)
		return false
	}
	if a.form != nil {
		a.handleForm(k)
		return false
	}

	a.notice = ""
	res := a.router.Handle(k)
	if res.Err != nil {
		a.notice = noticeFor(res.Err)
	}
	switch res.Action {
	case core.ActionAddProfile:
		a.form = newProfileForm(nil)
	case core.ActionEditProfile:
		p := res.Profile
		a.form = newProfileForm(&p)
	case core.ActionQuit:
		a.log.Info("tui exit", "reason", "quit")
		return true
	}
	return false
}

func (a *App) handleForm(k keys.Key) {
	switch a.form.handle(k) {
	case formCancel:
		a.form = nil
	case formPickKey:
		home, _ := a.homeDir()
		a.picker = newFilePicker(pickerStart(a.form.value(fieldKey), home), a.readDir)
	case formSubmit:
		a.submitForm()
	}
}

func (a *App) handlePicker(k keys.Key) {
	outcome, path := a.picker.handle(k)
	switch outcome {
	case pickCancel:
		a.picker = nil
	case pickSelect:
		a.picker = nil
		if a.form != nil {
			a.form.setKeyPath(path)
		}
	}
}

func (a *App) submitForm() {
	p, err := a.form.profile()
	if err != nil {
		a.form.err = err.Error()
		return
	}
	var saved schema.Profile
	if a.form.editing == "" {
		saved, err = a.profiles.Add(p)
	} else {
		saved, err = a.profiles.Update(a.form.editing, fields(p))
	}
	if err != nil && !errors.Is(err, schema.ErrConfigPersist) {
		a.form.err = err.Error()
		return
	}
	if err != nil {
		a.notice = noticeFor(err)
	}
	a.form = nil
	a.router.SelectProfile(saved.ID)
}

func noticeFor(err error) string {
	if errors.Is(err, schema.ErrConfigPersist) {
		return fmt.Sprintf("Profiles not saved: %v", err)
	}
	return err.Error()
}

func (a *App) render() {
	var lines []string
	if a.banner {
		lines = renderBanner(a.lay, a.opts.Version, a.styles)
	} else {
		lines = renderFrame(a.snapshot(), a.lay, a.styles)
	}
	if err := a.screen.Render(lines); err != nil {
		a.log.Warn("tui render failed", "err", err)
	}
}

func (a *App) snapshot() frame {
	f := frame{
		zone:      a.router.Zone(),
		profiles:  a.profiles.List(),
		listIndex: a.router.ListIndex(),
		sessions:  a.reg.Sessions(),
		notice:    a.notice,
		form:      a.form,
		picker:    a.picker,
	}
	if active, ok := a.reg.Active(); ok {
		f.active = &active
	}
	return f
}
