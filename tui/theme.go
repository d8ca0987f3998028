package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"pkt.systems/sshtabs/schema"
)

type rgb struct {
	r int
	g int
	b int
}

func (c rgb) color() lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b))
}

type tuiTheme struct {
	Name          schema.ThemeName
	Mono          bool
	Accent        rgb
	BorderFG      rgb
	SelectBG      rgb
	SelectFG      rgb
	TabBarBG      rgb
	TabActiveBG   rgb
	TabActiveFG   rgb
	TabInactiveFG rgb
	ErrorFG       rgb
	MetaFG        rgb
	BannerFG      rgb
}

const (
	ansiReverse    = "\x1b[7m"
	ansiReverseOff = "\x1b[27m"
)

var tuiThemes = map[schema.ThemeName]tuiTheme{
	schema.ThemeOutrun: {
		Name:          schema.ThemeOutrun,
		Accent:        rgb{r: 0, g: 229, b: 255},
		BorderFG:      rgb{r: 96, g: 56, b: 140},
		SelectBG:      rgb{r: 255, g: 91, b: 189},
		SelectFG:      rgb{r: 10, g: 13, b: 23},
		TabBarBG:      rgb{r: 32, g: 8, b: 56},
		TabActiveBG:   rgb{r: 0, g: 229, b: 255},
		TabActiveFG:   rgb{r: 10, g: 13, b: 23},
		TabInactiveFG: rgb{r: 240, g: 241, b: 255},
		ErrorFG:       rgb{r: 255, g: 107, b: 107},
		MetaFG:        rgb{r: 154, g: 163, b: 178},
		BannerFG:      rgb{r: 255, g: 91, b: 189},
	},
	schema.ThemeGruvbox: {
		Name:          schema.ThemeGruvbox,
		Accent:        rgb{r: 250, g: 189, b: 47},
		BorderFG:      rgb{r: 102, g: 92, b: 84},
		SelectBG:      rgb{r: 250, g: 189, b: 47},
		SelectFG:      rgb{r: 40, g: 40, b: 40},
		TabBarBG:      rgb{r: 60, g: 56, b: 54},
		TabActiveBG:   rgb{r: 250, g: 189, b: 47},
		TabActiveFG:   rgb{r: 40, g: 40, b: 40},
		TabInactiveFG: rgb{r: 235, g: 219, b: 178},
		ErrorFG:       rgb{r: 251, g: 73, b: 52},
		MetaFG:        rgb{r: 146, g: 131, b: 116},
		BannerFG:      rgb{r: 214, g: 93, b: 14},
	},
	schema.ThemeTokyoMidnight: {
		Name:          schema.ThemeTokyoMidnight,
		Accent:        rgb{r: 122, g: 162, b: 247},
		BorderFG:      rgb{r: 59, g: 66, b: 97},
		SelectBG:      rgb{r: 122, g: 162, b: 247},
		SelectFG:      rgb{r: 26, g: 27, b: 38},
		TabBarBG:      rgb{r: 26, g: 27, b: 38},
		TabActiveBG:   rgb{r: 122, g: 162, b: 247},
		TabActiveFG:   rgb{r: 26, g: 27, b: 38},
		TabInactiveFG: rgb{r: 192, g: 202, b: 245},
		ErrorFG:       rgb{r: 247, g: 118, b: 142},
		MetaFG:        rgb{r: 127, g: 133, b: 163},
		BannerFG:      rgb{r: 187, g: 154, b: 247},
	},
	schema.ThemeMono: {
		Name: schema.ThemeMono,
		Mono: true,
	},
}

func themeForName(name schema.ThemeName) tuiTheme {
	if name == "" {
		name = schema.DefaultTheme
	}
	if theme, ok := tuiThemes[name]; ok {
		return theme
	}
	return tuiThemes[schema.DefaultTheme]
}

// styles are the lipgloss styles derived from a theme for one renderer.
type styles struct {
	panel        lipgloss.Style
	panelFocused lipgloss.Style
	title        lipgloss.Style
	item         lipgloss.Style
	selected     lipgloss.Style
	selectedDim  lipgloss.Style
	tabBar       lipgloss.Style
	tabActive    lipgloss.Style
	tabInactive  lipgloss.Style
	errorText    lipgloss.Style
	meta         lipgloss.Style
	banner       lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, theme tuiTheme) styles {
	base := r.NewStyle()
	panel := base.Border(lipgloss.RoundedBorder())
	st := styles{
		panel:        panel,
		panelFocused: panel.Border(lipgloss.ThickBorder()),
		title:        base.Bold(true),
		item:         base,
		selected:     base.Reverse(true).Bold(true),
		selectedDim:  base.Underline(true),
		tabBar:       base,
		tabActive:    base.Reverse(true).Bold(true),
		tabInactive:  base,
		errorText:    base.Bold(true),
		meta:         base.Faint(true),
		banner:       base.Bold(true),
	}
	if theme.Mono {
		return st
	}
	st.panel = st.panel.BorderForeground(theme.BorderFG.color())
	st.panelFocused = st.panelFocused.BorderForeground(theme.Accent.color())
	st.title = st.title.Foreground(theme.Accent.color())
	st.selected = base.Bold(true).Background(theme.SelectBG.color()).Foreground(theme.SelectFG.color())
	st.selectedDim = base.Foreground(theme.SelectBG.color())
	st.tabBar = base.Background(theme.TabBarBG.color()).Foreground(theme.TabInactiveFG.color())
	st.tabActive = base.Bold(true).Background(theme.TabActiveBG.color()).Foreground(theme.TabActiveFG.color())
	st.tabInactive = st.tabBar
	st.errorText = st.errorText.Foreground(theme.ErrorFG.color())
	st.meta = base.Italic(true).Foreground(theme.MetaFG.color())
	st.banner = st.banner.Foreground(theme.BannerFG.color())
	return st
}
