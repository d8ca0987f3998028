package schema

import "strings"

// Built-in UI themes. Each has a palette in the tui package.
const (
	ThemeOutrun        ThemeName = "outrun"
	ThemeGruvbox       ThemeName = "gruvbox"
	ThemeTokyoMidnight ThemeName = "tokyo-midnight"
	// ThemeMono draws with reverse video and bold only.
	ThemeMono ThemeName = "mono"
)

// DefaultTheme is used when no theme is configured.
const DefaultTheme = ThemeOutrun

var themeOrder = []ThemeName{ThemeOutrun, ThemeGruvbox, ThemeTokyoMidnight, ThemeMono}

// themeAliases maps every accepted spelling to its theme.
var themeAliases = map[string]ThemeName{
	"outrun":         ThemeOutrun,
	"synthwave":      ThemeOutrun,
	"gruvbox":        ThemeGruvbox,
	"gruvbox-dark":   ThemeGruvbox,
	"tokyo-midnight": ThemeTokyoMidnight,
	"tokyo-night":    ThemeTokyoMidnight,
	"tokyonight":     ThemeTokyoMidnight,
	"mono":           ThemeMono,
	"monochrome":     ThemeMono,
	"no-color":       ThemeMono,
}

var themeKeyReplacer = strings.NewReplacer("_", "-", " ", "-")

// AvailableThemes lists the built-in themes in menu order.
func AvailableThemes() []ThemeName {
	return append([]ThemeName(nil), themeOrder...)
}

// ThemeList formats AvailableThemes for help and error text.
func ThemeList() string {
	names := make([]string, len(themeOrder))
	for i, t := range themeOrder {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}

// NormalizeThemeName resolves a theme name or alias. Case, surrounding space
// and the separators "_", " " and "-" are treated alike.
func NormalizeThemeName(name string) (ThemeName, bool) {
	key := themeKeyReplacer.Replace(strings.ToLower(strings.TrimSpace(name)))
	theme, ok := themeAliases[key]
	return theme, ok
}
