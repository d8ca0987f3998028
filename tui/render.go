package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"pkt.systems/sshtabs/core"
	"pkt.systems/sshtabs/schema"
)

const (
	addServerLabel = "+ Add Server"
	tabNameWidth   = 16
	minSidebar     = 12
)

// layout is the geometry of one frame.
type layout struct {
	width        int
	height       int
	sidebarWidth int
	contentWidth int
	bodyHeight   int
	view         core.Size
}

// computeLayout splits the terminal into sidebar and content column. The
// content box loses four columns to border and padding and five rows to the
// tab bar, the box border and the two footer lines.
func computeLayout(width, height, sidebarPercent int) layout {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	if sidebarPercent <= 0 {
		sidebarPercent = 25
	}
	sidebar := width * sidebarPercent / 100
	if sidebar < minSidebar {
		sidebar = minSidebar
	}
	if sidebar > width/2 {
		sidebar = width / 2
	}
	content := width - sidebar
	return layout{
		width:        width,
		height:       height,
		sidebarWidth: sidebar,
		contentWidth: content,
		bodyHeight:   max(height-2, 3),
		view:         core.ClampViewport(core.Size{Cols: content - 4, Rows: height - 5}),
	}
}

// frame is everything one repaint needs.
type frame struct {
	zone      schema.Zone
	profiles  []schema.Profile
	listIndex int
	sessions  []schema.SessionSnapshot
	active    *schema.SessionSnapshot
	notice    string
	form      *profileForm
	picker    *filePicker
}

func renderFrame(f frame, lay layout, st styles) []string {
	side := renderSidebar(f, lay, st)
	right := lipgloss.JoinVertical(lipgloss.Left,
		renderTabBar(f.sessions, lay.contentWidth, st),
		renderContentBox(f, lay, st),
	)
	body := strings.Split(lipgloss.JoinHorizontal(lipgloss.Top, side, right), "\n")
	lines := make([]string, 0, lay.height)
	for i := 0; i < lay.bodyHeight; i++ {
		if i < len(body) {
			lines = append(lines, ansi.Truncate(body[i], lay.width, ""))
		} else {
			lines = append(lines, "")
		}
	}
	notice := ""
	if f.notice != "" {
		notice = st.errorText.Render(ansi.Truncate(f.notice, lay.width, "…"))
	}
	lines = append(lines, notice, st.meta.Render(ansi.Truncate(helpLine(f), lay.width, "")))
	return lines
}

func helpLine(f frame) string {
	switch {
	case f.picker != nil:
		return "↑/↓ move  Enter open/select  Backspace parent  Esc cancel"
	case f.form != nil:
		return "↑/↓/Tab move  Enter next/save  Esc cancel"
	case f.zone == schema.ZoneContent:
		return "Ctrl+Q servers  Ctrl+←/→ switch tab"
	default:
		return "↑/↓ select  Enter connect  e edit  Del remove  w close tab  Ctrl+→ sessions  q quit"
	}
}

func renderSidebar(f frame, lay layout, st styles) string {
	inner := lay.sidebarWidth - 2
	height := lay.bodyHeight - 2
	items := make([]string, 0, len(f.profiles)+1)
	items = append(items, addServerLabel)
	for _, p := range f.profiles {
		items = append(items, p.Label())
	}
	// One row is taken by the title.
	visible := max(height-1, 1)
	start := 0
	if f.listIndex >= visible {
		start = f.listIndex - visible + 1
	}
	end := min(len(items), start+visible)

	lines := []string{st.title.Render(runewidth.Truncate("Servers", inner, ""))}
	for i := start; i < end; i++ {
		text := runewidth.FillRight(runewidth.Truncate(" "+items[i], inner, "…"), inner)
		switch {
		case i == f.listIndex && f.zone == schema.ZoneList && f.form == nil:
			text = st.selected.Render(text)
		case i == f.listIndex:
			text = st.selectedDim.Render(text)
		default:
			text = st.item.Render(text)
		}
		lines = append(lines, text)
	}
	box := st.panel
	if f.zone == schema.ZoneList && f.form == nil {
		box = st.panelFocused
	}
	return box.Width(inner).Height(height).MaxHeight(height + 2).Render(strings.Join(lines, "\n"))
}

func renderContentBox(f frame, lay layout, st styles) string {
	cols, rows := lay.view.Cols, lay.view.Rows
	var body []string
	switch {
	case f.picker != nil:
		body = f.picker.lines(cols, rows, st)
	case f.form != nil:
		body = f.form.lines(cols, st)
	case f.active == nil:
		body = placeholderLines(len(f.profiles), st)
	case f.active.State == schema.StateConnected:
		body = screenLines(f.active.Screen, cols, rows)
	default:
		body = statusLines(*f.active, cols, st)
	}
	if len(body) > rows {
		body = body[:rows]
	}
	for i, line := range body {
		body[i] = ansi.Truncate(line, cols, "")
	}
	box := st.panel
	if f.zone == schema.ZoneContent || f.form != nil || f.picker != nil {
		box = st.panelFocused
	}
	return box.Padding(0, 1).Width(cols + 2).Height(rows).MaxHeight(rows + 2).Render(strings.Join(body, "\n"))
}

func placeholderLines(profileCount int, st styles) []string {
	if profileCount == 0 {
		return []string{st.meta.Render("No servers yet. Select \"" + addServerLabel + "\" and press Enter.")}
	}
	return []string{st.meta.Render("No open sessions. Select a server and press Enter to connect.")}
}

// screenLines renders a snapshot with the cursor drawn as an inverse cell.
func screenLines(snap schema.ScreenSnapshot, cols, rows int) []string {
	out := make([]string, 0, rows)
	for i := 0; i < rows; i++ {
		line := ""
		if i < len(snap.Lines) {
			line = runewidth.Truncate(snap.Lines[i], cols, "")
		}
		if i == snap.Cursor.Y && snap.Cursor.X < cols {
			line = overlayCell(line, snap.Cursor.X)
		}
		out = append(out, line)
	}
	return out
}

// overlayCell returns line with the cell at column col drawn in reverse video.
func overlayCell(line string, col int) string {
	if col < 0 {
		return line
	}
	var b strings.Builder
	x := 0
	runes := []rune(line)
	i := 0
	for ; i < len(runes); i++ {
		w := runewidth.RuneWidth(runes[i])
		if x+w > col {
			break
		}
		b.WriteRune(runes[i])
		x += w
	}
	for x < col {
		b.WriteByte(' ')
		x++
	}
	cell := " "
	if i < len(runes) {
		cell = string(runes[i])
		i++
	}
	b.WriteString(ansiReverse + cell + ansiReverseOff)
	if i < len(runes) {
		b.WriteString(string(runes[i:]))
	}
	return b.String()
}

func statusLines(sess schema.SessionSnapshot, cols int, st styles) []string {
	lines := []string{
		st.title.Render("Status: " + string(sess.State)),
		"",
	}
	for _, entry := range sess.Log {
		lines = append(lines, runewidth.Truncate(entry, cols, "…"))
	}
	if sess.State == schema.StateError {
		lines = append(lines, "", st.errorText.Render("Press Ctrl+C to close this session."))
	}
	return lines
}

func tabLabel(sess schema.SessionSnapshot) string {
	name := runewidth.Truncate(sess.Name, tabNameWidth, "…")
	switch sess.State {
	case schema.StateInitializing, schema.StateConnecting:
		name += " …"
	case schema.StateError:
		name += " !"
	case schema.StateClosed:
		name += " x"
	}
	return " " + name + " "
}

// renderTabBar draws one label per session and scrolls so the active tab is
// always visible, marking hidden tabs with < and >.
func renderTabBar(sessions []schema.SessionSnapshot, width int, st styles) string {
	if width <= 0 {
		return ""
	}
	if len(sessions) == 0 {
		return st.tabBar.Render(runewidth.FillRight(runewidth.Truncate(" no sessions", width, ""), width))
	}
	labels := make([]string, len(sessions))
	widths := make([]int, len(sessions))
	active := 0
	total := 0
	for i, sess := range sessions {
		labels[i] = tabLabel(sess)
		widths[i] = runewidth.StringWidth(labels[i])
		total += widths[i]
		if sess.Active {
			active = i
		}
	}
	start, end := 0, len(sessions)
	if total > width {
		start, end = tabWindow(widths, active, width-2)
	}

	var b strings.Builder
	used := 0
	if start > 0 {
		b.WriteString(st.tabBar.Render("<"))
		used++
	}
	for i := start; i < end; i++ {
		label := labels[i]
		if used+widths[i] > width {
			label = runewidth.Truncate(label, width-used, "")
		}
		if i == active {
			b.WriteString(st.tabActive.Render(label))
		} else {
			b.WriteString(st.tabInactive.Render(label))
		}
		used += runewidth.StringWidth(label)
	}
	pad := width - used
	if end < len(sessions) {
		pad--
	}
	if pad > 0 {
		b.WriteString(st.tabBar.Render(strings.Repeat(" ", pad)))
	}
	if end < len(sessions) && used < width {
		b.WriteString(st.tabBar.Render(">"))
	}
	return b.String()
}

// tabWindow returns the half-open range of tabs that fits avail cells and
// contains active, growing right first and then left.
func tabWindow(widths []int, active, avail int) (int, int) {
	start, end := active, active+1
	sum := widths[active]
	for {
		grew := false
		if end < len(widths) && sum+widths[end] <= avail {
			sum += widths[end]
			end++
			grew = true
		}
		if start > 0 && sum+widths[start-1] <= avail {
			start--
			sum += widths[start]
			grew = true
		}
		if !grew {
			return start, end
		}
	}
}

var bannerArt = []string{
	`         _     _        _         `,
	` ___ ___| |__ | |_ __ _| |__  ___ `,
	`/ __/ __| '_ \| __/ _' | '_ \/ __|`,
	`\__ \__ \ | | | || (_| | |_) \__ \`,
	`|___/___/_| |_|\__\__,_|_.__/|___/`,
}

func renderBanner(lay layout, version string, st styles) []string {
	lines := make([]string, 0, len(bannerArt)+4)
	for _, art := range bannerArt {
		lines = append(lines, st.banner.Render(art))
	}
	lines = append(lines, "", st.meta.Render(version), "", "Press any key to continue, q to quit.")
	block := lipgloss.PlaceHorizontal(lay.width, lipgloss.Center, strings.Join(lines, "\n"))
	placed := lipgloss.PlaceVertical(lay.height, lipgloss.Center, block)
	out := strings.Split(placed, "\n")
	if len(out) > lay.height {
		out = out[:lay.height]
	}
	for i, line := range out {
		out[i] = ansi.Truncate(line, lay.width, "")
	}
	return out
}
