package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/surfman/internal/wm"
)

// screenshotPattern names files written from the viewer.
const screenshotPattern = "tui-%i-%s.png"

// windowItem implements list.Item for the window sidebar.
type windowItem struct {
	info wm.WindowInfo
}

func (i windowItem) Title() string {
	app := i.info.ApplicationID
	if app == "" {
		app = "(unknown)"
	}
	prefix := "  "
	switch {
	case i.info.Destroyed:
		prefix = "✗ "
	case i.info.Closing:
		prefix = "… "
	case i.info.IsFullscreen:
		prefix = "▣ "
	}
	return fmt.Sprintf("%s%d %s", prefix, i.info.Index, app)
}

func (i windowItem) Description() string { return i.info.WindowItem.String() }
func (i windowItem) FilterValue() string { return i.info.ApplicationID }

// promptKind is the action a pending form will run.
type promptKind int

const (
	promptNone promptKind = iota
	promptRelease
	promptScreenshot
)

// prompt holds the values bound to the active form. It is shared by
// pointer so copies of the tab see the form's writes.
type prompt struct {
	kind     promptKind
	target   wm.WindowInfo
	confirm  bool
	selector string
}

// clearStatusMsg clears the status message after a delay.
type clearStatusMsg struct{}

// refreshMsg asks the root model to poll the daemon now.
type refreshMsg struct{}

// WindowsTab lists registry rows with a detail pane for the selection.
type WindowsTab struct {
	list   list.Model
	daemon Daemon

	form   *huh.Form
	prompt *prompt

	statusText string

	width  int
	height int
	ready  bool
}

// NewWindowsTab creates an empty WindowsTab.
func NewWindowsTab(daemon Daemon) WindowsTab {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = false
	delegate.SetSpacing(0)

	l := list.New(nil, delegate, 0, 0)
	l.Title = "Windows"
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.DisableQuitKeybindings()

	return WindowsTab{
		list:   l,
		daemon: daemon,
	}
}

func buildWindowItems(windows []wm.WindowInfo) []list.Item {
	items := make([]list.Item, 0, len(windows))
	for _, w := range windows {
		items = append(items, windowItem{info: w})
	}
	return items
}

// SetWindows replaces the listed rows, keeping the cursor in range.
func (wt *WindowsTab) SetWindows(windows []wm.WindowInfo) {
	idx := wt.list.Index()
	wt.list.SetItems(buildWindowItems(windows))
	if n := len(windows); n > 0 && idx >= n {
		wt.list.Select(n - 1)
	}
}

// Prompting reports whether a form is capturing input.
func (wt WindowsTab) Prompting() bool {
	return wt.form != nil
}

func (wt WindowsTab) selected() (wm.WindowInfo, bool) {
	item, ok := wt.list.SelectedItem().(windowItem)
	if !ok {
		return wm.WindowInfo{}, false
	}
	return item.info, true
}

// Update implements tea.Model.
func (wt WindowsTab) Update(msg tea.Msg) (WindowsTab, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		wt.width = msg.Width
		wt.height = msg.Height
		wt.updateListSize()
		wt.ready = true
		return wt, nil
	}
	if wt.form != nil {
		return wt.updatePrompt(msg)
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "x", "delete":
			return wt.startRelease()
		case "s":
			return wt.startScreenshot()
		}
	}

	var cmd tea.Cmd
	wt.list, cmd = wt.list.Update(msg)
	return wt, cmd
}

func (wt WindowsTab) updatePrompt(msg tea.Msg) (WindowsTab, tea.Cmd) {
	if km, ok := msg.(tea.KeyMsg); ok && km.String() == "esc" {
		wt.form = nil
		wt.prompt = nil
		return wt, nil
	}

	form, cmd := wt.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		wt.form = f
	}

	switch wt.form.State {
	case huh.StateCompleted:
		p := wt.prompt
		wt.form = nil
		wt.prompt = nil
		return wt.runPrompt(p)
	case huh.StateAborted:
		wt.form = nil
		wt.prompt = nil
		return wt, nil
	}
	return wt, cmd
}

func (wt WindowsTab) startRelease() (WindowsTab, tea.Cmd) {
	info, ok := wt.selected()
	if !ok {
		return wt, nil
	}
	wt.prompt = &prompt{kind: promptRelease, target: info}
	wt.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Key("release").
				Title(fmt.Sprintf("Release window %d (%s)?", info.Index, info.WindowItem)).
				Description("The window leaves the registry and its handle stops resolving.").
				Affirmative("Release").
				Negative("Cancel").
				Value(&wt.prompt.confirm),
		),
	).WithShowHelp(false)
	return wt, wt.form.Init()
}

func (wt WindowsTab) startScreenshot() (WindowsTab, tea.Cmd) {
	sel := ""
	if info, ok := wt.selected(); ok {
		sel = info.ApplicationID
	}
	wt.prompt = &prompt{kind: promptScreenshot, selector: sel}
	wt.form = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Key("selector").
				Title("Screenshot selector").
				Description("appId[key=value]:output, empty for every output").
				Value(&wt.prompt.selector),
		),
	).WithShowHelp(false)
	return wt, wt.form.Init()
}

func (wt WindowsTab) runPrompt(p *prompt) (WindowsTab, tea.Cmd) {
	if p == nil {
		return wt, nil
	}
	switch p.kind {
	case promptRelease:
		if !p.confirm {
			return wt, nil
		}
		return wt.release(p.target)
	case promptScreenshot:
		return wt.screenshot(p.selector)
	}
	return wt, nil
}

func (wt WindowsTab) release(info wm.WindowInfo) (WindowsTab, tea.Cmd) {
	if wt.daemon == nil {
		wt.statusText = "daemon not connected"
		return wt, clearStatusAfter(3 * time.Second)
	}
	released, err := wt.daemon.ReleaseWindow(info.WindowItem)
	switch {
	case err != nil:
		wt.statusText = fmt.Sprintf("error: %v", err)
	case !released:
		wt.statusText = fmt.Sprintf("%s already released", info.WindowItem)
	default:
		wt.statusText = fmt.Sprintf("released: %s", info.WindowItem)
	}
	return wt, tea.Batch(clearStatusAfter(3*time.Second), func() tea.Msg { return refreshMsg{} })
}

func (wt WindowsTab) screenshot(selector string) (WindowsTab, tea.Cmd) {
	if wt.daemon == nil {
		wt.statusText = "daemon not connected"
		return wt, clearStatusAfter(3 * time.Second)
	}
	res, err := wt.daemon.MakeScreenshot(screenshotPattern, strings.TrimSpace(selector))
	switch {
	case err != nil:
		wt.statusText = fmt.Sprintf("error: %v", err)
	case !res.OK:
		wt.statusText = fmt.Sprintf("screenshot failed: %s", res.Filename)
	default:
		wt.statusText = fmt.Sprintf("saved: %s", res.Filename)
	}
	return wt, clearStatusAfter(3 * time.Second)
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return clearStatusMsg{}
	})
}

func (wt *WindowsTab) updateListSize() {
	listHeight := wt.height - 2
	if listHeight < 1 {
		listHeight = 1
	}
	wt.list.SetSize(wt.sidebarWidth(), listHeight)
}

func (wt WindowsTab) sidebarWidth() int {
	// Sidebar takes ~35% of width, min 20, max 40
	sw := wt.width * 35 / 100
	if sw < 20 {
		sw = 20
	}
	if sw > 40 {
		sw = 40
	}
	return sw
}

// View implements tea.Model.
func (wt WindowsTab) View() string {
	if !wt.ready || wt.width == 0 || wt.height == 0 {
		return ""
	}

	sidebarWidth := wt.sidebarWidth()
	detailWidth := wt.width - sidebarWidth - 3
	if detailWidth < 10 {
		detailWidth = 10
	}

	sidebar := lipgloss.NewStyle().
		Width(sidebarWidth).
		Height(wt.height - 2).
		Render(wt.list.View())

	var detail string
	if wt.form != nil {
		detail = wt.form.View()
	} else if info, ok := wt.selected(); ok {
		detail = renderDetails(info, detailWidth)
	} else {
		detail = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render(" no windows")
	}

	sep := lipgloss.NewStyle().
		Foreground(lipgloss.Color("238")).
		Render(strings.Repeat("│\n", max(wt.height-2, 1)))

	columns := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " "+sep, detail)
	return lipgloss.JoinVertical(lipgloss.Left, columns, wt.renderTabStatus())
}

// renderDetails describes one window: identity, state and its shared
// properties in key order.
func renderDetails(info wm.WindowInfo, width int) string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("15")).
		Render(fmt.Sprintf(" %s", info.WindowItem))

	state := "ready"
	switch {
	case info.Destroyed:
		state = "destroyed"
	case info.Closing:
		state = "closing"
	}

	label := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(14)
	row := func(k, v string) string {
		return " " + label.Render(k) + v
	}

	lines := []string{
		row("application", info.ApplicationID),
		row("id", info.ID.String()),
		row("state", state),
		row("mapped", fmt.Sprintf("%v", info.IsMapped)),
		row("fullscreen", fmt.Sprintf("%v", info.IsFullscreen)),
	}
	if info.PID > 0 {
		lines = append(lines, row("pid", fmt.Sprintf("%d", info.PID)))
	}
	if info.ClosingSince != nil {
		lines = append(lines, row("closing for", time.Since(*info.ClosingSince).Truncate(time.Second).String()))
	}

	lines = append(lines, "", " "+lipgloss.NewStyle().Bold(true).Render("Properties"))
	if len(info.Properties) == 0 {
		lines = append(lines, " "+lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("(none)"))
	}
	keys := make([]string, 0, len(info.Properties))
	for k := range info.Properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		lines = append(lines, row(k, fmt.Sprintf("%v", info.Properties[k])))
	}

	body := lipgloss.NewStyle().
		Width(width).
		Foreground(lipgloss.Color("250")).
		Render(strings.Join(lines, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, title, "", body)
}

func (wt WindowsTab) renderTabStatus() string {
	left := ""
	if wt.statusText != "" {
		left = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Render(wt.statusText)
	}

	right := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render("x:release  s:screenshot  esc:cancel")

	gap := wt.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Width(wt.width).
		Padding(0, 1).
		Render(left + strings.Repeat(" ", gap) + right)
}
