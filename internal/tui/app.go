package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/wm"
)

// snapshotMsg carries one poll of the daemon.
type snapshotMsg struct {
	status  *ipc.StatusData
	windows []wm.WindowInfo
	err     error
}

// tickMsg schedules the next poll.
type tickMsg time.Time

// model is the root bubbletea model for the TUI.
type model struct {
	daemon  Daemon
	refresh time.Duration

	activeTab  Tab
	windowsTab WindowsTab
	statusTab  StatusTab

	status *ipc.StatusData

	width  int
	height int
}

func newModel(daemon Daemon, refresh time.Duration) model {
	return model{
		daemon:     daemon,
		refresh:    refresh,
		activeTab:  TabWindows,
		windowsTab: NewWindowsTab(daemon),
	}
}

// poll fetches status and windows from the daemon.
func poll(daemon Daemon) tea.Cmd {
	return func() tea.Msg {
		status, err := daemon.GetStatus()
		if err != nil {
			return snapshotMsg{err: err}
		}
		windows, err := daemon.ListWindows()
		if err != nil {
			return snapshotMsg{err: err}
		}
		return snapshotMsg{status: status, windows: windows}
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(poll(m.daemon), tick(m.refresh))
}

func (m *model) applySnapshot(msg snapshotMsg) {
	if msg.err != nil {
		m.status = nil
		m.statusTab.SetStatus(nil, msg.err)
		m.windowsTab.SetWindows(nil)
		return
	}
	m.status = msg.status
	m.statusTab.SetStatus(msg.status, nil)
	m.windowsTab.SetWindows(msg.windows)
}

func (m *model) resize(width, height int) {
	m.width = width
	m.height = height
	// status bar (1) + tab bar (2 with margin) + help bar (1)
	content := max(height-4, 1)
	sub := tea.WindowSizeMsg{Width: width, Height: content}
	m.windowsTab, _ = m.windowsTab.Update(sub)
	m.statusTab, _ = m.statusTab.Update(sub)
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tea.Batch(poll(m.daemon), tick(m.refresh))
	case refreshMsg:
		return m, poll(m.daemon)
	case snapshotMsg:
		m.applySnapshot(msg)
		return m, nil
	case clearStatusMsg:
		m.windowsTab.statusText = ""
		return m, nil
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	}

	// An open form consumes keys; only ctrl+c escapes to quit.
	if m.activeTab == TabWindows && m.windowsTab.Prompting() {
		if km, ok := msg.(tea.KeyMsg); ok && km.String() == "ctrl+c" {
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.windowsTab, cmd = m.windowsTab.Update(msg)
		return m, cmd
	}

	if km, ok := msg.(tea.KeyMsg); ok {
		switch km.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1":
			m.activeTab = TabWindows
			return m, nil
		case "2":
			m.activeTab = TabStatus
			return m, nil
		case "r":
			return m, poll(m.daemon)
		}
	}

	var cmd tea.Cmd
	switch m.activeTab {
	case TabWindows:
		m.windowsTab, cmd = m.windowsTab.Update(msg)
	case TabStatus:
		m.statusTab, cmd = m.statusTab.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	statusBar := renderStatusBar(m.status, m.width)
	tabBar := renderTabBar(m.activeTab, m.width)
	helpBar := renderHelpBar(m.width)

	var content string
	switch m.activeTab {
	case TabWindows:
		content = m.windowsTab.View()
	case TabStatus:
		content = m.statusTab.View()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		statusBar,
		tabBar,
		content,
		helpBar,
	)
}
