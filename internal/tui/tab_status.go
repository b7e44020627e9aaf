package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/surfman/internal/ipc"
)

// StatusTab shows the daemon summary and its registered outputs.
type StatusTab struct {
	status *ipc.StatusData
	err    error

	width  int
	height int
}

// SetStatus records the latest poll result.
func (s *StatusTab) SetStatus(status *ipc.StatusData, err error) {
	s.status = status
	s.err = err
}

// Update implements tea.Model.
func (s StatusTab) Update(msg tea.Msg) (StatusTab, tea.Cmd) {
	if msg, ok := msg.(tea.WindowSizeMsg); ok {
		s.width = msg.Width
		s.height = msg.Height
	}
	return s, nil
}

// View implements tea.Model.
func (s StatusTab) View() string {
	if s.width == 0 {
		return ""
	}
	muted := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	if s.status == nil {
		msg := "waiting for daemon"
		if s.err != nil {
			msg = s.err.Error()
		}
		return lipgloss.NewStyle().
			Width(s.width).
			Height(s.height).
			Align(lipgloss.Center, lipgloss.Center).
			Render(muted.Render(msg))
	}

	st := s.status
	label := muted.Width(18)
	row := func(k, v string) string {
		return " " + label.Render(k) + v
	}
	lines := []string{
		row("mode", st.Mode),
		row("uptime", (time.Duration(st.UptimeSeconds) * time.Second).String()),
		row("windows", fmt.Sprintf("%d", st.WindowCount)),
		row("closing", fmt.Sprintf("%d", st.ClosingCount)),
		row("attachments", fmt.Sprintf("%d", st.Attachments)),
		row("security checks", fmt.Sprintf("%v", st.SecurityChecks)),
		row("watchdog", fmt.Sprintf("%v", st.Watchdog)),
		"",
		" " + lipgloss.NewStyle().Bold(true).Render("Outputs"),
	}

	outputs := append([]ipc.OutputInfo(nil), st.Outputs...)
	sort.Slice(outputs, func(i, j int) bool { return outputs[i].Index < outputs[j].Index })
	if len(outputs) == 0 {
		lines = append(lines, " "+muted.Render("(none registered)"))
	}
	for _, o := range outputs {
		primary := ""
		if o.Primary {
			primary = " primary"
		}
		lines = append(lines, fmt.Sprintf(" %d  %-12s %dx%d+%d+%d%s",
			o.Index, o.Name, o.Width, o.Height, o.X, o.Y, primary))
	}

	return lipgloss.NewStyle().
		Width(s.width).
		Foreground(lipgloss.Color("250")).
		Render(strings.Join(lines, "\n"))
}
