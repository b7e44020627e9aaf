// Package tui is a live terminal viewer for the daemon's window registry.
package tui

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// DefaultRefresh is how often the viewer polls the daemon.
const DefaultRefresh = time.Second

// Daemon is the part of the IPC client the viewer uses.
type Daemon interface {
	GetStatus() (*ipc.StatusData, error)
	ListWindows() ([]wm.WindowInfo, error)
	ReleaseWindow(h surface.Handle) (bool, error)
	MakeScreenshot(filename, selector string) (*ipc.MakeScreenshotData, error)
}

var _ Daemon = (*ipc.Client)(nil)

// TUI runs the viewer program.
type TUI struct {
	daemon  Daemon
	refresh time.Duration
}

// New creates a viewer polling daemon every refresh. A non-positive refresh
// uses DefaultRefresh.
func New(daemon Daemon, refresh time.Duration) *TUI {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	return &TUI{daemon: daemon, refresh: refresh}
}

// Run starts the viewer and blocks until the user quits.
func (t *TUI) Run() error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (stdin/stdout must be TTYs)")
	}

	p := tea.NewProgram(newModel(t.daemon, t.refresh), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
