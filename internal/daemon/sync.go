package daemon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// WindowSource lists windows and accepts lifecycle events.
type WindowSource interface {
	Windows(ctx context.Context) ([]wm.WindowInfo, error)
	Post(ctx context.Context, ev wm.Event) error
}

// ProcessChecker reports whether a process is still alive.
type ProcessChecker interface {
	Exists(pid int) (bool, error)
}

// StateSynchronizer tears down transport windows whose owning process has
// exited without the display server reporting the destroy.
type StateSynchronizer struct {
	windows WindowSource
	procs   ProcessChecker
	logger  *slog.Logger
}

// NewStateSynchronizer creates a new state synchronizer.
func NewStateSynchronizer(windows WindowSource, procs ProcessChecker, logger *slog.Logger) *StateSynchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateSynchronizer{
		windows: windows,
		procs:   procs,
		logger:  logger,
	}
}

// ReapOrphans posts a destroy for every live transport window whose pid no
// longer exists. Windows already closing are left to the presentation layer.
func (s *StateSynchronizer) ReapOrphans(ctx context.Context) error {
	windows, err := s.windows.Windows(ctx)
	if err != nil {
		return fmt.Errorf("list windows: %w", err)
	}

	for _, w := range windows {
		if w.Closing || w.Destroyed || w.PID <= 0 || w.WindowItem.Origin != surface.Transport {
			continue
		}
		alive, err := s.procs.Exists(w.PID)
		if err != nil {
			s.logger.Debug("process check failed", "pid", w.PID, "error", err)
			continue
		}
		if alive {
			continue
		}

		s.logger.Info("window owner exited, tearing down",
			"handle", w.WindowItem,
			"app", w.ApplicationID,
			"pid", w.PID)
		ev := wm.Event{Kind: wm.EventSurfaceDestroyed, Handle: w.WindowItem, PID: w.PID}
		if err := s.windows.Post(ctx, ev); err != nil {
			return fmt.Errorf("post destroy for %s: %w", w.WindowItem, err)
		}
	}
	return nil
}
