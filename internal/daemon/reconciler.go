package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/surfman/internal/wm"
)

// Attachments is the application registry as far as the reconciler needs it.
type Attachments interface {
	Prune() []int
}

// ClosingLister reports windows that have been closing for a while.
type ClosingLister interface {
	ClosingWindows(ctx context.Context, olderThan time.Duration) ([]wm.WindowInfo, error)
}

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	// ClosingWarnAfter is how long a window may stay closing before it is
	// reported. Zero disables the report.
	ClosingWarnAfter time.Duration
	Logger           *slog.Logger
}

// Reconciler periodically checks for state drift and corrects it.
type Reconciler struct {
	interval time.Duration
	apps     Attachments
	windows  ClosingLister
	sync     *StateSynchronizer
	logger   *slog.Logger

	mu        sync.Mutex
	warnAfter time.Duration
	warned    map[uuid.UUID]struct{}
}

// NewReconciler creates a new reconciler with the given configuration.
// syncer may be nil when no owner-exit detection is wanted.
func NewReconciler(cfg ReconcilerConfig, apps Attachments, windows ClosingLister, syncer *StateSynchronizer) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval:  interval,
		apps:      apps,
		windows:   windows,
		sync:      syncer,
		logger:    logger,
		warnAfter: cfg.ClosingWarnAfter,
		warned:    make(map[uuid.UUID]struct{}),
	}
}

// SetClosingWarnAfter updates the closing report threshold, e.g. after a
// config reload.
func (r *Reconciler) SetClosingWarnAfter(d time.Duration) {
	r.mu.Lock()
	r.warnAfter = d
	r.mu.Unlock()
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	if r.apps != nil {
		if pruned := r.apps.Prune(); len(pruned) > 0 {
			r.logger.Info("reconciler: dropped attachments of exited processes", "pids", pruned)
		}
	}

	if r.sync != nil {
		if err := r.sync.ReapOrphans(ctx); err != nil {
			r.logger.Warn("reconciler: failed to reap orphaned windows", "error", err)
		}
	}

	r.reportClosing(ctx)
}

// reportClosing warns once per window about windows that have been closing
// longer than the threshold, which usually means nothing released them.
func (r *Reconciler) reportClosing(ctx context.Context) {
	r.mu.Lock()
	after := r.warnAfter
	r.mu.Unlock()
	if after <= 0 || r.windows == nil {
		return
	}

	stale, err := r.windows.ClosingWindows(ctx, after)
	if err != nil {
		r.logger.Error("reconciler: failed to list closing windows", "error", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := make(map[uuid.UUID]struct{}, len(stale))
	for _, w := range stale {
		current[w.ID] = struct{}{}
		if _, seen := r.warned[w.ID]; seen {
			continue
		}
		r.warned[w.ID] = struct{}{}
		var since time.Duration
		if w.ClosingSince != nil {
			since = time.Since(*w.ClosingSince).Round(time.Second)
		}
		r.logger.Warn("window still closing; was it released?",
			"handle", w.WindowItem,
			"app", w.ApplicationID,
			"closing_for", since)
	}
	// Forget windows that have since been released.
	for id := range r.warned {
		if _, ok := current[id]; !ok {
			delete(r.warned, id)
		}
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	r.reconcile(ctx)
}
