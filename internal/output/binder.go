// Package output binds output targets (physical monitors or compositor
// views) to the surfaces shown on them.
package output

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/1broseidon/surfman/internal/surface"
)

// Target is one output a surface can be shown on.
type Target struct {
	Name    string `json:"name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Primary bool   `json:"primary,omitempty"`
}

// Contains reports whether the point lies inside t.
func (t Target) Contains(x, y int) bool {
	return x >= t.X && x < t.X+t.Width && y >= t.Y && y < t.Y+t.Height
}

// Compositor is the multi-process side of the binding.
type Compositor interface {
	RegisterOutput(out Target) error
	OutputForSurface(h surface.Handle) (Target, bool)
}

// Locator finds the output an in-process item is parented to.
type Locator interface {
	OutputOf(h surface.Handle) (Target, bool)
}

// CompositorFactory creates the compositor binding on first use.
type CompositorFactory func() (Compositor, error)

// Options configures a Binder.
type Options struct {
	ForceSingleProcess bool
	Factory            CompositorFactory
	Locator            Locator
	Logger             *slog.Logger
}

// Binder tracks registered outputs and answers which surfaces are on them.
type Binder struct {
	mu         sync.Mutex
	outputs    []Target
	compositor Compositor
	opts       Options
	logger     *slog.Logger
}

// NewBinder creates a Binder with no outputs.
func NewBinder(opts Options) *Binder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{opts: opts, logger: logger}
}

// RegisterOutput adds out. The first registration in multi-process mode
// creates the compositor binding. Registering a name twice is a no-op.
func (b *Binder) RegisterOutput(out Target) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, existing := range b.outputs {
		if existing.Name == out.Name {
			return nil
		}
	}

	if !b.opts.ForceSingleProcess && b.compositor == nil && b.opts.Factory != nil {
		c, err := b.opts.Factory()
		if err != nil {
			return fmt.Errorf("create compositor: %w", err)
		}
		b.compositor = c
		b.logger.Info("compositor binding created", "first_output", out.Name)
	}
	if b.compositor != nil {
		if err := b.compositor.RegisterOutput(out); err != nil {
			return fmt.Errorf("register output %q: %w", out.Name, err)
		}
	}

	b.outputs = append(b.outputs, out)
	return nil
}

// Outputs returns the registered outputs in registration order. The index of
// an output is its screen id.
func (b *Binder) Outputs() []Target {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Target, len(b.outputs))
	copy(out, b.outputs)
	return out
}

// Compositor returns the compositor binding, or nil when none exists.
func (b *Binder) Compositor() Compositor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compositor
}

// IsOnOutput reports whether w is shown on out.
func (b *Binder) IsOnOutput(w *surface.Window, out Target) bool {
	if w == nil {
		return false
	}

	var (
		current Target
		ok      bool
	)
	if w.IsInProcess() {
		if b.opts.Locator == nil {
			return false
		}
		current, ok = b.opts.Locator.OutputOf(w.Handle)
	} else {
		c := b.Compositor()
		if c == nil {
			return false
		}
		current, ok = c.OutputForSurface(w.Handle)
	}
	return ok && current.Name == out.Name
}
