// Package surface holds the per-drawable record tracked by the window
// registry: its handle, owning application, flags, and shared properties.
package surface

import (
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/surfman/internal/appreg"
)

// Window is the lifecycle record of one drawable. It is owned by the
// registry and only mutated on the window manager's owner goroutine.
type Window struct {
	ID     uuid.UUID
	Handle Handle
	App    *appreg.Application
	PID    int

	Properties *Bag

	fullscreen   bool
	mapped       bool
	closing      bool
	closingSince time.Time
	destroyed    bool
}

// NewWindow returns a record for h. Records are only created by a ready or
// map event, so they start out mapped.
func NewWindow(h Handle, app *appreg.Application) *Window {
	return &Window{
		ID:         uuid.New(),
		Handle:     h,
		App:        app,
		Properties: NewBag(),
		mapped:     true,
	}
}

// IsInProcess reports whether the drawable lives in the compositor's own
// scene graph.
func (w *Window) IsInProcess() bool {
	return w.Handle.Origin == InProcess
}

// ApplicationID returns the canonical application id, or "" for surfaces
// without an attached application.
func (w *Window) ApplicationID() string {
	if w == nil || w.App == nil {
		return ""
	}
	return w.App.Canonical().ID()
}

// IsMapped reports visibility. In-process items are always mapped.
func (w *Window) IsMapped() bool {
	if w.IsInProcess() {
		return true
	}
	return w.mapped
}

// SetMapped updates the mapped flag and reports whether it changed.
func (w *Window) SetMapped(mapped bool) bool {
	if w.mapped == mapped {
		return false
	}
	w.mapped = mapped
	return true
}

func (w *Window) IsFullscreen() bool {
	return w.fullscreen
}

// SetFullscreen updates the fullscreen flag and reports whether it changed.
func (w *Window) SetFullscreen(fullscreen bool) bool {
	if w.fullscreen == fullscreen {
		return false
	}
	w.fullscreen = fullscreen
	return true
}

func (w *Window) IsClosing() bool {
	return w.closing
}

// SetClosing marks the window as closing. The flag never reverts; the return
// value is true only for the call that performed the transition.
func (w *Window) SetClosing() bool {
	if w.closing {
		return false
	}
	w.closing = true
	w.closingSince = time.Now()
	return true
}

// ClosingSince returns when the window started closing, or the zero time.
func (w *Window) ClosingSince() time.Time {
	return w.closingSince
}

// MarkDestroyed records that the origin has released the drawable. The
// record stays in the registry until the consumer releases it.
func (w *Window) MarkDestroyed() {
	w.destroyed = true
}

func (w *Window) IsDestroyed() bool {
	return w.destroyed
}
