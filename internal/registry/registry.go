// Package registry implements the ordered, observable list of live windows
// that the presentation layer uses as its model.
package registry

import (
	"fmt"
	"log/slog"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/surface"
)

// Field names one projected column of a row.
type Field uint8

const (
	FieldApplicationID Field = iota + 1
	FieldWindowItem
	FieldIsFullscreen
	FieldIsMapped
)

func (f Field) String() string {
	switch f {
	case FieldApplicationID:
		return "applicationId"
	case FieldWindowItem:
		return "windowItem"
	case FieldIsFullscreen:
		return "isFullscreen"
	case FieldIsMapped:
		return "isMapped"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// Row is the projection of a window exposed to model consumers.
type Row struct {
	ApplicationID string         `json:"applicationId"`
	WindowItem    surface.Handle `json:"windowItem"`
	IsFullscreen  bool           `json:"isFullscreen"`
	IsMapped      bool           `json:"isMapped"`
}

// Registry is the ordered collection of live windows. Order is insertion
// order; removal shifts later rows down by one.
//
// A Registry is not safe for concurrent use. The window manager drives it
// from a single owner goroutine.
type Registry struct {
	windows   []*surface.Window
	observers []*observerEntry
	nextObs   int
	notifying bool
	logger    *slog.Logger
}

type observerEntry struct {
	id  int
	obs Observer
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger}
}

// Observe registers o for change notifications. The returned function
// unregisters it.
func (r *Registry) Observe(o Observer) func() {
	r.guard("Observe")
	r.nextObs++
	id := r.nextObs
	r.observers = append(r.observers, &observerEntry{id: id, obs: o})
	return func() {
		for i, e := range r.observers {
			if e.id == id {
				r.observers = append(r.observers[:i], r.observers[i+1:]...)
				return
			}
		}
	}
}

// Count returns the number of rows.
func (r *Registry) Count() int {
	return len(r.windows)
}

// At returns the window at index, or nil when out of range.
func (r *Registry) At(index int) *surface.Window {
	if index < 0 || index >= len(r.windows) {
		return nil
	}
	return r.windows[index]
}

// Insert appends w and returns its index. A nil window is ignored and -1 is
// returned.
func (r *Registry) Insert(w *surface.Window) int {
	if w == nil {
		return -1
	}
	r.guard("Insert")

	index := len(r.windows)
	r.notify(func(o Observer) { o.RowsAboutToBeInserted(index, index) })
	r.windows = append(r.windows, w)
	r.notify(func(o Observer) { o.RowsInserted(index, index) })
	return index
}

// RemoveByHandle removes the window for h. It returns false when no such
// window exists, which a correctly driven lifecycle never produces.
func (r *Registry) RemoveByHandle(h surface.Handle) bool {
	r.guard("RemoveByHandle")

	index := r.FindByHandle(h)
	if index < 0 {
		r.logger.Warn("remove requested for unknown window", "handle", h)
		return false
	}

	r.notify(func(o Observer) { o.RowsAboutToBeRemoved(index, index) })
	r.windows = append(r.windows[:index], r.windows[index+1:]...)
	r.notify(func(o Observer) { o.RowsRemoved(index, index) })
	return true
}

// NotifyChanged tells observers that fields of the row at index changed.
func (r *Registry) NotifyChanged(index int, fields ...Field) {
	if index < 0 || index >= len(r.windows) {
		r.logger.Warn("data change for invalid index", "index", index)
		return
	}
	r.guard("NotifyChanged")
	r.notify(func(o Observer) { o.DataChanged(index, fields) })
}

// FindByHandle returns the index of the window for h, or -1.
func (r *Registry) FindByHandle(h surface.Handle) int {
	if h.IsZero() {
		return -1
	}
	for i, w := range r.windows {
		if w.Handle == h {
			return i
		}
	}
	return -1
}

// FindByApplication returns the index of the first window belonging to app
// or to app's non-aliased form, or -1.
func (r *Registry) FindByApplication(app *appreg.Application) int {
	if app == nil {
		return -1
	}
	for i, w := range r.windows {
		if w.App.Same(app) {
			return i
		}
	}
	return -1
}

// Get returns the projected row at index. Out-of-range indices yield an
// empty row.
func (r *Registry) Get(index int) Row {
	w := r.At(index)
	if w == nil {
		r.logger.Warn("invalid index", "index", index, "count", len(r.windows))
		return Row{}
	}
	return project(w)
}

// Snapshot returns all rows in order.
func (r *Registry) Snapshot() []Row {
	rows := make([]Row, len(r.windows))
	for i, w := range r.windows {
		rows[i] = project(w)
	}
	return rows
}

// Each calls fn for every window in order. fn must not mutate the registry.
func (r *Registry) Each(fn func(index int, w *surface.Window)) {
	for i, w := range r.windows {
		fn(i, w)
	}
}

// Windows returns the live windows in order. The slice is a copy; the
// windows are not.
func (r *Registry) Windows() []*surface.Window {
	out := make([]*surface.Window, len(r.windows))
	copy(out, r.windows)
	return out
}

func project(w *surface.Window) Row {
	return Row{
		ApplicationID: w.ApplicationID(),
		WindowItem:    w.Handle,
		IsFullscreen:  w.IsFullscreen(),
		IsMapped:      w.IsMapped(),
	}
}

func (r *Registry) notify(fn func(Observer)) {
	r.notifying = true
	defer func() { r.notifying = false }()

	// Observers may unregister themselves while being notified.
	entries := make([]*observerEntry, len(r.observers))
	copy(entries, r.observers)
	for _, e := range entries {
		fn(e.obs)
	}
}

func (r *Registry) guard(op string) {
	if r.notifying {
		panic(fmt.Sprintf("registry: %s called from within a change notification", op))
	}
}
