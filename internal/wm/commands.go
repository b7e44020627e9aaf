package wm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/registry"
	"github.com/1broseidon/surfman/internal/surface"
)

// WindowInfo is a point-in-time description of one registry row.
type WindowInfo struct {
	Index        int            `json:"index"`
	ID           uuid.UUID      `json:"id"`
	PID          int            `json:"pid,omitempty"`
	Closing      bool           `json:"closing"`
	ClosingSince *time.Time     `json:"closing_since,omitempty"`
	Destroyed    bool           `json:"destroyed,omitempty"`
	Properties   map[string]any `json:"properties,omitempty"`
	registry.Row
}

func describe(index int, w *surface.Window, row registry.Row) WindowInfo {
	info := WindowInfo{
		Index:      index,
		ID:         w.ID,
		PID:        w.PID,
		Closing:    w.IsClosing(),
		Destroyed:  w.IsDestroyed(),
		Properties: w.Properties.Map(),
		Row:        row,
	}
	if since := w.ClosingSince(); !since.IsZero() {
		info.ClosingSince = &since
	}
	return info
}

// ReleaseWindow finalizes teardown of the window for h. A window that is
// still Ready is moved to Closing first. It reports whether a window was
// released; releasing an unknown or already released window is a no-op.
func (m *Manager) ReleaseWindow(ctx context.Context, h surface.Handle) (bool, error) {
	var released bool
	err := m.do(ctx, func() {
		released = m.release(h)
	})
	return released, err
}

// SetWindowProperty stores key=value on the window for h and relays it to
// the client. It returns false when h is not a live window.
func (m *Manager) SetWindowProperty(ctx context.Context, h surface.Handle, key string, value any) (bool, error) {
	var ok bool
	err := m.do(ctx, func() {
		index := m.reg.FindByHandle(h)
		if index < 0 {
			return
		}
		w := m.reg.At(index)
		w.Properties.Set(key, value)
		ok = true

		m.emit(Notification{Kind: WindowPropertyChanged, Index: index, Handle: h, Key: key, Value: value})

		if w.IsInProcess() || m.transport == nil || w.IsDestroyed() {
			return
		}
		if err := m.transport.SetClientProperties(h, w.Properties.Map()); err != nil {
			m.logger.Warn("failed to relay window property", "handle", h, "key", key, "error", err)
		}
	})
	return ok, err
}

// WindowProperty returns the value of key on the window for h.
func (m *Manager) WindowProperty(ctx context.Context, h surface.Handle, key string) (any, bool, error) {
	var (
		value any
		ok    bool
	)
	err := m.do(ctx, func() {
		w := m.reg.At(m.reg.FindByHandle(h))
		if w == nil {
			return
		}
		value, ok = w.Properties.Get(key)
	})
	return value, ok, err
}

// WindowProperties returns a copy of all properties of the window for h, or
// nil for unknown handles.
func (m *Manager) WindowProperties(ctx context.Context, h surface.Handle) (map[string]any, error) {
	var props map[string]any
	err := m.do(ctx, func() {
		w := m.reg.At(m.reg.FindByHandle(h))
		if w == nil {
			return
		}
		props = w.Properties.Map()
	})
	return props, err
}

// Count returns the number of windows in the registry.
func (m *Manager) Count(ctx context.Context) (int, error) {
	var n int
	err := m.do(ctx, func() {
		n = m.reg.Count()
	})
	return n, err
}

// Get returns the row at index. Out-of-range indices yield an empty row.
func (m *Manager) Get(ctx context.Context, index int) (registry.Row, error) {
	var row registry.Row
	err := m.do(ctx, func() {
		row = m.reg.Get(index)
	})
	return row, err
}

// IndexOf returns the current index of the window for h, or -1.
func (m *Manager) IndexOf(ctx context.Context, h surface.Handle) (int, error) {
	index := -1
	err := m.do(ctx, func() {
		index = m.reg.FindByHandle(h)
	})
	return index, err
}

// Windows describes every window in registry order.
func (m *Manager) Windows(ctx context.Context) ([]WindowInfo, error) {
	var infos []WindowInfo
	err := m.do(ctx, func() {
		rows := m.reg.Snapshot()
		infos = make([]WindowInfo, 0, len(rows))
		m.reg.Each(func(i int, w *surface.Window) {
			infos = append(infos, describe(i, w, rows[i]))
		})
	})
	return infos, err
}

// ClosingWindows describes windows that have been closing for longer than
// olderThan.
func (m *Manager) ClosingWindows(ctx context.Context, olderThan time.Duration) ([]WindowInfo, error) {
	var infos []WindowInfo
	err := m.do(ctx, func() {
		now := time.Now()
		m.reg.Each(func(i int, w *surface.Window) {
			if !w.IsClosing() || now.Sub(w.ClosingSince()) < olderThan {
				return
			}
			infos = append(infos, describe(i, w, m.reg.Get(i)))
		})
	})
	return infos, err
}

// RegisterCompositorView registers out as a destination for composition and
// capture.
func (m *Manager) RegisterCompositorView(out output.Target) error {
	return m.outputs.RegisterOutput(out)
}
