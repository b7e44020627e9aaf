// Package wm implements the window lifecycle manager. It consumes surface
// events from the in-process runtime and the display transport through one
// serialized queue, keeps the window registry, relays shared properties and
// tells subscribers when windows become ready, start closing, and are lost.
package wm

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/capture"
	"github.com/1broseidon/surfman/internal/metrics"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/registry"
	"github.com/1broseidon/surfman/internal/surface"
)

// Transport is the multi-process display connection, as far as the manager
// needs to talk back to it.
type Transport interface {
	TakeFocus(h surface.Handle) error
	SetClientProperties(h surface.Handle, props map[string]any) error
}

// Options configures a Manager.
type Options struct {
	Resolver  appreg.Resolver
	Transport Transport
	Outputs   *output.Binder
	Grabber   capture.Grabber

	ScreenshotTimeout time.Duration
	QueueSize         int

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Manager owns the window registry. All registry mutations happen on the
// goroutine running Run.
type Manager struct {
	reg       *registry.Registry
	resolver  appreg.Resolver
	transport Transport
	outputs   *output.Binder
	grabber   capture.Grabber
	timeout   atomic.Int64
	metrics   *metrics.Metrics
	logger    *slog.Logger

	queue   chan item
	running atomic.Bool

	// pids remembers process ids announced by SurfaceCreated.
	pids map[surface.Handle]int

	subMu     sync.Mutex
	subs      map[int]chan Notification
	listeners map[int]func(Notification)
	nextSub   int
}

type item struct {
	ev  Event
	cmd func()
}

// New creates a Manager. It panics when no resolver is configured.
func New(opts Options) *Manager {
	if opts.Resolver == nil {
		panic("wm: Options.Resolver is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = 256
	}
	outputs := opts.Outputs
	if outputs == nil {
		outputs = output.NewBinder(output.Options{ForceSingleProcess: true, Logger: logger})
	}

	m := &Manager{
		reg:       registry.New(logger.With("component", "registry")),
		resolver:  opts.Resolver,
		transport: opts.Transport,
		outputs:   outputs,
		grabber:   opts.Grabber,
		metrics:   opts.Metrics,
		logger:    logger,
		queue:     make(chan item, size),
		pids:      make(map[surface.Handle]int),
		subs:      make(map[int]chan Notification),
		listeners: make(map[int]func(Notification)),
	}
	m.SetScreenshotTimeout(opts.ScreenshotTimeout)
	return m
}

// SetScreenshotTimeout changes the per-grab timeout used by later
// screenshots. Zero or less selects the capture default.
func (m *Manager) SetScreenshotTimeout(d time.Duration) {
	m.timeout.Store(int64(d))
}

// ScreenshotTimeout returns the per-grab timeout in effect.
func (m *Manager) ScreenshotTimeout() time.Duration {
	if d := time.Duration(m.timeout.Load()); d > 0 {
		return d
	}
	return capture.DefaultTimeout
}

// Observe registers a synchronous list-model observer. Observers run on the
// owner goroutine and must not call back into the manager. Observe must be
// called before Run.
func (m *Manager) Observe(o registry.Observer) func() {
	return m.reg.Observe(o)
}

// Outputs returns the output binder.
func (m *Manager) Outputs() *output.Binder {
	return m.outputs
}

// Run consumes the intake queue until ctx is done. Only one Run may be
// active at a time.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		panic("wm: Run called while already running")
	}
	defer m.running.Store(false)

	m.logger.Info("window manager started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("window manager stopped")
			return ctx.Err()
		case it := <-m.queue:
			if it.cmd != nil {
				it.cmd()
				continue
			}
			m.handle(it.ev)
		}
	}
}

// Post queues ev. It blocks until the event is queued or ctx is done.
func (m *Manager) Post(ctx context.Context, ev Event) error {
	select {
	case m.queue <- item{ev: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// do runs fn on the owner goroutine and waits for it to finish.
func (m *Manager) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	it := item{cmd: func() {
		defer close(done)
		fn()
	}}

	select {
	case m.queue <- it:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) handle(ev Event) {
	m.metrics.Event(ev.Kind.String())

	switch ev.Kind {
	case EventSurfaceItemReady:
		m.itemReady(ev)
	case EventSurfaceItemFullscreenChanging:
		m.fullscreenChanging(ev)
	case EventSurfaceItemClosing:
		m.itemClosing(ev)
	case EventSurfaceCreated:
		m.surfaceCreated(ev)
	case EventSurfaceMapped:
		m.surfaceMapped(ev)
	case EventSurfaceUnmapped:
		m.surfaceUnmapped(ev)
	case EventSurfaceDestroyed:
		m.surfaceDestroyed(ev)
	case EventClientPropertyChanged:
		m.clientPropertyChanged(ev)
	default:
		m.logger.Warn("unknown event kind", "kind", ev.Kind.String(), "handle", ev.Handle)
	}
}

func (m *Manager) itemReady(ev Event) {
	if ev.App == nil {
		m.logger.Error("in-process surface has no application attached", "handle", ev.Handle)
		return
	}
	if m.reg.FindByHandle(ev.Handle) >= 0 {
		m.logger.Warn("in-process surface reported ready twice", "handle", ev.Handle)
		return
	}
	m.setupWindow(surface.NewWindow(ev.Handle, ev.App.Canonical()))
}

func (m *Manager) fullscreenChanging(ev Event) {
	index := m.reg.FindByHandle(ev.Handle)
	if index < 0 {
		m.logger.Warn("fullscreen change for unknown surface", "handle", ev.Handle)
		return
	}
	m.reg.At(index).SetFullscreen(ev.Flag)
	m.logger.Debug("fullscreen changed", "index", index, "fullscreen", ev.Flag)
	m.reg.NotifyChanged(index, registry.FieldIsFullscreen)
}

func (m *Manager) itemClosing(ev Event) {
	index := m.reg.FindByHandle(ev.Handle)
	if index < 0 {
		m.logger.Warn("closing event for unknown surface", "handle", ev.Handle)
		return
	}
	m.beginClosing(index)
}

func (m *Manager) surfaceCreated(ev Event) {
	m.logger.Debug("surface created", "handle", ev.Handle, "pid", ev.PID)
	if ev.PID > 0 {
		m.pids[ev.Handle] = ev.PID
	}
}

func (m *Manager) surfaceMapped(ev Event) {
	pid := ev.PID
	if pid == 0 {
		pid = m.pids[ev.Handle]
	}
	if pid == 0 {
		m.logger.Debug("ignoring surface without process id", "handle", ev.Handle)
		return
	}

	app := m.resolver.ResolveByProcessID(pid)
	if app == nil && m.resolver.SecurityChecksEnabled() {
		m.metrics.SecurityRejection()
		m.logger.Error("security alert: unknown application tried to create a surface",
			"handle", ev.Handle,
			"pid", pid)
		return
	}

	if index := m.reg.FindByHandle(ev.Handle); index >= 0 {
		w := m.reg.At(index)
		w.SetMapped(true)
		m.logger.Debug("surface remapped", "index", index, "handle", ev.Handle)
		m.reg.NotifyChanged(index, registry.FieldIsMapped)
		if w.IsClosing() {
			return
		}
		m.emit(Notification{Kind: WindowReady, Index: index, Handle: ev.Handle})
	} else {
		w := surface.NewWindow(ev.Handle, app.Canonical())
		w.PID = pid
		m.setupWindow(w)
	}

	if app != nil && m.transport != nil {
		if err := m.transport.TakeFocus(ev.Handle); err != nil {
			m.logger.Warn("failed to focus surface", "handle", ev.Handle, "error", err)
		}
	}
}

func (m *Manager) surfaceUnmapped(ev Event) {
	index := m.reg.FindByHandle(ev.Handle)
	if index < 0 {
		m.logger.Warn("unmap for unknown surface", "handle", ev.Handle)
		return
	}
	m.reg.At(index).SetMapped(false)
	m.reg.NotifyChanged(index, registry.FieldIsMapped)
	m.beginClosing(index)
}

func (m *Manager) surfaceDestroyed(ev Event) {
	delete(m.pids, ev.Handle)

	index := m.reg.FindByHandle(ev.Handle)
	if index < 0 {
		m.logger.Debug("destroy for untracked surface", "handle", ev.Handle)
		return
	}
	m.reg.At(index).MarkDestroyed()
	m.beginClosing(index)
}

func (m *Manager) clientPropertyChanged(ev Event) {
	index := m.reg.FindByHandle(ev.Handle)
	if index < 0 {
		m.logger.Warn("property change for unknown surface", "handle", ev.Handle, "key", ev.Key)
		return
	}
	m.reg.At(index).Properties.Set(ev.Key, ev.Value)
	m.emit(Notification{Kind: WindowPropertyChanged, Index: index, Handle: ev.Handle, Key: ev.Key, Value: ev.Value})
}

func (m *Manager) setupWindow(w *surface.Window) {
	index := m.reg.Insert(w)
	m.metrics.Transition("ready")
	m.updateGauges()
	m.logger.Info("window ready",
		"index", index,
		"handle", w.Handle,
		"id", w.ID,
		"app_id", w.ApplicationID())
	m.emit(Notification{Kind: WindowReady, Index: index, Handle: w.Handle})
}

// beginClosing moves the window at index to Closing once.
func (m *Manager) beginClosing(index int) {
	w := m.reg.At(index)
	if !w.SetClosing() {
		return
	}
	m.metrics.Transition("closing")
	m.updateGauges()
	m.logger.Info("window closing", "index", index, "handle", w.Handle, "id", w.ID)
	m.emit(Notification{Kind: WindowClosing, Index: index, Handle: w.Handle})
}

func (m *Manager) release(h surface.Handle) bool {
	index := m.reg.FindByHandle(h)
	if index < 0 {
		m.logger.Debug("release for unknown or already released window", "handle", h)
		return false
	}
	w := m.reg.At(index)
	m.beginClosing(index)

	m.emit(Notification{Kind: WindowLost, Index: index, Handle: h})
	m.reg.RemoveByHandle(h)
	delete(m.pids, h)

	m.metrics.Transition("lost")
	m.updateGauges()
	m.logger.Info("window lost", "index", index, "handle", h, "id", w.ID)
	return true
}

func (m *Manager) updateGauges() {
	if m.metrics == nil {
		return
	}
	closing := 0
	m.reg.Each(func(_ int, w *surface.Window) {
		if w.IsClosing() {
			closing++
		}
	})
	m.metrics.SetWindows(m.reg.Count(), closing)
}
