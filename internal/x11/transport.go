package x11

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"sync"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// PropertiesAtom carries the shared window properties as a JSON object.
// Clients write it to publish changes and read it to see compositor
// changes.
const PropertiesAtom = "_SURFMAN_PROPERTIES"

// Poster accepts events for the window manager.
type Poster interface {
	Post(ctx context.Context, ev wm.Event) error
}

// Transport translates X11 structure and property events into window
// manager events. It also serves as the compositor binding for outputs.
type Transport struct {
	conn   *Connection
	poster Poster
	logger *slog.Logger

	ctx context.Context

	mu      sync.Mutex
	outputs []output.Target
	mapped  map[xproto.Window]bool
	watched map[xproto.Window]bool
	shared  map[xproto.Window]map[string]any
}

var (
	_ wm.Transport      = (*Transport)(nil)
	_ output.Compositor = (*Transport)(nil)
)

// NewTransport creates a transport on conn posting to poster.
func NewTransport(conn *Connection, poster Poster, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		conn:    conn,
		poster:  poster,
		logger:  logger,
		ctx:     context.Background(),
		mapped:  make(map[xproto.Window]bool),
		watched: make(map[xproto.Window]bool),
		shared:  make(map[xproto.Window]map[string]any),
	}
}

// Run listens for surface events until ctx is done.
func (t *Transport) Run(ctx context.Context) error {
	t.ctx = ctx
	xu := t.conn.XUtil

	root := xwindow.New(xu, t.conn.Root)
	if err := root.Listen(xproto.EventMaskSubstructureNotify); err != nil {
		return fmt.Errorf("listen on root window: %w", err)
	}

	xevent.CreateNotifyFun(t.onCreate).Connect(xu, t.conn.Root)
	xevent.MapNotifyFun(t.onMap).Connect(xu, t.conn.Root)
	xevent.UnmapNotifyFun(t.onUnmap).Connect(xu, t.conn.Root)
	xevent.DestroyNotifyFun(t.onDestroy).Connect(xu, t.conn.Root)

	t.adoptExisting()

	go func() {
		<-ctx.Done()
		t.conn.Quit()
	}()

	t.logger.Info("x11 transport started")
	t.conn.EventLoop()
	t.logger.Info("x11 transport stopped")
	return ctx.Err()
}

// adoptExisting reports windows that were mapped before the transport
// started.
func (t *Transport) adoptExisting() {
	tree, err := xproto.QueryTree(t.conn.XUtil.Conn(), t.conn.Root).Reply()
	if err != nil {
		t.logger.Warn("failed to query existing windows", "error", err)
		return
	}
	for _, win := range tree.Children {
		attrs, err := xproto.GetWindowAttributes(t.conn.XUtil.Conn(), win).Reply()
		if err != nil || attrs.OverrideRedirect || attrs.MapState != xproto.MapStateViewable {
			continue
		}
		t.surfaceMapped(win)
	}
}

func (t *Transport) post(ev wm.Event) {
	if err := t.poster.Post(t.ctx, ev); err != nil {
		t.logger.Debug("dropping x11 event", "kind", ev.Kind.String(), "handle", ev.Handle, "error", err)
	}
}

func handleOf(win xproto.Window) surface.Handle {
	return surface.TransportHandle(uint32(win))
}

func (t *Transport) onCreate(xu *xgbutil.XUtil, ev xevent.CreateNotifyEvent) {
	if ev.OverrideRedirect {
		return
	}
	t.watch(ev.Window)
	t.post(wm.Event{
		Kind:   wm.EventSurfaceCreated,
		Handle: handleOf(ev.Window),
		PID:    t.conn.WindowPID(ev.Window),
	})
}

func (t *Transport) onMap(xu *xgbutil.XUtil, ev xevent.MapNotifyEvent) {
	if ev.OverrideRedirect {
		return
	}
	t.surfaceMapped(ev.Window)
}

func (t *Transport) surfaceMapped(win xproto.Window) {
	if !t.conn.IsNormalWindow(win) {
		return
	}
	t.watch(win)

	t.mu.Lock()
	t.mapped[win] = true
	t.mu.Unlock()

	t.post(wm.Event{
		Kind:   wm.EventSurfaceMapped,
		Handle: handleOf(win),
		PID:    t.conn.WindowPID(win),
	})
	t.readClientProperties(win)
}

func (t *Transport) onUnmap(xu *xgbutil.XUtil, ev xevent.UnmapNotifyEvent) {
	t.mu.Lock()
	known := t.mapped[ev.Window]
	t.mu.Unlock()
	if !known {
		return
	}
	t.post(wm.Event{Kind: wm.EventSurfaceUnmapped, Handle: handleOf(ev.Window)})
}

func (t *Transport) onDestroy(xu *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
	t.mu.Lock()
	known := t.mapped[ev.Window] || t.watched[ev.Window]
	delete(t.mapped, ev.Window)
	delete(t.watched, ev.Window)
	delete(t.shared, ev.Window)
	t.mu.Unlock()

	xevent.Detach(xu, ev.Window)
	if known {
		t.post(wm.Event{Kind: wm.EventSurfaceDestroyed, Handle: handleOf(ev.Window)})
	}
}

// watch subscribes to property changes of win once.
func (t *Transport) watch(win xproto.Window) {
	t.mu.Lock()
	if t.watched[win] {
		t.mu.Unlock()
		return
	}
	t.watched[win] = true
	t.mu.Unlock()

	if err := xwindow.New(t.conn.XUtil, win).Listen(xproto.EventMaskPropertyChange); err != nil {
		t.logger.Debug("failed to watch window properties", "window", win, "error", err)
		return
	}
	xevent.PropertyNotifyFun(t.onProperty).Connect(t.conn.XUtil, win)
}

func (t *Transport) onProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	name, err := xprop.AtomName(xu, ev.Atom)
	if err != nil || name != PropertiesAtom {
		return
	}
	if ev.State == xproto.PropertyDelete {
		return
	}
	t.readClientProperties(ev.Window)
}

// readClientProperties posts every key the client changed since the last
// known state.
func (t *Transport) readClientProperties(win xproto.Window) {
	reply, err := xprop.GetProperty(t.conn.XUtil, win, PropertiesAtom)
	if err != nil || reply == nil || len(reply.Value) == 0 {
		return
	}
	props, err := decodeProperties(reply.Value)
	if err != nil {
		t.logger.Warn("ignoring malformed client properties", "window", win, "error", err)
		return
	}

	t.mu.Lock()
	changed := diffProperties(t.shared[win], props)
	t.shared[win] = props
	t.mu.Unlock()

	for _, key := range changed {
		t.post(wm.Event{
			Kind:   wm.EventClientPropertyChanged,
			Handle: handleOf(win),
			Key:    key,
			Value:  props[key],
		})
	}
}

// TakeFocus implements wm.Transport.
func (t *Transport) TakeFocus(h surface.Handle) error {
	return t.conn.Focus(xproto.Window(h.ID))
}

// SetClientProperties implements wm.Transport. The written state is
// remembered so the resulting PropertyNotify is not reported back.
func (t *Transport) SetClientProperties(h surface.Handle, props map[string]any) error {
	win := xproto.Window(h.ID)
	data, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	decoded, err := decodeProperties(data)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.shared[win] = decoded
	t.mu.Unlock()

	return xprop.ChangeProp(t.conn.XUtil, win, 8, PropertiesAtom, "UTF8_STRING", data)
}

// RegisterOutput implements output.Compositor.
func (t *Transport) RegisterOutput(out output.Target) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, existing := range t.outputs {
		if existing.Name == out.Name {
			return nil
		}
	}
	t.outputs = append(t.outputs, out)
	return nil
}

// OutputForSurface implements output.Compositor.
func (t *Transport) OutputForSurface(h surface.Handle) (output.Target, bool) {
	r, err := t.conn.WindowRect(xproto.Window(h.ID))
	if err != nil {
		return output.Target{}, false
	}
	t.mu.Lock()
	targets := append([]output.Target(nil), t.outputs...)
	t.mu.Unlock()
	return pickOutput(targets, r)
}

func decodeProperties(data []byte) (map[string]any, error) {
	props := make(map[string]any)
	if err := json.Unmarshal(data, &props); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	return props, nil
}

// diffProperties returns the keys of next whose values differ from prev,
// sorted. Keys missing from next are not reported.
func diffProperties(prev, next map[string]any) []string {
	var changed []string
	for k, v := range next {
		old, ok := prev[k]
		if !ok || !reflect.DeepEqual(old, v) {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}
