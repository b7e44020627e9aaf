package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/config"
	"github.com/1broseidon/surfman/internal/metrics"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/registry"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

type fakeWindows struct {
	mu       sync.Mutex
	windows  []wm.WindowInfo
	props    map[surface.Handle]map[string]any
	released []surface.Handle
	shots    []string
	err      error
}

func (f *fakeWindows) find(h surface.Handle) int {
	for i, w := range f.windows {
		if w.WindowItem == h {
			return i
		}
	}
	return -1
}

func (f *fakeWindows) Windows(ctx context.Context) ([]wm.WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]wm.WindowInfo(nil), f.windows...), nil
}

func (f *fakeWindows) ReleaseWindow(ctx context.Context, h surface.Handle) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.find(h)
	if i < 0 {
		return false, nil
	}
	f.windows = append(f.windows[:i], f.windows[i+1:]...)
	f.released = append(f.released, h)
	return true, nil
}

func (f *fakeWindows) SetWindowProperty(ctx context.Context, h surface.Handle, key string, value any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(h) < 0 {
		return false, nil
	}
	if f.props[h] == nil {
		f.props[h] = map[string]any{}
	}
	f.props[h][key] = value
	return true, nil
}

func (f *fakeWindows) WindowProperty(ctx context.Context, h surface.Handle, key string) (any, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.props[h][key]
	return v, ok, nil
}

func (f *fakeWindows) WindowProperties(ctx context.Context, h surface.Handle) (map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.find(h) < 0 {
		return nil, nil
	}
	out := map[string]any{}
	for k, v := range f.props[h] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeWindows) MakeScreenshot(ctx context.Context, filename, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots = append(f.shots, filename+"|"+selector)
	if strings.HasPrefix(selector, "!") {
		return false, errors.New("bad selector")
	}
	return selector != "nothing", nil
}

type harness struct {
	windows *fakeWindows
	apps    *appreg.Registry
	metrics *metrics.Metrics
	server  *Server
	client  *Client
	shotDir string
	reloads atomic.Int32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h1 := surface.TransportHandle(0x1a)
	h2 := surface.InProcessHandle(2)
	fw := &fakeWindows{
		windows: []wm.WindowInfo{
			{Index: 0, ID: uuid.New(), PID: 100, Row: registry.Row{ApplicationID: "com.example.app", WindowItem: h1, IsMapped: true}},
			{Index: 1, ID: uuid.New(), Closing: true, Row: registry.Row{ApplicationID: "com.example.clock", WindowItem: h2, IsMapped: true}},
		},
		props: map[surface.Handle]map[string]any{h1: {"title": "hello"}},
	}

	apps, err := appreg.NewRegistry(appreg.Options{
		Applications: []appreg.Definition{{ID: "com.example.app"}},
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	binder := output.NewBinder(output.Options{ForceSingleProcess: true, Logger: logger})
	if err := binder.RegisterOutput(output.Target{Name: "view-0", Width: 640, Height: 480, Primary: true}); err != nil {
		t.Fatalf("register output: %v", err)
	}

	h := &harness{windows: fw, apps: apps, metrics: metrics.New(), shotDir: filepath.Join(dir, "shots")}
	cfg := config.DefaultConfig()
	cfg.Watchdog = true
	srv, err := NewServer(ServerOptions{
		SocketPath:    filepath.Join(dir, "surfman.sock"),
		ScreenshotDir: h.shotDir,
		Mode:          "x11",
		Config:        cfg,
		Windows:       fw,
		Apps:          apps,
		Outputs:       binder,
		Reload: func() (*config.Config, error) {
			h.reloads.Add(1)
			next := config.DefaultConfig()
			next.SecurityChecks = false
			return next, nil
		},
		Metrics: h.metrics,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(srv.Stop)

	h.server = srv
	h.client = NewClientWithSocket(srv.SocketPath())
	h.client.SetTimeout(2 * time.Second)
	return h
}

func TestServer_StatusAndReload(t *testing.T) {
	h := newHarness(t)

	status, err := h.client.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Mode != "x11" || status.WindowCount != 2 || status.ClosingCount != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(status.Outputs) != 1 || status.Outputs[0].Name != "view-0" || !status.Outputs[0].Primary {
		t.Fatalf("unexpected outputs: %+v", status.Outputs)
	}
	if !status.SecurityChecks || !status.Watchdog || !status.DaemonRunning {
		t.Fatalf("unexpected flags: %+v", status)
	}

	if err := h.client.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if n := h.reloads.Load(); n != 1 {
		t.Fatalf("expected one reload, got %d", n)
	}
	status, err = h.client.GetStatus()
	if err != nil {
		t.Fatalf("status after reload: %v", err)
	}
	if status.SecurityChecks {
		t.Fatalf("expected reloaded config to disable security checks")
	}
}

func TestServer_ListAndGetWindow(t *testing.T) {
	h := newHarness(t)

	windows, err := h.client.ListWindows()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(windows))
	}
	if windows[0].WindowItem != surface.TransportHandle(0x1a) || windows[0].ApplicationID != "com.example.app" {
		t.Fatalf("unexpected first window: %+v", windows[0])
	}

	w, err := h.client.GetWindow(1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w.WindowItem != surface.InProcessHandle(2) || !w.Closing {
		t.Fatalf("unexpected window: %+v", w)
	}

	if _, err := h.client.GetWindow(5); err == nil || !strings.Contains(err.Error(), "out of range") {
		t.Fatalf("expected out of range error, got %v", err)
	}

	got := testutil.ToFloat64(h.metrics.IPCRequests.WithLabelValues("LIST_WINDOWS", StatusOK))
	if got != 1 {
		t.Fatalf("expected one LIST_WINDOWS request, got %v", got)
	}
	got = testutil.ToFloat64(h.metrics.IPCRequests.WithLabelValues("GET_WINDOW", StatusError))
	if got != 1 {
		t.Fatalf("expected one failed GET_WINDOW request, got %v", got)
	}
}

func TestServer_Properties(t *testing.T) {
	h := newHarness(t)
	target := surface.TransportHandle(0x1a)

	applied, err := h.client.SetWindowProperty(target, "kind", "dialog")
	if err != nil || !applied {
		t.Fatalf("set: applied=%v err=%v", applied, err)
	}

	v, found, err := h.client.WindowProperty(target, "kind")
	if err != nil || !found || v != "dialog" {
		t.Fatalf("get: v=%v found=%v err=%v", v, found, err)
	}

	props, err := h.client.WindowProperties(target)
	if err != nil {
		t.Fatalf("props: %v", err)
	}
	if props["title"] != "hello" || props["kind"] != "dialog" {
		t.Fatalf("unexpected properties: %v", props)
	}

	missing := surface.TransportHandle(0xdead)
	applied, err = h.client.SetWindowProperty(missing, "kind", "x")
	if err != nil || applied {
		t.Fatalf("unknown handle: applied=%v err=%v", applied, err)
	}
	props, err = h.client.WindowProperties(missing)
	if err != nil || props != nil {
		t.Fatalf("unknown handle properties: %v %v", props, err)
	}
	if _, err := h.client.SetWindowProperty(target, "", 1); err == nil {
		t.Fatalf("expected empty key to be rejected")
	}
}

func TestServer_ReleaseWindow(t *testing.T) {
	h := newHarness(t)
	target := surface.InProcessHandle(2)

	released, err := h.client.ReleaseWindow(target)
	if err != nil || !released {
		t.Fatalf("release: released=%v err=%v", released, err)
	}
	released, err = h.client.ReleaseWindow(target)
	if err != nil || released {
		t.Fatalf("second release should be a no-op: released=%v err=%v", released, err)
	}
}

func TestServer_MakeScreenshot(t *testing.T) {
	h := newHarness(t)

	data, err := h.client.MakeScreenshot("shot_%s.png", "com.example.app")
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	want := filepath.Join(h.shotDir, "shot_%s.png")
	if !data.OK || data.Filename != want {
		t.Fatalf("unexpected result: %+v", data)
	}

	data, err = h.client.MakeScreenshot("/abs/out.png", "nothing")
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if data.OK || data.Filename != "/abs/out.png" {
		t.Fatalf("unexpected result: %+v", data)
	}

	if _, err := h.client.MakeScreenshot("x.png", "!bad"); err == nil {
		t.Fatalf("expected selector error")
	}
	if _, err := h.client.MakeScreenshot("", "app"); err == nil {
		t.Fatalf("expected missing filename error")
	}
}

func TestServer_AttachDetach(t *testing.T) {
	h := newHarness(t)

	if err := h.client.AttachApplication("com.example.app", 4242); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if got := h.apps.Attachments()[4242]; got != "com.example.app" {
		t.Fatalf("expected attachment, got %q", got)
	}
	if err := h.client.AttachApplication("com.example.unknown", 1); err == nil {
		t.Fatalf("expected unknown application error")
	}

	status, err := h.client.GetStatus()
	if err != nil || status.Attachments != 1 {
		t.Fatalf("status attachments: %+v %v", status, err)
	}

	detached, err := h.client.DetachApplication(4242)
	if err != nil || !detached {
		t.Fatalf("detach: %v %v", detached, err)
	}
	detached, err = h.client.DetachApplication(4242)
	if err != nil || detached {
		t.Fatalf("second detach: %v %v", detached, err)
	}
}

func rawRequest(t *testing.T, socket, line string) Response {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestServer_BadRequests(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		line string
		want string
	}{
		{"not json", "{oops", "Invalid request"},
		{"unknown command", `{"command":"DANCE"}`, "Unknown command"},
		{"missing payload", `{"command":"RELEASE_WINDOW"}`, "missing payload"},
		{"bad handle", `{"command":"RELEASE_WINDOW","payload":{"handle":"wayland:1"}}`, "invalid surface handle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := rawRequest(t, h.server.SocketPath(), tt.line)
			if resp.Status != StatusError {
				t.Fatalf("expected ERROR, got %+v", resp)
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Fatalf("expected %q in %q", tt.want, resp.Error)
			}
		})
	}
}

func TestServer_WindowsError(t *testing.T) {
	h := newHarness(t)
	h.windows.mu.Lock()
	h.windows.err = context.DeadlineExceeded
	h.windows.mu.Unlock()

	if _, err := h.client.ListWindows(); err == nil || !strings.Contains(err.Error(), "deadline") {
		t.Fatalf("expected deadline error, got %v", err)
	}
}

func TestClient_NoDaemon(t *testing.T) {
	c := NewClientWithSocket(filepath.Join(t.TempDir(), "absent.sock"))
	if err := c.Ping(); err == nil || !strings.Contains(err.Error(), "is the daemon running") {
		t.Fatalf("expected connection error, got %v", err)
	}
}
