package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/registry"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

type fakeDaemon struct {
	windows  []wm.WindowInfo
	props    map[surface.Handle]map[string]any
	released []surface.Handle
	shot     string
	err      error
}

func (f *fakeDaemon) ListWindows() ([]wm.WindowInfo, error) {
	return f.windows, f.err
}

func (f *fakeDaemon) WindowProperty(h surface.Handle, key string) (any, bool, error) {
	v, ok := f.props[h][key]
	return v, ok, f.err
}

func (f *fakeDaemon) WindowProperties(h surface.Handle) (map[string]any, error) {
	return f.props[h], f.err
}

func (f *fakeDaemon) SetWindowProperty(h surface.Handle, key string, value any) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	props, ok := f.props[h]
	if !ok {
		return false, nil
	}
	props[key] = value
	return true, nil
}

func (f *fakeDaemon) ReleaseWindow(h surface.Handle) (bool, error) {
	f.released = append(f.released, h)
	return len(f.released) == 1, f.err
}

func (f *fakeDaemon) MakeScreenshot(filename, selector string) (*ipc.MakeScreenshotData, error) {
	f.shot = filename + "|" + selector
	return &ipc.MakeScreenshotData{OK: true, Filename: "/run/shots/" + filename}, f.err
}

var (
	appWindow   = surface.TransportHandle(0x3a00007)
	clockWindow = surface.InProcessHandle(4)
)

func newTestServer() (*Server, *fakeDaemon) {
	d := &fakeDaemon{
		windows: []wm.WindowInfo{
			{Index: 0, PID: 10, Row: registry.Row{ApplicationID: "com.example.app", WindowItem: appWindow, IsMapped: true}},
			{Index: 1, Closing: true, Row: registry.Row{ApplicationID: "com.example.clock", WindowItem: clockWindow, IsMapped: true}},
		},
		props: map[surface.Handle]map[string]any{
			appWindow: {"title": "editor"},
		},
	}
	return NewServer(d, slog.New(slog.NewTextHandler(io.Discard, nil))), d
}

func TestHandleListWindows(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	tests := []struct {
		name  string
		input ListWindowsInput
		want  []string
	}{
		{"hides closing", ListWindowsInput{}, []string{"x11:0x3a00007"}},
		{"include closing", ListWindowsInput{IncludeClosing: true}, []string{"x11:0x3a00007", "inprocess:4"}},
		{"filter by app", ListWindowsInput{ApplicationID: "com.example.clock", IncludeClosing: true}, []string{"inprocess:4"}},
		{"filter excludes all", ListWindowsInput{ApplicationID: "org.none"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := s.handleListWindows(ctx, nil, tt.input)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			var got []string
			for _, w := range out.Windows {
				got = append(got, w.Handle)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			if out.Total != 2 {
				t.Fatalf("expected total 2, got %d", out.Total)
			}
		})
	}
}

func TestHandleGetWindowProperties(t *testing.T) {
	s, _ := newTestServer()
	ctx := context.Background()

	_, out, err := s.handleGetWindowProperties(ctx, nil, GetWindowPropertiesInput{Handle: "x11:0x3a00007"})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !out.Found || out.Properties["title"] != "editor" {
		t.Fatalf("unexpected output: %+v", out)
	}

	_, out, err = s.handleGetWindowProperties(ctx, nil, GetWindowPropertiesInput{Handle: "x11:0x3a00007", Key: "missing"})
	if err != nil {
		t.Fatalf("get key: %v", err)
	}
	if out.Found || len(out.Properties) != 0 {
		t.Fatalf("expected missing key, got %+v", out)
	}

	_, out, err = s.handleGetWindowProperties(ctx, nil, GetWindowPropertiesInput{Handle: "inprocess:99"})
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	if out.Found {
		t.Fatalf("expected unknown window, got %+v", out)
	}

	if _, _, err := s.handleGetWindowProperties(ctx, nil, GetWindowPropertiesInput{Handle: "bogus"}); !errors.Is(err, surface.ErrInvalidHandle) {
		t.Fatalf("expected ErrInvalidHandle, got %v", err)
	}
}

func TestHandleSetWindowProperty(t *testing.T) {
	s, d := newTestServer()
	ctx := context.Background()

	_, out, err := s.handleSetWindowProperty(ctx, nil, SetWindowPropertyInput{Handle: "x11:0x3a00007", Key: "kind", Value: "dialog"})
	if err != nil || !out.Applied {
		t.Fatalf("set: %+v %v", out, err)
	}
	if d.props[appWindow]["kind"] != "dialog" {
		t.Fatalf("expected property stored, got %v", d.props[appWindow])
	}

	if _, _, err := s.handleSetWindowProperty(ctx, nil, SetWindowPropertyInput{Handle: "inprocess:4", Key: "kind"}); err == nil {
		t.Fatalf("expected error for window without live entry")
	}
	if _, _, err := s.handleSetWindowProperty(ctx, nil, SetWindowPropertyInput{Handle: "x11:0x3a00007"}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, _, err := s.handleSetWindowProperty(ctx, nil, SetWindowPropertyInput{Key: "kind"}); err == nil {
		t.Fatalf("expected missing handle error")
	}
}

func TestHandleReleaseWindow(t *testing.T) {
	s, d := newTestServer()
	ctx := context.Background()

	_, out, err := s.handleReleaseWindow(ctx, nil, ReleaseWindowInput{Handle: "inprocess:4"})
	if err != nil || !out.Released || out.Handle != "inprocess:4" {
		t.Fatalf("release: %+v %v", out, err)
	}
	_, out, err = s.handleReleaseWindow(ctx, nil, ReleaseWindowInput{Handle: "inprocess:4"})
	if err != nil || out.Released {
		t.Fatalf("second release: %+v %v", out, err)
	}
	if len(d.released) != 2 || d.released[0] != clockWindow {
		t.Fatalf("unexpected release calls: %v", d.released)
	}
}

func TestHandleMakeScreenshot(t *testing.T) {
	s, d := newTestServer()
	ctx := context.Background()

	_, out, err := s.handleMakeScreenshot(ctx, nil, MakeScreenshotInput{Filename: "shot_%i.png", Selector: "com.example.app"})
	if err != nil {
		t.Fatalf("screenshot: %v", err)
	}
	if !out.OK || out.Filename != "/run/shots/shot_%i.png" {
		t.Fatalf("unexpected output: %+v", out)
	}
	if d.shot != "shot_%i.png|com.example.app" {
		t.Fatalf("unexpected forward: %q", d.shot)
	}

	if _, _, err := s.handleMakeScreenshot(ctx, nil, MakeScreenshotInput{}); err == nil {
		t.Fatalf("expected missing filename error")
	}

	d.err = errors.New("daemon down")
	if _, _, err := s.handleMakeScreenshot(ctx, nil, MakeScreenshotInput{Filename: "x.png"}); err == nil {
		t.Fatalf("expected daemon error")
	}
}
