package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/registry"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

type fakeDaemon struct {
	status  *ipc.StatusData
	windows []wm.WindowInfo
	err     error

	released  []surface.Handle
	shots     []string
	shotOK    bool
	releaseOK bool
}

func (f *fakeDaemon) GetStatus() (*ipc.StatusData, error) {
	return f.status, f.err
}

func (f *fakeDaemon) ListWindows() ([]wm.WindowInfo, error) {
	return f.windows, f.err
}

func (f *fakeDaemon) ReleaseWindow(h surface.Handle) (bool, error) {
	f.released = append(f.released, h)
	return f.releaseOK, nil
}

func (f *fakeDaemon) MakeScreenshot(filename, selector string) (*ipc.MakeScreenshotData, error) {
	f.shots = append(f.shots, selector)
	return &ipc.MakeScreenshotData{OK: f.shotOK, Filename: filename}, nil
}

func window(index int, app string, id uint32) wm.WindowInfo {
	return wm.WindowInfo{
		Index: index,
		Row: registry.Row{
			ApplicationID: app,
			WindowItem:    surface.TransportHandle(id),
			IsMapped:      true,
		},
	}
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestWindowItemTitle(t *testing.T) {
	tests := []struct {
		name string
		info wm.WindowInfo
		want string
	}{
		{"ready", window(0, "org.example.term", 1), "  0 org.example.term"},
		{"unknown app", window(2, "", 1), "  2 (unknown)"},
		{"closing", func() wm.WindowInfo { w := window(1, "a", 1); w.Closing = true; return w }(), "… 1 a"},
		{"destroyed wins", func() wm.WindowInfo {
			w := window(1, "a", 1)
			w.Closing = true
			w.Destroyed = true
			return w
		}(), "✗ 1 a"},
		{"fullscreen", func() wm.WindowInfo { w := window(3, "b", 1); w.IsFullscreen = true; return w }(), "▣ 3 b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := (windowItem{info: tt.info}).Title(); got != tt.want {
				t.Fatalf("Title() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModel_SnapshotPopulatesTabs(t *testing.T) {
	d := &fakeDaemon{
		status:  &ipc.StatusData{Mode: "x11", WindowCount: 2, DaemonRunning: true},
		windows: []wm.WindowInfo{window(0, "a", 1), window(1, "b", 2)},
	}
	m := newModel(d, time.Second)
	m.resize(120, 40)

	msg := poll(d)()
	next, _ := m.Update(msg)
	m = next.(model)

	if m.status == nil || m.status.Mode != "x11" {
		t.Fatalf("status = %+v, want mode x11", m.status)
	}
	if got := len(m.windowsTab.list.Items()); got != 2 {
		t.Fatalf("items = %d, want 2", got)
	}
	info, ok := m.windowsTab.selected()
	if !ok || info.ApplicationID != "a" {
		t.Fatalf("selected = %+v, %v; want app a", info, ok)
	}
	if !strings.Contains(m.View(), "daemon connected") {
		t.Fatalf("view missing connection status:\n%s", m.View())
	}
}

func TestModel_SnapshotErrorClearsState(t *testing.T) {
	d := &fakeDaemon{
		status:  &ipc.StatusData{Mode: "x11"},
		windows: []wm.WindowInfo{window(0, "a", 1)},
	}
	m := newModel(d, time.Second)
	m.resize(120, 40)
	next, _ := m.Update(poll(d)())
	m = next.(model)

	d.err = errors.New("daemon not running")
	next, _ = m.Update(poll(d)())
	m = next.(model)

	if m.status != nil {
		t.Fatalf("status = %+v, want nil", m.status)
	}
	if got := len(m.windowsTab.list.Items()); got != 0 {
		t.Fatalf("items = %d, want 0", got)
	}
	if !strings.Contains(m.View(), "daemon not running") {
		t.Fatalf("view missing disconnected status")
	}
}

func TestModel_TabKeys(t *testing.T) {
	m := newModel(&fakeDaemon{}, time.Second)
	m.resize(100, 30)

	steps := []struct {
		key  tea.KeyMsg
		want Tab
	}{
		{tea.KeyMsg{Type: tea.KeyTab}, TabStatus},
		{tea.KeyMsg{Type: tea.KeyTab}, TabWindows},
		{tea.KeyMsg{Type: tea.KeyShiftTab}, TabStatus},
		{runes("1"), TabWindows},
		{runes("2"), TabStatus},
	}
	for i, s := range steps {
		next, _ := m.Update(s.key)
		m = next.(model)
		if m.activeTab != s.want {
			t.Fatalf("step %d: active tab = %v, want %v", i, m.activeTab, s.want)
		}
	}
}

func TestWindowsTab_SetWindowsClampsCursor(t *testing.T) {
	wt := NewWindowsTab(nil)
	wt, _ = wt.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	wt.SetWindows([]wm.WindowInfo{window(0, "a", 1), window(1, "b", 2), window(2, "c", 3)})
	wt.list.Select(2)

	wt.SetWindows([]wm.WindowInfo{window(0, "a", 1)})
	info, ok := wt.selected()
	if !ok || info.ApplicationID != "a" {
		t.Fatalf("selected = %+v, %v; want app a", info, ok)
	}
}

func TestWindowsTab_Release(t *testing.T) {
	d := &fakeDaemon{releaseOK: true}
	wt := NewWindowsTab(d)
	target := window(0, "a", 7)

	wt, cmd := wt.runPrompt(&prompt{kind: promptRelease, target: target, confirm: true})
	if cmd == nil {
		t.Fatal("expected follow-up command")
	}
	if len(d.released) != 1 || d.released[0] != target.WindowItem {
		t.Fatalf("released = %v, want [%v]", d.released, target.WindowItem)
	}
	if !strings.HasPrefix(wt.statusText, "released:") {
		t.Fatalf("status = %q", wt.statusText)
	}

	d.releaseOK = false
	wt, _ = wt.runPrompt(&prompt{kind: promptRelease, target: target, confirm: true})
	if !strings.Contains(wt.statusText, "already released") {
		t.Fatalf("status = %q", wt.statusText)
	}

	wt, _ = wt.runPrompt(&prompt{kind: promptRelease, target: target, confirm: false})
	if len(d.released) != 2 {
		t.Fatalf("declined prompt released a window: %v", d.released)
	}
}

func TestWindowsTab_Screenshot(t *testing.T) {
	d := &fakeDaemon{shotOK: true}
	wt := NewWindowsTab(d)

	wt, _ = wt.runPrompt(&prompt{kind: promptScreenshot, selector: "  org.example.term:1 "})
	if len(d.shots) != 1 || d.shots[0] != "org.example.term:1" {
		t.Fatalf("selectors = %q", d.shots)
	}
	if wt.statusText != "saved: "+screenshotPattern {
		t.Fatalf("status = %q", wt.statusText)
	}

	d.shotOK = false
	wt, _ = wt.runPrompt(&prompt{kind: promptScreenshot})
	if !strings.HasPrefix(wt.statusText, "screenshot failed") {
		t.Fatalf("status = %q", wt.statusText)
	}
}

func TestWindowsTab_EscCancelsPrompt(t *testing.T) {
	wt := NewWindowsTab(&fakeDaemon{})
	wt, _ = wt.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	wt.SetWindows([]wm.WindowInfo{window(0, "a", 1)})

	wt, _ = wt.Update(runes("x"))
	if !wt.Prompting() {
		t.Fatal("expected release prompt")
	}
	wt, _ = wt.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if wt.Prompting() {
		t.Fatal("esc did not close the prompt")
	}
}

func TestRenderDetails_SortsProperties(t *testing.T) {
	info := window(0, "a", 1)
	info.Properties = map[string]any{"zeta": 1, "alpha": "x"}
	out := renderDetails(info, 80)

	a := strings.Index(out, "alpha")
	z := strings.Index(out, "zeta")
	if a < 0 || z < 0 || a > z {
		t.Fatalf("properties not sorted:\n%s", out)
	}
	if !strings.Contains(out, "ready") {
		t.Fatalf("missing state:\n%s", out)
	}
}

func TestStatusTab_View(t *testing.T) {
	var s StatusTab
	s, _ = s.Update(tea.WindowSizeMsg{Width: 80, Height: 20})

	s.SetStatus(nil, errors.New("connection refused"))
	if !strings.Contains(s.View(), "connection refused") {
		t.Fatalf("view missing error:\n%s", s.View())
	}

	s.SetStatus(&ipc.StatusData{
		Mode: "inprocess",
		Outputs: []ipc.OutputInfo{
			{Index: 1, Name: "view-1", Width: 800, Height: 600},
			{Index: 0, Name: "view-0", Width: 1920, Height: 1080, Primary: true},
		},
	}, nil)
	out := s.View()
	if !strings.Contains(out, "inprocess") {
		t.Fatalf("view missing mode:\n%s", out)
	}
	if strings.Index(out, "view-0") > strings.Index(out, "view-1") {
		t.Fatalf("outputs not ordered by index:\n%s", out)
	}
}
