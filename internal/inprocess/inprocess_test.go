package inprocess

import (
	"context"
	"image"
	"image/color"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/wm"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fill(w, h int, c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, c)
		}
	}
	return img
}

type setup struct {
	ctx   context.Context
	m     *wm.Manager
	scene *Scene
	notes <-chan wm.Notification
	app   *appreg.Application
}

func newSetup(t *testing.T) *setup {
	t.Helper()
	reg, err := appreg.NewRegistry(appreg.Options{
		Applications: []appreg.Definition{{ID: "com.example.clock", Aliases: []string{"com.example.clock.widget"}}},
		Logger:       discard(),
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	scene := NewScene(discard())
	binder := output.NewBinder(output.Options{ForceSingleProcess: true, Locator: scene})
	m := wm.New(wm.Options{Resolver: reg, Outputs: binder, Logger: discard()})

	view := output.Target{Name: "view-0", Width: 8, Height: 8}
	scene.AddOutput(view)
	if err := m.RegisterCompositorView(view); err != nil {
		t.Fatalf("RegisterCompositorView: %v", err)
	}

	notes, unsubscribe := m.Subscribe(32)
	unlisten := m.Listen(scene.Apply)

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	t.Cleanup(func() {
		cancel()
		<-done
		unsubscribe()
		unlisten()
	})

	return &setup{ctx: ctx, m: m, scene: scene, notes: notes, app: reg.Lookup("com.example.clock.widget")}
}

func (s *setup) next(t *testing.T) wm.Notification {
	t.Helper()
	select {
	case n := <-s.notes:
		return n
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for notification")
		return wm.Notification{}
	}
}

func TestRuntime_ItemLifecycle(t *testing.T) {
	s := newSetup(t)
	rt := s.scene.NewRuntime(s.app, s.m)

	it, err := rt.CreateItem(s.ctx, "view-0", 0, 0, fill(2, 2, color.White))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if n := s.next(t); n.Kind != wm.WindowReady || n.Handle != it.Handle {
		t.Fatalf("unexpected notification %+v", n)
	}

	row, _ := s.m.Get(s.ctx, 0)
	if row.ApplicationID != "com.example.clock" {
		t.Fatalf("ApplicationID = %q, want canonical id", row.ApplicationID)
	}

	if err := rt.SetFullscreen(s.ctx, it, true); err != nil {
		t.Fatalf("SetFullscreen: %v", err)
	}
	if row, _ := s.m.Get(s.ctx, 0); !row.IsFullscreen {
		t.Fatalf("fullscreen not propagated")
	}

	if err := rt.Close(s.ctx, it); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := s.next(t); n.Kind != wm.WindowClosing {
		t.Fatalf("want windowClosing, got %s", n.Kind)
	}

	s.m.ReleaseWindow(s.ctx, it.Handle)
	if n := s.next(t); n.Kind != wm.WindowLost {
		t.Fatalf("want windowLost, got %s", n.Kind)
	}

	if s.scene.Len() != 0 {
		t.Fatalf("released item still in scene")
	}
}

func TestRuntime_PropertiesBothWays(t *testing.T) {
	s := newSetup(t)
	rt := s.scene.NewRuntime(s.app, s.m)
	it, err := rt.CreateItem(s.ctx, "view-0", 0, 0, nil)
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	s.next(t)

	if err := rt.SetProperty(s.ctx, it, "mode", "night"); err != nil {
		t.Fatalf("SetProperty: %v", err)
	}
	if n := s.next(t); n.Kind != wm.WindowPropertyChanged || n.Value != "night" {
		t.Fatalf("unexpected notification %+v", n)
	}
	v, ok, _ := s.m.WindowProperty(s.ctx, it.Handle, "mode")
	if !ok || v != "night" {
		t.Fatalf("WindowProperty = %v, %v", v, ok)
	}

	s.m.SetWindowProperty(s.ctx, it.Handle, "color", "red")
	s.next(t)
	if v, ok := it.Property("color"); !ok || v != "red" {
		t.Fatalf("compositor property never reached the item: %v, %v", v, ok)
	}
}

func TestScene_ReleaseWithFullSubscriber(t *testing.T) {
	s := newSetup(t)
	_, cancel := s.m.Subscribe(1)
	defer cancel()

	rt := s.scene.NewRuntime(s.app, s.m)
	var items []*Item
	for i := 0; i < 3; i++ {
		it, err := rt.CreateItem(s.ctx, "view-0", 0, 0, nil)
		if err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		items = append(items, it)
	}
	for _, it := range items {
		if ok, err := s.m.ReleaseWindow(s.ctx, it.Handle); !ok || err != nil {
			t.Fatalf("ReleaseWindow = %v, %v", ok, err)
		}
	}
	if n := s.scene.Len(); n != 0 {
		t.Fatalf("scene still holds %d released items", n)
	}
	if _, ok := s.scene.OutputOf(items[2].Handle); ok {
		t.Fatalf("released item still placed on an output")
	}
}

func TestRuntime_ItemWithoutApplicationRejected(t *testing.T) {
	s := newSetup(t)
	rt := s.scene.NewRuntime(nil, s.m)
	if _, err := rt.CreateItem(s.ctx, "view-0", 0, 0, nil); err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	if n, _ := s.m.Count(s.ctx); n != 0 {
		t.Fatalf("item without application was accepted")
	}
}

func TestRuntime_UnknownOutput(t *testing.T) {
	s := newSetup(t)
	if _, err := s.scene.NewRuntime(s.app, s.m).CreateItem(s.ctx, "nowhere", 0, 0, nil); err == nil {
		t.Fatalf("expected error for unknown output")
	}
}

func TestScene_Grab(t *testing.T) {
	s := newSetup(t)
	rt := s.scene.NewRuntime(s.app, s.m)
	red := color.NRGBA{R: 255, A: 255}
	it, err := rt.CreateItem(s.ctx, "view-0", 2, 2, fill(2, 2, red))
	if err != nil {
		t.Fatalf("CreateItem: %v", err)
	}
	s.next(t)

	img, err := s.scene.GrabSurface(s.ctx, it.Handle)
	if err != nil {
		t.Fatalf("GrabSurface: %v", err)
	}
	if img.Bounds().Dx() != 2 {
		t.Fatalf("surface grab size = %v", img.Bounds())
	}

	full, err := s.scene.GrabOutput(s.ctx, output.Target{Name: "view-0", Width: 8, Height: 8})
	if err != nil {
		t.Fatalf("GrabOutput: %v", err)
	}
	if got := color.NRGBAModel.Convert(full.At(3, 3)).(color.NRGBA); got != red {
		t.Fatalf("pixel inside item = %v, want red", got)
	}
	if got := color.NRGBAModel.Convert(full.At(0, 0)).(color.NRGBA); got.R != 0 {
		t.Fatalf("pixel outside item = %v, want black", got)
	}

	on, ok := s.scene.OutputOf(it.Handle)
	if !ok || on.Name != "view-0" {
		t.Fatalf("OutputOf = %v, %v", on, ok)
	}
}

func TestScene_GrabOutputStacksNewestOnTop(t *testing.T) {
	s := newSetup(t)
	rt := s.scene.NewRuntime(s.app, s.m)
	red := color.NRGBA{R: 255, A: 255}
	green := color.NRGBA{G: 255, A: 255}
	blue := color.NRGBA{B: 255, A: 255}

	for _, c := range []color.NRGBA{red, green, blue} {
		if _, err := rt.CreateItem(s.ctx, "view-0", 0, 0, fill(4, 4, c)); err != nil {
			t.Fatalf("CreateItem: %v", err)
		}
		s.next(t)
	}

	for i := 0; i < 10; i++ {
		full, err := s.scene.GrabOutput(s.ctx, output.Target{Name: "view-0", Width: 8, Height: 8})
		if err != nil {
			t.Fatalf("GrabOutput: %v", err)
		}
		if got := color.NRGBAModel.Convert(full.At(1, 1)).(color.NRGBA); got != blue {
			t.Fatalf("grab %d: overlapping pixel = %v, want newest item (blue)", i, got)
		}
	}
}
