package output

import (
	"errors"
	"testing"

	"github.com/1broseidon/surfman/internal/surface"
)

type fakeCompositor struct {
	registered []string
	placement  map[surface.Handle]Target
	err        error
}

func (f *fakeCompositor) RegisterOutput(out Target) error {
	if f.err != nil {
		return f.err
	}
	f.registered = append(f.registered, out.Name)
	return nil
}

func (f *fakeCompositor) OutputForSurface(h surface.Handle) (Target, bool) {
	t, ok := f.placement[h]
	return t, ok
}

type fakeLocator map[surface.Handle]Target

func (f fakeLocator) OutputOf(h surface.Handle) (Target, bool) {
	t, ok := f[h]
	return t, ok
}

func TestBinder_LazyCompositor(t *testing.T) {
	created := 0
	comp := &fakeCompositor{}
	b := NewBinder(Options{Factory: func() (Compositor, error) {
		created++
		return comp, nil
	}})

	if b.Compositor() != nil {
		t.Fatalf("compositor created before first output")
	}
	for _, name := range []string{"DP-1", "HDMI-1", "DP-1"} {
		if err := b.RegisterOutput(Target{Name: name}); err != nil {
			t.Fatalf("RegisterOutput(%s): %v", name, err)
		}
	}

	if created != 1 {
		t.Fatalf("factory called %d times, want 1", created)
	}
	if len(comp.registered) != 2 {
		t.Fatalf("compositor saw %v, want two outputs", comp.registered)
	}
	if got := b.Outputs(); len(got) != 2 || got[0].Name != "DP-1" || got[1].Name != "HDMI-1" {
		t.Fatalf("Outputs = %+v", got)
	}
}

func TestBinder_ForceSingleProcess(t *testing.T) {
	b := NewBinder(Options{
		ForceSingleProcess: true,
		Factory: func() (Compositor, error) {
			t.Fatalf("factory must not be called in single-process mode")
			return nil, nil
		},
	})
	if err := b.RegisterOutput(Target{Name: "view-0"}); err != nil {
		t.Fatalf("RegisterOutput: %v", err)
	}
	if b.Compositor() != nil {
		t.Fatalf("unexpected compositor")
	}
	if len(b.Outputs()) != 1 {
		t.Fatalf("output not recorded")
	}
}

func TestBinder_FactoryError(t *testing.T) {
	b := NewBinder(Options{Factory: func() (Compositor, error) {
		return nil, errors.New("no display")
	}})
	if err := b.RegisterOutput(Target{Name: "DP-1"}); err == nil {
		t.Fatalf("expected factory error")
	}
	if len(b.Outputs()) != 0 {
		t.Fatalf("failed registration should not add an output")
	}
}

func TestBinder_IsOnOutput(t *testing.T) {
	left := Target{Name: "left", Width: 100, Height: 100}
	right := Target{Name: "right", X: 100, Width: 100, Height: 100}

	comp := &fakeCompositor{placement: map[surface.Handle]Target{
		surface.TransportHandle(1): right,
	}}
	b := NewBinder(Options{
		Factory: func() (Compositor, error) { return comp, nil },
		Locator: fakeLocator{surface.InProcessHandle(5): left},
	})
	b.RegisterOutput(left)
	b.RegisterOutput(right)

	transportWin := surface.NewWindow(surface.TransportHandle(1), nil)
	inProcessWin := surface.NewWindow(surface.InProcessHandle(5), nil)
	unplaced := surface.NewWindow(surface.TransportHandle(2), nil)

	tests := []struct {
		name string
		w    *surface.Window
		out  Target
		want bool
	}{
		{"transport on right", transportWin, right, true},
		{"transport not on left", transportWin, left, false},
		{"in-process on left", inProcessWin, left, true},
		{"in-process not on right", inProcessWin, right, false},
		{"unplaced", unplaced, left, false},
		{"nil window", nil, left, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := b.IsOnOutput(tt.w, tt.out); got != tt.want {
				t.Fatalf("IsOnOutput = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTarget_Contains(t *testing.T) {
	out := Target{X: 10, Y: 10, Width: 5, Height: 5}
	if !out.Contains(10, 10) || out.Contains(15, 10) || out.Contains(9, 12) {
		t.Fatalf("Contains boundaries wrong")
	}
}
