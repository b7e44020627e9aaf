package inprocess

import (
	"context"
	"fmt"
	"image"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/wm"
)

// Runtime runs one application's surfaces inside the compositor.
type Runtime struct {
	app    *appreg.Application
	scene  *Scene
	poster Poster
}

// NewRuntime returns a runtime for app that places its items in s and
// reports them to poster. app may be nil; the window manager rejects items
// of such runtimes.
func (s *Scene) NewRuntime(app *appreg.Application, poster Poster) *Runtime {
	return &Runtime{app: app, scene: s, poster: poster}
}

// Application returns the runtime's application.
func (r *Runtime) Application() *appreg.Application {
	return r.app
}

// CreateItem adds an item at (x, y) on the named output and reports it
// ready.
func (r *Runtime) CreateItem(ctx context.Context, outputName string, x, y int, content image.Image) (*Item, error) {
	it, err := r.scene.add(r.app, outputName, x, y, content)
	if err != nil {
		return nil, err
	}
	ev := wm.Event{Kind: wm.EventSurfaceItemReady, Handle: it.Handle, App: r.app}
	if err := r.poster.Post(ctx, ev); err != nil {
		r.scene.Forget(it.Handle)
		return nil, fmt.Errorf("post ready: %w", err)
	}
	return it, nil
}

// SetFullscreen reports a fullscreen change of it.
func (r *Runtime) SetFullscreen(ctx context.Context, it *Item, fullscreen bool) error {
	it.mu.Lock()
	it.fullscreen = fullscreen
	it.mu.Unlock()
	return r.poster.Post(ctx, wm.Event{
		Kind:   wm.EventSurfaceItemFullscreenChanging,
		Handle: it.Handle,
		Flag:   fullscreen,
	})
}

// Close asks the compositor to close it. The item stays in the scene until
// the window is released.
func (r *Runtime) Close(ctx context.Context, it *Item) error {
	return r.poster.Post(ctx, wm.Event{Kind: wm.EventSurfaceItemClosing, Handle: it.Handle})
}

// SetProperty shares key=value from the client side.
func (r *Runtime) SetProperty(ctx context.Context, it *Item, key string, value any) error {
	it.setProperty(key, value)
	return r.poster.Post(ctx, wm.Event{
		Kind:   wm.EventClientPropertyChanged,
		Handle: it.Handle,
		Key:    key,
		Value:  value,
	})
}
