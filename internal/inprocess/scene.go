// Package inprocess provides the in-process runtime: a small scene graph
// of items rendered inside the compositor itself, and the adapter that
// feeds their lifecycle into the window manager.
package inprocess

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sort"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// Poster accepts events for the window manager.
type Poster interface {
	Post(ctx context.Context, ev wm.Event) error
}

// Item is one in-process surface.
type Item struct {
	Handle surface.Handle
	App    *appreg.Application

	mu         sync.Mutex
	output     string
	x, y       int
	content    image.Image
	fullscreen bool
	properties map[string]any
}

// Content returns the item's current image.
func (it *Item) Content() image.Image {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.content
}

// SetContent replaces the item's image.
func (it *Item) SetContent(img image.Image) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.content = img
}

// Property returns the last value the compositor shared for key.
func (it *Item) Property(key string) (any, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	v, ok := it.properties[key]
	return v, ok
}

func (it *Item) setProperty(key string, value any) {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.properties[key] = value
}

// Scene holds all in-process items and the outputs they are parented to.
type Scene struct {
	mu      sync.RWMutex
	outputs map[string]output.Target
	items   map[surface.Handle]*Item
	nextID  uint64
	logger  *slog.Logger
}

// NewScene creates an empty scene.
func NewScene(logger *slog.Logger) *Scene {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scene{
		outputs: make(map[string]output.Target),
		items:   make(map[surface.Handle]*Item),
		logger:  logger,
	}
}

// AddOutput makes out available as an item parent.
func (s *Scene) AddOutput(out output.Target) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outputs[out.Name] = out
}

// Item returns the item for h.
func (s *Scene) Item(h surface.Handle) (*Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[h]
	return it, ok
}

// Len returns the number of live items.
func (s *Scene) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// OutputOf implements output.Locator.
func (s *Scene) OutputOf(h surface.Handle) (output.Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[h]
	if !ok {
		return output.Target{}, false
	}
	it.mu.Lock()
	name := it.output
	it.mu.Unlock()
	out, ok := s.outputs[name]
	return out, ok
}

// GrabSurface implements capture.Grabber for in-process items.
func (s *Scene) GrabSurface(ctx context.Context, h surface.Handle) (image.Image, error) {
	it, ok := s.Item(h)
	if !ok {
		return nil, fmt.Errorf("no in-process item %s", h)
	}
	img := it.Content()
	if img == nil {
		return nil, fmt.Errorf("item %s has no content", h)
	}
	return imaging.Clone(img), nil
}

// GrabOutput composes every item parented to out onto a black canvas of the
// output's size. Items are stacked in creation order, newest on top.
func (s *Scene) GrabOutput(ctx context.Context, out output.Target) (image.Image, error) {
	if out.Width <= 0 || out.Height <= 0 {
		return nil, fmt.Errorf("output %q has no size", out.Name)
	}
	canvas := imaging.New(out.Width, out.Height, color.Black)

	s.mu.RLock()
	items := make([]*Item, 0, len(s.items))
	for _, it := range s.items {
		items = append(items, it)
	}
	s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Handle.ID < items[j].Handle.ID })

	for _, it := range items {
		it.mu.Lock()
		onOutput, img, pos := it.output == out.Name, it.content, image.Pt(it.x, it.y)
		it.mu.Unlock()
		if !onOutput || img == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		canvas = imaging.Paste(canvas, img, pos)
	}
	return canvas, nil
}

// Forget drops the item for h. It is called once the window manager has
// released the window.
func (s *Scene) Forget(h surface.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, h)
}

func (s *Scene) add(app *appreg.Application, outputName string, x, y int, content image.Image) (*Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outputs[outputName]; !ok {
		return nil, fmt.Errorf("unknown output %q", outputName)
	}
	s.nextID++
	it := &Item{
		Handle:     surface.InProcessHandle(s.nextID),
		App:        app,
		output:     outputName,
		x:          x,
		y:          y,
		content:    content,
		properties: make(map[string]any),
	}
	s.items[it.Handle] = it
	return it, nil
}
