package x11

import (
	"context"
	"fmt"
	"image"
	"image/color"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/xgraphics"

	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/surface"
)

// GrabSurface implements capture.Grabber for X11 windows.
func (t *Transport) GrabSurface(ctx context.Context, h surface.Handle) (image.Image, error) {
	if h.Origin != surface.Transport {
		return nil, fmt.Errorf("not an x11 surface: %s", h)
	}
	return t.grab(xproto.Drawable(h.ID), image.Rectangle{})
}

// GrabOutput implements capture.Grabber by grabbing the output's area of
// the root window.
func (t *Transport) GrabOutput(ctx context.Context, out output.Target) (image.Image, error) {
	area := image.Rect(out.X, out.Y, out.X+out.Width, out.Y+out.Height)
	if area.Empty() {
		return nil, fmt.Errorf("output %q has no size", out.Name)
	}
	return t.grab(xproto.Drawable(t.conn.Root), area)
}

// grab copies the contents of d, or of area within it, into an opaque
// image. The server returns undefined alpha for most visuals.
func (t *Transport) grab(d xproto.Drawable, area image.Rectangle) (image.Image, error) {
	ximg, err := xgraphics.NewDrawable(t.conn.XUtil, d)
	if err != nil {
		return nil, fmt.Errorf("grab drawable %d: %w", d, err)
	}
	defer ximg.Destroy()

	bounds := ximg.Bounds()
	if !area.Empty() {
		bounds = area.Intersect(bounds)
		if bounds.Empty() {
			return nil, fmt.Errorf("area %v outside drawable", area)
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := ximg.At(x, y).RGBA()
			dst.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 255})
		}
	}
	return dst, nil
}
