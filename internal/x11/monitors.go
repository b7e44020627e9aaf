package x11

import (
	"fmt"
	"image"

	"github.com/BurntSushi/xgb/randr"

	"github.com/1broseidon/surfman/internal/output"
)

// Monitor represents a physical display
type Monitor struct {
	ID      int
	Name    string
	X       int
	Y       int
	Width   int
	Height  int
	Primary bool
}

// Target converts m into an output target.
func (m Monitor) Target() output.Target {
	return output.Target{
		Name:    m.Name,
		X:       m.X,
		Y:       m.Y,
		Width:   m.Width,
		Height:  m.Height,
		Primary: m.Primary,
	}
}

// GetMonitors retrieves all active monitors using XRandR
func (c *Connection) GetMonitors() ([]Monitor, error) {
	// Initialize RandR if not already done
	if err := randr.Init(c.XUtil.Conn()); err != nil {
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	// Get screen resources
	resources, err := randr.GetScreenResources(c.XUtil.Conn(), c.Root).Reply()
	if err != nil {
		return nil, fmt.Errorf("failed to get screen resources: %w", err)
	}

	var primary randr.Output
	if reply, err := randr.GetOutputPrimary(c.XUtil.Conn(), c.Root).Reply(); err == nil {
		primary = reply.Output
	}

	var monitors []Monitor

	// Query each CRTC for active monitors
	for i, crtc := range resources.Crtcs {
		crtcInfo, err := randr.GetCrtcInfo(c.XUtil.Conn(), crtc, resources.ConfigTimestamp).Reply()
		if err != nil {
			continue
		}

		// Skip disabled CRTCs
		if crtcInfo.Width == 0 || crtcInfo.Height == 0 || len(crtcInfo.Outputs) == 0 {
			continue
		}

		outputName := fmt.Sprintf("Monitor%d", i)
		outputInfo, err := randr.GetOutputInfo(c.XUtil.Conn(), crtcInfo.Outputs[0], resources.ConfigTimestamp).Reply()
		if err == nil {
			outputName = string(outputInfo.Name)
		}

		monitors = append(monitors, Monitor{
			ID:      i,
			Name:    outputName,
			X:       int(crtcInfo.X),
			Y:       int(crtcInfo.Y),
			Width:   int(crtcInfo.Width),
			Height:  int(crtcInfo.Height),
			Primary: crtcInfo.Outputs[0] == primary,
		})
	}

	return monitors, nil
}

// Outputs returns the active monitors as output targets.
func (c *Connection) Outputs() ([]output.Target, error) {
	monitors, err := c.GetMonitors()
	if err != nil {
		return nil, err
	}
	targets := make([]output.Target, len(monitors))
	for i, m := range monitors {
		targets[i] = m.Target()
	}
	return targets, nil
}

// pickOutput returns the target sharing the largest area with r.
func pickOutput(targets []output.Target, r image.Rectangle) (output.Target, bool) {
	var (
		best     output.Target
		bestArea int
	)
	for _, t := range targets {
		isect := intersectionSize(r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, t.X, t.Y, t.X+t.Width, t.Y+t.Height)
		if area := isect.w * isect.h; area > bestArea {
			best, bestArea = t, area
		}
	}
	return best, bestArea > 0
}

type intersection struct {
	w int
	h int
}

func intersectionSize(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2 int) intersection {
	x1 := max(ax1, bx1)
	y1 := max(ay1, by1)
	x2 := min(ax2, bx2)
	y2 := min(ay2, by2)

	if x2 <= x1 || y2 <= y1 {
		return intersection{}
	}
	return intersection{w: x2 - x1, h: y2 - y1}
}
