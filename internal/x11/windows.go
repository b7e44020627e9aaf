package x11

import (
	"image"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// IsNormalWindow checks if a window is an application surface rather than
// a desktop, dock, splash or notification.
func (c *Connection) IsNormalWindow(windowID xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		// If we can't determine type, assume it's normal
		return true
	}
	return isNormalType(types)
}

func isNormalType(types []string) bool {
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DIALOG":
			return true
		case "_NET_WM_WINDOW_TYPE_DESKTOP",
			"_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return false
		}
	}
	// If no specific type is set, assume it's normal
	return len(types) == 0
}

// WindowPID returns the process id owning windowID. Under a reparenting
// window manager the mapped window is a frame, so its children are tried
// as well. Zero means unknown.
func (c *Connection) WindowPID(windowID xproto.Window) int {
	if pid, err := ewmh.WmPidGet(c.XUtil, windowID); err == nil && pid > 0 {
		return int(pid)
	}

	tree, err := xproto.QueryTree(c.XUtil.Conn(), windowID).Reply()
	if err != nil {
		return 0
	}
	for _, child := range tree.Children {
		if pid, err := ewmh.WmPidGet(c.XUtil, child); err == nil && pid > 0 {
			return int(pid)
		}
	}
	return 0
}

// WindowRect returns the window geometry in root coordinates.
func (c *Connection) WindowRect(windowID xproto.Window) (image.Rectangle, error) {
	geom, err := xproto.GetGeometry(c.XUtil.Conn(), xproto.Drawable(windowID)).Reply()
	if err != nil {
		return image.Rectangle{}, err
	}

	translate, err := xproto.TranslateCoordinates(
		c.XUtil.Conn(),
		windowID,
		c.Root,
		0, 0,
	).Reply()
	if err != nil {
		return image.Rectangle{}, err
	}

	x, y := int(translate.DstX), int(translate.DstY)
	return image.Rect(x, y, x+int(geom.Width), y+int(geom.Height)), nil
}

// Focus gives windowID the input focus, through the window manager when
// one is running.
func (c *Connection) Focus(windowID xproto.Window) error {
	if err := ewmh.ActiveWindowReq(c.XUtil, windowID); err == nil {
		return nil
	}
	return xproto.SetInputFocusChecked(
		c.XUtil.Conn(),
		xproto.InputFocusPointerRoot,
		windowID,
		xproto.TimeCurrentTime,
	).Check()
}
