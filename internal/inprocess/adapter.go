package inprocess

import (
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// Apply mirrors a window manager notification into the scene:
// compositor-side property writes reach the items, and released items leave
// the scene. It is meant to be registered with wm.Manager.Listen so that no
// notification is lost.
func (s *Scene) Apply(n wm.Notification) {
	if n.Handle.Origin != surface.InProcess {
		return
	}
	switch n.Kind {
	case wm.WindowPropertyChanged:
		if it, ok := s.Item(n.Handle); ok {
			it.setProperty(n.Key, n.Value)
		}
	case wm.WindowLost:
		s.Forget(n.Handle)
		s.logger.Debug("in-process item released", "handle", n.Handle)
	}
}
