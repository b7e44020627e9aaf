package wm

import (
	"fmt"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/surface"
)

// EventKind classifies surface events fed into the manager.
type EventKind uint8

const (
	// In-process runtime events.
	EventSurfaceItemReady EventKind = iota + 1
	EventSurfaceItemFullscreenChanging
	EventSurfaceItemClosing

	// Transport events.
	EventSurfaceCreated
	EventSurfaceMapped
	EventSurfaceUnmapped
	EventSurfaceDestroyed

	// Property updates originating from the client side.
	EventClientPropertyChanged
)

func (k EventKind) String() string {
	switch k {
	case EventSurfaceItemReady:
		return "item_ready"
	case EventSurfaceItemFullscreenChanging:
		return "item_fullscreen"
	case EventSurfaceItemClosing:
		return "item_closing"
	case EventSurfaceCreated:
		return "created"
	case EventSurfaceMapped:
		return "mapped"
	case EventSurfaceUnmapped:
		return "unmapped"
	case EventSurfaceDestroyed:
		return "destroyed"
	case EventClientPropertyChanged:
		return "client_property"
	default:
		return fmt.Sprintf("event(%d)", uint8(k))
	}
}

// Event is the tagged union both adapters translate their inputs into.
// Which fields are meaningful depends on Kind:
//
//	SurfaceItemReady               Handle, App
//	SurfaceItemFullscreenChanging  Handle, Flag
//	SurfaceCreated, SurfaceMapped  Handle, PID
//	ClientPropertyChanged          Handle, Key, Value
type Event struct {
	Kind   EventKind
	Handle surface.Handle
	PID    int
	App    *appreg.Application
	Flag   bool
	Key    string
	Value  any
}

// NotificationKind classifies lifecycle notifications.
type NotificationKind uint8

const (
	WindowReady NotificationKind = iota + 1
	WindowClosing
	WindowLost
	WindowPropertyChanged
)

func (k NotificationKind) String() string {
	switch k {
	case WindowReady:
		return "windowReady"
	case WindowClosing:
		return "windowClosing"
	case WindowLost:
		return "windowLost"
	case WindowPropertyChanged:
		return "windowPropertyChanged"
	default:
		return fmt.Sprintf("notification(%d)", uint8(k))
	}
}

// Notification is delivered to subscribers. Index is the row at the time of
// emission; use Handle to refer to the window later.
type Notification struct {
	Kind   NotificationKind
	Index  int
	Handle surface.Handle
	Key    string
	Value  any
}
