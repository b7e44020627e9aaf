package surface

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Origin identifies which layer owns a drawable.
type Origin uint8

const (
	// InProcess surfaces are items in the compositor's own scene graph.
	InProcess Origin = iota + 1
	// Transport surfaces are created by client processes and delivered
	// through the display-server connection.
	Transport
)

func (o Origin) String() string {
	switch o {
	case InProcess:
		return "inprocess"
	case Transport:
		return "x11"
	default:
		return "unknown"
	}
}

// ErrInvalidHandle is returned by ParseHandle for malformed input.
var ErrInvalidHandle = errors.New("invalid surface handle")

// Handle is an opaque reference to a drawable. The zero Handle refers to
// nothing and is never stored in the registry.
type Handle struct {
	Origin Origin
	ID     uint64
}

// InProcessHandle returns the handle of an in-process scene item.
func InProcessHandle(id uint64) Handle {
	return Handle{Origin: InProcess, ID: id}
}

// TransportHandle returns the handle of a transport-level window.
func TransportHandle(id uint32) Handle {
	return Handle{Origin: Transport, ID: uint64(id)}
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.Origin == 0 && h.ID == 0
}

func (h Handle) String() string {
	switch h.Origin {
	case Transport:
		return fmt.Sprintf("x11:0x%x", h.ID)
	case InProcess:
		return fmt.Sprintf("inprocess:%d", h.ID)
	default:
		return "none"
	}
}

// MarshalText implements encoding.TextMarshaler so handles travel as strings
// in the IPC protocol.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHandle is the inverse of Handle.String. Transport ids accept decimal
// or 0x-prefixed hex, matching what xprop and xwininfo print.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimSpace(s)
	prefix, rest, ok := strings.Cut(s, ":")
	if !ok || rest == "" {
		return Handle{}, fmt.Errorf("%w: %q", ErrInvalidHandle, s)
	}

	switch prefix {
	case "x11":
		id, err := strconv.ParseUint(rest, 0, 32)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: %q: %v", ErrInvalidHandle, s, err)
		}
		return TransportHandle(uint32(id)), nil
	case "inprocess":
		id, err := strconv.ParseUint(rest, 10, 64)
		if err != nil {
			return Handle{}, fmt.Errorf("%w: %q: %v", ErrInvalidHandle, s, err)
		}
		return InProcessHandle(id), nil
	default:
		return Handle{}, fmt.Errorf("%w: unknown origin %q", ErrInvalidHandle, prefix)
	}
}
