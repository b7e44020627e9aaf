package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandReload            CommandType = "RELOAD"
	CommandGetStatus         CommandType = "GET_STATUS"
	CommandListWindows       CommandType = "LIST_WINDOWS"
	CommandGetWindow         CommandType = "GET_WINDOW"
	CommandReleaseWindow     CommandType = "RELEASE_WINDOW"
	CommandSetWindowProperty CommandType = "SET_WINDOW_PROPERTY"
	CommandWindowProperty    CommandType = "WINDOW_PROPERTY"
	CommandWindowProperties  CommandType = "WINDOW_PROPERTIES"
	CommandMakeScreenshot    CommandType = "MAKE_SCREENSHOT"
	CommandAttachApplication CommandType = "ATTACH_APPLICATION"
	CommandDetachApplication CommandType = "DETACH_APPLICATION"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// OutputInfo describes one registered output.
type OutputInfo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Primary bool   `json:"primary,omitempty"`
}

// StatusData represents the data returned by GET_STATUS
type StatusData struct {
	Mode           string       `json:"mode"` // "x11" or "inprocess"
	WindowCount    int          `json:"window_count"`
	ClosingCount   int          `json:"closing_count"`
	Outputs        []OutputInfo `json:"outputs"`
	Attachments    int          `json:"attachments"`
	SecurityChecks bool         `json:"security_checks"`
	Watchdog       bool         `json:"watchdog"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	DaemonRunning  bool         `json:"daemon_running"`
}

// WindowsData represents the data returned by LIST_WINDOWS
type WindowsData struct {
	Windows []wm.WindowInfo `json:"windows"`
}

type GetWindowPayload struct {
	Index int `json:"index"`
}

type HandlePayload struct {
	Handle surface.Handle `json:"handle"`
}

type ReleaseWindowData struct {
	Released bool `json:"released"`
}

type SetWindowPropertyPayload struct {
	Handle surface.Handle `json:"handle"`
	Key    string         `json:"key"`
	Value  any            `json:"value"`
}

type SetWindowPropertyData struct {
	Applied bool `json:"applied"`
}

type WindowPropertyPayload struct {
	Handle surface.Handle `json:"handle"`
	Key    string         `json:"key"`
}

type WindowPropertyData struct {
	Value any  `json:"value"`
	Found bool `json:"found"`
}

type WindowPropertiesData struct {
	Properties map[string]any `json:"properties"`
	Found      bool           `json:"found"`
}

type MakeScreenshotPayload struct {
	Filename string `json:"filename"`
	Selector string `json:"selector"`
}

type MakeScreenshotData struct {
	OK       bool   `json:"ok"`
	Filename string `json:"filename"` // pattern as resolved by the daemon
}

type AttachApplicationPayload struct {
	ApplicationID string `json:"application_id"`
	PID           int    `json:"pid"`
}

type DetachApplicationPayload struct {
	PID int `json:"pid"`
}

type DetachApplicationData struct {
	Detached bool `json:"detached"`
}

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
