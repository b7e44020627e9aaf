package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/surfman/internal/runtimepath"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientWithSocket(socketPath)
}

// NewClientWithSocket creates a client for an explicit socket path.
func NewClientWithSocket(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    5 * time.Second,
	}
}

// SetTimeout changes the per-request deadline.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.timeout = d
	}
}

// sendRequest sends a request and waits for a response
func (c *Client) sendRequest(req *Request) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == StatusError {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

// call sends command with payload and decodes the response data into out
// when out is non-nil.
func (c *Client) call(command CommandType, payload any, out any) error {
	req := &Request{Command: command}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", command, err)
		}
		req.Payload = data
	}

	resp, err := c.sendRequest(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", command, err)
	}
	return nil
}

// Reload sends a RELOAD command to the daemon
func (c *Client) Reload() error {
	return c.call(CommandReload, nil, nil)
}

// GetStatus retrieves daemon status
func (c *Client) GetStatus() (*StatusData, error) {
	var status StatusData
	if err := c.call(CommandGetStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ListWindows retrieves every window in registry order.
func (c *Client) ListWindows() ([]wm.WindowInfo, error) {
	var data WindowsData
	if err := c.call(CommandListWindows, nil, &data); err != nil {
		return nil, err
	}
	return data.Windows, nil
}

// GetWindow retrieves the window at index.
func (c *Client) GetWindow(index int) (*wm.WindowInfo, error) {
	var info wm.WindowInfo
	if err := c.call(CommandGetWindow, GetWindowPayload{Index: index}, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ReleaseWindow asks the daemon to finalize teardown of h.
func (c *Client) ReleaseWindow(h surface.Handle) (bool, error) {
	var data ReleaseWindowData
	if err := c.call(CommandReleaseWindow, HandlePayload{Handle: h}, &data); err != nil {
		return false, err
	}
	return data.Released, nil
}

// SetWindowProperty stores key=value on the window for h.
func (c *Client) SetWindowProperty(h surface.Handle, key string, value any) (bool, error) {
	var data SetWindowPropertyData
	payload := SetWindowPropertyPayload{Handle: h, Key: key, Value: value}
	if err := c.call(CommandSetWindowProperty, payload, &data); err != nil {
		return false, err
	}
	return data.Applied, nil
}

// WindowProperty reads one property of the window for h.
func (c *Client) WindowProperty(h surface.Handle, key string) (any, bool, error) {
	var data WindowPropertyData
	if err := c.call(CommandWindowProperty, WindowPropertyPayload{Handle: h, Key: key}, &data); err != nil {
		return nil, false, err
	}
	return data.Value, data.Found, nil
}

// WindowProperties reads every property of the window for h. The map is nil
// when h is not a known window.
func (c *Client) WindowProperties(h surface.Handle) (map[string]any, error) {
	var data WindowPropertiesData
	if err := c.call(CommandWindowProperties, HandlePayload{Handle: h}, &data); err != nil {
		return nil, err
	}
	if !data.Found {
		return nil, nil
	}
	return data.Properties, nil
}

// MakeScreenshot captures whatever selector matches into files named after
// filename. Relative filenames are resolved by the daemon.
func (c *Client) MakeScreenshot(filename, selector string) (*MakeScreenshotData, error) {
	var data MakeScreenshotData
	payload := MakeScreenshotPayload{Filename: filename, Selector: selector}
	if err := c.call(CommandMakeScreenshot, payload, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

// AttachApplication binds pid to a configured application id.
func (c *Client) AttachApplication(appID string, pid int) error {
	return c.call(CommandAttachApplication, AttachApplicationPayload{ApplicationID: appID, PID: pid}, nil)
}

// DetachApplication removes an attachment made by AttachApplication.
func (c *Client) DetachApplication(pid int) (bool, error) {
	var data DetachApplicationData
	if err := c.call(CommandDetachApplication, DetachApplicationPayload{PID: pid}, &data); err != nil {
		return false, err
	}
	return data.Detached, nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	_, err := c.GetStatus()
	return err
}
