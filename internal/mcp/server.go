package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

const (
	ServerName    = "surfman"
	ServerVersion = "0.1.0"
)

// Daemon is the subset of the IPC client the tools forward to.
type Daemon interface {
	ListWindows() ([]wm.WindowInfo, error)
	WindowProperty(h surface.Handle, key string) (any, bool, error)
	WindowProperties(h surface.Handle) (map[string]any, error)
	SetWindowProperty(h surface.Handle, key string, value any) (bool, error)
	ReleaseWindow(h surface.Handle) (bool, error)
	MakeScreenshot(filename, selector string) (*ipc.MakeScreenshotData, error)
}

var _ Daemon = (*ipc.Client)(nil)

// Server is the MCP server exposing the window manager to tool callers.
type Server struct {
	mcpServer *mcpsdk.Server
	daemon    Daemon
	logger    *slog.Logger
}

// NewServer creates a new MCP server that forwards to daemon.
func NewServer(daemon Daemon, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		daemon: daemon,
		logger: logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_windows",
		Description: "List the windows known to the surfman daemon in registry order, with their handle, application id, state and properties. Closing windows are hidden unless include_closing is set.",
	}, s.handleListWindows)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_window_properties",
		Description: "Read the shared properties of a window. Pass key to read a single property.",
	}, s.handleGetWindowProperties)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_window_property",
		Description: "Set a shared property on a window. Client windows receive the new property set through the display connection.",
	}, s.handleSetWindowProperty)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "release_window",
		Description: "Finish tearing down a window. A window that is still ready is moved to closing first; releasing an unknown window does nothing.",
	}, s.handleReleaseWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "make_screenshot",
		Description: "Capture windows or whole outputs to image files. The selector grammar is appId[key=value]:outputIndex; every part is optional and an empty selector captures every output.",
	}, s.handleMakeScreenshot)
}
