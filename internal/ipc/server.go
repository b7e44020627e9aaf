package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/config"
	"github.com/1broseidon/surfman/internal/metrics"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/runtimepath"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
)

// requestTimeout bounds how long one request may wait on the window
// manager. Screenshots get the configured capture timeout on top.
const requestTimeout = 5 * time.Second

// Windows is the window manager surface the server exposes.
type Windows interface {
	Windows(ctx context.Context) ([]wm.WindowInfo, error)
	ReleaseWindow(ctx context.Context, h surface.Handle) (bool, error)
	SetWindowProperty(ctx context.Context, h surface.Handle, key string, value any) (bool, error)
	WindowProperty(ctx context.Context, h surface.Handle, key string) (any, bool, error)
	WindowProperties(ctx context.Context, h surface.Handle) (map[string]any, error)
	MakeScreenshot(ctx context.Context, filename, selector string) (bool, error)
}

// Applications is the part of the application registry reachable over IPC.
type Applications interface {
	Attach(appID string, pid int) (*appreg.Application, error)
	Detach(pid int) bool
	Attachments() map[int]string
}

// ServerOptions configures a Server.
type ServerOptions struct {
	// SocketPath overrides the runtime socket location.
	SocketPath string
	// ScreenshotDir anchors relative screenshot filenames. Defaults to
	// runtimepath.ScreenshotDir.
	ScreenshotDir string
	// Mode names the active surface transport in GET_STATUS.
	Mode string

	Config  *config.Config
	Windows Windows
	Apps    Applications
	Outputs *output.Binder
	// Reload loads and applies a fresh configuration.
	Reload func() (*config.Config, error)

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server handles IPC requests from clients
type Server struct {
	socketPath string
	shotDir    string
	mode       string
	listener   net.Listener

	cfg   *config.Config
	cfgMu sync.RWMutex

	windows Windows
	apps    Applications
	outputs *output.Binder
	reload  func() (*config.Config, error)
	metrics *metrics.Metrics
	logger  *slog.Logger

	startTime    time.Time
	ctx          context.Context
	cancel       context.CancelFunc
	conns        sync.WaitGroup
	shuttingDown bool
	shutdownMu   sync.Mutex
}

// NewServer creates a new IPC server
func NewServer(opts ServerOptions) (*Server, error) {
	if opts.Windows == nil {
		return nil, errors.New("ipc: ServerOptions.Windows is required")
	}
	socketPath := opts.SocketPath
	if socketPath == "" {
		path, err := runtimepath.SocketPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
		}
		socketPath = path
	}
	shotDir := opts.ScreenshotDir
	if shotDir == "" {
		dir, err := runtimepath.ScreenshotDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve screenshot dir: %w", err)
		}
		shotDir = dir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	mode := opts.Mode
	if mode == "" {
		mode = surface.InProcess.String()
	}

	// Remove existing socket if present
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		shotDir:    shotDir,
		mode:       mode,
		cfg:        cfg,
		windows:    opts.Windows,
		apps:       opts.Apps,
		outputs:    opts.Outputs,
		reload:     opts.Reload,
		metrics:    opts.Metrics,
		logger:     logger,
		startTime:  time.Now(),
	}, nil
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// Start begins listening for IPC connections. Requests in flight are
// cancelled when ctx is done or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.logger.Info("IPC server listening", "socket", s.socketPath)

	go s.acceptLoop()
	return nil
}

// acceptLoop accepts incoming connections
func (s *Server) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			closing := s.shuttingDown
			s.shutdownMu.Unlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection handles a single IPC connection
func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)

	// Read the request (expect JSON on a single line)
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Warn("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.metrics.IPCRequest("INVALID", StatusError)
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	resp := s.handleCommand(req)
	s.metrics.IPCRequest(string(req.Command), resp.Status)
	if resp.Status == StatusError {
		s.logger.Debug("IPC request failed", "command", req.Command, "error", resp.Error)
	}

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Error("failed to marshal response", "command", req.Command, "error", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Warn("failed to send response", "command", req.Command, "error", err)
	}
}

// handleCommand processes an IPC command and returns a response
func (s *Server) handleCommand(req *Request) *Response {
	switch req.Command {
	case CommandReload:
		return s.handleReload()
	case CommandGetStatus:
		return s.handleGetStatus()
	case CommandListWindows:
		return s.handleListWindows()
	case CommandGetWindow:
		return s.handleGetWindow(req.Payload)
	case CommandReleaseWindow:
		return s.handleReleaseWindow(req.Payload)
	case CommandSetWindowProperty:
		return s.handleSetWindowProperty(req.Payload)
	case CommandWindowProperty:
		return s.handleWindowProperty(req.Payload)
	case CommandWindowProperties:
		return s.handleWindowProperties(req.Payload)
	case CommandMakeScreenshot:
		return s.handleMakeScreenshot(req.Payload)
	case CommandAttachApplication:
		return s.handleAttachApplication(req.Payload)
	case CommandDetachApplication:
		return s.handleDetachApplication(req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) requestContext(extra time.Duration) (context.Context, context.CancelFunc) {
	base := s.ctx
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, requestTimeout+extra)
}

func ok(data any) *Response {
	resp, err := NewOKResponse(data)
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func decodePayload(payload json.RawMessage, out any) error {
	if len(payload) == 0 {
		return errors.New("missing payload")
	}
	return json.Unmarshal(payload, out)
}

// handleReload reloads the configuration
func (s *Server) handleReload() *Response {
	s.logger.Info("IPC: received RELOAD")
	if s.reload == nil {
		return NewErrorResponse("reload is not supported")
	}

	newCfg, err := s.reload()
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
	}
	s.UpdateConfig(newCfg)

	s.logger.Info("IPC: config reloaded")
	return ok(nil)
}

// handleGetStatus returns current daemon status
func (s *Server) handleGetStatus() *Response {
	ctx, cancel := s.requestContext(0)
	defer cancel()

	windows, err := s.windows.Windows(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to list windows: %v", err))
	}
	closing := 0
	for _, w := range windows {
		if w.Closing {
			closing++
		}
	}

	cfg := s.GetConfig()
	status := StatusData{
		Mode:           s.mode,
		WindowCount:    len(windows),
		ClosingCount:   closing,
		Outputs:        s.outputInfos(),
		SecurityChecks: cfg.SecurityChecks,
		Watchdog:       cfg.Watchdog,
		UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		DaemonRunning:  true,
	}
	if s.apps != nil {
		status.Attachments = len(s.apps.Attachments())
	}
	return ok(status)
}

func (s *Server) outputInfos() []OutputInfo {
	if s.outputs == nil {
		return []OutputInfo{}
	}
	targets := s.outputs.Outputs()
	infos := make([]OutputInfo, len(targets))
	for i, t := range targets {
		infos[i] = OutputInfo{
			Index:   i,
			Name:    t.Name,
			X:       t.X,
			Y:       t.Y,
			Width:   t.Width,
			Height:  t.Height,
			Primary: t.Primary,
		}
	}
	return infos
}

func (s *Server) handleListWindows() *Response {
	ctx, cancel := s.requestContext(0)
	defer cancel()

	windows, err := s.windows.Windows(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to list windows: %v", err))
	}
	if windows == nil {
		windows = []wm.WindowInfo{}
	}
	return ok(WindowsData{Windows: windows})
}

func (s *Server) handleGetWindow(payload json.RawMessage) *Response {
	var req GetWindowPayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid get window payload: %v", err))
	}

	ctx, cancel := s.requestContext(0)
	defer cancel()

	windows, err := s.windows.Windows(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to list windows: %v", err))
	}
	if req.Index < 0 || req.Index >= len(windows) {
		return NewErrorResponse(fmt.Sprintf("window index %d out of range (count %d)", req.Index, len(windows)))
	}
	return ok(windows[req.Index])
}

func (s *Server) handleReleaseWindow(payload json.RawMessage) *Response {
	var req HandlePayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid release payload: %v", err))
	}

	ctx, cancel := s.requestContext(0)
	defer cancel()

	released, err := s.windows.ReleaseWindow(ctx, req.Handle)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to release window: %v", err))
	}
	return ok(ReleaseWindowData{Released: released})
}

func (s *Server) handleSetWindowProperty(payload json.RawMessage) *Response {
	var req SetWindowPropertyPayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid set property payload: %v", err))
	}
	if req.Key == "" {
		return NewErrorResponse("key is required")
	}

	ctx, cancel := s.requestContext(0)
	defer cancel()

	applied, err := s.windows.SetWindowProperty(ctx, req.Handle, req.Key, req.Value)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to set property: %v", err))
	}
	return ok(SetWindowPropertyData{Applied: applied})
}

func (s *Server) handleWindowProperty(payload json.RawMessage) *Response {
	var req WindowPropertyPayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid property payload: %v", err))
	}

	ctx, cancel := s.requestContext(0)
	defer cancel()

	value, found, err := s.windows.WindowProperty(ctx, req.Handle, req.Key)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to read property: %v", err))
	}
	return ok(WindowPropertyData{Value: value, Found: found})
}

func (s *Server) handleWindowProperties(payload json.RawMessage) *Response {
	var req HandlePayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid properties payload: %v", err))
	}

	ctx, cancel := s.requestContext(0)
	defer cancel()

	props, err := s.windows.WindowProperties(ctx, req.Handle)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to read properties: %v", err))
	}
	data := WindowPropertiesData{Properties: props, Found: props != nil}
	if data.Properties == nil {
		data.Properties = map[string]any{}
	}
	return ok(data)
}

func (s *Server) handleMakeScreenshot(payload json.RawMessage) *Response {
	var req MakeScreenshotPayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid screenshot payload: %v", err))
	}
	if req.Filename == "" {
		return NewErrorResponse("filename is required")
	}

	filename := req.Filename
	if !filepath.IsAbs(filename) {
		filename = filepath.Join(s.shotDir, filename)
	}

	ctx, cancel := s.requestContext(s.GetConfig().ScreenshotTimeout)
	defer cancel()

	saved, err := s.windows.MakeScreenshot(ctx, filename, req.Selector)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to take screenshot: %v", err))
	}
	return ok(MakeScreenshotData{OK: saved, Filename: filename})
}

func (s *Server) handleAttachApplication(payload json.RawMessage) *Response {
	if s.apps == nil {
		return NewErrorResponse("application registry unavailable")
	}
	var req AttachApplicationPayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid attach payload: %v", err))
	}

	app, err := s.apps.Attach(req.ApplicationID, req.PID)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to attach: %v", err))
	}
	s.logger.Info("IPC: process attached", "pid", req.PID, "app", app.ID())
	return ok(nil)
}

func (s *Server) handleDetachApplication(payload json.RawMessage) *Response {
	if s.apps == nil {
		return NewErrorResponse("application registry unavailable")
	}
	var req DetachApplicationPayload
	if err := decodePayload(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid detach payload: %v", err))
	}
	return ok(DetachApplicationData{Detached: s.apps.Detach(req.PID)})
}

// sendError sends an error response
func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop shuts down the listener, cancels requests in flight and waits for
// open connections to finish.
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.listener != nil {
		s.listener.Close()
	}
	s.conns.Wait()
	os.Remove(s.socketPath)
}

// GetConfig returns the current config (thread-safe)
func (s *Server) GetConfig() *config.Config {
	s.cfgMu.RLock()
	defer s.cfgMu.RUnlock()
	return s.cfg
}

// UpdateConfig updates the config (thread-safe)
func (s *Server) UpdateConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	s.cfg = cfg
}
