package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/surfman/internal/surface"
)

func parseHandle(raw string) (surface.Handle, error) {
	if strings.TrimSpace(raw) == "" {
		return surface.Handle{}, fmt.Errorf("handle is required")
	}
	return surface.ParseHandle(raw)
}

func (s *Server) handleListWindows(_ context.Context, _ *mcpsdk.CallToolRequest, args ListWindowsInput) (*mcpsdk.CallToolResult, ListWindowsOutput, error) {
	windows, err := s.daemon.ListWindows()
	if err != nil {
		return nil, ListWindowsOutput{}, err
	}

	out := ListWindowsOutput{Windows: make([]WindowSummary, 0, len(windows)), Total: len(windows)}
	for _, w := range windows {
		if w.Closing && !args.IncludeClosing {
			continue
		}
		if args.ApplicationID != "" && w.ApplicationID != args.ApplicationID {
			continue
		}
		out.Windows = append(out.Windows, WindowSummary{
			Index:         w.Index,
			Handle:        w.WindowItem.String(),
			ApplicationID: w.ApplicationID,
			PID:           w.PID,
			Fullscreen:    w.IsFullscreen,
			Mapped:        w.IsMapped,
			Closing:       w.Closing,
			Properties:    w.Properties,
		})
	}
	s.logger.Debug("mcp: list_windows", "returned", len(out.Windows), "total", out.Total)
	return nil, out, nil
}

func (s *Server) handleGetWindowProperties(_ context.Context, _ *mcpsdk.CallToolRequest, args GetWindowPropertiesInput) (*mcpsdk.CallToolResult, GetWindowPropertiesOutput, error) {
	h, err := parseHandle(args.Handle)
	if err != nil {
		return nil, GetWindowPropertiesOutput{}, err
	}
	out := GetWindowPropertiesOutput{Handle: h.String(), Properties: map[string]any{}}

	if args.Key != "" {
		value, found, err := s.daemon.WindowProperty(h, args.Key)
		if err != nil {
			return nil, GetWindowPropertiesOutput{}, err
		}
		out.Found = found
		if found {
			out.Properties[args.Key] = value
		}
		return nil, out, nil
	}

	props, err := s.daemon.WindowProperties(h)
	if err != nil {
		return nil, GetWindowPropertiesOutput{}, err
	}
	if props != nil {
		out.Found = true
		out.Properties = props
	}
	return nil, out, nil
}

func (s *Server) handleSetWindowProperty(_ context.Context, _ *mcpsdk.CallToolRequest, args SetWindowPropertyInput) (*mcpsdk.CallToolResult, SetWindowPropertyOutput, error) {
	h, err := parseHandle(args.Handle)
	if err != nil {
		return nil, SetWindowPropertyOutput{}, err
	}
	if strings.TrimSpace(args.Key) == "" {
		return nil, SetWindowPropertyOutput{}, fmt.Errorf("key is required")
	}

	applied, err := s.daemon.SetWindowProperty(h, args.Key, args.Value)
	if err != nil {
		return nil, SetWindowPropertyOutput{}, err
	}
	if !applied {
		return nil, SetWindowPropertyOutput{Handle: h.String()}, fmt.Errorf("no live window with handle %s", h)
	}
	s.logger.Info("mcp: property set", "handle", h, "key", args.Key)
	return nil, SetWindowPropertyOutput{Handle: h.String(), Applied: true}, nil
}

func (s *Server) handleReleaseWindow(_ context.Context, _ *mcpsdk.CallToolRequest, args ReleaseWindowInput) (*mcpsdk.CallToolResult, ReleaseWindowOutput, error) {
	h, err := parseHandle(args.Handle)
	if err != nil {
		return nil, ReleaseWindowOutput{}, err
	}
	released, err := s.daemon.ReleaseWindow(h)
	if err != nil {
		return nil, ReleaseWindowOutput{}, err
	}
	s.logger.Info("mcp: release_window", "handle", h, "released", released)
	return nil, ReleaseWindowOutput{Handle: h.String(), Released: released}, nil
}

func (s *Server) handleMakeScreenshot(_ context.Context, _ *mcpsdk.CallToolRequest, args MakeScreenshotInput) (*mcpsdk.CallToolResult, MakeScreenshotOutput, error) {
	if strings.TrimSpace(args.Filename) == "" {
		return nil, MakeScreenshotOutput{}, fmt.Errorf("filename is required")
	}
	data, err := s.daemon.MakeScreenshot(args.Filename, args.Selector)
	if err != nil {
		return nil, MakeScreenshotOutput{}, err
	}
	return nil, MakeScreenshotOutput{OK: data.OK, Filename: data.Filename}, nil
}
