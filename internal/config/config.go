package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/surfman/internal/appreg"
)

// Application is one configured application identity.
type Application struct {
	ID          string   `yaml:"id"`
	Aliases     []string `yaml:"aliases,omitempty"`
	Executables []string `yaml:"executables,omitempty"`
}

// View is an output registered in single-process mode, where no display
// server provides monitor geometry.
type View struct {
	Name   string `yaml:"name"`
	X      int    `yaml:"x"`
	Y      int    `yaml:"y"`
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
}

type Config struct {
	LogLevel           string        `yaml:"log_level"`
	ForceSingleProcess bool          `yaml:"force_single_process"`
	SecurityChecks     bool          `yaml:"security_checks"`
	Display            string        `yaml:"display,omitempty"`
	ScreenshotTimeout  time.Duration `yaml:"screenshot_timeout"`
	ClosingWarnAfter   time.Duration `yaml:"closing_warn_after"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval"`
	MetricsAddr        string        `yaml:"metrics_addr,omitempty"`
	Watchdog           bool          `yaml:"watchdog"`
	Views              []View        `yaml:"views,omitempty"`
	Applications       []Application `yaml:"applications"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:          "info",
		SecurityChecks:    true,
		ScreenshotTimeout: 5 * time.Second,
		ClosingWarnAfter:  30 * time.Second,
		ReconcileInterval: 10 * time.Second,
		Views: []View{
			{Name: "view-0", Width: 1920, Height: 1080},
		},
		Applications: []Application{},
	}
}

// SlogLevel maps log_level onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	if c == nil {
		return slog.LevelInfo
	}
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// AppDefinitions converts the configured applications for the application
// registry.
func (c *Config) AppDefinitions() []appreg.Definition {
	if c == nil {
		return nil
	}
	defs := make([]appreg.Definition, 0, len(c.Applications))
	for _, app := range c.Applications {
		defs = append(defs, appreg.Definition{
			ID:          app.ID,
			Aliases:     append([]string(nil), app.Aliases...),
			Executables: append([]string(nil), app.Executables...),
		})
	}
	return defs
}

// Save writes the configuration to the standard location.
//
// Note: this marshals the effective config and will not preserve comments or
// include structure from the original YAML.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	if c.ScreenshotTimeout <= 0 {
		return &ValidationError{Path: "screenshot_timeout", Err: fmt.Errorf("screenshot_timeout must be > 0")}
	}
	if c.ClosingWarnAfter < 0 {
		return &ValidationError{Path: "closing_warn_after", Err: fmt.Errorf("closing_warn_after must be >= 0")}
	}
	if c.ReconcileInterval <= 0 {
		return &ValidationError{Path: "reconcile_interval", Err: fmt.Errorf("reconcile_interval must be > 0")}
	}

	views := make(map[string]struct{}, len(c.Views))
	for i, v := range c.Views {
		path := fmt.Sprintf("views[%d]", i)
		if strings.TrimSpace(v.Name) == "" {
			return &ValidationError{Path: "views", Err: fmt.Errorf("%s: name is required", path)}
		}
		if _, dup := views[v.Name]; dup {
			return &ValidationError{Path: "views", Err: fmt.Errorf("duplicate view %q", v.Name)}
		}
		views[v.Name] = struct{}{}
		if v.Width <= 0 || v.Height <= 0 {
			return &ValidationError{Path: "views", Err: fmt.Errorf("view %q: width and height must be > 0", v.Name)}
		}
	}

	ids := make(map[string]struct{})
	for i, app := range c.Applications {
		if strings.TrimSpace(app.ID) == "" {
			return &ValidationError{Path: "applications", Err: fmt.Errorf("applications[%d]: id is required", i)}
		}
		for _, id := range append([]string{app.ID}, app.Aliases...) {
			if strings.TrimSpace(id) == "" {
				return &ValidationError{Path: "applications", Err: fmt.Errorf("application %q: empty alias", app.ID)}
			}
			if _, dup := ids[id]; dup {
				return &ValidationError{Path: "applications", Err: fmt.Errorf("duplicate application id %q", id)}
			}
			ids[id] = struct{}{}
		}
		for _, exe := range app.Executables {
			if strings.TrimSpace(exe) == "" {
				return &ValidationError{Path: "applications", Err: fmt.Errorf("application %q: empty executable", app.ID)}
			}
		}
	}
	return nil
}
