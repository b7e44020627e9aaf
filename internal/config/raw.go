package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawApplication struct {
	ID          string   `yaml:"id"`
	Aliases     []string `yaml:"aliases"`
	Executables []string `yaml:"executables"`
}

type RawView struct {
	Name   string `yaml:"name"`
	X      *int   `yaml:"x"`
	Y      *int   `yaml:"y"`
	Width  *int   `yaml:"width"`
	Height *int   `yaml:"height"`
}

// RawConfig is one file's worth of settings. Nil fields were not set.
type RawConfig struct {
	Include            IncludeList      `yaml:"include"`
	LogLevel           *string          `yaml:"log_level"`
	ForceSingleProcess *bool            `yaml:"force_single_process"`
	SecurityChecks     *bool            `yaml:"security_checks"`
	Display            *string          `yaml:"display"`
	ScreenshotTimeout  *string          `yaml:"screenshot_timeout"`
	ClosingWarnAfter   *string          `yaml:"closing_warn_after"`
	ReconcileInterval  *string          `yaml:"reconcile_interval"`
	MetricsAddr        *string          `yaml:"metrics_addr"`
	Watchdog           *bool            `yaml:"watchdog"`
	Views              []RawView        `yaml:"views"`
	Applications       []RawApplication `yaml:"applications"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c
	if overlay.LogLevel != nil {
		out.LogLevel = overlay.LogLevel
	}
	if overlay.ForceSingleProcess != nil {
		out.ForceSingleProcess = overlay.ForceSingleProcess
	}
	if overlay.SecurityChecks != nil {
		out.SecurityChecks = overlay.SecurityChecks
	}
	if overlay.Display != nil {
		out.Display = overlay.Display
	}
	if overlay.ScreenshotTimeout != nil {
		out.ScreenshotTimeout = overlay.ScreenshotTimeout
	}
	if overlay.ClosingWarnAfter != nil {
		out.ClosingWarnAfter = overlay.ClosingWarnAfter
	}
	if overlay.ReconcileInterval != nil {
		out.ReconcileInterval = overlay.ReconcileInterval
	}
	if overlay.MetricsAddr != nil {
		out.MetricsAddr = overlay.MetricsAddr
	}
	if overlay.Watchdog != nil {
		out.Watchdog = overlay.Watchdog
	}
	if overlay.Views != nil {
		out.Views = mergeRawViews(out.Views, overlay.Views)
	}
	if overlay.Applications != nil {
		out.Applications = mergeRawApplications(out.Applications, overlay.Applications)
	}
	return out
}

// mergeRawApplications replaces entries with a matching id in place and
// appends the rest, keeping definition order stable across includes.
func mergeRawApplications(base, overlay []RawApplication) []RawApplication {
	out := append([]RawApplication(nil), base...)
	for _, app := range overlay {
		replaced := false
		for i := range out {
			if out[i].ID == app.ID {
				out[i] = app
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, app)
		}
	}
	return out
}

func mergeRawViews(base, overlay []RawView) []RawView {
	out := append([]RawView(nil), base...)
	for _, view := range overlay {
		replaced := false
		for i := range out {
			if out[i].Name == view.Name {
				out[i] = mergeRawView(out[i], view)
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, view)
		}
	}
	return out
}

func mergeRawView(base, overlay RawView) RawView {
	out := base
	if overlay.X != nil {
		out.X = overlay.X
	}
	if overlay.Y != nil {
		out.Y = overlay.Y
	}
	if overlay.Width != nil {
		out.Width = overlay.Width
	}
	if overlay.Height != nil {
		out.Height = overlay.Height
	}
	return out
}
