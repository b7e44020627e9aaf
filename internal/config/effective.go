package config

import (
	"fmt"
	"sort"
	"time"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// BuildEffectiveConfig applies raw on top of DefaultConfig.
func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	if raw.LogLevel != nil {
		cfg.LogLevel = *raw.LogLevel
	}
	if raw.ForceSingleProcess != nil {
		cfg.ForceSingleProcess = *raw.ForceSingleProcess
	}
	if raw.SecurityChecks != nil {
		cfg.SecurityChecks = *raw.SecurityChecks
	}
	if raw.Display != nil {
		cfg.Display = *raw.Display
	}
	if raw.MetricsAddr != nil {
		cfg.MetricsAddr = *raw.MetricsAddr
	}
	if raw.Watchdog != nil {
		cfg.Watchdog = *raw.Watchdog
	}

	durations := []struct {
		path string
		raw  *string
		dst  *time.Duration
	}{
		{"screenshot_timeout", raw.ScreenshotTimeout, &cfg.ScreenshotTimeout},
		{"closing_warn_after", raw.ClosingWarnAfter, &cfg.ClosingWarnAfter},
		{"reconcile_interval", raw.ReconcileInterval, &cfg.ReconcileInterval},
	}
	for _, d := range durations {
		if d.raw == nil {
			continue
		}
		v, err := time.ParseDuration(*d.raw)
		if err != nil {
			return nil, &ValidationError{Path: d.path, Err: fmt.Errorf("invalid duration %q: %w", *d.raw, err)}
		}
		*d.dst = v
	}

	if raw.Views != nil {
		cfg.Views = make([]View, 0, len(raw.Views))
		for _, v := range raw.Views {
			cfg.Views = append(cfg.Views, View{
				Name:   v.Name,
				X:      derefInt(v.X, 0),
				Y:      derefInt(v.Y, 0),
				Width:  derefInt(v.Width, 0),
				Height: derefInt(v.Height, 0),
			})
		}
	}

	if raw.Applications != nil {
		cfg.Applications = make([]Application, 0, len(raw.Applications))
		for _, app := range raw.Applications {
			cfg.Applications = append(cfg.Applications, Application{
				ID:          app.ID,
				Aliases:     append([]string(nil), app.Aliases...),
				Executables: append([]string(nil), app.Executables...),
			})
		}
	}

	return cfg, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
