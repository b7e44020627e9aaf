package config

import (
	"fmt"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	log_level
//	force_single_process
//	security_checks
//	screenshot_timeout
//	views
//	views.<name>
//	applications
//	applications.<id>
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	// Exact-path file source wins, then the enclosing list.
	if src, ok := res.Sources[path]; ok {
		return value, src, nil
	}
	if head, _, found := strings.Cut(path, "."); found {
		if src, ok := res.Sources[head]; ok {
			return value, src, nil
		}
	}

	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

func lookupValue(cfg *Config, path string) (any, error) {
	head, rest, nested := strings.Cut(path, ".")

	scalars := map[string]any{
		"log_level":            cfg.LogLevel,
		"force_single_process": cfg.ForceSingleProcess,
		"security_checks":      cfg.SecurityChecks,
		"display":              cfg.Display,
		"screenshot_timeout":   cfg.ScreenshotTimeout.String(),
		"closing_warn_after":   cfg.ClosingWarnAfter.String(),
		"reconcile_interval":   cfg.ReconcileInterval.String(),
		"metrics_addr":         cfg.MetricsAddr,
		"watchdog":             cfg.Watchdog,
	}
	if v, ok := scalars[head]; ok {
		if nested {
			return nil, fmt.Errorf("unknown path: %s", path)
		}
		return v, nil
	}

	switch head {
	case "views":
		if !nested {
			return cfg.Views, nil
		}
		for _, v := range cfg.Views {
			if v.Name == rest {
				return v, nil
			}
		}
		return nil, fmt.Errorf("unknown view: %s", rest)
	case "applications":
		if !nested {
			return cfg.Applications, nil
		}
		for _, app := range cfg.Applications {
			if app.ID == rest {
				return app, nil
			}
		}
		return nil, fmt.Errorf("unknown application: %s", rest)
	}

	known := append(sortedKeys(scalars), "applications", "views")
	return nil, fmt.Errorf("unknown path: %s (known: %s)", path, strings.Join(known, ", "))
}
