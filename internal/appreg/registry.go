package appreg

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
)

// ErrUnknownApplication is returned when an application id is not
// configured.
var ErrUnknownApplication = errors.New("unknown application")

// maxParentDepth bounds the process-tree walk during resolution.
const maxParentDepth = 16

// Resolver maps process ids to application identities.
type Resolver interface {
	ResolveByProcessID(pid int) *Application
	Applications() []*Application
	SecurityChecksEnabled() bool
}

// Definition describes one configured application.
type Definition struct {
	ID          string
	Aliases     []string
	Executables []string
}

// Options configures a Registry.
type Options struct {
	Applications   []Definition
	SecurityChecks bool
	Processes      ProcessTable
	Logger         *slog.Logger
}

// Registry is the process-level application registry. It is safe for
// concurrent use.
type Registry struct {
	mu       sync.RWMutex
	apps     []*Application
	byID     map[string]*Application
	byExe    map[string]*Application
	attached map[int]*Application
	security bool

	procs  ProcessTable
	logger *slog.Logger
}

var _ Resolver = (*Registry)(nil)

// NewRegistry builds a registry from opts.
func NewRegistry(opts Options) (*Registry, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	procs := opts.Processes
	if procs == nil {
		procs = SystemProcesses{}
	}

	r := &Registry{
		attached: make(map[int]*Application),
		procs:    procs,
		logger:   logger,
	}
	if err := r.Reload(opts.Applications, opts.SecurityChecks); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload replaces the application definitions and the security flag.
// Attachments to applications that still exist are kept, and identities
// whose definition did not change keep their *Application.
func (r *Registry) Reload(defs []Definition, securityChecks bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	apps, byID, byExe, err := buildIndex(defs, r.byID)
	if err != nil {
		return err
	}

	for pid, app := range r.attached {
		next, ok := byID[app.ID()]
		if !ok {
			r.logger.Info("dropping attachment to removed application", "pid", pid, "app_id", app.ID())
			delete(r.attached, pid)
			continue
		}
		r.attached[pid] = next
	}

	r.apps = apps
	r.byID = byID
	r.byExe = byExe
	r.security = securityChecks
	return nil
}

func buildIndex(defs []Definition, prev map[string]*Application) ([]*Application, map[string]*Application, map[string]*Application, error) {
	var apps []*Application
	byID := make(map[string]*Application)
	byExe := make(map[string]*Application)

	for i, def := range defs {
		if def.ID == "" {
			return nil, nil, nil, fmt.Errorf("applications[%d]: id is required", i)
		}
		if _, dup := byID[def.ID]; dup {
			return nil, nil, nil, fmt.Errorf("applications[%d]: duplicate id %q", i, def.ID)
		}
		app := prev[def.ID]
		if app == nil || app.IsAlias() {
			app = New(def.ID)
		}
		apps = append(apps, app)
		byID[def.ID] = app

		for _, aliasID := range def.Aliases {
			if _, dup := byID[aliasID]; dup {
				return nil, nil, nil, fmt.Errorf("applications[%d]: duplicate id %q", i, aliasID)
			}
			alias := prev[aliasID]
			if alias == nil || alias.NonAliased() != app {
				alias = NewAlias(aliasID, app)
			}
			apps = append(apps, alias)
			byID[aliasID] = alias
		}
		for _, exe := range def.Executables {
			byExe[filepath.Base(exe)] = app
		}
	}
	return apps, byID, byExe, nil
}

// Lookup returns the application or alias with the given id.
func (r *Registry) Lookup(id string) *Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id]
}

// Applications returns every known identity, aliases included, in
// definition order.
func (r *Registry) Applications() []*Application {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Application, len(r.apps))
	copy(out, r.apps)
	return out
}

// SecurityChecksEnabled reports whether surfaces from unknown processes
// must be rejected.
func (r *Registry) SecurityChecksEnabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.security
}

// Attach binds pid to the application with the given id, the way a launcher
// records a process it started.
func (r *Registry) Attach(appID string, pid int) (*Application, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("invalid pid %d", pid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	app, ok := r.byID[appID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownApplication, appID)
	}
	r.attached[pid] = app
	r.logger.Debug("process attached", "pid", pid, "app_id", appID)
	return app, nil
}

// Detach removes the attachment for pid. It reports whether one existed.
func (r *Registry) Detach(pid int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.attached[pid]; !ok {
		return false
	}
	delete(r.attached, pid)
	return true
}

// Attachments returns a copy of the pid to application id bindings.
func (r *Registry) Attachments() map[int]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[int]string, len(r.attached))
	for pid, app := range r.attached {
		out[pid] = app.ID()
	}
	return out
}

// Prune drops attachments whose process no longer exists and returns the
// removed pids in ascending order.
func (r *Registry) Prune() []int {
	r.mu.RLock()
	pids := make([]int, 0, len(r.attached))
	for pid := range r.attached {
		pids = append(pids, pid)
	}
	r.mu.RUnlock()

	var dead []int
	for _, pid := range pids {
		alive, err := r.procs.Exists(pid)
		if err != nil {
			r.logger.Debug("process liveness check failed", "pid", pid, "error", err)
			continue
		}
		if !alive {
			dead = append(dead, pid)
		}
	}
	if len(dead) == 0 {
		return nil
	}

	r.mu.Lock()
	for _, pid := range dead {
		delete(r.attached, pid)
	}
	r.mu.Unlock()

	sort.Ints(dead)
	return dead
}

// ResolveByProcessID returns the application owning pid. Explicit
// attachments win; otherwise the process and its ancestors are matched
// against configured executables. Unknown processes resolve to nil.
func (r *Registry) ResolveByProcessID(pid int) *Application {
	if pid <= 0 {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	current := pid
	for depth := 0; depth < maxParentDepth && current > 1; depth++ {
		if app, ok := r.attached[current]; ok {
			return app
		}
		if len(r.byExe) > 0 {
			if exe, err := r.procs.Executable(current); err == nil {
				if app, ok := r.byExe[filepath.Base(exe)]; ok {
					return app
				}
			}
		}

		parent, err := r.procs.Parent(current)
		if err != nil {
			r.logger.Debug("parent lookup failed", "pid", current, "error", err)
			return nil
		}
		if parent == current {
			return nil
		}
		current = parent
	}
	return nil
}
