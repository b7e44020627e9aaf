package capture

import (
	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/surface"
)

// Job is one grab to perform. A zero Handle grabs the whole output.
type Job struct {
	Handle      surface.Handle
	Output      output.Target
	OutputIndex int
	Filename    string
}

// FullOutput reports whether the job grabs an output instead of a surface.
func (j Job) FullOutput() bool {
	return j.Handle.IsZero()
}

// Scene is the state a plan is computed from.
type Scene struct {
	Outputs      []output.Target
	Windows      []*surface.Window
	Applications []*appreg.Application
	IsOnOutput   func(w *surface.Window, out output.Target) bool
}

// Plan turns a selector into grab jobs. found reports whether anything
// matched at all.
func Plan(sel Selector, pattern string, scene Scene) (jobs []Job, found bool) {
	if sel.FullOutput() {
		for i, out := range scene.Outputs {
			if !sel.MatchesOutput(i) {
				continue
			}
			jobs = append(jobs, Job{
				Output:      out,
				OutputIndex: i,
				Filename:    SubstituteFilename(pattern, i, ""),
			})
		}
		return jobs, len(jobs) > 0
	}

	var apps []*appreg.Application
	for _, app := range scene.Applications {
		if app.IsAlias() {
			continue
		}
		if sel.AppID == "" || sel.AppID == app.ID() {
			apps = append(apps, app)
		}
	}

	for _, w := range scene.Windows {
		if w.IsDestroyed() || !containsApp(apps, w.App) {
			continue
		}
		if sel.HasAttribute() && w.Properties.String(sel.AttributeKey) != sel.AttributeValue {
			continue
		}
		for i, out := range scene.Outputs {
			if !sel.MatchesOutput(i) {
				continue
			}
			if scene.IsOnOutput == nil || !scene.IsOnOutput(w, out) {
				continue
			}
			jobs = append(jobs, Job{
				Handle:      w.Handle,
				Output:      out,
				OutputIndex: i,
				Filename:    SubstituteFilename(pattern, i, w.ApplicationID()),
			})
		}
	}
	return jobs, len(jobs) > 0
}

func containsApp(apps []*appreg.Application, app *appreg.Application) bool {
	for _, a := range apps {
		if a.Same(app) {
			return true
		}
	}
	return false
}
