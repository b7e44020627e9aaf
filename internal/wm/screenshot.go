package wm

import (
	"context"

	"github.com/1broseidon/surfman/internal/capture"
)

// MakeScreenshot grabs the windows or outputs matched by selector and saves
// them to files named after filename. It reports true only if something
// matched and every grab was saved.
func (m *Manager) MakeScreenshot(ctx context.Context, filename, selector string) (bool, error) {
	sel, err := capture.ParseSelector(selector)
	if err != nil {
		return false, err
	}

	var (
		jobs  []capture.Job
		found bool
	)
	err = m.do(ctx, func() {
		jobs, found = capture.Plan(sel, filename, capture.Scene{
			Outputs:      m.outputs.Outputs(),
			Windows:      m.reg.Windows(),
			Applications: m.resolver.Applications(),
			IsOnOutput:   m.outputs.IsOnOutput,
		})
	})
	if err != nil {
		return false, err
	}
	if !found {
		m.logger.Info("screenshot selector matched nothing", "selector", selector)
		m.metrics.Screenshot(false)
		return false, nil
	}

	runner := &capture.Runner{
		Grabber: m.grabber,
		Timeout: m.ScreenshotTimeout(),
		Logger:  m.logger,
		Metrics: m.metrics,
	}
	ok := runner.Run(ctx, jobs)
	m.metrics.Screenshot(ok)
	m.logger.Info("screenshot taken", "selector", sel.String(), "files", len(jobs), "ok", ok)
	return ok, nil
}
