package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/surfman/internal/metrics"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/surface"
)

// DefaultTimeout bounds a single grab when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Grabber produces images of outputs and surfaces.
type Grabber interface {
	GrabOutput(ctx context.Context, out output.Target) (image.Image, error)
	GrabSurface(ctx context.Context, h surface.Handle) (image.Image, error)
}

// Router dispatches surface grabs by handle origin.
type Router struct {
	InProcess Grabber
	Transport Grabber
	// Outputs grabs whole outputs. Defaults to Transport.
	Outputs Grabber
}

var errNoGrabber = errors.New("no grabber for surface origin")

func (r Router) GrabOutput(ctx context.Context, out output.Target) (image.Image, error) {
	g := r.Outputs
	if g == nil {
		g = r.Transport
	}
	if g == nil {
		return nil, errNoGrabber
	}
	return g.GrabOutput(ctx, out)
}

func (r Router) GrabSurface(ctx context.Context, h surface.Handle) (image.Image, error) {
	var g Grabber
	switch h.Origin {
	case surface.InProcess:
		g = r.InProcess
	case surface.Transport:
		g = r.Transport
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", errNoGrabber, h)
	}
	return g.GrabSurface(ctx, h)
}

// Runner executes grab jobs concurrently.
type Runner struct {
	Grabber Grabber
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Run grabs and saves every job and reports whether all of them succeeded.
// Each grab is bounded by the runner's timeout; a grab that does not finish
// in time counts as a failure.
func (r *Runner) Run(ctx context.Context, jobs []Job) bool {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	var g errgroup.Group
	results := make([]bool, len(jobs))
	for i, job := range jobs {
		g.Go(func() error {
			start := time.Now()
			err := r.runJob(ctx, job, timeout)
			r.Metrics.ObserveGrab(time.Since(start))
			if err != nil {
				logger.Warn("screenshot grab failed",
					"file", job.Filename,
					"handle", job.Handle,
					"output", job.Output.Name,
					"error", err)
				return nil
			}
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	for _, ok := range results {
		if !ok {
			return false
		}
	}
	return true
}

func (r *Runner) runJob(ctx context.Context, job Job, timeout time.Duration) error {
	if r.Grabber == nil {
		return errNoGrabber
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type grabResult struct {
		img image.Image
		err error
	}
	done := make(chan grabResult, 1)
	go func() {
		var res grabResult
		if job.FullOutput() {
			res.img, res.err = r.Grabber.GrabOutput(ctx, job.Output)
		} else {
			res.img, res.err = r.Grabber.GrabSurface(ctx, job.Handle)
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("grab: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("grab: %w", res.err)
		}
		if res.img == nil {
			return errors.New("grab: no image")
		}
		return SaveImage(res.img, job.Filename)
	}
}

// SaveImage writes img to path. The format follows the extension; paths
// without a known image extension are written as PNG.
func SaveImage(img image.Image, path string) error {
	if path == "" {
		return errors.New("save: empty file name")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("save: %w", err)
		}
	}

	if _, err := imaging.FormatFromFilename(path); err == nil {
		if err := imaging.Save(img, path); err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		return nil
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save: %w", err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		return fmt.Errorf("save %s: %w", path, err)
	}
	return f.Close()
}
