package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/1broseidon/surfman/internal/appreg"
	"github.com/1broseidon/surfman/internal/capture"
	"github.com/1broseidon/surfman/internal/config"
	"github.com/1broseidon/surfman/internal/daemon"
	"github.com/1broseidon/surfman/internal/inprocess"
	"github.com/1broseidon/surfman/internal/ipc"
	"github.com/1broseidon/surfman/internal/metrics"
	"github.com/1broseidon/surfman/internal/output"
	"github.com/1broseidon/surfman/internal/surface"
	"github.com/1broseidon/surfman/internal/wm"
	"github.com/1broseidon/surfman/internal/x11"
)

// managerPoster forwards transport events to the manager once it exists.
// The transport and the manager refer to each other.
type managerPoster struct {
	m *wm.Manager
}

func (p *managerPoster) Post(ctx context.Context, ev wm.Event) error {
	return p.m.Post(ctx, ev)
}

func runDaemon(args []string) int {
	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stdout, "Usage: surfman daemon")
		return 0
	}
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: surfman daemon")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	m := metrics.New()

	apps, err := appreg.NewRegistry(appreg.Options{
		Applications:   cfg.AppDefinitions(),
		SecurityChecks: cfg.SecurityChecks,
		Logger:         logger.With("component", "appreg"),
	})
	if err != nil {
		log.Fatalf("Failed to build application registry: %v", err)
	}

	// Display transport, unless forced off or no display is reachable.
	var (
		conn *x11.Connection
		xt   *x11.Transport
	)
	poster := &managerPoster{}
	if !cfg.ForceSingleProcess {
		display, xauth, err := x11.ResolveDisplay(cfg.Display)
		switch {
		case errors.Is(err, x11.ErrNoDisplay):
			logger.Warn("no X display found, running single-process", "error", err)
		case err != nil:
			log.Fatalf("Failed to resolve display: %v", err)
		default:
			if xauth != "" {
				os.Setenv("XAUTHORITY", xauth)
			}
			conn, err = x11.NewConnection(display)
			if err != nil {
				log.Fatalf("Failed to connect to display: %v", err)
			}
			defer conn.Close()
			xt = x11.NewTransport(conn, poster, logger.With("component", "x11"))
			logger.Info("connected to display", "display", display)
		}
	}
	singleProcess := xt == nil

	scene := inprocess.NewScene(logger.With("component", "inprocess"))

	binder := output.NewBinder(output.Options{
		ForceSingleProcess: singleProcess,
		Locator:            scene,
		Factory: func() (output.Compositor, error) {
			if xt == nil {
				return nil, errors.New("no display transport")
			}
			return xt, nil
		},
		Logger: logger.With("component", "output"),
	})

	router := capture.Router{InProcess: scene}
	mode := surface.InProcess.String()
	if singleProcess {
		router.Outputs = scene
	} else {
		router.Transport = xt
		mode = surface.Transport.String()
	}

	opts := wm.Options{
		Resolver:          apps,
		Outputs:           binder,
		Grabber:           router,
		ScreenshotTimeout: cfg.ScreenshotTimeout,
		Metrics:           m,
		Logger:            logger.With("component", "wm"),
	}
	if xt != nil {
		opts.Transport = xt
	}
	manager := wm.New(opts)
	poster.m = manager

	if err := registerOutputs(manager, scene, conn, cfg); err != nil {
		log.Fatalf("Failed to register outputs: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	defer manager.Listen(scene.Apply)()

	g.Go(func() error { return manager.Run(gctx) })
	if xt != nil {
		g.Go(func() error {
			if err := xt.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("x11 transport: %w", err)
			}
			return nil
		})
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		g.Go(func() error {
			logger.Info("metrics listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	syncer := daemon.NewStateSynchronizer(manager, appreg.SystemProcesses{}, logger.With("component", "sync"))
	reconciler := daemon.NewReconciler(daemon.ReconcilerConfig{
		Interval:         cfg.ReconcileInterval,
		ClosingWarnAfter: cfg.ClosingWarnAfter,
		Logger:           logger.With("component", "reconciler"),
	}, apps, manager, syncer)
	g.Go(func() error {
		reconciler.Run(gctx)
		return nil
	})

	reload := func() (*config.Config, error) {
		next, err := config.Load()
		if err != nil {
			return nil, err
		}
		if err := apps.Reload(next.AppDefinitions(), next.SecurityChecks); err != nil {
			return nil, err
		}
		level.Set(next.SlogLevel())
		manager.SetScreenshotTimeout(next.ScreenshotTimeout)
		reconciler.SetClosingWarnAfter(next.ClosingWarnAfter)
		if next.ForceSingleProcess != cfg.ForceSingleProcess || next.Display != cfg.Display {
			logger.Warn("display settings changed; restart the daemon to apply")
		}
		return next, nil
	}

	ipcServer, err := ipc.NewServer(ipc.ServerOptions{
		Mode:    mode,
		Config:  cfg,
		Windows: manager,
		Apps:    apps,
		Outputs: binder,
		Reload:  reload,
		Metrics: m,
		Logger:  logger.With("component", "ipc"),
	})
	if err != nil {
		log.Fatalf("Failed to create IPC server: %v", err)
	}
	if err := ipcServer.Start(gctx); err != nil {
		log.Fatalf("Failed to start IPC server: %v", err)
	}
	defer ipcServer.Stop()

	logger.Info("surfman daemon started", "mode", mode, "outputs", len(binder.Outputs()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	go func() {
		for {
			select {
			case <-gctx.Done():
				return
			case sig := <-sigCh:
				if sig != syscall.SIGHUP {
					logger.Info("shutting down surfman daemon", "signal", sig.String())
					cancel()
					return
				}
				logger.Info("received SIGHUP, reloading config")
				next, err := reload()
				if err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				ipcServer.UpdateConfig(next)
				logger.Info("config reloaded")
			}
		}
	}()

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("daemon stopped", "error", err)
		return 1
	}
	return 0
}

// registerOutputs makes every output known to the binder and the in-process
// scene. With a display connection the monitors are used; otherwise the
// configured views are.
func registerOutputs(manager *wm.Manager, scene *inprocess.Scene, conn *x11.Connection, cfg *config.Config) error {
	var targets []output.Target
	if conn != nil {
		outs, err := conn.Outputs()
		if err != nil {
			return err
		}
		targets = outs
	} else {
		for _, v := range cfg.Views {
			targets = append(targets, output.Target{
				Name:   v.Name,
				X:      v.X,
				Y:      v.Y,
				Width:  v.Width,
				Height: v.Height,
			})
		}
	}

	for _, t := range targets {
		scene.AddOutput(t)
		if err := manager.RegisterCompositorView(t); err != nil {
			return fmt.Errorf("register output %s: %w", t.Name, err)
		}
	}
	return nil
}
