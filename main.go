package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	configpkg "regionsim/physics/internal/config"
	"regionsim/physics/internal/console"
	paramrpc "regionsim/physics/internal/grpc"
	httpapi "regionsim/physics/internal/http"
	"regionsim/physics/internal/logging"
	"regionsim/physics/internal/scene"
	"regionsim/physics/internal/simulation"
)

const (
	shutdownTimeout         = 5 * time.Second
	detailRetentionInterval = time.Hour
)

// daemon owns the scene and every surface that drives or inspects it.
type daemon struct {
	cfg      *configpkg.Config
	log      *logging.Logger
	scene    *scene.Scene
	tuned    recordingScene
	snapshot *ParamSnapshotter
	monitor  *simulation.TickMonitor
	loop     *simulation.Loop
	console  *console.Server
	params   *paramrpc.Service
	mux      *http.ServeMux
}

// newDaemon builds and initialises the scene and wires the operational
// surfaces around it without opening any listener.
func newDaemon(cfg *configpkg.Config, logger *logging.Logger, opts ...scene.Option) (*daemon, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.L()
	}
	d := &daemon{cfg: cfg, log: logger, monitor: simulation.NewTickMonitor()}

	//1.- Restore persisted parameter overrides before the scene reads its settings.
	snapshot, err := NewParamSnapshotter(cfg.ParamSnapshotPath, cfg.RegionName, cfg.ParamSnapshotInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("load parameter snapshot: %w", err)
	}
	d.snapshot = snapshot

	d.scene = scene.New(cfg.RegionName, append([]scene.Option{scene.WithLogger(logger)}, opts...)...)
	source := configpkg.Layered{snapshot.Source(), configpkg.EnvSource{Prefix: configpkg.DefaultEnvPrefix}}
	if err := d.scene.Initialize(nil, source); err != nil {
		_ = snapshot.Close()
		return nil, fmt.Errorf("initialise scene: %w", err)
	}
	d.tuned = recordingScene{Scene: d.scene, snapshot: snapshot}

	if err := populateDemo(d.scene, cfg.DemoObjects, logger); err != nil {
		d.close()
		return nil, err
	}

	//2.- The loop drives Simulate at the external frame rate.
	d.loop = simulation.NewLoop(cfg.StepHz, func(dt time.Duration) float64 {
		return d.scene.Simulate(dt.Seconds())
	}, d.monitor)

	//3.- Operational HTTP endpoints and the operator console share one mux.
	authenticator := console.NewAnonymousAuthenticator()
	if cfg.ConsoleSecret != "" {
		authenticator, err = console.NewHMACAuthenticator(cfg.ConsoleSecret, cfg.RegionName)
		if err != nil {
			d.close()
			return nil, fmt.Errorf("console authenticator: %w", err)
		}
	}
	d.console = console.NewServer(d.tuned, console.Options{
		Logger:        logger,
		Authenticator: authenticator,
		TuneInterval:  cfg.ConsoleTuneInterval,
	})

	d.mux = http.NewServeMux()
	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger.With(logging.String("component", "http")),
		Scene:       d.tuned,
		Ticks:       d.monitor.Snapshot,
		DetailStats: d.scene.DetailStats,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(cfg.DumpWindow, cfg.DumpBurst, nil),
	})
	handlers.Register(d.mux)
	d.mux.Handle("/console", d.console)
	registerConsoleDocEndpoint(d.mux)

	d.params = paramrpc.NewService(d.tuned, paramrpc.WithLogger(logger.With(logging.String("component", "grpc"))))
	return d, nil
}

// close releases everything in reverse order of construction.
func (d *daemon) close() {
	if d.console != nil {
		d.console.Close()
	}
	if err := d.snapshot.Close(); err != nil {
		d.log.Warn("parameter snapshot close failed", logging.Error(err))
	}
	d.scene.Dispose()
}

// run serves until ctx ends, then shuts every surface down.
func (d *daemon) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errCh := make(chan error, 2)

	httpServer := &http.Server{Addr: d.cfg.HTTPAddr, Handler: d.mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	d.log.Info("http listening",
		logging.String("url", listenerURL("http", d.cfg.HTTPAddr, "")),
		logging.String("console", listenerURL("ws", d.cfg.HTTPAddr, "/console")),
	)

	var grpcServer *grpc.Server
	if d.cfg.GRPCAddr != "" {
		opts, err := configureGRPCSecurity(d.cfg, d.log)
		if err != nil {
			return err
		}
		listener, err := net.Listen("tcp", d.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcServer = grpc.NewServer(opts...)
		d.params.Register(grpcServer)
		go d.params.RunHealthUpdater(ctx)
		go func() {
			if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("grpc server: %w", err)
			}
		}()
		d.log.Info("grpc listening",
			logging.String("url", listenerURL("grpc", d.cfg.GRPCAddr, "")),
			logging.Bool("snappy", encoding.GetCompressor(paramrpc.SnappyName) != nil),
		)
	}

	go d.scene.DetailRetention().Run(ctx, detailRetentionInterval)
	d.loop.Start(ctx)
	d.log.Info("physics loop started",
		logging.String("region", d.cfg.RegionName),
		logging.String("engine", d.scene.EngineName()),
		logging.Duration("frame", d.loop.StepDuration()),
	)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		d.log.Error("server failed", logging.Error(runErr))
	}

	//1.- Stop stepping first so no frame races the teardown.
	d.loop.Stop()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		d.log.Warn("http shutdown failed", logging.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	d.close()
	return runErr
}

func main() {
	cfg, err := configpkg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging error: %v\n", err)
		os.Exit(2)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	d, err := newDaemon(cfg, logger)
	if err != nil {
		logger.Error("startup failed", logging.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := d.run(ctx); err != nil {
		logger.Error("daemon stopped with error", logging.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("daemon stopped")
}
