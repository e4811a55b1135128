package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	flag "github.com/spf13/pflag"

	"github.com/foospulse/foospulse/internal/api"
	"github.com/foospulse/foospulse/internal/auth"
	"github.com/foospulse/foospulse/internal/broadcast"
	"github.com/foospulse/foospulse/internal/config"
	"github.com/foospulse/foospulse/internal/jobs"
	"github.com/foospulse/foospulse/internal/live"
	"github.com/foospulse/foospulse/internal/logging"
	"github.com/foospulse/foospulse/internal/metrics"
	"github.com/foospulse/foospulse/internal/rating"
	"github.com/foospulse/foospulse/internal/stats"
	"github.com/foospulse/foospulse/internal/storage"
)

// runtime is everything serve and worker share: storage, broker, queue
// and the engines the workers drive
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *storage.Store
	recorder *metrics.Recorder
	nc       *nats.Conn
	queue    *jobs.JetStreamQueue
	relay    *jobs.Relay
	ratings  *rating.Engine
	stats    *stats.Engine
	closers  []func()
}

func startRuntime(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *runtime, err error) {
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	recorder, metricsHandler, shutdownMetrics, err := metrics.Setup(ctx, metrics.TelemetryConfig{
		Enabled:      cfg.Metrics.Enabled,
		ServiceName:  cfg.Metrics.ServiceName,
		OtlpEndpoint: cfg.Metrics.OTLPEndpoint,
		OtlpInsecure: cfg.Metrics.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("metrics setup: %w", err)
	}
	rt.recorder = recorder
	rt.closers = append(rt.closers, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownMetrics(sctx)
	})
	if metricsHandler != nil {
		rt.serveMetrics(metricsHandler)
	}

	store, err := storage.New(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	rt.store = store
	rt.closers = append(rt.closers, func() { store.Close() })
	logger.Info("database initialized", "path", cfg.Database.Path)

	url := cfg.Queue.NATSURL
	if cfg.Queue.Embedded && url == "" {
		ns, err := jobs.StartEmbedded(cfg.Queue.StoreDir, server.RANDOM_PORT)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() {
			ns.Shutdown()
			ns.WaitForShutdown()
		})
		url = ns.ClientURL()
		logger.Info("embedded nats started", "url", url, "store_dir", cfg.Queue.StoreDir)
	}

	nc, err := nats.Connect(url, nats.Name("foospulse"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	rt.nc = nc
	rt.closers = append(rt.closers, nc.Close)

	queue, err := jobs.NewJetStreamQueue(ctx, nc, jobs.JetStreamConfig{Stream: cfg.Queue.Stream}, logger)
	if err != nil {
		return nil, err
	}
	rt.queue = queue
	rt.relay = jobs.NewRelay(store, queue, logger)

	params := rating.Params{K: cfg.Rating.KFactor, Base: cfg.Rating.BaseRating, MaxMargin: cfg.Rating.MaxMargin}
	rt.ratings = rating.NewEngine(store, params, logger)
	rt.stats = stats.NewEngine(store, params, logger)
	return rt, nil
}

// serveMetrics exposes the Prometheus handler on its own listener
func (rt *runtime) serveMetrics(handler http.Handler) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", handler)
	srv := &http.Server{Addr: rt.cfg.Metrics.ListenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		rt.logger.Info("metrics listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(rt.logger, "metrics server failed", err)
		}
	}()
	rt.closers = append(rt.closers, func() { srv.Close() })
}

// startWorkers runs the worker pool until ctx is done. The returned channel
// closes once every in-flight job has returned.
func (rt *runtime) startWorkers(ctx context.Context) <-chan struct{} {
	pool := jobs.NewPool(jobs.PoolConfig{
		Workers:        rt.cfg.Queue.Workers,
		MaxAttempts:    rt.cfg.Queue.MaxAttempts,
		InitialBackoff: rt.cfg.Queue.InitialBackoff,
		MaxBackoff:     rt.cfg.Queue.MaxBackoff,
	}, jobs.NewHandlers(rt.ratings, rt.stats), rt.store, rt.logger, rt.recorder)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pool.Run(ctx, rt.queue); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error(rt.logger, "worker pool stopped", err)
		}
	}()
	return done
}

// startScheduler flushes the outbox once and then keeps the relay and the
// stats reconciler on their intervals
func (rt *runtime) startScheduler(ctx context.Context) (*jobs.Scheduler, error) {
	if n, err := rt.relay.Flush(ctx); err != nil {
		logging.Warn(rt.logger, "startup outbox flush failed", "error", err)
	} else if n > 0 {
		rt.logger.Info("outbox relayed at startup", logging.FieldCount, n)
	}

	scheduler, err := jobs.NewScheduler(ctx, jobs.SchedulerConfig{
		RelayInterval:     rt.cfg.Outbox.RelayInterval,
		ReconcileInterval: rt.cfg.Stats.ReconcileInterval,
	}, rt.relay, jobs.NewReconciler(rt.store, rt.relay, rt.logger), rt.logger)
	if err != nil {
		return nil, err
	}
	scheduler.Start()
	return scheduler, nil
}

// Close releases resources in reverse order of acquisition
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// cmdServe starts the HTTP server together with workers and the relay
func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := configFlag(fs)
	noWorkers := fs.Bool("no-workers", false, "serve HTTP without running job workers")
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := newLogger(cfg)
	logger.Info("foospulse starting")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := startRuntime(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "startup failed", err)
	}
	defer rt.Close()

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("no JWT secret configured, auth tokens use an empty secret")
	}
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)

	hub := broadcast.NewHub(broadcast.HubOptions{
		Buffer:            cfg.Live.SubscriberBuffer,
		HeartbeatInterval: cfg.Live.HeartbeatInterval,
		Logger:            logger,
		Metrics:           rt.recorder,
	})
	bridge, err := broadcast.NewNATSBridge(rt.nc, hub, logger)
	if err != nil {
		fatal(logger, "live bridge failed", err)
	}
	defer bridge.Close()
	go hub.Run(ctx)

	router := api.NewRouter(api.Deps{
		Store:        rt.store,
		Live:         live.NewEngine(rt.store, bridge, rt.relay, logger),
		Ratings:      rt.ratings,
		Stats:        rt.stats,
		Relay:        rt.relay,
		Hub:          hub,
		Auth:         authService,
		Logger:       logger,
		Metrics:      rt.recorder,
		StaticDir:    cfg.Server.StaticDir,
		PingInterval: cfg.Live.HeartbeatInterval,
	})
	if cfg.Server.StaticDir != "" {
		logger.Info("serving static files", "dir", cfg.Server.StaticDir)
	}

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workersDone := make(<-chan struct{})
	if !*noWorkers {
		workersDone = rt.startWorkers(workerCtx)
	}
	scheduler, err := rt.startScheduler(workerCtx)
	if err != nil {
		fatal(logger, "scheduler failed", err)
	}

	// no WriteTimeout: websocket and SSE responses stay open
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			fatal(logger, "HTTP server failed", err)
		}
	}

	// Sequential shutdown
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		logging.Warn(logger, "HTTP server shutdown", "error", err)
	}
	if err := scheduler.Shutdown(); err != nil {
		logging.Warn(logger, "scheduler shutdown", "error", err)
	}
	stopWorkers()
	if !*noWorkers {
		<-workersDone
	}
	logger.Info("shutdown complete")
}

// cmdWorker runs workers and the relay without the HTTP surface. It needs a
// shared broker, so an embedded one is refused.
func cmdWorker(args []string) {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := configFlag(fs)
	fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := newLogger(cfg)
	if cfg.Queue.NATSURL == "" {
		fatal(logger, "worker startup failed", errors.New("queue.nats_url is required for a standalone worker"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := startRuntime(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "startup failed", err)
	}
	defer rt.Close()

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	workersDone := rt.startWorkers(workerCtx)
	scheduler, err := rt.startScheduler(workerCtx)
	if err != nil {
		fatal(logger, "scheduler failed", err)
	}

	<-ctx.Done()
	logger.Info("shutdown signal received")
	if err := scheduler.Shutdown(); err != nil {
		logging.Warn(logger, "scheduler shutdown", "error", err)
	}
	stopWorkers()
	<-workersDone
	logger.Info("shutdown complete")
}
