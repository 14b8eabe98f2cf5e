package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/courtside/internal/adapters/http/api"
	"github.com/okian/courtside/internal/adapters/http/swagger"
	"github.com/okian/courtside/internal/adapters/publisher"
	"github.com/okian/courtside/internal/adapters/repository"
	"github.com/okian/courtside/internal/adapters/snapshot"
	app "github.com/okian/courtside/internal/app"
	"github.com/okian/courtside/internal/config"
	"github.com/okian/courtside/internal/scheduler"
	"github.com/okian/courtside/pkg/logger"
	"github.com/okian/courtside/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 10 * time.Second
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
)

// Scheduled job names.
const (
	jobSettle     = "settle"
	jobSynthesize = "synthesize"
	jobCalibrate  = "calibrate"
)

func main() {
	batch := flag.Bool("batch", false, "analyse every game in the snapshot file once and exit")
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.WithFormat(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, *batch); err != nil {
		log.Error(ctx, "courtside exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, batch bool) error {
	log := logger.Get()

	svc, err := buildService(ctx, cfg)
	if err != nil {
		return err
	}

	if batch {
		defer func() { _ = svc.Stop(context.Background()) }()
		rep, err := svc.RunBatch(ctx, nil)
		if err != nil {
			return err
		}
		log.Info(ctx, "batch finished",
			logger.Int("games", rep.Games),
			logger.Int("bets", rep.Bets),
			logger.Any("recommendations", rep.Recommendations),
		)
		if len(rep.Failed) > 0 {
			log.Warn(ctx, "batch games failed", logger.Any("games", rep.Failed))
		}
		return nil
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	sched, err := newScheduler(ctx, cfg, svc)
	if err != nil {
		_ = svc.Stop(context.Background())
		return err
	}
	sched.Start()

	go startSystemMetricsUpdater(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newMux(ctx, svc),
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error(ctx, "HTTP server failed", logger.Error(err))
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "scheduler shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// buildService picks the store, publisher and snapshot source from cfg.
func buildService(ctx context.Context, cfg *config.Config) (*app.Service, error) {
	log := logger.Get()
	opts := []app.Option{app.WithLogger(log.Named("service"))}

	if cfg.Store.PostgresDSN != "" {
		store, err := repository.Open(ctx, cfg.Store.PostgresDSN,
			repository.WithTiers(cfg.Tiers),
			repository.WithLogger(log.Named("store")),
		)
		if err != nil {
			return nil, err
		}
		if cfg.Store.Migrate {
			if err := store.Migrate(ctx); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		opts = append(opts, app.WithStore(store))
	}

	if cfg.Publisher.RedisAddr != "" {
		pub, err := publisher.DialRedisStream(ctx, cfg.Publisher.RedisAddr,
			publisher.WithStream(cfg.Publisher.Stream),
			publisher.WithMaxLen(cfg.Publisher.MaxLen),
			publisher.WithLogger(log.Named("publisher")),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithPublisher(pub))
	}

	if cfg.SnapshotPath != "" {
		src, err := snapshot.LoadFile(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithSource(src))
	}

	return app.New(cfg, opts...), nil
}

// newScheduler registers the nightly jobs. Settlement needs a snapshot
// source with results, so it is skipped without one.
func newScheduler(ctx context.Context, cfg *config.Config, svc *app.Service) (*scheduler.Runner, error) {
	r := scheduler.New(ctx, scheduler.WithLogger(logger.Get().Named("scheduler")))

	settleSpec := cfg.Schedule.SettleCron
	if cfg.SnapshotPath == "" {
		settleSpec = ""
	}
	jobs := []struct {
		name, spec string
		job        scheduler.Job
	}{
		{jobSettle, settleSpec, func(ctx context.Context) error {
			_, err := svc.SettleFinished(ctx)
			return err
		}},
		{jobSynthesize, cfg.Schedule.SynthesizeCron, func(ctx context.Context) error {
			_, err := svc.SynthesizeRules(ctx)
			return err
		}},
		{jobCalibrate, cfg.Schedule.CalibrateCron, func(ctx context.Context) error {
			_, err := svc.Calibrate(ctx, true)
			return err
		}},
	}
	for _, j := range jobs {
		if err := r.Add(j.name, j.spec, j.job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newMux(ctx context.Context, svc *app.Service) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(svc, app.APIErrors()).Register(ctx, mux)
	swagger.Register(ctx, mux)
	return mux
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
}
