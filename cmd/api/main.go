package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"docvault/internal/cache"
	"docvault/internal/config"
	"docvault/internal/database"
	"docvault/internal/database/migration"
	handlers "docvault/internal/http/handler"
	"docvault/internal/http/middleware"
	"docvault/internal/logging"
	"docvault/internal/metrics"
	"docvault/internal/otel"
	"docvault/internal/repository/postgres"
	"docvault/internal/service"
	"docvault/internal/storage"
)

// @title Document Vault API
// @version 1.0
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	log := logging.New(os.Stdout, cfg.LogLevel, loc)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	db, err := database.NewPostgres(ctx, cfg.Database, cfg.Storage.ConnectTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, log, cfg.Database.Host); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	storageMetrics, err := metrics.NewStorage(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register storage metrics")
	}

	local, err := storage.NewLocalDir(cfg.Storage.LocalRoot)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize local storage")
	}
	remote := newRemote(cfg, log, storageMetrics)

	urlCache, closeCache := newURLCache(cfg.Redis, log)
	defer closeCache()

	opts := service.OptionsFromConfig(cfg.Storage)
	opts.URLCache = urlCache
	opts.Logger = &log
	opts.Metrics = storageMetrics

	docRepo := postgres.NewDocumentPostgres(db)
	docSvc := service.NewDocumentService(docRepo, local, remote, opts)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
		// Multipart framing on top of the largest accepted file.
		BodyLimit:             int(cfg.Storage.MaxUploadSize) + 1<<20,
		DisableStartupMessage: true,
	})

	promMiddleware, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register http metrics")
	}

	app.Use(otelfiber.Middleware(otelfiber.WithServerName(otel.ServiceName)))
	// RequestID tags the span started above, so it must come after otelfiber.
	app.Use(middleware.RequestID())
	app.Use(middleware.Logger(log))
	app.Use(promMiddleware.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, docSvc)

	go reconcileLoop(ctx, docSvc, cfg.Storage.ReconcileInterval, log)

	go func() {
		<-ctx.Done()
		log.Info().Str("event", "shutdown").Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Str("event", "shutdown_failed").Msg("server shutdown failed")
		}
	}()

	addr := ":" + cfg.Port
	log.Info().Str("event", "listening").Str("addr", addr).Msg("server started")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}

// newRemote returns nil when the remote store is disabled or unusable, in
// which case every upload lands on local disk.
func newRemote(cfg *config.AppConfig, log zerolog.Logger, m *metrics.Storage) storage.Backend {
	if !cfg.Storage.Remote.Enabled {
		log.Info().Str("event", "remote_storage_disabled").Msg("remote storage disabled")
		return nil
	}
	factory, err := storage.NewClientFactory(cfg.Storage.Remote, cfg.Storage.ConnectTimeout)
	if err != nil {
		log.Warn().Err(err).Str("event", "remote_storage_unconfigured").Msg("remote storage unavailable, using local only")
		return nil
	}
	remote, err := storage.NewRemote(cfg.Storage.Remote.Region, factory, storage.RemoteOptions{
		Retry:            cfg.Storage.Retry,
		OperationTimeout: cfg.Storage.OperationTimeout,
		HealthRecheck:    cfg.Storage.HealthRecheck,
		Logger:           &log,
		Metrics:          m,
	})
	if err != nil {
		log.Warn().Err(err).Str("event", "remote_storage_unconfigured").Msg("remote storage unavailable, using local only")
		return nil
	}
	return remote
}

func newURLCache(cfg config.RedisConfig, log zerolog.Logger) (cache.Cache[service.PresignEntry], func()) {
	if cfg.Addr == "" {
		c := cache.NewMemory[service.PresignEntry](cache.WithMaxEntries(10000))
		return c, func() { _ = c.Close() }
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	log.Info().Str("event", "url_cache").Str("addr", cfg.Addr).Msg("using redis for presigned urls")
	return cache.NewRedis[service.PresignEntry](client, cfg.Prefix), func() { _ = client.Close() }
}

func reconcileLoop(ctx context.Context, docSvc service.DocumentService, every time.Duration, log zerolog.Logger) {
	if every <= 0 {
		return
	}
	run := func() {
		report, err := docSvc.Reconcile(ctx)
		if err != nil {
			log.Error().Err(err).Str("event", "reconcile_failed").Msg("reconciliation sweep failed")
			return
		}
		if report.Scanned > 0 {
			log.Info().Str("event", "reconcile").
				Int("scanned", report.Scanned).
				Int("deleted", report.Deleted).
				Int("object_missing", report.ObjectMissing).
				Int("failed", report.Failed).
				Msg("reconciliation sweep finished")
		}
	}

	run()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			run()
		}
	}
}
