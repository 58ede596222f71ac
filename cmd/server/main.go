package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sifan077/linkgate/config"
	appmodel "github.com/sifan077/linkgate/internal/app/model"
	apprepository "github.com/sifan077/linkgate/internal/app/repository"
	appserver "github.com/sifan077/linkgate/internal/app/server"
	appservice "github.com/sifan077/linkgate/internal/app/service"
	"github.com/sifan077/linkgate/internal/http/middleware"
	"github.com/sifan077/linkgate/internal/infra/logger"
	infraNATS "github.com/sifan077/linkgate/internal/infra/nats"
	infraPostgres "github.com/sifan077/linkgate/internal/infra/postgres"
	infraPrometheus "github.com/sifan077/linkgate/internal/infra/prometheus"
	infraRedis "github.com/sifan077/linkgate/internal/infra/redis"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.Must(logger.New(logger.ConfigFromEnv("linkgate")))
	defer func() { _ = logger.Sync(log) }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("addr", cfg.Server.Addr),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.Duration("cache_ttl", cfg.Cache.TTL),
		zap.Duration("cache_negative_ttl", cfg.Cache.NegativeTTL),
		zap.Int("click_buffer_size", cfg.Clicks.BufferSize),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if cfg.Postgres.AutoMigrate {
		if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.Link{}, &appmodel.ClickEvent{}); err != nil {
			log.Fatal("Failed to run database migrations", zap.Error(err))
		}
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()
	log.Info("Connected to Postgres successfully")

	var redisClient *goredis.Client
	if cfg.RateLimit.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		log.Info("Connected to Redis successfully")
	}

	natsConn, js, err := infraNATS.ConnectOptional(cfg.NATS, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	if natsConn != nil {
		defer natsConn.Close()
		log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))
	}

	metrics := infraPrometheus.NewMetrics(prom.DefaultRegisterer)

	linkRepo := apprepository.NewLinkRepository(gormDB)
	clickRepo := apprepository.NewClickEventRepository(pool)

	cache, err := appservice.NewLinkCache(appservice.LinkCacheConfig{
		Size:          cfg.Cache.Size,
		Shards:        cfg.Cache.Shards,
		TTL:           cfg.Cache.TTL,
		NegativeTTL:   cfg.Cache.NegativeTTL,
		LookupTimeout: cfg.Cache.LookupTimeout,
	}, appservice.LinkCacheDeps{
		Lookup:  linkRepo,
		Logger:  log.Named("cache"),
		Metrics: metrics,
	})
	if err != nil {
		log.Fatal("Failed to build link cache", zap.Error(err))
	}

	buffer := appservice.NewClickBuffer(cfg.Clicks.BufferSize, metrics)
	metrics.TrackBufferDepth(prom.DefaultRegisterer, buffer.Len)

	persisterDeps := appservice.ClickPersisterDeps{
		Buffer:  buffer,
		Counter: linkRepo,
		Log:     clickRepo,
		Logger:  log.Named("clicks"),
		Metrics: metrics,
	}
	if js != nil {
		exporter := appservice.NewClickExporter(js)
		if err := exporter.EnsureStream(); err != nil {
			log.Fatal("Failed to prepare click stream", zap.Error(err))
		}
		persisterDeps.Sink = exporter
	}

	persister, err := appservice.NewClickPersister(appservice.ClickPersisterConfig{
		Workers:        cfg.Clicks.Workers,
		BatchSize:      cfg.Clicks.BatchSize,
		FlushInterval:  cfg.Clicks.FlushInterval,
		FlushTimeout:   cfg.Clicks.FlushTimeout,
		MaxRetries:     cfg.Clicks.MaxRetries,
		InitialBackoff: cfg.Clicks.InitialBackoff,
		MaxBackoff:     cfg.Clicks.MaxBackoff,
	}, persisterDeps)
	if err != nil {
		log.Fatal("Failed to build click persister", zap.Error(err))
	}
	persister.Start()

	var listener *appservice.InvalidationListener
	if natsConn != nil {
		listener = appservice.NewInvalidationListener(natsConn, cfg.NATS.InvalidateSubject, cache, log.Named("invalidation"))
		if err := listener.Start(); err != nil {
			log.Fatal("Failed to subscribe to cache invalidations", zap.Error(err))
		}
	}

	var drift *appservice.ClickDriftChecker
	if cfg.Drift.Enabled {
		drift = appservice.NewClickDriftChecker(log.Named("drift"), linkRepo, metrics, appservice.ClickDriftCheckerConfig{
			Interval: cfg.Drift.Interval,
			Lookback: cfg.Drift.Lookback,
			Grace:    cfg.Drift.Grace,
			Limit:    cfg.Drift.Limit,
		})
		drift.Start()
	}

	var promServer *http.Server
	if cfg.Prometheus.Enabled {
		promServer = infraPrometheus.NewServer(cfg.Prometheus, prom.DefaultGatherer)
		go func() {
			log.Info("Starting Prometheus metrics server", zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
	}

	redirects := appservice.NewRedirectService(appservice.RedirectDeps{
		Links:   cache,
		Buffer:  buffer,
		Logger:  log.Named("redirect"),
		Metrics: metrics,
	})

	server := appserver.New(appserver.Dependencies{
		Logger:    log,
		Redirects: redirects,
		Buffer:    buffer,
		Cache:     cache,
		OpsToken:  cfg.Server.OpsToken,
		Redis:     redisClient,
		RateLimit: middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			KeyPrefix:   cfg.RateLimit.KeyPrefix,
		},
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", zap.String("addr", cfg.Server.Addr))
		serverErr <- server.Listen(cfg.Server.Addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			log.Error("Fiber server exited", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting redirects first so no click is published after the buffer closes.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to shut down HTTP server cleanly", zap.Error(err))
	}
	if listener != nil {
		if err := listener.Stop(); err != nil {
			log.Warn("Failed to unsubscribe from cache invalidations", zap.Error(err))
		}
	}
	persister.Stop()
	if drift != nil {
		drift.Stop()
	}
	if promServer != nil {
		if err := promServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn("Failed to close Prometheus server", zap.Error(err))
		}
	}

	log.Info("Shutdown complete")
}
