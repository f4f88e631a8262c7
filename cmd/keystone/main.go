package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cornerstone-erp/keystone/pkg/audit"
	"github.com/cornerstone-erp/keystone/pkg/authz"
	"github.com/cornerstone-erp/keystone/pkg/cache"
	"github.com/cornerstone-erp/keystone/pkg/config"
	"github.com/cornerstone-erp/keystone/pkg/httputil"
	"github.com/cornerstone-erp/keystone/pkg/observability"
	"github.com/cornerstone-erp/keystone/pkg/tenant"
	"github.com/cornerstone-erp/keystone/pkg/tiles"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	httputil.ExposeErrors(cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize tracing")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}
	defer db.Close()

	if err := authz.RunMigrations(ctx, db); err != nil {
		log.WithError(err).Fatal("failed to run migrations")
	}

	store := authz.NewStore(db)
	if err := authz.SeedCatalog(ctx, store); err != nil {
		log.WithError(err).Fatal("failed to seed authorization catalog")
	}

	permCache, redisClient, cleanupCache, err := buildCache(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize permission cache")
	}
	defer cleanupCache()

	var auditLog audit.Logger = audit.NewNopLogger()
	var dbAudit *audit.DBLogger
	if cfg.Audit.Enabled {
		dbAudit, err = audit.NewDBLogger(db, log)
		if err != nil {
			log.WithError(err).Fatal("failed to initialize audit logger")
		}
		auditLog = dbAudit
	}

	cascade := authz.NewCascadeResolver(store, permCache, log)
	overrides := authz.NewOverrideManager(store, permCache, log)
	permissions := authz.NewPermissionService(store, permCache, log)
	sessions := tenant.NewSessionStore(db)
	guard := tenant.NewGuard(sessions, store, log)
	tileService := tiles.NewService(db, log)

	authzHandlers := authz.NewHandlers(store, cascade, overrides, permissions, auditLog, log)
	authHandlers := tenant.NewHandlers(sessions, store, permissions, auditLog, log)
	tileHandlers := tiles.NewHandlers(tileService, permissions, log)

	metrics := observability.NewMetrics(nil)
	health := observability.NewHealthChecker(db, redisClient)

	scheduler := startJobs(ctx, cfg, log, sessions, dbAudit, metrics, db)
	defer scheduler.Stop()

	router := mux.NewRouter()
	router.Use(
		httputil.RecoveryMiddleware(log),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(log),
		httputil.MaxBytesMiddleware(1<<20),
	)
	if cfg.Observability.MetricsEnabled {
		router.Use(metrics.HTTPMiddleware)
	}

	authHandlers.RegisterRoutes(router)

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(guard.Handler)
	authzHandlers.RegisterRoutes(protected)
	tileHandlers.RegisterRoutes(protected)

	serverShutdown := startServers(cfg, log, router, metrics, health)

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	serverShutdown(shutdownCtx)
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.WithError(err).Warn("tracing shutdown failed")
	}
}

func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildCache constructs the configured permission cache backend. The redis
// client is returned separately for the health checker.
func buildCache(cfg *config.Config, log *logrus.Logger) (authz.PermissionCache, *redis.Client, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if cfg.Cache.RedisPassword != "" {
			opts.Password = cfg.Cache.RedisPassword
		}
		opts.DB = cfg.Cache.RedisDB

		redisCache, err := cache.NewRedisCache(opts, cfg.Cache.TTL)
		if err != nil {
			return nil, nil, nil, err
		}
		log.WithField("backend", "redis").Info("permission cache initialized")
		return redisCache, redisCache.Client(), func() { redisCache.Close() }, nil
	default:
		memCache := cache.NewMemoryCache(cache.Options{
			TTL:           cfg.Cache.TTL,
			SweepInterval: cfg.Cache.SweepInterval,
		})
		memCache.Start()
		log.WithField("backend", "memory").Info("permission cache initialized")
		return memCache, nil, memCache.Stop, nil
	}
}

// startJobs schedules session cleanup, audit retention, and pool stats
// collection.
func startJobs(ctx context.Context, cfg *config.Config, log *logrus.Logger, sessions *tenant.SessionStore, dbAudit *audit.DBLogger, metrics *observability.Metrics, db *sql.DB) *cron.Cron {
	scheduler := cron.New()

	scheduler.AddFunc("@hourly", func() {
		if count, err := sessions.DeleteExpired(ctx); err != nil {
			log.WithError(err).Warn("session cleanup failed")
		} else if count > 0 {
			log.WithField("removed", count).Info("expired sessions removed")
		}
	})

	if dbAudit != nil {
		scheduler.AddFunc(cfg.Audit.PruneSchedule, func() {
			cutoff := time.Now().AddDate(0, 0, -cfg.Audit.RetentionDays)
			if _, err := dbAudit.PruneBefore(ctx, cutoff); err != nil {
				log.WithError(err).Warn("audit retention failed")
			}
		})
	}

	scheduler.AddFunc("@every 30s", func() {
		metrics.CollectDBStats(db)
	})

	scheduler.Start()
	return scheduler
}

// startServers launches the API server and the separate health/metrics
// server, returning a function that shuts both down.
func startServers(cfg *config.Config, log *logrus.Logger, router http.Handler, metrics *observability.Metrics, health *observability.HealthChecker) func(context.Context) {
	api := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "keystone"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", health.Liveness)
	healthMux.HandleFunc("/readyz", health.Readiness)
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", metrics.Handler())
	}
	ops := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	go func() {
		log.WithField("addr", api.Addr).Info("api server listening")
		if err := api.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("api server failed")
		}
	}()
	go func() {
		log.WithField("addr", ops.Addr).Info("health server listening")
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("health server failed")
		}
	}()

	return func(ctx context.Context) {
		if err := api.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("api server shutdown failed")
		}
		if err := ops.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("health server shutdown failed")
		}
	}
}
