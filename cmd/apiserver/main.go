package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/application/library"
	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/auth"
	"github.com/turtacn/keyshape/internal/infrastructure/database/postgres"
	"github.com/turtacn/keyshape/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/keyshape/internal/infrastructure/database/redis"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/prometheus"
	httpserver "github.com/turtacn/keyshape/internal/interfaces/http"
	"github.com/turtacn/keyshape/internal/interfaces/http/handlers"
	"github.com/turtacn/keyshape/internal/interfaces/http/middleware"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: KEYSHAPE_* env and defaults)")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logger, err := logging.NewLogger(logging.FromConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *configPath, logger); err != nil {
		logger.Error("api server exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.Server.Mode)
	logger.Info("starting keyshape API server",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port))

	alignOpts, err := alignment.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	var (
		alignerOpts    []alignment.AlignerOption
		checks         []handlers.HealthChecker
		httpMetrics    middleware.HTTPMetrics
		metricsHandler http.Handler
	)

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return err
		}
		m := prometheus.NewShapeMetrics(collector)
		alignerOpts = append(alignerOpts, alignment.WithMetrics(m))
		httpMetrics = m
		metricsHandler = collector.Handler()
	}

	if cfg.Redis.Enabled {
		client, err := redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer client.Close()
		cache := redis.NewResultCache(client, logger,
			redis.WithPrefix(cfg.Redis.KeyPrefix),
			redis.WithDefaultTTL(cfg.Redis.DefaultTTL))
		alignerOpts = append(alignerOpts, alignment.WithCache(cache))
		checks = append(checks, handlers.NewHealthCheck("redis", client.Ping))
	}

	svc := alignment.NewService(alignment.NewAligner(alignOpts, logger, alignerOpts...), logger)

	var libraryHandler *handlers.LibraryHandler
	if cfg.Database.Enabled {
		conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		if cfg.Database.AutoMigrate {
			if err := conn.RunMigrations(ctx); err != nil {
				return err
			}
		}
		repo := repositories.NewLibraryRepository(conn, logger)
		libraryHandler = handlers.NewLibraryHandler(library.NewService(repo, svc, logger), logger)
		checks = append(checks, handlers.NewHealthCheck("postgres", conn.HealthCheck))
	}

	routerCfg := httpserver.RouterConfig{
		ShapeHandler:   handlers.NewShapeHandler(svc, logger),
		LibraryHandler: libraryHandler,
		HealthHandler:  handlers.NewHealthHandler(version, checks...),
		Logging:        middleware.DefaultLoggingConfig(),
		MaxBodySize:    cfg.Server.MaxBodySize,
		Logger:         logger,
		Metrics:        httpMetrics,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
	}
	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		cors := middleware.DefaultCORSConfig()
		cors.AllowedOrigins = cfg.Server.CORSAllowedOrigins
		cors.AllowWildcard = true
		routerCfg.CORS = &cors
	}
	if rl := cfg.Server.RateLimit; rl.Enabled {
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = rl.RequestsPerSecond
		limits.Burst = rl.Burst
		routerCfg.RateLimit = &limits
	}
	if cfg.Server.Auth.Enabled {
		verifier, err := auth.NewVerifier(cfg.Server.Auth, logger)
		if err != nil {
			return err
		}
		routerCfg.Auth = &httpserver.AuthConfig{Verifier: verifier, Enforcer: auth.NewEnforcer(nil)}
		logger.Info("bearer token authentication enabled",
			logging.String("issuer", cfg.Server.Auth.Issuer),
			logging.Bool("jwks", cfg.Server.Auth.JWKSURL != ""))
	}
	srv := httpserver.NewServer(cfg.Server, httpserver.NewRouter(routerCfg), logger)

	if configPath != "" {
		err := config.Watch(configPath, func(c *config.Config) {
			logging.SetLevel(c.Log.Level)
			logger.Info("configuration reloaded", logging.String("log_level", logging.CurrentLevel()))
		}, func(err error) {
			logger.Warn("ignoring invalid configuration change", logging.Err(err))
		})
		if err != nil {
			logger.Warn("config hot reload disabled", logging.Err(err))
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	return srv.Stop(context.Background())
}
