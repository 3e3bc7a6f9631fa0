package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/application/library"
	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/infrastructure/database/postgres"
	"github.com/turtacn/keyshape/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/keyshape/internal/infrastructure/database/redis"
	"github.com/turtacn/keyshape/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/keyshape/internal/infrastructure/storage/minio"
	httpserver "github.com/turtacn/keyshape/internal/interfaces/http"
	"github.com/turtacn/keyshape/internal/interfaces/http/handlers"
	"github.com/turtacn/keyshape/internal/interfaces/http/middleware"
	"github.com/turtacn/keyshape/internal/interfaces/worker"
)

const defaultHealthPort = 8081

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to configuration file (default: KEYSHAPE_* env and defaults)")
	consumers := flag.Int("consumers", 0, "number of consumer instances (overrides worker.concurrency)")
	healthPort := flag.Int("health-port", defaultHealthPort, "port for /healthz, /readyz and /metrics")
	flag.Parse()

	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *consumers > 0 {
		cfg.Worker.Concurrency = *consumers
	}

	logger, err := logging.NewLogger(logging.FromConfig(cfg.Log))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, *healthPort, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, healthPort int, logger logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("starting keyshape screening worker",
		logging.String("version", version),
		logging.String("request_topic", cfg.Kafka.RequestTopic),
		logging.String("result_topic", cfg.Kafka.ResultTopic),
		logging.Int("consumers", cfg.Worker.Concurrency))

	alignOpts, err := alignment.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}

	var alignerOpts []alignment.AlignerOption
	workerOpts := []worker.Option{worker.WithJobTimeout(cfg.Worker.JobTimeout)}
	routerCfg := httpserver.RouterConfig{Logger: logger, Logging: middleware.DefaultLoggingConfig()}
	checks := []handlers.HealthChecker{
		handlers.NewHealthCheck("kafka", func(ctx context.Context) error {
			return kafka.PingBrokers(ctx, cfg.Kafka.Brokers)
		}),
	}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			Subsystem:            "worker",
			EnableProcessMetrics: true,
			EnableGoMetrics:      true,
		}, logger)
		if err != nil {
			return err
		}
		m := prometheus.NewShapeMetrics(collector)
		alignerOpts = append(alignerOpts, alignment.WithMetrics(m))
		workerOpts = append(workerOpts, worker.WithMetrics(m))
		routerCfg.Metrics = m
		routerCfg.MetricsHandler = collector.Handler()
		routerCfg.MetricsPath = cfg.Metrics.Path
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

	producer, err := kafka.NewProducer(cfg.Kafka, logger.Named("producer"))
	if err != nil {
		return err
	}
	defer producer.Close()

	svc := alignment.NewService(alignment.NewAligner(alignOpts, logger, alignerOpts...), logger)

	// The API server owns migrations; the worker only reads libraries.
	if cfg.Database.Enabled {
		conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer conn.Close()
		repo := repositories.NewLibraryRepository(conn, logger)
		workerOpts = append(workerOpts, worker.WithLibraries(library.NewService(repo, svc, logger)))
		checks = append(checks, handlers.NewHealthCheck("postgres", conn.HealthCheck))
	}
	if cfg.Storage.Enabled {
		store, err := minio.NewClient(ctx, cfg.Storage, logger)
		if err != nil {
			return err
		}
		archive := minio.NewResultArchive(store, cfg.Storage.Prefix)
		workerOpts = append(workerOpts, worker.WithArchive(archive, cfg.Storage.InlineHits))
		checks = append(checks, handlers.NewHealthCheck("object_storage", store.HealthCheck))
	}
	screening := worker.NewScreeningWorker(svc, producer, cfg.Kafka.ResultTopic, logger, workerOpts...)

	n := cfg.Worker.Concurrency
	if n < 1 {
		n = 1
	}
	consumers := make([]*kafka.Consumer, 0, n)
	defer func() {
		for _, c := range consumers {
			if err := c.Close(); err != nil {
				logger.Warn("consumer close failed", logging.Err(err))
			}
		}
	}()
	for i := 0; i < n; i++ {
		c, err := kafka.NewConsumer(cfg.Kafka, []string{cfg.Kafka.RequestTopic}, producer,
			logger.Named("consumer").With(logging.Int("consumer", i)))
		if err != nil {
			return err
		}
		c.Subscribe(cfg.Kafka.RequestTopic, screening.Handle)
		if err := c.Start(ctx); err != nil {
			return err
		}
		consumers = append(consumers, c)
	}

	gin.SetMode(gin.ReleaseMode)
	routerCfg.HealthHandler = handlers.NewHealthHandler(version, checks...)
	healthSrv := httpserver.NewServer(config.ServerConfig{
		Port:            healthPort,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, httpserver.NewRouter(routerCfg), logger)

	errCh := make(chan error, 1)
	go func() { errCh <- healthSrv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down screening worker")
	return healthSrv.Stop(context.Background())
}
