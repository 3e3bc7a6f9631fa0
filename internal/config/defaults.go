package config

import (
	"time"

	"github.com/spf13/viper"
)

// ─────────────────────────────────────────────────────────────────────────────
// Default value constants
// ─────────────────────────────────────────────────────────────────────────────

const (
	DefaultMaxOrder       = 6
	DefaultDistanceCutoff = -0.3

	DefaultOverlapStrategy = "fast"
	DefaultRadiusScale     = 1.3

	DefaultQuatPenaltyFactor = 1000.0
	DefaultMaxIterations     = 200
	DefaultGradientThreshold = 1e-6
	DefaultStartMode         = "principal_axes"
	DefaultScoreMetric       = "tanimoto"
	DefaultAlignmentTimeout  = 30 * time.Second

	DefaultScreeningConcurrency = 8
	DefaultScreeningTopN        = 50
	DefaultScreeningMaxBatch    = 10000

	DefaultServerPort = 8080
	DefaultServerMode = "release"

	DefaultRedisAddr = "localhost:6379"
	DefaultRedisTTL  = 24 * time.Hour

	DefaultDatabaseHost = "localhost"
	DefaultDatabasePort = 5432
	DefaultDatabaseName = "keyshape"

	DefaultStorageEndpoint = "localhost:9000"
	DefaultStorageBucket   = "keyshape-results"
	DefaultInlineHits      = 100

	DefaultKafkaBroker       = "localhost:9092"
	DefaultKafkaGroupID      = "keyshape-worker"
	DefaultKafkaRequestTopic = "shape.screening.requests"
	DefaultKafkaResultTopic  = "shape.screening.results"
	DefaultKafkaDLQTopic     = "shape.screening.requests.dlq"

	DefaultWorkerConcurrency = 4

	DefaultMetricsNamespace = "keyshape"
	DefaultMetricsPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// NewDefaultConfig returns a Config populated entirely with defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{
		Shape: ShapeConfig{MaxOrder: DefaultMaxOrder, DistanceCutoff: DefaultDistanceCutoff},
		Overlap: OverlapConfig{
			FastExp:   true,
			Proximity: true,
		},
		Database: DatabaseConfig{AutoMigrate: true},
		Metrics:  MetricsConfig{Enabled: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-value fields in cfg.  Fields whose zero value is a
// legal setting (shape.max_order, shape.distance_cutoff, booleans) are left
// untouched; those defaults are registered with viper by setViperDefaults.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Overlap ───────────────────────────────────────────────────────────────
	if cfg.Overlap.Strategy == "" {
		cfg.Overlap.Strategy = DefaultOverlapStrategy
	}
	if cfg.Overlap.RadiusScale == 0 {
		cfg.Overlap.RadiusScale = DefaultRadiusScale
	}

	// ── Alignment ─────────────────────────────────────────────────────────────
	if cfg.Alignment.QuatPenaltyFactor == 0 {
		cfg.Alignment.QuatPenaltyFactor = DefaultQuatPenaltyFactor
	}
	if cfg.Alignment.MaxIterations == 0 {
		cfg.Alignment.MaxIterations = DefaultMaxIterations
	}
	if cfg.Alignment.GradientThreshold == 0 {
		cfg.Alignment.GradientThreshold = DefaultGradientThreshold
	}
	if cfg.Alignment.StartMode == "" {
		cfg.Alignment.StartMode = DefaultStartMode
	}
	if cfg.Alignment.ScoreMetric == "" {
		cfg.Alignment.ScoreMetric = DefaultScoreMetric
	}
	if cfg.Alignment.Timeout == 0 {
		cfg.Alignment.Timeout = DefaultAlignmentTimeout
	}

	// ── Screening ─────────────────────────────────────────────────────────────
	if cfg.Screening.Concurrency == 0 {
		cfg.Screening.Concurrency = DefaultScreeningConcurrency
	}
	if cfg.Screening.TopN == 0 {
		cfg.Screening.TopN = DefaultScreeningTopN
	}
	if cfg.Screening.MaxBatch == 0 {
		cfg.Screening.MaxBatch = DefaultScreeningMaxBatch
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = 16 << 20
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 15 * time.Second
	}

	if cfg.Server.RateLimit.RequestsPerSecond == 0 {
		cfg.Server.RateLimit.RequestsPerSecond = 10
	}
	if cfg.Server.RateLimit.Burst == 0 {
		cfg.Server.RateLimit.Burst = 20
	}
	if cfg.Server.Auth.JWKSRefreshInterval == 0 {
		cfg.Server.Auth.JWKSRefreshInterval = 15 * time.Minute
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = DefaultRedisTTL
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = "keyshape:"
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDatabaseHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDatabasePort
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = DefaultDatabaseName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = 30 * time.Second
	}

	// ── Storage ───────────────────────────────────────────────────────────────
	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = DefaultStorageEndpoint
	}
	if cfg.Storage.Region == "" {
		cfg.Storage.Region = "us-east-1"
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = DefaultStorageBucket
	}
	if cfg.Storage.Prefix == "" {
		cfg.Storage.Prefix = "screening"
	}
	if cfg.Storage.PresignExpiry == 0 {
		cfg.Storage.PresignExpiry = 24 * time.Hour
	}
	if cfg.Storage.InlineHits == 0 {
		cfg.Storage.InlineHits = DefaultInlineHits
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.RequestTopic == "" {
		cfg.Kafka.RequestTopic = DefaultKafkaRequestTopic
	}
	if cfg.Kafka.ResultTopic == "" {
		cfg.Kafka.ResultTopic = DefaultKafkaResultTopic
	}
	if cfg.Kafka.DLQTopic == "" {
		cfg.Kafka.DLQTopic = DefaultKafkaDLQTopic
	}
	if cfg.Kafka.MaxRetries == 0 {
		cfg.Kafka.MaxRetries = 3
	}
	if cfg.Kafka.RetryBackoff == 0 {
		cfg.Kafka.RetryBackoff = time.Second
	}
	if cfg.Kafka.BatchTimeout == 0 {
		cfg.Kafka.BatchTimeout = 10 * time.Millisecond
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.JobTimeout == 0 {
		cfg.Worker.JobTimeout = 5 * time.Minute
	}

	// ── Metrics ───────────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
}

// setViperDefaults registers defaults whose zero value is meaningful, so that
// an absent key and an explicit zero can be told apart, and so that
// environment-only loading sees every key.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("shape.max_order", DefaultMaxOrder)
	v.SetDefault("shape.distance_cutoff", DefaultDistanceCutoff)
	v.SetDefault("overlap.strategy", DefaultOverlapStrategy)
	v.SetDefault("overlap.fast_exp", true)
	v.SetDefault("overlap.proximity", true)
	v.SetDefault("overlap.radius_scale", DefaultRadiusScale)
	v.SetDefault("alignment.quat_penalty_factor", DefaultQuatPenaltyFactor)
	v.SetDefault("alignment.max_iterations", DefaultMaxIterations)
	v.SetDefault("alignment.start_mode", DefaultStartMode)
	v.SetDefault("alignment.random_starts", 0)
	v.SetDefault("alignment.seed", 1)
	v.SetDefault("alignment.score_metric", DefaultScoreMetric)
	v.SetDefault("screening.concurrency", DefaultScreeningConcurrency)
	v.SetDefault("screening.top_n", DefaultScreeningTopN)
	v.SetDefault("screening.min_score", 0.0)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.mode", DefaultServerMode)
	v.SetDefault("server.auth.enabled", false)
	v.SetDefault("server.rate_limit.enabled", false)
	v.SetDefault("server.auth.jwks_refresh_interval", "15m")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", DefaultDatabaseHost)
	v.SetDefault("database.port", DefaultDatabasePort)
	v.SetDefault("database.name", DefaultDatabaseName)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.endpoint", DefaultStorageEndpoint)
	v.SetDefault("storage.bucket", DefaultStorageBucket)
	v.SetDefault("kafka.brokers", []string{DefaultKafkaBroker})
	v.SetDefault("kafka.group_id", DefaultKafkaGroupID)
	v.SetDefault("worker.concurrency", DefaultWorkerConcurrency)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}
