// Package config defines the configuration structures for keyshape.  No I/O
// lives here, only plain data types and validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ShapeConfig controls Gaussian product generation.
type ShapeConfig struct {
	// MaxOrder caps product factor count; 0 is unbounded, 1 keeps primitives.
	MaxOrder       int     `mapstructure:"max_order"`
	DistanceCutoff float64 `mapstructure:"distance_cutoff"`
}

// OverlapConfig selects and tunes the overlap evaluator.
type OverlapConfig struct {
	Strategy    string  `mapstructure:"strategy"` // "exact" | "fast"
	FastExp     bool    `mapstructure:"fast_exp"`
	Proximity   bool    `mapstructure:"proximity"`
	RadiusScale float64 `mapstructure:"radius_scale"`
}

// AlignmentConfig tunes the optimizer driving shape alignment.
type AlignmentConfig struct {
	QuatPenaltyFactor float64       `mapstructure:"quat_penalty_factor"`
	MaxIterations     int           `mapstructure:"max_iterations"`
	GradientThreshold float64       `mapstructure:"gradient_threshold"`
	StartMode         string        `mapstructure:"start_mode"` // "principal_axes" | "identity"
	RandomStarts      int           `mapstructure:"random_starts"`
	Seed              int64         `mapstructure:"seed"`
	ScoreMetric       string        `mapstructure:"score_metric"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// ScreeningConfig controls batch screening against one reference.
type ScreeningConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	TopN        int     `mapstructure:"top_n"`
	MinScore    float64 `mapstructure:"min_score"`
	MaxBatch    int     `mapstructure:"max_batch"`
}

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// CORSAllowedOrigins enables CORS for the listed origins; empty disables it.
	CORSAllowedOrigins []string `mapstructure:"cors_allowed_origins"`

	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig throttles /api/v1 per token subject, or per client IP for
// anonymous callers.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// AuthConfig enables bearer token authentication on /api/v1.  Tokens are
// verified with HMACSecret (HS256) or with keys fetched from JWKSURL (RS256).
type AuthConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	Issuer              string        `mapstructure:"issuer"`
	Audience            string        `mapstructure:"audience"`
	HMACSecret          string        `mapstructure:"hmac_secret"`
	JWKSURL             string        `mapstructure:"jwks_url"`
	JWKSRefreshInterval time.Duration `mapstructure:"jwks_refresh_interval"`
	// DefaultRoles are granted to tokens that carry no roles.
	DefaultRoles []string `mapstructure:"default_roles"`
}

// RedisConfig holds Redis connection parameters for the result cache.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// DatabaseConfig holds PostgreSQL parameters for the shape library store.
type DatabaseConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Name             string        `mapstructure:"name"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// StorageConfig holds S3-compatible object storage parameters for the
// screening result archive.
type StorageConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	UseSSL          bool          `mapstructure:"use_ssl"`
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry"`
	// InlineHits caps the hits repeated in the result event once the full
	// result is archived.
	InlineHits int `mapstructure:"inline_hits"`
}

// KafkaConfig holds producer/consumer parameters for screening jobs.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	GroupID      string        `mapstructure:"group_id"`
	RequestTopic string        `mapstructure:"request_topic"`
	ResultTopic  string        `mapstructure:"result_topic"`
	DLQTopic     string        `mapstructure:"dlq_topic"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "console"
	Output string `mapstructure:"output"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure.
type Config struct {
	Shape     ShapeConfig     `mapstructure:"shape"`
	Overlap   OverlapConfig   `mapstructure:"overlap"`
	Alignment AlignmentConfig `mapstructure:"alignment"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Server    ServerConfig    `mapstructure:"server"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Log       LogConfig       `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config and
// returns the first problem found.
func (c *Config) Validate() error {
	// Shape
	if c.Shape.MaxOrder < 0 {
		return fmt.Errorf("config: shape.max_order must be ≥ 0, got %d", c.Shape.MaxOrder)
	}

	// Overlap
	switch c.Overlap.Strategy {
	case "exact", "fast":
	default:
		return fmt.Errorf("config: overlap.strategy %q is invalid; expected exact|fast", c.Overlap.Strategy)
	}
	if c.Overlap.RadiusScale <= 0 {
		return fmt.Errorf("config: overlap.radius_scale must be > 0, got %g", c.Overlap.RadiusScale)
	}

	// Alignment
	if c.Alignment.QuatPenaltyFactor < 0 {
		return fmt.Errorf("config: alignment.quat_penalty_factor must be ≥ 0, got %g", c.Alignment.QuatPenaltyFactor)
	}
	if c.Alignment.MaxIterations < 1 {
		return fmt.Errorf("config: alignment.max_iterations must be ≥ 1, got %d", c.Alignment.MaxIterations)
	}
	switch c.Alignment.StartMode {
	case "principal_axes", "identity":
	default:
		return fmt.Errorf("config: alignment.start_mode %q is invalid; expected principal_axes|identity", c.Alignment.StartMode)
	}
	if c.Alignment.RandomStarts < 0 {
		return fmt.Errorf("config: alignment.random_starts must be ≥ 0, got %d", c.Alignment.RandomStarts)
	}
	switch c.Alignment.ScoreMetric {
	case "tanimoto", "tversky_ref", "shape_tanimoto", "combo":
	default:
		return fmt.Errorf("config: alignment.score_metric %q is invalid", c.Alignment.ScoreMetric)
	}

	// Screening
	if c.Screening.Concurrency < 1 {
		return fmt.Errorf("config: screening.concurrency must be ≥ 1, got %d", c.Screening.Concurrency)
	}
	if c.Screening.TopN < 0 {
		return fmt.Errorf("config: screening.top_n must be ≥ 0, got %d", c.Screening.TopN)
	}

	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if a := c.Server.Auth; a.Enabled {
		if a.HMACSecret == "" && a.JWKSURL == "" {
			return fmt.Errorf("config: server.auth requires hmac_secret or jwks_url when enabled")
		}
		if a.HMACSecret != "" && a.JWKSURL != "" {
			return fmt.Errorf("config: server.auth.hmac_secret and server.auth.jwks_url are mutually exclusive")
		}
	}

	if rl := c.Server.RateLimit; rl.Enabled && (rl.RequestsPerSecond <= 0 || rl.Burst < 1) {
		return fmt.Errorf("config: server.rate_limit needs requests_per_second > 0 and burst ≥ 1")
	}

	// Redis
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be ≥ 0, got %d", c.Redis.DB)
	}

	// Database
	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.Name == "" {
			return fmt.Errorf("config: database.host and database.name are required when the database is enabled")
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
		}
	}

	// Storage
	if c.Storage.Enabled {
		if c.Storage.Endpoint == "" || c.Storage.Bucket == "" {
			return fmt.Errorf("config: storage.endpoint and storage.bucket are required when storage is enabled")
		}
		if c.Storage.InlineHits < 1 {
			return fmt.Errorf("config: storage.inline_hits must be ≥ 1, got %d", c.Storage.InlineHits)
		}
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be ≥ 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
