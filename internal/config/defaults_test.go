package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/keyshape/internal/config"
)

func TestApplyDefaults_EmptyConfig(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)

	assert.Equal(t, config.DefaultOverlapStrategy, cfg.Overlap.Strategy)
	assert.Equal(t, config.DefaultRadiusScale, cfg.Overlap.RadiusScale)
	assert.Equal(t, config.DefaultQuatPenaltyFactor, cfg.Alignment.QuatPenaltyFactor)
	assert.Equal(t, config.DefaultMaxIterations, cfg.Alignment.MaxIterations)
	assert.Equal(t, config.DefaultStartMode, cfg.Alignment.StartMode)
	assert.Equal(t, config.DefaultScreeningConcurrency, cfg.Screening.Concurrency)
	assert.Equal(t, config.DefaultServerPort, cfg.Server.Port)
	assert.False(t, cfg.Server.RateLimit.Enabled)
	assert.Equal(t, 10.0, cfg.Server.RateLimit.RequestsPerSecond)
	assert.Equal(t, 20, cfg.Server.RateLimit.Burst)
	assert.Equal(t, []string{config.DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, config.DefaultKafkaRequestTopic, cfg.Kafka.RequestTopic)
	assert.Equal(t, config.DefaultRedisTTL, cfg.Redis.DefaultTTL)
	assert.Equal(t, config.DefaultDatabasePort, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, config.DefaultLogLevel, cfg.Log.Level)

	// Zero is a legal order bound, so it is not replaced.
	assert.Zero(t, cfg.Shape.MaxOrder)
	assert.False(t, cfg.Overlap.FastExp)
}

func TestApplyDefaults_PreserveExistingValues(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Overlap.Strategy = "exact"
	cfg.Alignment.Timeout = time.Minute
	cfg.Server.Port = 9000
	cfg.Kafka.Brokers = []string{"kafka-0:9092", "kafka-1:9092"}
	config.ApplyDefaults(cfg)

	assert.Equal(t, "exact", cfg.Overlap.Strategy)
	assert.Equal(t, time.Minute, cfg.Alignment.Timeout)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Len(t, cfg.Kafka.Brokers, 2)
}

func TestApplyDefaults_Nil(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { config.ApplyDefaults(nil) })
}

func TestNewDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := config.NewDefaultConfig()
	assert.Equal(t, config.DefaultMaxOrder, cfg.Shape.MaxOrder)
	assert.Equal(t, config.DefaultDistanceCutoff, cfg.Shape.DistanceCutoff)
	assert.True(t, cfg.Overlap.FastExp)
	assert.True(t, cfg.Overlap.Proximity)
	assert.True(t, cfg.Metrics.Enabled)
	assert.NoError(t, cfg.Validate())
}
