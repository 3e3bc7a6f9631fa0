package alignment

import (
	"time"

	"github.com/turtacn/keyshape/internal/config"
	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/pkg/errors"
)

// StartMode selects how starting poses are generated.
type StartMode string

const (
	// StartPrincipalAxes maps the overlay's principal axes onto the
	// reference's, trying the four proper axis-flip variants.
	StartPrincipalAxes StartMode = "principal_axes"
	// StartIdentity starts from the overlay's input pose.
	StartIdentity StartMode = "identity"
)

// Options is the resolved, typed form of the shape/overlap/alignment/
// screening configuration sections.
type Options struct {
	Products shape.ProductListOptions
	Strategy shape.Strategy
	Policy   shape.EvaluationPolicy

	QuatPenaltyFactor float64
	MaxIterations     int
	GradientThreshold float64
	StartMode         StartMode
	RandomStarts      int
	Seed              int64
	Metric            shape.ScoreMetric
	Timeout           time.Duration
	CacheTTL          time.Duration

	Concurrency int
	TopN        int
	MinScore    float64
	MaxBatch    int
}

// DefaultOptions resolves the built-in configuration defaults.
func DefaultOptions() Options {
	opts, err := OptionsFromConfig(config.NewDefaultConfig())
	if err != nil {
		panic(err)
	}
	return opts
}

// OptionsFromConfig converts cfg into Options, rejecting unknown strategy,
// start-mode and metric names.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	strategy, err := shape.ParseStrategy(cfg.Overlap.Strategy)
	if err != nil {
		return Options{}, err
	}
	metric, err := shape.ParseScoreMetric(cfg.Alignment.ScoreMetric)
	if err != nil {
		return Options{}, err
	}
	mode := StartMode(cfg.Alignment.StartMode)
	if mode != StartPrincipalAxes && mode != StartIdentity {
		return Options{}, errors.Newf(errors.ErrCodeInvalidShapeOptions, "unknown start mode %q", cfg.Alignment.StartMode)
	}

	opts := Options{
		Products: shape.ProductListOptions{
			MaxOrder:       cfg.Shape.MaxOrder,
			DistanceCutoff: cfg.Shape.DistanceCutoff,
		},
		Strategy: strategy,
		Policy: shape.EvaluationPolicy{
			FastExp:     cfg.Overlap.FastExp,
			Proximity:   cfg.Overlap.Proximity,
			RadiusScale: cfg.Overlap.RadiusScale,
		},
		QuatPenaltyFactor: cfg.Alignment.QuatPenaltyFactor,
		MaxIterations:     cfg.Alignment.MaxIterations,
		GradientThreshold: cfg.Alignment.GradientThreshold,
		StartMode:         mode,
		RandomStarts:      cfg.Alignment.RandomStarts,
		Seed:              cfg.Alignment.Seed,
		Metric:            metric,
		Timeout:           cfg.Alignment.Timeout,
		CacheTTL:          cfg.Redis.DefaultTTL,
		Concurrency:       cfg.Screening.Concurrency,
		TopN:              cfg.Screening.TopN,
		MinScore:          cfg.Screening.MinScore,
		MaxBatch:          cfg.Screening.MaxBatch,
	}
	if err := opts.Products.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}
