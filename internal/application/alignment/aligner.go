// Package alignment provides the application-level shape services: volume
// properties, one-shot overlap scoring, multi-start rigid alignment and
// batch screening.  It sits between the HTTP/CLI/worker adapters and the
// Gaussian shape domain model.
package alignment

import (
	"context"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
)

// ResultCache memoizes alignment results.  *redis.ResultCache satisfies it.
type ResultCache interface {
	GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func(ctx context.Context) (interface{}, error)) (bool, error)
}

// MetricsRecorder receives alignment and screening measurements.
// *prometheus.ShapeMetrics satisfies it.
type MetricsRecorder interface {
	ObserveAlignment(strategy, status string, d time.Duration, evaluations int)
	ObserveScore(metric string, score float64)
	ObserveProducts(count int)
	ObserveScreening(succeeded, failed int, d time.Duration)
	TrackScreening() func()
	ObserveCache(cache string, hit bool)
}

// Result is the best pose found for one reference/overlay pair.
type Result struct {
	// Transform maps overlay input coordinates onto the reference.
	Transform shape.Matrix4 `json:"transform"`
	// Pose is Transform as a unit quaternion plus translation.
	Pose        shape.QuaternionTransform `json:"pose"`
	Scores      shape.ScoreSet            `json:"scores"`
	Metric      shape.ScoreMetric         `json:"metric"`
	Score       float64                   `json:"score"`
	Starts      int                       `json:"starts"`
	Evaluations int                       `json:"evaluations"`
	Duration    time.Duration             `json:"duration"`
	Cached      bool                      `json:"-"`
}

// Aligner runs multi-start BFGS over the quaternion alignment objective.  It
// is safe for concurrent use; every call builds its own overlap function.
type Aligner struct {
	opts    Options
	cache   ResultCache
	metrics MetricsRecorder
	logger  logging.Logger
}

// AlignerOption customises an Aligner.
type AlignerOption func(*Aligner)

// WithCache enables result caching.
func WithCache(c ResultCache) AlignerOption {
	return func(a *Aligner) { a.cache = c }
}

// WithMetrics attaches a metrics recorder.
func WithMetrics(m MetricsRecorder) AlignerOption {
	return func(a *Aligner) {
		if m != nil {
			a.metrics = m
		}
	}
}

// NewAligner builds an Aligner from resolved options.
func NewAligner(opts Options, log logging.Logger, options ...AlignerOption) *Aligner {
	if log == nil {
		log = logging.NewNopLogger()
	}
	a := &Aligner{
		opts:    opts,
		metrics: noopMetrics{},
		logger:  log.Named("alignment"),
	}
	for _, o := range options {
		o(a)
	}
	return a
}

// Options returns the resolved options.
func (a *Aligner) Options() Options { return a.opts }

// prepared is a validated shape with its density, principal frame and
// content hash.  It is read-only and shared between goroutines.
type prepared struct {
	shape *shape.Shape
	fn    *shape.ShapeFunction
	axes  *shape.PrincipalAxes
	hash  uint64
}

func (a *Aligner) prepare(s *shape.Shape, opts shape.ProductListOptions) (*prepared, error) {
	if s == nil {
		return nil, errors.New(errors.ErrCodeEmptyShape, "shape is nil")
	}
	fn, err := shape.NewShapeFunctionFor(s, opts)
	if err != nil {
		return nil, err
	}
	a.metrics.ObserveProducts(fn.ProductList().NumProducts())

	p := &prepared{shape: s, fn: fn, hash: hashShape(s)}
	if axes, err := fn.PrincipalAxes(); err == nil {
		p.axes = &axes
	} else {
		a.logger.Debug("principal axes unavailable", logging.String("shape", s.Name), logging.Err(err))
	}
	return p, nil
}

// Align finds the rigid transform of overlay that maximises its Gaussian
// overlap with ref and reports the scores at that pose.
func (a *Aligner) Align(ctx context.Context, ref, overlay *shape.Shape) (*Result, error) {
	r, err := a.prepare(ref, a.opts.Products)
	if err != nil {
		return nil, err
	}
	return a.alignTo(ctx, r, overlay)
}

func (a *Aligner) alignTo(ctx context.Context, ref *prepared, overlay *shape.Shape) (*Result, error) {
	start := time.Now()
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	var (
		res Result
		err error
	)
	if a.cache != nil && overlay != nil {
		key := a.cacheKey(ref.hash, hashShape(overlay))
		var hit bool
		hit, err = a.cache.GetOrLoad(ctx, key, &res, a.opts.CacheTTL, func(ctx context.Context) (interface{}, error) {
			return a.optimize(ctx, ref, overlay)
		})
		a.metrics.ObserveCache("alignment", hit)
		res.Cached = hit
	} else {
		var r *Result
		if r, err = a.optimize(ctx, ref, overlay); err == nil {
			res = *r
		}
	}

	elapsed := time.Since(start)
	if err != nil {
		a.metrics.ObserveAlignment(string(a.opts.Strategy), "failed", elapsed, 0)
		a.logger.Warn("alignment failed",
			logging.String("reference", ref.shape.Name),
			logging.String("overlay", overlayName(overlay)),
			logging.Err(err))
		return nil, err
	}

	status := "success"
	if res.Cached {
		status = "cached"
	}
	a.metrics.ObserveAlignment(string(a.opts.Strategy), status, elapsed, res.Evaluations)
	a.metrics.ObserveScore(string(res.Metric), res.Score)
	a.logger.Debug("alignment finished",
		logging.String("reference", ref.shape.Name),
		logging.String("overlay", overlayName(overlay)),
		logging.Float64("score", res.Score),
		logging.Int("starts", res.Starts),
		logging.Int("evaluations", res.Evaluations),
		logging.Bool("cached", res.Cached),
		logging.Duration("duration", elapsed))
	return &res, nil
}

// optimize runs BFGS from every start pose.  The overlay is moved to its
// centroid first so that quaternion rotations turn it in place; the returned
// transform undoes that shift.
func (a *Aligner) optimize(ctx context.Context, ref *prepared, overlay *shape.Shape) (*Result, error) {
	began := time.Now()
	ovl, err := a.prepare(overlay, a.opts.Products)
	if err != nil {
		return nil, err
	}

	center := ovl.fn.Centroid()
	shift := shape.TranslationMatrix(r3.Scale(-1, center))
	centered, err := shape.NewShapeFunctionFor(overlay.Transform(shift), a.opts.Products)
	if err != nil {
		return nil, err
	}

	fn, err := a.newOverlapFunction(a.opts.Strategy)
	if err != nil {
		return nil, err
	}
	fn.SetShapeFunction(ref.fn, true)
	fn.SetShapeFunction(centered, false)

	af := shape.NewAlignmentFunction(fn)
	af.SetQuatPenaltyFactor(a.opts.QuatPenaltyFactor)
	problem := af.Problem()
	problem.Status = func() (optimize.Status, error) {
		if err := ctx.Err(); err != nil {
			return optimize.Failure, err
		}
		return optimize.NotTerminated, nil
	}
	settings := &optimize.Settings{
		MajorIterations:   a.opts.MaxIterations,
		GradientThreshold: a.opts.GradientThreshold,
	}

	var (
		best      *Result
		evals     int
		attempted int
	)
	for _, x0 := range a.startPoses(ref, ovl, center) {
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		attempted++
		af.ResetStats()

		res, minErr := optimize.Minimize(problem, x0[:], settings, &optimize.BFGS{})
		evals += af.Evaluations()
		if err := af.Err(); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeAlignmentFailed, "alignment objective failed")
		}
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		if res == nil || !finite(res.X) {
			a.logger.Debug("start pose discarded", logging.Int("start", attempted), logging.Err(minErr))
			continue
		}

		var x shape.QuaternionTransform
		copy(x[:], res.X)
		x, err := a.polish(problem, af, x.Normalize(), settings)
		evals += af.Evaluations()
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, contextError(err)
		}
		scores, err := shape.Score(fn, x.Matrix())
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeAlignmentFailed, "scoring failed")
		}
		if v := scores.Value(a.opts.Metric); best == nil || v > best.Score {
			best = &Result{Pose: x, Scores: scores, Score: v}
		}
	}
	if best == nil {
		return nil, errors.New(errors.ErrCodeAlignmentFailed, "no start pose converged")
	}

	best.Transform = best.Pose.Matrix().Mul(shift)
	best.Pose = shape.QuaternionTransformFromMatrix(best.Transform)
	best.Metric = a.opts.Metric
	best.Starts = attempted
	best.Evaluations = evals
	best.Duration = time.Since(began)
	return best, nil
}

// polish re-minimizes from the normalized pose x with the rigid rotation form,
// so the returned pose is the optimum of a rigid overlay rather than of one
// scaled by |q|².  A polish that fails to produce a finite point keeps x.
func (a *Aligner) polish(problem optimize.Problem, af *shape.AlignmentFunction, x shape.QuaternionTransform, settings *optimize.Settings) (shape.QuaternionTransform, error) {
	af.ResetStats()
	af.SetRigid(true)
	defer af.SetRigid(false)

	res, minErr := optimize.Minimize(problem, x[:], settings, &optimize.BFGS{})
	if err := af.Err(); err != nil {
		return x, errors.Wrap(err, errors.ErrCodeAlignmentFailed, "alignment objective failed")
	}
	if res == nil || !finite(res.X) {
		a.logger.Debug("pose polish discarded", logging.Err(minErr))
		return x, nil
	}
	var polished shape.QuaternionTransform
	copy(polished[:], res.X)
	return polished.Normalize(), nil
}

// startPoses returns the initial transforms of the centered overlay.
func (a *Aligner) startPoses(ref, ovl *prepared, center r3.Vec) []shape.QuaternionTransform {
	var poses []shape.QuaternionTransform
	target := ref.fn.Centroid()

	switch {
	case a.opts.StartMode == StartIdentity:
		poses = append(poses, shape.QuaternionTransform{1, 0, 0, 0, center.X, center.Y, center.Z})
	case ref.axes == nil || ovl.axes == nil:
		poses = append(poses, shape.QuaternionTransform{1, 0, 0, 0, target.X, target.Y, target.Z})
	default:
		for _, flip := range axisFlips {
			r := alignAxes(ref.axes.Axes, ovl.axes.Axes, flip)
			poses = append(poses, shape.QuaternionTransformFromMatrix(shape.NewMatrix4(r, target)))
		}
	}

	if a.opts.RandomStarts > 0 {
		rng := rand.New(rand.NewSource(a.opts.Seed))
		for i := 0; i < a.opts.RandomStarts; i++ {
			q := shape.QuaternionTransform{
				rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64(),
				target.X, target.Y, target.Z,
			}
			poses = append(poses, q.Normalize())
		}
	}
	return poses
}

// axisFlips are the sign patterns with determinant +1.
var axisFlips = [4][3]float64{
	{1, 1, 1},
	{1, -1, -1},
	{-1, 1, -1},
	{-1, -1, 1},
}

// alignAxes returns R = Aᵀ·F·B where the rows of A and B are the reference
// and overlay axes, so that R·b_i = f_i·a_i.
func alignAxes(refAxes, ovlAxes [3]r3.Vec, flip [3]float64) [3][3]float64 {
	comp := func(v r3.Vec, j int) float64 {
		switch j {
		case 0:
			return v.X
		case 1:
			return v.Y
		}
		return v.Z
	}
	var r [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				r[i][j] += comp(refAxes[k], i) * flip[k] * comp(ovlAxes[k], j)
			}
		}
	}
	return r
}

func (a *Aligner) newOverlapFunction(s shape.Strategy) (shape.OverlapFunction, error) {
	fn, err := shape.NewOverlapFunction(s)
	if err != nil {
		return nil, err
	}
	if fast, ok := fn.(*shape.FastOverlapFunction); ok {
		fast.SetPolicy(a.opts.Policy)
	}
	return fn, nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout("alignment deadline exceeded").WithCause(err)
	}
	return errors.New(errors.ErrCodeCanceled, "alignment canceled").WithCause(err)
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func overlayName(s *shape.Shape) string {
	if s == nil {
		return ""
	}
	return s.Name
}

type noopMetrics struct{}

func (noopMetrics) ObserveAlignment(string, string, time.Duration, int) {}
func (noopMetrics) ObserveScore(string, float64)                        {}
func (noopMetrics) ObserveProducts(int)                                 {}
func (noopMetrics) ObserveScreening(int, int, time.Duration)            {}
func (noopMetrics) TrackScreening() func()                              { return func() {} }
func (noopMetrics) ObserveCache(string, bool)                           {}
