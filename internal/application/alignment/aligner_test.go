package alignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/testutil"
	"github.com/turtacn/keyshape/pkg/errors"
)

// MockResultCache is a testify mock of ResultCache.
type MockResultCache struct {
	mock.Mock
}

func (m *MockResultCache) GetOrLoad(ctx context.Context, key string, dest interface{}, ttl time.Duration, load func(ctx context.Context) (interface{}, error)) (bool, error) {
	args := m.Called(ctx, key, dest, ttl, load)
	return args.Bool(0), args.Error(1)
}

func testOptions() Options {
	o := DefaultOptions()
	o.Strategy = shape.StrategyExact
	o.Timeout = 0
	return o
}

func assertVecNear(t *testing.T, want, got r3.Vec, tol float64) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol)
	assert.InDelta(t, want.Y, got.Y, tol)
	assert.InDelta(t, want.Z, got.Z, tol)
}

func TestAligner_RecoversRigidMotion(t *testing.T) {
	ref := testutil.Toluenol()
	ovl := testutil.Moved(ref, r3.Vec{X: 0.3, Y: 1, Z: -0.5}, 2.1, r3.Vec{X: 4, Y: -2, Z: 7})

	metrics := testutil.NewMockMetricsRecorder()
	a := NewAligner(testOptions(), testutil.NewMockLogger(), WithMetrics(metrics))

	res, err := a.Align(context.Background(), ref, ovl)
	require.NoError(t, err)

	assert.Greater(t, res.Scores.Tanimoto, 0.999)
	assert.Equal(t, shape.MetricTanimoto, res.Metric)
	assert.Equal(t, res.Scores.Tanimoto, res.Score)
	assert.Equal(t, 4, res.Starts)
	assert.Greater(t, res.Evaluations, res.Starts)
	assert.False(t, res.Cached)

	for i, e := range ovl.Elements {
		assertVecNear(t, ref.Elements[i].Position, res.Transform.Apply(e.Position), 0.1)
	}
	// Pose and Transform describe the same motion.
	assert.InDeltaSlice(t, res.Transform.Flatten(), res.Pose.Matrix().Flatten(), 1e-9)

	metrics.AssertCalled(t, "ObserveAlignment", "exact", "success", mock.Anything, res.Evaluations)
	metrics.AssertCalled(t, "ObserveScore", "tanimoto", res.Score)
}

func TestAligner_IdentityStartKeepsAlignedPose(t *testing.T) {
	opts := testOptions()
	opts.StartMode = StartIdentity
	a := NewAligner(opts, nil)

	ref := testutil.Toluenol()
	res, err := a.Align(context.Background(), ref, ref.Clone())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Starts)
	assert.InDelta(t, 1, res.Scores.Tanimoto, 1e-6)
	assert.InDelta(t, 1, res.Score, 1e-6)
	assert.InDeltaSlice(t, shape.IdentityMatrix().Flatten(), res.Transform.Flatten(), 1e-3)
}

func TestAligner_PrincipalAxesSelfAlignmentIsExact(t *testing.T) {
	ref := testutil.Toluenol()

	res, err := NewAligner(testOptions(), nil).Align(context.Background(), ref, ref.Clone())
	require.NoError(t, err)
	assert.InDelta(t, 1, res.Scores.Tanimoto, 1e-6)
	assert.InDelta(t, 1, res.Pose.QuatNorm2(), 1e-9)
}

func TestAligner_RandomStartsAreReproducible(t *testing.T) {
	opts := testOptions()
	opts.RandomStarts = 3
	opts.Seed = 42

	ref := testutil.Toluenol()
	ovl := testutil.Rod("rod", 4)

	first, err := NewAligner(opts, nil).Align(context.Background(), ref, ovl)
	require.NoError(t, err)
	second, err := NewAligner(opts, nil).Align(context.Background(), ref, ovl)
	require.NoError(t, err)

	assert.Equal(t, 7, first.Starts)
	assert.Equal(t, first.Score, second.Score)
	assert.Equal(t, first.Transform, second.Transform)
}

func TestAligner_InvalidShapes(t *testing.T) {
	a := NewAligner(testOptions(), nil)

	_, err := a.Align(context.Background(), testutil.Toluenol(), shape.NewShape("empty"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyShape))

	bad := shape.NewShape("bad", shape.NewElement(0, 0, 0, -1))
	_, err = a.Align(context.Background(), bad, testutil.Toluenol())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeElement))

	_, err = a.Align(context.Background(), testutil.Toluenol(), nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyShape))
}

func TestAligner_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAligner(testOptions(), nil).Align(ctx, testutil.Toluenol(), testutil.Rod("rod", 3))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))
}

func TestAligner_CacheHit(t *testing.T) {
	cached := Result{Score: 0.42, Metric: shape.MetricTanimoto, Starts: 4, Transform: shape.IdentityMatrix()}

	cache := &MockResultCache{}
	cache.On("GetOrLoad", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) == len("align:")+3*16+2
	}), mock.Anything, DefaultOptions().CacheTTL, mock.Anything).
		Run(func(args mock.Arguments) {
			*args.Get(2).(*Result) = cached
		}).
		Return(true, nil).Once()

	metrics := testutil.NewMockMetricsRecorder()
	a := NewAligner(testOptions(), nil, WithCache(cache), WithMetrics(metrics))

	res, err := a.Align(context.Background(), testutil.Toluenol(), testutil.Rod("rod", 3))
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, 0.42, res.Score)

	cache.AssertExpectations(t)
	metrics.AssertCalled(t, "ObserveCache", "alignment", true)
	metrics.AssertCalled(t, "ObserveAlignment", "exact", "cached", mock.Anything, 0)
}

func TestAligner_CacheMissRunsLoader(t *testing.T) {
	cache := &MockResultCache{}
	cache.On("GetOrLoad", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			load := args.Get(4).(func(context.Context) (interface{}, error))
			v, err := load(args.Get(0).(context.Context))
			require.NoError(t, err)
			*args.Get(2).(*Result) = *v.(*Result)
		}).
		Return(false, nil).Once()

	a := NewAligner(testOptions(), nil, WithCache(cache))
	ref := testutil.Toluenol()
	res, err := a.Align(context.Background(), ref, ref.Clone())
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.InDelta(t, 1, res.Score, 1e-6)
}

func TestAligner_CacheLoaderErrorPropagates(t *testing.T) {
	cache := &MockResultCache{}
	cache.On("GetOrLoad", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New(errors.ErrCodeAlignmentFailed, "boom"))

	logger := testutil.NewMockLogger()
	_, err := NewAligner(testOptions(), logger, WithCache(cache)).
		Align(context.Background(), testutil.Toluenol(), testutil.Rod("rod", 2))
	require.Error(t, err)
	assert.True(t, logger.HasMessage("warn", "alignment failed"))
}

func TestCacheKey(t *testing.T) {
	a := NewAligner(testOptions(), nil)
	ref := testutil.Toluenol()
	renamed := ref.Clone()
	renamed.Name = "other"

	assert.Equal(t, hashShape(ref), hashShape(renamed))
	assert.NotEqual(t, hashShape(ref), hashShape(testutil.Rod("rod", 3)))

	colored := ref.Clone()
	colored.Elements[0].Color = 5
	assert.NotEqual(t, hashShape(ref), hashShape(colored))

	opts := testOptions()
	opts.MaxIterations++
	b := NewAligner(opts, nil)
	assert.NotEqual(t, a.cacheKey(1, 2), b.cacheKey(1, 2))
	assert.Equal(t, a.cacheKey(1, 2), NewAligner(testOptions(), nil).cacheKey(1, 2))
}

func TestAlignAxes(t *testing.T) {
	refAxes := [3]r3.Vec{{X: 1}, {Y: 1}, {Z: 1}}
	ovlAxes := [3]r3.Vec{{Y: 1}, {Z: 1}, {X: 1}}

	for _, flip := range axisFlips {
		r := alignAxes(refAxes, ovlAxes, flip)
		m := shape.NewMatrix4(r, r3.Vec{})
		for i := range ovlAxes {
			assertVecNear(t, r3.Scale(flip[i], refAxes[i]), m.Apply(ovlAxes[i]), 1e-12)
		}
	}
}

func TestOptionsFromConfig_Rejects(t *testing.T) {
	cfg := testutil.Config()
	cfg.Alignment.StartMode = "sideways"
	_, err := OptionsFromConfig(cfg)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeOptions))

	cfg = testutil.Config()
	cfg.Overlap.Strategy = "approximate"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)

	cfg = testutil.Config()
	cfg.Shape.MaxOrder = -1
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}
