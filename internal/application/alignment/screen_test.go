package alignment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/testutil"
	"github.com/turtacn/keyshape/pkg/errors"
)

func screeningLibrary() []*shape.Shape {
	ref := testutil.Toluenol()
	return []*shape.Shape{
		testutil.Rod("rod", 3),
		testutil.Moved(ref, r3.Vec{Z: 1}, 1.2, r3.Vec{X: 3}),
		shape.NewShape("empty"),
		testutil.Rod("long-rod", 6),
	}
}

func TestScreen_RanksAndCollectsFailures(t *testing.T) {
	opts := testOptions()
	opts.Concurrency = 2
	metrics := testutil.NewMockMetricsRecorder()
	a := NewAligner(opts, testutil.NewMockLogger(), WithMetrics(metrics))

	res, err := a.Screen(context.Background(), testutil.Toluenol(), screeningLibrary(), ScreenOptions{})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Screened)
	require.Len(t, res.Hits, 3)
	assert.Equal(t, 1, res.Hits[0].Index)
	assert.Equal(t, "toluenol-moved", res.Hits[0].Name)
	assert.Greater(t, res.Hits[0].Result.Score, 0.99)
	for i := 1; i < len(res.Hits); i++ {
		assert.GreaterOrEqual(t, res.Hits[i-1].Result.Score, res.Hits[i].Result.Score)
	}

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Index)
	assert.True(t, errors.IsCode(res.Failures[0].Err, errors.ErrCodeEmptyShape))

	metrics.AssertCalled(t, "TrackScreening")
	metrics.AssertCalled(t, "ObserveScreening", 3, 1, mock.Anything)
}

func TestScreen_TopNAndMinScore(t *testing.T) {
	a := NewAligner(testOptions(), nil)
	ref := testutil.Toluenol()

	res, err := a.Screen(context.Background(), ref, screeningLibrary(), ScreenOptions{TopN: 1})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, 1, res.Hits[0].Index)

	res, err = a.Screen(context.Background(), ref, screeningLibrary(), ScreenOptions{MinScore: 0.99})
	require.NoError(t, err)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "toluenol-moved", res.Hits[0].Name)
}

func TestScreen_Limits(t *testing.T) {
	opts := testOptions()
	opts.MaxBatch = 2
	a := NewAligner(opts, nil)

	_, err := a.Screen(context.Background(), testutil.Toluenol(), screeningLibrary(), ScreenOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = a.Screen(context.Background(), shape.NewShape("empty"), screeningLibrary()[:1], ScreenOptions{})
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyShape))
}

func TestScreen_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewAligner(testOptions(), nil).Screen(ctx, testutil.Toluenol(), screeningLibrary(), ScreenOptions{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCanceled))
}
