package shape

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

func TestAlignmentFunction_ValueAtIdentity(t *testing.T) {
	fn := NewExactOverlapFunction()
	boundPair(fn, toluenol(), toluenol())
	af := NewAlignmentFunction(fn)
	assert.Equal(t, DefaultQuatPenaltyFactor, af.QuatPenaltyFactor())

	v, err := af.Value(IdentityQuaternionTransform())
	require.NoError(t, err)
	o, err := fn.Overlap()
	require.NoError(t, err)
	assert.InDelta(t, -o, v, 1e-9*o)
	assert.Equal(t, 1, af.Evaluations())
}

func TestAlignmentFunction_Penalty(t *testing.T) {
	fn := NewExactOverlapFunction()
	boundPair(fn, cluster(3), cluster(3))
	af := NewAlignmentFunction(fn)
	af.SetQuatPenaltyFactor(10)

	x := QuaternionTransform{1.1, 0, 0, 0, 0.2, 0, 0}
	v, err := af.Value(x)
	require.NoError(t, err)
	o, err := fn.OverlapAt(x.Matrix())
	require.NoError(t, err)
	dev := 1 - 1.21
	assert.InDelta(t, -o+0.5*10*dev*dev, v, 1e-9)
}

func TestAlignmentFunction_GradientFiniteDifferences(t *testing.T) {
	const h = 1e-6
	fn := NewExactOverlapFunction()
	boundPair(fn, toluenol(), toluenol())
	af := NewAlignmentFunction(fn)

	points := []QuaternionTransform{
		IdentityQuaternionTransform(),
		{0.9, 0.1, -0.2, 0.15, 0.3, -0.4, 0.2},
		AxisAngleTransform(r3.Vec{X: 1, Y: 1, Z: 1}, 0.6, r3.Vec{X: -0.5, Z: 0.7}),
	}
	for _, x := range points {
		var grad QuaternionTransform
		v, err := af.ValueGradient(x, &grad)
		require.NoError(t, err)
		plain, err := af.Value(x)
		require.NoError(t, err)
		assert.InDelta(t, plain, v, 1e-9*math.Abs(plain))

		for i := 0; i < 7; i++ {
			plus, minus := x, x
			plus[i] += h
			minus[i] -= h
			vp, err := af.Value(plus)
			require.NoError(t, err)
			vm, err := af.Value(minus)
			require.NoError(t, err)
			fd := (vp - vm) / (2 * h)
			assert.InDelta(t, fd, grad[i], 1e-3*math.Max(1, math.Abs(fd)), "x=%v component %d", x, i)
		}
	}
}

func TestAlignmentFunction_RigidGradientFiniteDifferences(t *testing.T) {
	const h = 1e-6
	fn := NewExactOverlapFunction()
	boundPair(fn, toluenol(), cluster(4))
	af := NewAlignmentFunction(fn)
	af.SetRigid(true)
	require.True(t, af.Rigid())

	points := []QuaternionTransform{
		{1.05, 0, 0, 0, 0.1, 0, 0},
		{0.9, 0.1, -0.2, 0.15, 0.3, -0.4, 0.2},
		{1.3, -0.4, 0.2, 0.1, -0.5, 0.2, 0.7},
	}
	for _, x := range points {
		var grad QuaternionTransform
		_, err := af.ValueGradient(x, &grad)
		require.NoError(t, err)

		for i := 0; i < 7; i++ {
			plus, minus := x, x
			plus[i] += h
			minus[i] -= h
			vp, err := af.Value(plus)
			require.NoError(t, err)
			vm, err := af.Value(minus)
			require.NoError(t, err)
			fd := (vp - vm) / (2 * h)
			assert.InDelta(t, fd, grad[i], 1e-3*math.Max(1, math.Abs(fd)), "x=%v component %d", x, i)
		}
	}
}

func TestAlignmentFunction_RigidOptimumAtAlignedPose(t *testing.T) {
	fn := NewExactOverlapFunction()
	boundPair(fn, toluenol(), toluenol())
	af := NewAlignmentFunction(fn)
	x := IdentityQuaternionTransform()

	// The homogeneous form pays for growing the overlay.
	var grad QuaternionTransform
	_, err := af.ValueGradient(x, &grad)
	require.NoError(t, err)
	assert.Less(t, grad[0], -1.0)

	af.SetRigid(true)
	_, err = af.ValueGradient(x, &grad)
	require.NoError(t, err)
	for i, g := range grad {
		assert.InDelta(t, 0, g, 1e-6, "component %d", i)
	}

	// Scaling q leaves the rigid objective's overlap term unchanged.
	scaled := QuaternionTransform{1.2, 0, 0, 0, 0, 0, 0}
	assert.InDeltaSlice(t, x.Matrix().Flatten(), scaled.RigidMatrix().Flatten(), 1e-12)
}

func TestAlignmentFunction_GonumAdapters(t *testing.T) {
	fn := NewExactOverlapFunction()
	af := NewAlignmentFunction(fn)

	x := IdentityQuaternionTransform()
	v := af.Func(x[:])
	assert.True(t, math.IsInf(v, 1))
	require.Error(t, af.Err())
	assert.True(t, errors.IsCode(af.Err(), errors.ErrCodeShapeNotBound))

	grad := make([]float64, 7)
	af.Grad(grad, x[:])
	assert.Equal(t, make([]float64, 7), grad)

	af.ResetStats()
	assert.NoError(t, af.Err())
	assert.Zero(t, af.Evaluations())
}

func TestAlignmentFunction_MinimizeRecoversRigidMotion(t *testing.T) {
	ref := toluenol()
	motion := AxisAngleTransform(r3.Vec{X: 1, Y: 1}, 0.4, r3.Vec{X: 0.5, Y: -0.3, Z: 0.2})
	ovl := ref.Transform(motion.Matrix())

	fn := NewExactOverlapFunction()
	boundPair(fn, ref, ovl)
	af := NewAlignmentFunction(fn)

	x0 := IdentityQuaternionTransform()
	res, err := optimize.Minimize(af.Problem(), x0[:], &optimize.Settings{
		MajorIterations:   500,
		GradientThreshold: 1e-8,
	}, &optimize.BFGS{})
	require.NotNil(t, res, "minimize: %v", err)
	require.NoError(t, af.Err())

	best := toTransform(res.X).Normalize()
	o, err := fn.OverlapAt(best.Matrix())
	require.NoError(t, err)
	sa, err := fn.SelfOverlap(true)
	require.NoError(t, err)
	sb, err := fn.SelfOverlap(false)
	require.NoError(t, err)
	assert.Greater(t, Tanimoto(o, sa, sb), 0.99)

	// The optimum undoes the motion.
	p := ref.Elements[0].Position
	back := best.Matrix().Apply(motion.Matrix().Apply(p))
	assertVecInDelta(t, p, back, 0.05)
	assert.Greater(t, af.Evaluations(), 1)
}
