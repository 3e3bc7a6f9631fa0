package shape

import (
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

// DefaultQuatPenaltyFactor weighs the unit-quaternion deviation penalty.
const DefaultQuatPenaltyFactor = 1000.0

var (
	_ OverlapFunction = (*ExactOverlapFunction)(nil)
	_ OverlapFunction = (*FastOverlapFunction)(nil)
)

// AlignmentFunction is the minimization objective
//
//	f(q, t) = -overlap(T(q, t)) + ½·λ·(1 - |q|²)²
//
// over a QuaternionTransform.  The quaternion is never renormalized here; the
// penalty keeps it near unit length and callers call Normalize on the result.
//
// T(q, t) uses the homogeneous rotation, which scales the overlay by |q|², so
// the minimum sits slightly off the unit sphere.  In rigid mode T uses
// R(q)/|q|² instead and the minimum is a true rigid pose; aligners run that
// mode from the normalized result to polish it.
type AlignmentFunction struct {
	overlap OverlapFunction
	penalty float64
	rigid   bool
	grad    []r3.Vec
	evals   int
	err     error
}

// NewAlignmentFunction wraps fn, which must stay bound while the objective is
// in use.
func NewAlignmentFunction(fn OverlapFunction) *AlignmentFunction {
	return &AlignmentFunction{overlap: fn, penalty: DefaultQuatPenaltyFactor}
}

// SetQuatPenaltyFactor sets λ.
func (a *AlignmentFunction) SetQuatPenaltyFactor(f float64) { a.penalty = f }

// QuatPenaltyFactor returns λ.
func (a *AlignmentFunction) QuatPenaltyFactor() float64 { return a.penalty }

// SetRigid switches between the homogeneous and the rigid rotation form.
func (a *AlignmentFunction) SetRigid(rigid bool) { a.rigid = rigid }

// Rigid reports whether the rigid rotation form is in use.
func (a *AlignmentFunction) Rigid() bool { return a.rigid }

// Matrix returns the transform x stands for in the current mode.
func (a *AlignmentFunction) Matrix(x QuaternionTransform) Matrix4 {
	if a.rigid {
		return x.RigidMatrix()
	}
	return x.Matrix()
}

// OverlapFunction returns the wrapped overlap function.
func (a *AlignmentFunction) OverlapFunction() OverlapFunction { return a.overlap }

// Evaluations counts overlap evaluations since construction or ResetStats.
func (a *AlignmentFunction) Evaluations() int { return a.evals }

// Err returns the first error swallowed by Func or Grad.
func (a *AlignmentFunction) Err() error { return a.err }

// ResetStats clears the evaluation count and captured error.
func (a *AlignmentFunction) ResetStats() {
	a.evals = 0
	a.err = nil
}

// Value returns f(x).
func (a *AlignmentFunction) Value(x QuaternionTransform) (float64, error) {
	a.evals++
	o, err := a.overlap.OverlapAt(a.Matrix(x))
	if err != nil {
		return 0, err
	}
	dev := 1 - x.QuatNorm2()
	return -o + 0.5*a.penalty*dev*dev, nil
}

// ValueGradient returns f(x) and stores ∂f/∂x in grad.
func (a *AlignmentFunction) ValueGradient(x QuaternionTransform, grad *QuaternionTransform) (float64, error) {
	ovl := a.overlap.ShapeFunction(false)
	if !ovl.IsBound() {
		return 0, errors.New(errors.ErrCodeShapeNotBound, "overlay shape function not set")
	}
	elements := ovl.Shape().Elements
	if cap(a.grad) < len(elements) {
		a.grad = make([]r3.Vec, len(elements))
	}
	a.grad = a.grad[:len(elements)]

	a.evals++
	o, err := a.overlap.OverlapGradient(a.Matrix(x), a.grad)
	if err != nil {
		return 0, err
	}

	var dR [4][3][3]float64
	if a.rigid {
		dR = x.rigidRotationDerivatives()
	} else {
		dR = x.rotationDerivatives()
	}
	*grad = QuaternionTransform{}
	for k, e := range elements {
		g := a.grad[k]
		p := e.Position
		for i := 0; i < 4; i++ {
			d := &dR[i]
			grad[i] -= g.X*(d[0][0]*p.X+d[0][1]*p.Y+d[0][2]*p.Z) +
				g.Y*(d[1][0]*p.X+d[1][1]*p.Y+d[1][2]*p.Z) +
				g.Z*(d[2][0]*p.X+d[2][1]*p.Y+d[2][2]*p.Z)
		}
		grad[4] -= g.X
		grad[5] -= g.Y
		grad[6] -= g.Z
	}

	dev := 1 - x.QuatNorm2()
	for i := 0; i < 4; i++ {
		grad[i] -= 2 * a.penalty * dev * x[i]
	}
	return -o + 0.5*a.penalty*dev*dev, nil
}

// Func adapts Value to optimize.Problem.  Errors are recorded in Err and
// reported as +Inf.
func (a *AlignmentFunction) Func(x []float64) float64 {
	v, err := a.Value(toTransform(x))
	if err != nil {
		a.recordErr(err)
		return math.Inf(1)
	}
	return v
}

// Grad adapts ValueGradient to optimize.Problem.
func (a *AlignmentFunction) Grad(grad, x []float64) {
	var g QuaternionTransform
	if _, err := a.ValueGradient(toTransform(x), &g); err != nil {
		a.recordErr(err)
	}
	copy(grad, g[:])
}

// Problem returns the objective as a gonum optimization problem.
func (a *AlignmentFunction) Problem() optimize.Problem {
	return optimize.Problem{Func: a.Func, Grad: a.Grad}
}

func (a *AlignmentFunction) recordErr(err error) {
	if a.err == nil {
		a.err = err
	}
}

func toTransform(x []float64) QuaternionTransform {
	var t QuaternionTransform
	copy(t[:], x)
	return t
}
