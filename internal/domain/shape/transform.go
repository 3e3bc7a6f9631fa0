package shape

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Matrix4
// ─────────────────────────────────────────────────────────────────────────────

// Matrix4 is a row-major 4x4 affine transform acting on column vectors.
type Matrix4 [4][4]float64

// IdentityMatrix returns the identity transform.
func IdentityMatrix() Matrix4 {
	return Matrix4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	}
}

// TranslationMatrix returns a pure translation by t.
func TranslationMatrix(t r3.Vec) Matrix4 {
	m := IdentityMatrix()
	m[0][3], m[1][3], m[2][3] = t.X, t.Y, t.Z
	return m
}

// NewMatrix4 assembles an affine transform from a 3x3 linear part and a
// translation.
func NewMatrix4(r [3][3]float64, t r3.Vec) Matrix4 {
	return Matrix4{
		{r[0][0], r[0][1], r[0][2], t.X},
		{r[1][0], r[1][1], r[1][2], t.Y},
		{r[2][0], r[2][1], r[2][2], t.Z},
		{0, 0, 0, 1},
	}
}

// Matrix4FromSlice reads 16 row-major values.
func Matrix4FromSlice(v []float64) (Matrix4, error) {
	var m Matrix4
	if len(v) != 16 {
		return m, errors.Newf(errors.ErrCodeInvalidTransform, "transform needs 16 values, got %d", len(v))
	}
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			m[i][j] = v[i*4+j]
		}
	}
	if !m.IsAffine() {
		return m, errors.New(errors.ErrCodeInvalidTransform, "last row must be 0 0 0 1")
	}
	return m, nil
}

// Flatten returns the 16 row-major values.
func (m Matrix4) Flatten() []float64 {
	out := make([]float64, 0, 16)
	for i := 0; i < 4; i++ {
		out = append(out, m[i][:]...)
	}
	return out
}

// IsAffine reports whether the bottom row is 0 0 0 1.
func (m Matrix4) IsAffine() bool {
	return m[3][0] == 0 && m[3][1] == 0 && m[3][2] == 0 && m[3][3] == 1
}

// Mul returns m·o, i.e. o applied first.
func (m Matrix4) Mul(o Matrix4) Matrix4 {
	var out Matrix4
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			var s float64
			for k := 0; k < 4; k++ {
				s += m[i][k] * o[k][j]
			}
			out[i][j] = s
		}
	}
	return out
}

// Apply transforms a point.
func (m Matrix4) Apply(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z + m[0][3],
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z + m[1][3],
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z + m[2][3],
	}
}

// ApplyLinear transforms a direction (no translation).
func (m Matrix4) ApplyLinear(v r3.Vec) r3.Vec {
	return r3.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// Linear returns the upper-left 3x3 block.
func (m Matrix4) Linear() [3][3]float64 {
	return [3][3]float64{
		{m[0][0], m[0][1], m[0][2]},
		{m[1][0], m[1][1], m[1][2]},
		{m[2][0], m[2][1], m[2][2]},
	}
}

// Translation returns the translation column.
func (m Matrix4) Translation() r3.Vec {
	return r3.Vec{X: m[0][3], Y: m[1][3], Z: m[2][3]}
}

// RigidInverse inverts m assuming its linear part is orthonormal.
func (m Matrix4) RigidInverse() Matrix4 {
	var rt [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			rt[i][j] = m[j][i]
		}
	}
	inv := NewMatrix4(rt, r3.Vec{})
	t := inv.ApplyLinear(m.Translation())
	inv[0][3], inv[1][3], inv[2][3] = -t.X, -t.Y, -t.Z
	return inv
}

// ─────────────────────────────────────────────────────────────────────────────
// QuaternionTransform
// ─────────────────────────────────────────────────────────────────────────────

// QuaternionTransform is [q0 q1 q2 q3 tx ty tz]: a rotation quaternion
// (q0 real) followed by a translation.
//
// The quaternion is not required to be unit length.  Matrix uses the
// homogeneous rotation form, so a non-unit quaternion yields a rotation scaled
// by |q|².  Callers renormalize after optimization with Normalize.
type QuaternionTransform [7]float64

// IdentityQuaternionTransform returns the identity rotation with zero
// translation.
func IdentityQuaternionTransform() QuaternionTransform {
	return QuaternionTransform{1, 0, 0, 0, 0, 0, 0}
}

// Quat returns the rotation part as a gonum quaternion.
func (x QuaternionTransform) Quat() quat.Number {
	return quat.Number{Real: x[0], Imag: x[1], Jmag: x[2], Kmag: x[3]}
}

// Translation returns the translation part.
func (x QuaternionTransform) Translation() r3.Vec {
	return r3.Vec{X: x[4], Y: x[5], Z: x[6]}
}

// QuatNorm2 returns |q|².
func (x QuaternionTransform) QuatNorm2() float64 {
	return x[0]*x[0] + x[1]*x[1] + x[2]*x[2] + x[3]*x[3]
}

// Normalize scales the quaternion part to unit length.  A zero quaternion
// becomes the identity rotation.
func (x QuaternionTransform) Normalize() QuaternionTransform {
	n := quat.Abs(x.Quat())
	if n == 0 {
		x[0], x[1], x[2], x[3] = 1, 0, 0, 0
		return x
	}
	q := quat.Scale(1/n, x.Quat())
	x[0], x[1], x[2], x[3] = q.Real, q.Imag, q.Jmag, q.Kmag
	return x
}

// Rotation returns the homogeneous rotation matrix of the quaternion part.
func (x QuaternionTransform) Rotation() [3][3]float64 {
	w, a, b, c := x[0], x[1], x[2], x[3]
	return [3][3]float64{
		{w*w + a*a - b*b - c*c, 2 * (a*b - w*c), 2 * (a*c + w*b)},
		{2 * (a*b + w*c), w*w - a*a + b*b - c*c, 2 * (b*c - w*a)},
		{2 * (a*c - w*b), 2 * (b*c + w*a), w*w - a*a - b*b + c*c},
	}
}

// Matrix converts to a 4x4 affine transform.
func (x QuaternionTransform) Matrix() Matrix4 {
	return NewMatrix4(x.Rotation(), x.Translation())
}

// rotationDerivatives returns ∂R/∂q_i for i = 0..3 of the homogeneous form.
func (x QuaternionTransform) rotationDerivatives() [4][3][3]float64 {
	w, a, b, c := 2*x[0], 2*x[1], 2*x[2], 2*x[3]
	return [4][3][3]float64{
		{{w, -c, b}, {c, w, -a}, {-b, a, w}},
		{{a, b, c}, {b, -a, -w}, {c, w, -a}},
		{{-b, a, w}, {a, b, c}, {-w, c, -b}},
		{{-c, -w, a}, {w, -c, b}, {a, b, c}},
	}
}

// RigidMatrix converts to a 4x4 affine transform with the rotation R(q)/|q|²,
// which is a pure rotation for any nonzero q.  A zero quaternion maps to the
// identity rotation.
func (x QuaternionTransform) RigidMatrix() Matrix4 {
	return NewMatrix4(x.rigidRotation(), x.Translation())
}

func (x QuaternionTransform) rigidRotation() [3][3]float64 {
	n2 := x.QuatNorm2()
	if n2 == 0 {
		return [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	}
	r := x.Rotation()
	for i := range r {
		for j := range r[i] {
			r[i][j] /= n2
		}
	}
	return r
}

// rigidRotationDerivatives returns ∂(R/|q|²)/∂q_i for i = 0..3.
func (x QuaternionTransform) rigidRotationDerivatives() [4][3][3]float64 {
	n2 := x.QuatNorm2()
	if n2 == 0 {
		return [4][3][3]float64{}
	}
	r := x.Rotation()
	d := x.rotationDerivatives()
	for i := 0; i < 4; i++ {
		s := 2 * x[i] / n2
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				d[i][j][k] = (d[i][j][k] - s*r[j][k]) / n2
			}
		}
	}
	return d
}

// QuaternionTransformFromMatrix extracts a unit quaternion and translation from
// a rigid transform.
func QuaternionTransformFromMatrix(m Matrix4) QuaternionTransform {
	r := m.Linear()
	t := m.Translation()
	var w, a, b, c float64
	trace := r[0][0] + r[1][1] + r[2][2]
	switch {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		w = s / 4
		a = (r[2][1] - r[1][2]) / s
		b = (r[0][2] - r[2][0]) / s
		c = (r[1][0] - r[0][1]) / s
	case r[0][0] > r[1][1] && r[0][0] > r[2][2]:
		s := math.Sqrt(1+r[0][0]-r[1][1]-r[2][2]) * 2
		w = (r[2][1] - r[1][2]) / s
		a = s / 4
		b = (r[0][1] + r[1][0]) / s
		c = (r[0][2] + r[2][0]) / s
	case r[1][1] > r[2][2]:
		s := math.Sqrt(1+r[1][1]-r[0][0]-r[2][2]) * 2
		w = (r[0][2] - r[2][0]) / s
		a = (r[0][1] + r[1][0]) / s
		b = s / 4
		c = (r[1][2] + r[2][1]) / s
	default:
		s := math.Sqrt(1+r[2][2]-r[0][0]-r[1][1]) * 2
		w = (r[1][0] - r[0][1]) / s
		a = (r[0][2] + r[2][0]) / s
		b = (r[1][2] + r[2][1]) / s
		c = s / 4
	}
	return QuaternionTransform{w, a, b, c, t.X, t.Y, t.Z}.Normalize()
}

// AxisAngleTransform builds a unit quaternion transform rotating by angle
// (radians) about axis, followed by translation t.
func AxisAngleTransform(axis r3.Vec, angle float64, t r3.Vec) QuaternionTransform {
	u := r3.Unit(axis)
	s := math.Sin(angle / 2)
	return QuaternionTransform{math.Cos(angle / 2), u.X * s, u.Y * s, u.Z * s, t.X, t.Y, t.Z}
}

// ComposeQuaternion returns the rotation q1·q2 (q2 applied first) with zero
// translation, using gonum quaternion multiplication.
func ComposeQuaternion(q1, q2 QuaternionTransform) QuaternionTransform {
	p := quat.Mul(q1.Quat(), q2.Quat())
	return QuaternionTransform{p.Real, p.Imag, p.Jmag, p.Kmag, 0, 0, 0}
}
