package shape

import (
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

// ColorMatchFunc decides whether products of two colors interact.  When no
// match function is set colors must be equal.
type ColorMatchFunc func(refColor, overlayColor int) bool

// ColorFilterFunc excludes products whose color it rejects from both shapes.
type ColorFilterFunc func(color int) bool

// OverlapFunction evaluates the Gaussian overlap integral between a fixed
// reference shape function and a movable overlay shape function.
//
// Implementations keep a cache of transformed overlay centers and must not be
// used from more than one goroutine at a time.  The bound shape functions
// themselves are only read; one that is Setup again after binding is rebound
// on the next evaluation.
type OverlapFunction interface {
	// SetShapeFunction binds fn as the reference (ref true) or overlay.
	SetShapeFunction(fn *ShapeFunction, ref bool)
	// ShapeFunction returns the bound reference or overlay function.
	ShapeFunction(ref bool) *ShapeFunction
	SetColorMatchFunc(fn ColorMatchFunc)
	SetColorFilterFunc(fn ColorFilterFunc)
	// ColorFilterFunc returns the current filter, or nil.
	ColorFilterFunc() ColorFilterFunc

	// SelfOverlap is the overlap of one bound shape with itself.
	SelfOverlap(ref bool) (float64, error)
	// Overlap evaluates both shapes in their native frames.
	Overlap() (float64, error)
	// OverlapAt applies xform to the overlay before evaluation.
	OverlapAt(xform Matrix4) (float64, error)
	// OverlapGradient is OverlapAt plus, in grad[k], the derivative of the
	// overlap with respect to the transformed position of overlay element k.
	// len(grad) must equal the overlay element count.
	OverlapGradient(xform Matrix4, grad []r3.Vec) (float64, error)

	Policy() EvaluationPolicy
}

// Strategy names an overlap function implementation.
type Strategy string

const (
	StrategyExact Strategy = "exact"
	StrategyFast  Strategy = "fast"
)

// ParseStrategy accepts "exact" or "fast" (case-insensitive).
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyExact:
		return StrategyExact, nil
	case StrategyFast:
		return StrategyFast, nil
	}
	return "", errors.Newf(errors.ErrCodeInvalidShapeOptions, "unknown overlap strategy %q", s)
}

// DefaultRadiusScale widens product radii for proximity pruning.
const DefaultRadiusScale = 1.3

// EvaluationPolicy selects the optimizations applied while summing product
// pairs.
type EvaluationPolicy struct {
	// FastExp replaces math.Exp with FastExp.
	FastExp bool
	// Proximity skips pairs farther apart than RadiusScale·(r1+r2).
	Proximity   bool
	RadiusScale float64
}

// NewOverlapFunction returns the implementation named by s with its default
// policy.
func NewOverlapFunction(s Strategy) (OverlapFunction, error) {
	switch s {
	case StrategyExact:
		return NewExactOverlapFunction(), nil
	case StrategyFast:
		return NewFastOverlapFunction(), nil
	}
	return nil, errors.Newf(errors.ErrCodeInvalidShapeOptions, "unknown overlap strategy %q", s)
}

// ─────────────────────────────────────────────────────────────────────────────
// Strategies
// ─────────────────────────────────────────────────────────────────────────────

// ExactOverlapFunction sums every product pair with math.Exp.
type ExactOverlapFunction struct {
	overlapFunction
}

// NewExactOverlapFunction returns an unbound exact evaluator.
func NewExactOverlapFunction() *ExactOverlapFunction {
	return &ExactOverlapFunction{overlapFunction{policy: EvaluationPolicy{RadiusScale: 1}}}
}

// FastOverlapFunction adds proximity pruning and the approximate exponential.
// Both are enabled by default and may be toggled independently.
type FastOverlapFunction struct {
	overlapFunction
}

// NewFastOverlapFunction returns an unbound fast evaluator.
func NewFastOverlapFunction() *FastOverlapFunction {
	return &FastOverlapFunction{overlapFunction{policy: EvaluationPolicy{
		FastExp:     true,
		Proximity:   true,
		RadiusScale: DefaultRadiusScale,
	}}}
}

// SetProximityOptimization toggles pair pruning.
func (f *FastOverlapFunction) SetProximityOptimization(on bool) { f.policy.Proximity = on }

// SetFastExpFunction toggles the approximate exponential.
func (f *FastOverlapFunction) SetFastExpFunction(on bool) { f.policy.FastExp = on }

// SetRadiusScalingFactor sets the pruning radius multiplier.
func (f *FastOverlapFunction) SetRadiusScalingFactor(s float64) { f.policy.RadiusScale = s }

// SetPolicy replaces all three settings.
func (f *FastOverlapFunction) SetPolicy(p EvaluationPolicy) { f.policy = p }

// ─────────────────────────────────────────────────────────────────────────────
// Shared evaluator
// ─────────────────────────────────────────────────────────────────────────────

// boundShape holds the per-product data of one side in the frame it is
// evaluated in.
type boundShape struct {
	fn       *ShapeFunction
	gen      uint64
	sel      []int
	centers  []r3.Vec
	exps     []float64
	elements []r3.Vec
}

// bind snapshots fn's products.  An unbound fn is still remembered so that a
// later Setup on it is picked up by refresh.
func (b *boundShape) bind(fn *ShapeFunction) {
	b.fn = fn
	b.sel = b.sel[:0]
	if fn == nil {
		return
	}
	b.gen = fn.generation
	if !fn.IsBound() {
		return
	}
	products := fn.list.Products()
	b.centers = resizeVecs(b.centers, len(products))
	b.exps = resizeFloats(b.exps, len(products))
	for i := range products {
		b.centers[i] = products[i].center
		b.exps[i] = products[i].factorExp
	}
	b.elements = resizeVecs(b.elements, fn.list.NumElements())
	for i, e := range fn.shape.Elements {
		b.elements[i] = e.Position
	}
}

// refresh rebinds when fn was set up again after bind.
func (b *boundShape) refresh(filter ColorFilterFunc) {
	if b.fn != nil && b.fn.generation != b.gen {
		b.bind(b.fn)
		b.selectColors(filter)
	}
}

func (b *boundShape) bound() bool { return b.fn.IsBound() }

func (b *boundShape) selectColors(filter ColorFilterFunc) {
	b.sel = b.sel[:0]
	if !b.bound() {
		return
	}
	products := b.fn.list.Products()
	for i := range products {
		if filter == nil || filter(products[i].color) {
			b.sel = append(b.sel, i)
		}
	}
}

// transformFrom fills b with src's products moved by m.  Product centers and
// factor exponents are rebuilt from the moved element positions so that
// non-rigid affine transforms stay consistent.
func (b *boundShape) transformFrom(src *boundShape, m Matrix4) {
	b.fn = src.fn
	b.sel = src.sel
	products := src.fn.list.Products()
	n := src.fn.list.NumElements()

	b.elements = resizeVecs(b.elements, n)
	for k := 0; k < n; k++ {
		b.elements[k] = m.Apply(src.elements[k])
	}
	b.centers = resizeVecs(b.centers, len(products))
	b.exps = resizeFloats(b.exps, len(products))
	for i := 0; i < n; i++ {
		b.centers[i] = b.elements[i]
		b.exps[i] = 0
	}
	for i := n; i < len(products); i++ {
		p := &products[i]
		var c r3.Vec
		for _, k := range p.factors {
			c = r3.Add(c, r3.Scale(products[k].delta, b.elements[k]))
		}
		c = r3.Scale(1/p.delta, c)
		var e float64
		for _, k := range p.factors {
			e += products[k].delta * r3.Norm2(r3.Sub(b.elements[k], c))
		}
		b.centers[i] = c
		b.exps[i] = e
	}
}

type overlapFunction struct {
	policy EvaluationPolicy
	match  ColorMatchFunc
	filter ColorFilterFunc

	ref boundShape
	ovl boundShape
	xf  boundShape
}

func (f *overlapFunction) Policy() EvaluationPolicy { return f.policy }

func (f *overlapFunction) SetShapeFunction(fn *ShapeFunction, ref bool) {
	side := &f.ovl
	if ref {
		side = &f.ref
	}
	side.bind(fn)
	side.selectColors(f.filter)
}

func (f *overlapFunction) ShapeFunction(ref bool) *ShapeFunction {
	if ref {
		return f.ref.fn
	}
	return f.ovl.fn
}

func (f *overlapFunction) SetColorMatchFunc(fn ColorMatchFunc) { f.match = fn }

func (f *overlapFunction) SetColorFilterFunc(fn ColorFilterFunc) {
	f.filter = fn
	f.ref.selectColors(fn)
	f.ovl.selectColors(fn)
}

func (f *overlapFunction) ColorFilterFunc() ColorFilterFunc { return f.filter }

func (f *overlapFunction) SelfOverlap(ref bool) (float64, error) {
	side := &f.ovl
	if ref {
		side = &f.ref
	}
	side.refresh(f.filter)
	if !side.bound() {
		return 0, notBound(ref)
	}
	return f.sum(side, side, nil), nil
}

func (f *overlapFunction) Overlap() (float64, error) {
	if err := f.checkBound(); err != nil {
		return 0, err
	}
	return f.sum(&f.ref, &f.ovl, nil), nil
}

func (f *overlapFunction) OverlapAt(xform Matrix4) (float64, error) {
	if err := f.checkBound(); err != nil {
		return 0, err
	}
	if !xform.IsAffine() {
		return 0, errors.New(errors.ErrCodeInvalidTransform, "transform is not affine")
	}
	f.xf.transformFrom(&f.ovl, xform)
	return f.sum(&f.ref, &f.xf, nil), nil
}

func (f *overlapFunction) OverlapGradient(xform Matrix4, grad []r3.Vec) (float64, error) {
	if err := f.checkBound(); err != nil {
		return 0, err
	}
	if !xform.IsAffine() {
		return 0, errors.New(errors.ErrCodeInvalidTransform, "transform is not affine")
	}
	if n := f.ovl.fn.list.NumElements(); len(grad) != n {
		return 0, errors.Newf(errors.CodeInvalidParam, "gradient buffer has %d entries, overlay has %d elements", len(grad), n)
	}
	for k := range grad {
		grad[k] = r3.Vec{}
	}
	f.xf.transformFrom(&f.ovl, xform)
	return f.sum(&f.ref, &f.xf, grad), nil
}

// checkBound refreshes both sides and reports a missing one.
func (f *overlapFunction) checkBound() error {
	f.ref.refresh(f.filter)
	f.ovl.refresh(f.filter)
	if !f.ref.bound() {
		return notBound(true)
	}
	if !f.ovl.bound() {
		return notBound(false)
	}
	return nil
}

func notBound(ref bool) error {
	if ref {
		return errors.New(errors.ErrCodeShapeNotBound, "reference shape function not set")
	}
	return errors.New(errors.ErrCodeShapeNotBound, "overlay shape function not set")
}

func (f *overlapFunction) colorsMatch(c1, c2 int) bool {
	if f.match != nil {
		return f.match(c1, c2)
	}
	return c1 == c2
}

// sum adds the signed closed-form overlap of every selected product pair of
// a and b.  A non-nil grad receives per-element derivatives for b.
func (f *overlapFunction) sum(a, b *boundShape, grad []r3.Vec) float64 {
	exp := math.Exp
	if f.policy.FastExp {
		exp = FastExp
	}
	if !a.fn.list.HasHigherOrders() && !b.fn.list.HasHigherOrders() {
		return f.sumPrimitives(a, b, grad, exp)
	}

	ap := a.fn.list.Products()
	bp := b.fn.list.Products()
	prox := f.policy.Proximity
	scale := f.policy.RadiusScale

	var total float64
	for _, i := range a.sel {
		p1 := &ap[i]
		c1 := a.centers[i]
		for _, j := range b.sel {
			p2 := &bp[j]
			if !f.colorsMatch(p1.color, p2.color) {
				continue
			}
			c2 := b.centers[j]
			d2 := r3.Norm2(r3.Sub(c1, c2))
			if prox {
				lim := scale * (p1.radius + p2.radius)
				if d2 > lim*lim {
					continue
				}
			}
			delta := p1.delta + p2.delta
			v := math.Pi / delta
			c := p1.weight * p2.weight * v * math.Sqrt(v) *
				exp(-(p1.delta*p2.delta/delta*d2 + a.exps[i] + b.exps[j]))
			if p1.odd != p2.odd {
				c = -c
			}
			total += c

			if grad == nil {
				continue
			}
			mid := r3.Scale(1/delta, r3.Add(r3.Scale(p1.delta, c1), r3.Scale(p2.delta, c2)))
			for _, k := range p2.factors {
				g := r3.Scale(-2*c*bp[k].delta, r3.Sub(b.elements[k], mid))
				grad[k] = r3.Add(grad[k], g)
			}
		}
	}
	return total
}

// sumPrimitives is sum for two lists holding only order-1 products, where
// every product is its own single factor.
func (f *overlapFunction) sumPrimitives(a, b *boundShape, grad []r3.Vec, exp func(float64) float64) float64 {
	ap := a.fn.list.Products()
	bp := b.fn.list.Products()
	prox := f.policy.Proximity
	scale := f.policy.RadiusScale

	var total float64
	for _, i := range a.sel {
		p1 := &ap[i]
		c1 := a.centers[i]
		for _, j := range b.sel {
			p2 := &bp[j]
			if !f.colorsMatch(p1.color, p2.color) {
				continue
			}
			diff := r3.Sub(b.centers[j], c1)
			d2 := r3.Norm2(diff)
			if prox {
				lim := scale * (p1.radius + p2.radius)
				if d2 > lim*lim {
					continue
				}
			}
			delta := p1.delta + p2.delta
			dd := p1.delta * p2.delta / delta
			v := math.Pi / delta
			c := p1.weight * p2.weight * v * math.Sqrt(v) * exp(-dd*d2)
			total += c

			if grad != nil {
				grad[j] = r3.Add(grad[j], r3.Scale(-2*c*dd, diff))
			}
		}
	}
	return total
}

func resizeVecs(v []r3.Vec, n int) []r3.Vec {
	if cap(v) < n {
		return make([]r3.Vec, n)
	}
	return v[:n]
}

func resizeFloats(v []float64, n int) []float64 {
	if cap(v) < n {
		return make([]float64, n)
	}
	return v[:n]
}
