package shape

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Product is a primitive Gaussian (order 1) or the analytic product of two or
// more mutually adjacent primitives.  Products live in a ProductList arena and
// refer to their factors by index.
type Product struct {
	index        int
	color        int
	center       r3.Vec
	radius       float64
	kappa        float64
	delta        float64
	weight       float64
	weightFactor float64
	factorExp    float64
	volume       float64
	odd          bool
	factors      []int
}

// Index is the position in the owning list.
func (p *Product) Index() int { return p.index }

// Color is the element color; for order > 1 it is taken from the first
// factor, which adjacency construction guarantees all factors share.
func (p *Product) Color() int { return p.color }

// Center is the delta-weighted centroid of the factor centers.
func (p *Product) Center() r3.Vec { return p.center }

// Radius is the element radius for order 1 and the equivalent hard-sphere
// radius of the product volume otherwise.
func (p *Product) Radius() float64 { return p.radius }

// Kappa satisfies Delta = Kappa / Radius².
func (p *Product) Kappa() float64 { return p.kappa }

// Delta is the inverse-variance-like exponent of the product Gaussian.
func (p *Product) Delta() float64 { return p.delta }

// Weight is the product of factor weights before distance attenuation.
func (p *Product) Weight() float64 { return p.weight }

// WeightFactor is Weight·exp(-FactorExp).
func (p *Product) WeightFactor() float64 { return p.weightFactor }

// FactorExp is Σ_{i<j} δ_i·δ_j·|c_i-c_j|²/δ over the factors; zero for order 1.
func (p *Product) FactorExp() float64 { return p.factorExp }

// Volume is the unsigned integral WeightFactor·(π/Delta)^1.5.
func (p *Product) Volume() float64 { return p.volume }

// SignedVolume is Volume with the inclusion–exclusion sign applied.
func (p *Product) SignedVolume() float64 {
	if p.odd {
		return p.volume
	}
	return -p.volume
}

// IsOddOrder reports whether the factor count is odd.
func (p *Product) IsOddOrder() bool { return p.odd }

// Order is the number of primitive factors.
func (p *Product) Order() int { return len(p.factors) }

// Factors returns the element indices composing the product.  The slice must
// not be modified.
func (p *Product) Factors() []int { return p.factors }

// initElement sets p up as the order-1 product of element e.
func (p *Product) initElement(index int, e Element) {
	lambda := 4 * math.Pi / (3 * e.Hardness)
	p.index = index
	p.color = e.Color
	p.center = e.Position
	p.radius = e.Radius
	p.kappa = math.Pi / math.Pow(lambda, 2.0/3.0)
	p.delta = p.kappa / (e.Radius * e.Radius)
	p.weight = e.Hardness
	p.weightFactor = e.Hardness
	p.factorExp = 0
	p.volume = p.weightFactor * math.Pow(math.Pi/p.delta, 1.5)
	p.odd = true
	p.factors = append(p.factors[:0], index)
}

// initFactors recomputes p from factors, which index order-1 products in
// primitives.
func (p *Product) initFactors(index int, factors []int, primitives []Product) {
	p.index = index
	p.factors = append(p.factors[:0], factors...)
	p.color = primitives[factors[0]].color
	p.odd = len(factors)%2 == 1

	var delta float64
	var center r3.Vec
	weight := 1.0
	for _, f := range factors {
		fp := &primitives[f]
		delta += fp.delta
		center = r3.Add(center, r3.Scale(fp.delta, fp.center))
		weight *= fp.weight
	}
	center = r3.Scale(1/delta, center)

	var exp float64
	for _, f := range factors {
		fp := &primitives[f]
		exp += fp.delta * r3.Norm2(r3.Sub(fp.center, center))
	}

	p.delta = delta
	p.center = center
	p.weight = weight
	p.factorExp = exp
	p.weightFactor = weight * math.Exp(-exp)
	p.volume = p.weightFactor * math.Pow(math.Pi/delta, 1.5)
	p.radius = math.Cbrt(3 * p.volume / (4 * math.Pi))
	p.kappa = delta * p.radius * p.radius
}
