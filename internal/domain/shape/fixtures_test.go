package shape

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r3"
)

// toluenol is a small non-planar aromatic: a six-membered ring, a methyl
// carbon, a hydroxyl oxygen and two colored feature points.
func toluenol() *Shape {
	s := &Shape{Name: "toluenol"}
	for i := 0; i < 6; i++ {
		a := float64(i) * math.Pi / 3
		s.Elements = append(s.Elements, NewElement(1.39*math.Cos(a), 1.39*math.Sin(a), 0, 1.7))
	}
	s.Elements = append(s.Elements,
		NewElement(2.89, 0, 0.3, 1.7),
		NewElement(2.75*math.Cos(2*math.Pi/3), 2.75*math.Sin(2*math.Pi/3), -0.4, 1.52),
		Element{Position: r3.Vec{X: -1.375, Y: 2.381, Z: -0.4}, Radius: 1.0, Hardness: DefaultHardness, Color: 1},
		Element{Position: r3.Vec{}, Radius: 1.2, Hardness: DefaultHardness, Color: 2},
	)
	return s
}

// cluster returns n unit elements on a circle of radius 0.3, all mutually
// adjacent for any cutoff >= 0.
func cluster(n int) *Shape {
	s := &Shape{Name: "cluster"}
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		s.Elements = append(s.Elements, NewElement(0.3*math.Cos(a), 0.3*math.Sin(a), 0.1*float64(i), 1))
	}
	return s
}

func mustShapeFunction(s *Shape, opts ProductListOptions) *ShapeFunction {
	fn, err := NewShapeFunctionFor(s, opts)
	if err != nil {
		panic(err)
	}
	return fn
}

func randomRigid(rng *rand.Rand, maxShift float64) QuaternionTransform {
	axis := r3.Vec{X: rng.NormFloat64(), Y: rng.NormFloat64(), Z: rng.NormFloat64()}
	t := r3.Vec{
		X: (rng.Float64()*2 - 1) * maxShift,
		Y: (rng.Float64()*2 - 1) * maxShift,
		Z: (rng.Float64()*2 - 1) * maxShift,
	}
	return AxisAngleTransform(axis, rng.Float64()*math.Pi, t)
}

func boundPair(fn OverlapFunction, ref, ovl *Shape) {
	fn.SetShapeFunction(mustShapeFunction(ref, DefaultProductListOptions()), true)
	fn.SetShapeFunction(mustShapeFunction(ovl, DefaultProductListOptions()), false)
}
