package testutil

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/domain/shape"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// Toluenol is a small non-planar aromatic: a six-membered ring, a methyl
// carbon, a hydroxyl oxygen and two colored feature points.
func Toluenol() *shape.Shape {
	s := &shape.Shape{Name: "toluenol"}
	for i := 0; i < 6; i++ {
		a := float64(i) * math.Pi / 3
		s.Elements = append(s.Elements, shape.NewElement(1.39*math.Cos(a), 1.39*math.Sin(a), 0, 1.7))
	}
	s.Elements = append(s.Elements,
		shape.NewElement(2.89, 0, 0.3, 1.7),
		shape.NewElement(2.75*math.Cos(2*math.Pi/3), 2.75*math.Sin(2*math.Pi/3), -0.4, 1.52),
		shape.Element{Position: r3.Vec{X: -1.375, Y: 2.381, Z: -0.4}, Radius: 1.0, Hardness: shape.DefaultHardness, Color: 1},
		shape.Element{Position: r3.Vec{}, Radius: 1.2, Hardness: shape.DefaultHardness, Color: 2},
	)
	return s
}

// Rod returns n carbon-sized elements spaced 1.5 Å along the x axis.
func Rod(name string, n int) *shape.Shape {
	s := &shape.Shape{Name: name}
	for i := 0; i < n; i++ {
		s.Elements = append(s.Elements, shape.NewElement(1.5*float64(i), 0, 0, 1.7))
	}
	return s
}

// Moved returns s under the rigid motion rotating by angle about axis, then
// translating by t.
func Moved(s *shape.Shape, axis r3.Vec, angle float64, t r3.Vec) *shape.Shape {
	out := s.Transform(shape.AxisAngleTransform(axis, angle, t).Matrix())
	out.Name = s.Name + "-moved"
	return out
}

// DTO converts a fixture to its transport form, leaving default hardness
// implicit.
func DTO(s *shape.Shape) shapetypes.ShapeDTO {
	out := shapetypes.ShapeDTO{Name: s.Name}
	for _, e := range s.Elements {
		d := shapetypes.ElementDTO{X: e.Position.X, Y: e.Position.Y, Z: e.Position.Z, Radius: e.Radius, Color: e.Color}
		if e.Hardness != shape.DefaultHardness {
			d.Hardness = e.Hardness
		}
		out.Elements = append(out.Elements, d)
	}
	return out
}
