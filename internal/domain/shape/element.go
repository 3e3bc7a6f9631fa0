// Package shape implements the Gaussian molecular shape model: product list
// construction, volume and surface integrals, overlap integrals with analytic
// gradients, and the quaternion alignment objective consumed by numerical
// optimizers.
package shape

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

// DefaultHardness is the element hardness commonly used for atom Gaussians.
const DefaultHardness = 2 * math.Sqrt2

// ShapeColor is the color of plain steric (atom) elements. Positive colors
// tag pharmacophore feature types.
const ShapeColor = 0

// Element is one primitive Gaussian of a shape.
type Element struct {
	Position r3.Vec
	Radius   float64
	Hardness float64
	Color    int
}

// NewElement returns an element with DefaultHardness and ShapeColor.
func NewElement(x, y, z, radius float64) Element {
	return Element{
		Position: r3.Vec{X: x, Y: y, Z: z},
		Radius:   radius,
		Hardness: DefaultHardness,
		Color:    ShapeColor,
	}
}

// Validate reports an InvalidShapeElement error for non-positive or non-finite
// radius and hardness, and for non-finite coordinates.
func (e Element) Validate(index int) error {
	switch {
	case !(e.Radius > 0) || math.IsInf(e.Radius, 0):
		return errors.InvalidElement(index, fmt.Sprintf("radius must be positive and finite, got %g", e.Radius))
	case !(e.Hardness > 0) || math.IsInf(e.Hardness, 0):
		return errors.InvalidElement(index, fmt.Sprintf("hardness must be positive and finite, got %g", e.Hardness))
	case !finiteVec(e.Position):
		return errors.InvalidElement(index, "position must be finite")
	}
	return nil
}

// Shape is an ordered, read-only list of Gaussian elements.
type Shape struct {
	Name     string
	Elements []Element
}

// NewShape builds a shape from elements.
func NewShape(name string, elements ...Element) *Shape {
	return &Shape{Name: name, Elements: elements}
}

// NumElements returns the element count.
func (s *Shape) NumElements() int {
	if s == nil {
		return 0
	}
	return len(s.Elements)
}

// Validate checks every element and rejects empty shapes.
func (s *Shape) Validate() error {
	if s.NumElements() == 0 {
		return errors.New(errors.ErrCodeEmptyShape, "shape has no elements")
	}
	for i, e := range s.Elements {
		if err := e.Validate(i); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy.
func (s *Shape) Clone() *Shape {
	out := &Shape{Name: s.Name, Elements: make([]Element, len(s.Elements))}
	copy(out.Elements, s.Elements)
	return out
}

// Transform returns a copy with every element position mapped through m.
func (s *Shape) Transform(m Matrix4) *Shape {
	out := s.Clone()
	for i := range out.Elements {
		out.Elements[i].Position = m.Apply(out.Elements[i].Position)
	}
	return out
}

// Filter returns a copy holding only elements for which keep returns true.
func (s *Shape) Filter(keep func(Element) bool) *Shape {
	out := &Shape{Name: s.Name}
	for _, e := range s.Elements {
		if keep(e) {
			out.Elements = append(out.Elements, e)
		}
	}
	return out
}

// Colors returns the distinct element colors in ascending order.
func (s *Shape) Colors() []int {
	seen := make(map[int]struct{})
	var colors []int
	for _, e := range s.Elements {
		if _, ok := seen[e.Color]; !ok {
			seen[e.Color] = struct{}{}
			colors = append(colors, e.Color)
		}
	}
	sort.Ints(colors)
	return colors
}

// HasColor reports whether any element carries color c.
func (s *Shape) HasColor(c int) bool {
	for _, e := range s.Elements {
		if e.Color == c {
			return true
		}
	}
	return false
}

func finiteVec(v r3.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) &&
		!math.IsNaN(v.Y) && !math.IsInf(v.Y, 0) &&
		!math.IsNaN(v.Z) && !math.IsInf(v.Z, 0)
}
