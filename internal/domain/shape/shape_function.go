package shape

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

// ShapeFunction is the Gaussian density of one shape, represented by its
// product list.
type ShapeFunction struct {
	shape *Shape
	list  *ProductList
	// generation counts Setup calls so bound overlap functions can tell
	// their cached product data is stale.
	generation uint64
}

// NewShapeFunction returns an unbound function with default product options.
func NewShapeFunction() *ShapeFunction {
	return &ShapeFunction{list: NewProductList()}
}

// NewShapeFunctionFor builds a function for s with the given options.
func NewShapeFunctionFor(s *Shape, opts ProductListOptions) (*ShapeFunction, error) {
	fn := NewShapeFunction()
	fn.list.SetOptions(opts)
	if err := fn.Setup(s); err != nil {
		return nil, err
	}
	return fn, nil
}

// SetMaxOrder forwards to the product list; effective on the next Setup.
func (f *ShapeFunction) SetMaxOrder(n int) { f.list.SetMaxOrder(n) }

// SetDistanceCutoff forwards to the product list; effective on the next Setup.
func (f *ShapeFunction) SetDistanceCutoff(d float64) { f.list.SetDistanceCutoff(d) }

// Setup builds the product list for s.  On error the function stays unbound.
func (f *ShapeFunction) Setup(s *Shape) error {
	f.generation++
	f.shape = nil
	if err := f.list.Setup(s); err != nil {
		return err
	}
	f.shape = s
	return nil
}

// Shape returns the bound shape, or nil.
func (f *ShapeFunction) Shape() *Shape { return f.shape }

// ProductList returns the underlying list.
func (f *ShapeFunction) ProductList() *ProductList { return f.list }

// IsBound reports whether Setup has succeeded.
func (f *ShapeFunction) IsBound() bool { return f != nil && f.shape != nil }

// Volume returns the inclusion–exclusion corrected volume.
func (f *ShapeFunction) Volume() float64 { return f.list.Volume() }

// SurfaceArea returns dV/dr summed over all element radii.
func (f *ShapeFunction) SurfaceArea() float64 {
	return f.surfaceArea(-1)
}

// ElementSurfaceArea returns the contribution of element i to SurfaceArea.
func (f *ShapeFunction) ElementSurfaceArea(i int) (float64, error) {
	if i < 0 || i >= f.list.NumElements() {
		return 0, errors.Newf(errors.CodeInvalidParam, "element index %d out of range [0,%d)", i, f.list.NumElements())
	}
	return f.surfaceArea(i), nil
}

// ElementSurfaceAreas returns every element's contribution.
func (f *ShapeFunction) ElementSurfaceAreas() []float64 {
	out := make([]float64, f.list.NumElements())
	for i := range out {
		out[i] = f.surfaceArea(i)
	}
	return out
}

// surfaceArea sums, for every product and each factor k,
// 2·V·κ_k·(3/(2δ) + |c_k - c|²)/r_k³ with the product sign.  elem >= 0
// restricts the sum to factor elem.
func (f *ShapeFunction) surfaceArea(elem int) float64 {
	products := f.list.Products()
	n := f.list.NumElements()
	var area float64

	for i := 0; i < n; i++ {
		if elem >= 0 && i != elem {
			continue
		}
		p := &products[i]
		area += 3 * p.volume / p.radius
	}

	for i := n; i < len(products); i++ {
		p := &products[i]
		var sum float64
		for _, k := range p.factors {
			if elem >= 0 && k != elem {
				continue
			}
			fp := &products[k]
			d2 := r3.Norm2(r3.Sub(fp.center, p.center))
			sum += fp.kappa * (1.5/p.delta + d2) / (fp.radius * fp.radius * fp.radius)
		}
		if sum == 0 {
			continue
		}
		if p.odd {
			area += 2 * p.volume * sum
		} else {
			area -= 2 * p.volume * sum
		}
	}
	return area
}

// Centroid returns the signed volume weighted mean of product centers.
func (f *ShapeFunction) Centroid() r3.Vec {
	var c r3.Vec
	var w float64
	for i := range f.list.Products() {
		p := f.list.Product(i)
		v := p.SignedVolume()
		c = r3.Add(c, r3.Scale(v, p.center))
		w += v
	}
	if w == 0 {
		return r3.Vec{}
	}
	return r3.Scale(1/w, c)
}

// QuadrupoleTensor returns the second moment of the density about its
// centroid, including each product's own Gaussian spread 1/(2δ).
func (f *ShapeFunction) QuadrupoleTensor() *mat.SymDense {
	cen := f.Centroid()
	var q [6]float64 // xx xy xz yy yz zz
	for i := range f.list.Products() {
		p := f.list.Product(i)
		v := p.SignedVolume()
		d := r3.Sub(p.center, cen)
		s := 1 / (2 * p.delta)
		q[0] += v * (d.X*d.X + s)
		q[1] += v * d.X * d.Y
		q[2] += v * d.X * d.Z
		q[3] += v * (d.Y*d.Y + s)
		q[4] += v * d.Y * d.Z
		q[5] += v * (d.Z*d.Z + s)
	}
	return mat.NewSymDense(3, []float64{
		q[0], q[1], q[2],
		q[1], q[3], q[4],
		q[2], q[4], q[5],
	})
}

// PrincipalAxes describes the inertial frame of a shape density.
type PrincipalAxes struct {
	Centroid r3.Vec
	// Axes are unit vectors sorted by descending moment and form a
	// right-handed frame.
	Axes    [3]r3.Vec
	Moments [3]float64
}

// Frame returns the transform taking world coordinates into the principal
// frame (centroid at the origin, axes along x, y, z).
func (a PrincipalAxes) Frame() Matrix4 {
	r := [3][3]float64{
		{a.Axes[0].X, a.Axes[0].Y, a.Axes[0].Z},
		{a.Axes[1].X, a.Axes[1].Y, a.Axes[1].Z},
		{a.Axes[2].X, a.Axes[2].Y, a.Axes[2].Z},
	}
	m := NewMatrix4(r, r3.Vec{})
	t := m.ApplyLinear(a.Centroid)
	m[0][3], m[1][3], m[2][3] = -t.X, -t.Y, -t.Z
	return m
}

// PrincipalAxes diagonalises the quadrupole tensor.
func (f *ShapeFunction) PrincipalAxes() (PrincipalAxes, error) {
	out := PrincipalAxes{Centroid: f.Centroid()}

	var eig mat.EigenSym
	if ok := eig.Factorize(f.QuadrupoleTensor(), true); !ok {
		return out, errors.New(errors.CodeInternal, "quadrupole eigen decomposition failed")
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	order := []int{0, 1, 2}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })
	for i, col := range order {
		out.Moments[i] = values[col]
		out.Axes[i] = r3.Unit(r3.Vec{X: vecs.At(0, col), Y: vecs.At(1, col), Z: vecs.At(2, col)})
	}
	out.Axes[2] = r3.Cross(out.Axes[0], out.Axes[1])
	if math.IsNaN(out.Axes[2].X) {
		return out, errors.New(errors.CodeInternal, "degenerate principal axes")
	}
	return out, nil
}
