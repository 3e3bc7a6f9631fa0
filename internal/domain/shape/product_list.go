package shape

import (
	"math/bits"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

const (
	// DefaultMaxOrder caps the number of factors per product.
	DefaultMaxOrder = 6
	// DefaultDistanceCutoff is added to the radius sum when testing adjacency.
	DefaultDistanceCutoff = -0.3
)

// ProductListOptions configures product generation.
type ProductListOptions struct {
	// MaxOrder is the largest factor count; 0 means unbounded, 1 keeps only
	// primitives.
	MaxOrder int
	// DistanceCutoff relaxes (positive) or tightens (negative) the touching
	// radii adjacency test.
	DistanceCutoff float64
}

// DefaultProductListOptions returns MaxOrder 6 and DistanceCutoff -0.3.
func DefaultProductListOptions() ProductListOptions {
	return ProductListOptions{MaxOrder: DefaultMaxOrder, DistanceCutoff: DefaultDistanceCutoff}
}

// Validate rejects negative orders.
func (o ProductListOptions) Validate() error {
	if o.MaxOrder < 0 {
		return errors.Newf(errors.ErrCodeInvalidShapeOptions, "max order must be >= 0, got %d", o.MaxOrder)
	}
	return nil
}

// bitMatrix is a square adjacency matrix packed into uint64 words.
type bitMatrix struct {
	n     int
	words int
	bits  []uint64
}

func (m *bitMatrix) reset(n int) {
	m.n = n
	m.words = (n + 63) / 64
	size := n * m.words
	if cap(m.bits) < size {
		m.bits = make([]uint64, size)
	}
	m.bits = m.bits[:size]
	for i := range m.bits {
		m.bits[i] = 0
	}
}

func (m *bitMatrix) set(i, j int) {
	m.bits[i*m.words+j/64] |= 1 << uint(j%64)
}

func (m *bitMatrix) test(i, j int) bool {
	return m.bits[i*m.words+j/64]&(1<<uint(j%64)) != 0
}

func (m *bitMatrix) rowCount(i int) int {
	var c int
	for _, w := range m.bits[i*m.words : (i+1)*m.words] {
		c += bits.OnesCount64(w)
	}
	return c
}

// ProductList builds and owns every Gaussian product of one shape.  The
// first NumElements products are the primitives in element order; higher
// orders follow in depth-first generation order.  A list is read-only after
// Setup and may then be shared between goroutines.
type ProductList struct {
	opts        ProductListOptions
	numElements int
	adjacency   bitMatrix
	neighbors   [][]int
	products    []Product
	volume      float64
	maxOrder    int
}

// NewProductList returns an empty list with default options.
func NewProductList() *ProductList {
	return &ProductList{opts: DefaultProductListOptions()}
}

// SetMaxOrder sets the factor cap used by the next Setup.
func (l *ProductList) SetMaxOrder(n int) { l.opts.MaxOrder = n }

// MaxOrder returns the configured factor cap.
func (l *ProductList) MaxOrder() int { return l.opts.MaxOrder }

// SetDistanceCutoff sets the adjacency slack used by the next Setup.
func (l *ProductList) SetDistanceCutoff(d float64) { l.opts.DistanceCutoff = d }

// DistanceCutoff returns the adjacency slack.
func (l *ProductList) DistanceCutoff() float64 { return l.opts.DistanceCutoff }

// SetOptions replaces both settings.
func (l *ProductList) SetOptions(o ProductListOptions) { l.opts = o }

// Setup rebuilds the list from s.  Product storage from a previous Setup is
// reused.
func (l *ProductList) Setup(s *Shape) error {
	if err := l.opts.Validate(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	n := len(s.Elements)
	l.numElements = n
	l.volume = 0
	l.maxOrder = 1
	l.products = l.products[:0]
	l.buildAdjacency(s.Elements)

	for i, e := range s.Elements {
		idx := l.alloc()
		l.products[idx].initElement(i, e)
		l.volume += l.products[idx].volume
	}
	if l.opts.MaxOrder == 1 {
		return nil
	}

	factors := make([]int, 1, 8)
	for i := 0; i < n; i++ {
		factors[0] = i
		factors = l.grow(factors[:1])
	}
	return nil
}

func (l *ProductList) buildAdjacency(elements []Element) {
	n := len(elements)
	l.adjacency.reset(n)
	if cap(l.neighbors) < n {
		l.neighbors = make([][]int, n)
	}
	l.neighbors = l.neighbors[:n]
	for i := range l.neighbors {
		l.neighbors[i] = l.neighbors[i][:0]
	}

	for i := 0; i < n; i++ {
		ei := elements[i]
		for j := i + 1; j < n; j++ {
			ej := elements[j]
			if ei.Color != ej.Color {
				continue
			}
			limit := ei.Radius + ej.Radius + l.opts.DistanceCutoff
			if limit < 0 {
				continue
			}
			if r3.Norm2(r3.Sub(ei.Position, ej.Position)) <= limit*limit {
				l.adjacency.set(i, j)
				l.adjacency.set(j, i)
				l.neighbors[i] = append(l.neighbors[i], j)
			}
		}
	}
}

// grow extends the clique held in factors by every forward neighbor of its
// last element that is adjacent to all current factors.
func (l *ProductList) grow(factors []int) []int {
	if l.opts.MaxOrder > 0 && len(factors) >= l.opts.MaxOrder {
		return factors
	}
	last := factors[len(factors)-1]
	for _, j := range l.neighbors[last] {
		if !l.adjacentToAll(j, factors) {
			continue
		}
		factors = append(factors, j)

		idx := l.alloc()
		p := &l.products[idx]
		p.initFactors(idx, factors, l.products[:l.numElements])
		l.volume += p.SignedVolume()
		if len(factors) > l.maxOrder {
			l.maxOrder = len(factors)
		}

		factors = l.grow(factors)
		factors = factors[:len(factors)-1]
	}
	return factors
}

func (l *ProductList) adjacentToAll(j int, factors []int) bool {
	for _, f := range factors {
		if !l.adjacency.test(f, j) {
			return false
		}
	}
	return true
}

// alloc appends a product slot, reusing storage when available.
func (l *ProductList) alloc() int {
	idx := len(l.products)
	if idx < cap(l.products) {
		l.products = l.products[:idx+1]
	} else {
		l.products = append(l.products, Product{})
	}
	return idx
}

// NumElements returns the element count of the last Setup.
func (l *ProductList) NumElements() int { return l.numElements }

// NumProducts returns the total product count including primitives.
func (l *ProductList) NumProducts() int { return len(l.products) }

// Product returns the i-th product.
func (l *ProductList) Product(i int) *Product { return &l.products[i] }

// Products returns the product arena.  The slice must not be modified.
func (l *ProductList) Products() []Product { return l.products }

// Volume returns the signed inclusion–exclusion volume.
func (l *ProductList) Volume() float64 { return l.volume }

// MaxProductOrder returns the highest factor count generated.
func (l *ProductList) MaxProductOrder() int { return l.maxOrder }

// HasHigherOrders reports whether any product has more than one factor.
func (l *ProductList) HasHigherOrders() bool { return len(l.products) > l.numElements }

// Adjacent reports whether elements i and j may co-occur in a product.
func (l *ProductList) Adjacent(i, j int) bool {
	if i == j {
		return false
	}
	return l.adjacency.test(i, j)
}

// Neighbors returns the forward (higher-index) neighbors of element i.
func (l *ProductList) Neighbors(i int) []int { return l.neighbors[i] }

// Degree returns the total number of elements adjacent to element i.
func (l *ProductList) Degree(i int) int { return l.adjacency.rowCount(i) }
