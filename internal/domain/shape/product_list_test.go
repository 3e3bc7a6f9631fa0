package shape

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/pkg/errors"
)

func TestProductList_SingleElementVolumeIsSphereVolume(t *testing.T) {
	for _, hardness := range []float64{0.5, 1, DefaultHardness, 5} {
		for _, r := range []float64{0.8, 1.52, 1.7} {
			s := NewShape("atom", Element{Radius: r, Hardness: hardness})
			l := NewProductList()
			require.NoError(t, l.Setup(s))

			require.Equal(t, 1, l.NumProducts())
			p := l.Product(0)
			assert.Equal(t, hardness, p.WeightFactor())
			assert.InDelta(t, 4.0/3.0*math.Pi*r*r*r, l.Volume(), 1e-9)
			assert.InDelta(t, p.WeightFactor()*math.Pow(math.Pi/p.Delta(), 1.5), l.Volume(), 1e-12)
		}
	}
}

func TestProductList_ThreeMutuallyAdjacent(t *testing.T) {
	l := NewProductList()
	l.SetMaxOrder(3)
	l.SetDistanceCutoff(0)
	require.NoError(t, l.Setup(cluster(3)))

	require.Equal(t, 7, l.NumProducts())
	assert.Equal(t, 3, l.MaxProductOrder())

	want := [][]int{{0}, {1}, {2}, {0, 1}, {0, 1, 2}, {0, 2}, {1, 2}}
	for i, f := range want {
		p := l.Product(i)
		assert.Equal(t, i, p.Index())
		assert.Equal(t, f, p.Factors(), "product %d", i)
		assert.Equal(t, len(f)%2 == 1, p.IsOddOrder())
	}
}

func TestProductList_AllSubsets(t *testing.T) {
	for n := 1; n <= 6; n++ {
		l := NewProductList()
		l.SetMaxOrder(n)
		l.SetDistanceCutoff(0)
		require.NoError(t, l.Setup(cluster(n)))
		assert.Equal(t, 1<<n-1, l.NumProducts(), "n=%d", n)

		unbounded := NewProductList()
		unbounded.SetMaxOrder(0)
		unbounded.SetDistanceCutoff(0)
		require.NoError(t, unbounded.Setup(cluster(n)))
		assert.Equal(t, 1<<n-1, unbounded.NumProducts(), "unbounded n=%d", n)
	}
}

func TestProductList_MaxOrderCaps(t *testing.T) {
	l := NewProductList()
	l.SetDistanceCutoff(0)

	l.SetMaxOrder(1)
	require.NoError(t, l.Setup(cluster(4)))
	assert.Equal(t, 4, l.NumProducts())
	assert.False(t, l.HasHigherOrders())

	l.SetMaxOrder(2)
	require.NoError(t, l.Setup(cluster(4)))
	assert.Equal(t, 4+6, l.NumProducts())
	assert.Equal(t, 2, l.MaxProductOrder())
}

func TestProductList_DisconnectedElements(t *testing.T) {
	s := NewShape("pair", NewElement(0, 0, 0, 1.5), NewElement(10, 0, 0, 1.5))
	l := NewProductList()
	require.NoError(t, l.Setup(s))

	assert.Equal(t, 2, l.NumProducts())
	assert.False(t, l.Adjacent(0, 1))
	assert.Empty(t, l.Neighbors(0))
	v := 4.0 / 3.0 * math.Pi * 1.5 * 1.5 * 1.5
	assert.InDelta(t, 2*v, l.Volume(), 1e-9)
}

func TestProductList_ColorsNeverMix(t *testing.T) {
	a := NewElement(0, 0, 0, 1)
	b := NewElement(0.5, 0, 0, 1)
	b.Color = 3
	l := NewProductList()
	require.NoError(t, l.Setup(NewShape("mixed", a, b)))
	assert.Equal(t, 2, l.NumProducts())
	assert.False(t, l.Adjacent(0, 1))
}

func TestProductList_CutoffBoundaryIsInclusive(t *testing.T) {
	l := NewProductList()
	l.SetDistanceCutoff(0)

	require.NoError(t, l.Setup(NewShape("touching", NewElement(0, 0, 0, 1), NewElement(2, 0, 0, 1))))
	assert.True(t, l.Adjacent(0, 1))
	assert.True(t, l.Adjacent(1, 0))
	assert.False(t, l.Adjacent(0, 0))
	assert.Equal(t, 3, l.NumProducts())
	assert.Equal(t, 1, l.Degree(0))

	require.NoError(t, l.Setup(NewShape("apart", NewElement(0, 0, 0, 1), NewElement(2.001, 0, 0, 1))))
	assert.False(t, l.Adjacent(0, 1))
	assert.Equal(t, 2, l.NumProducts())
}

func TestProductList_ChainIsNotClique(t *testing.T) {
	// 0-1 and 1-2 touch, 0-2 do not.
	s := NewShape("chain", NewElement(0, 0, 0, 1), NewElement(1.5, 0, 0, 1), NewElement(3, 0, 0, 1))
	l := NewProductList()
	l.SetDistanceCutoff(0)
	require.NoError(t, l.Setup(s))

	assert.Equal(t, 5, l.NumProducts())
	for i := 0; i < l.NumProducts(); i++ {
		assert.LessOrEqual(t, l.Product(i).Order(), 2)
	}
}

func TestProductList_PairProductFormulas(t *testing.T) {
	s := NewShape("pair", NewElement(0, 0, 0, 1.7), Element{Position: r3.Vec{X: 1.4}, Radius: 1.2, Hardness: 2})
	l := NewProductList()
	require.NoError(t, l.Setup(s))
	require.Equal(t, 3, l.NumProducts())

	a, b, p := l.Product(0), l.Product(1), l.Product(2)
	delta := a.Delta() + b.Delta()
	assert.InDelta(t, delta, p.Delta(), 1e-12)

	wantCenter := r3.Scale(1/delta, r3.Add(r3.Scale(a.Delta(), a.Center()), r3.Scale(b.Delta(), b.Center())))
	assert.InDelta(t, wantCenter.X, p.Center().X, 1e-12)

	pairwise := a.Delta() * b.Delta() / delta * 1.4 * 1.4
	assert.InDelta(t, pairwise, p.FactorExp(), 1e-12)
	assert.InDelta(t, a.WeightFactor()*b.WeightFactor()*math.Exp(-pairwise), p.WeightFactor(), 1e-12)
	assert.InDelta(t, 4.0/3.0*math.Pi*math.Pow(p.Radius(), 3), p.Volume(), 1e-9)
	assert.InDelta(t, p.Delta()*p.Radius()*p.Radius(), p.Kappa(), 1e-12)

	assert.False(t, p.IsOddOrder())
	assert.Less(t, p.SignedVolume(), 0.0)
	assert.InDelta(t, a.Volume()+b.Volume()-p.Volume(), l.Volume(), 1e-9)
	assert.Less(t, l.Volume(), a.Volume()+b.Volume())
	assert.Greater(t, l.Volume(), a.Volume())
}

func TestProductList_FactorExpMatchesPairwiseSum(t *testing.T) {
	l := NewProductList()
	l.SetDistanceCutoff(0)
	require.NoError(t, l.Setup(cluster(4)))

	for i := 4; i < l.NumProducts(); i++ {
		p := l.Product(i)
		var e float64
		f := p.Factors()
		for x := 0; x < len(f); x++ {
			for y := x + 1; y < len(f); y++ {
				fx, fy := l.Product(f[x]), l.Product(f[y])
				e += fx.Delta() * fy.Delta() * r3.Norm2(r3.Sub(fx.Center(), fy.Center()))
			}
		}
		assert.InDelta(t, e/p.Delta(), p.FactorExp(), 1e-12, "product %v", f)
	}
}

func TestProductList_SetupReusesStorage(t *testing.T) {
	l := NewProductList()
	require.NoError(t, l.Setup(toluenol()))
	big := l.NumProducts()
	require.Greater(t, big, toluenol().NumElements())

	require.NoError(t, l.Setup(NewShape("single", NewElement(1, 2, 3, 1.5))))
	assert.Equal(t, 1, l.NumProducts())
	assert.Equal(t, 1, l.NumElements())
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, l.Product(0).Center())

	require.NoError(t, l.Setup(toluenol()))
	assert.Equal(t, big, l.NumProducts())
}

func TestProductList_Deterministic(t *testing.T) {
	a, b := NewProductList(), NewProductList()
	require.NoError(t, a.Setup(toluenol()))
	require.NoError(t, b.Setup(toluenol()))
	require.Equal(t, a.NumProducts(), b.NumProducts())
	for i := 0; i < a.NumProducts(); i++ {
		assert.Equal(t, a.Product(i).Factors(), b.Product(i).Factors())
	}
	assert.Equal(t, a.Volume(), b.Volume())
}

func TestProductList_InvalidInput(t *testing.T) {
	l := NewProductList()

	err := l.Setup(NewShape("empty"))
	assert.True(t, errors.IsCode(err, errors.ErrCodeEmptyShape))

	err = l.Setup(NewShape("bad", NewElement(0, 0, 0, 1), NewElement(1, 0, 0, 0)))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeElement))
	assert.Contains(t, err.Error(), "element=1")

	err = l.Setup(NewShape("soft", Element{Radius: 1, Hardness: -1}))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeElement))

	err = l.Setup(NewShape("nan", NewElement(math.NaN(), 0, 0, 1)))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeElement))

	l.SetMaxOrder(-1)
	err = l.Setup(cluster(2))
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeOptions))
}
