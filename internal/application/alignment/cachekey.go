package alignment

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/turtacn/keyshape/internal/domain/shape"
)

// hashShape digests element geometry and colors.  The name is ignored so
// that renamed copies share cache entries.
func hashShape(s *shape.Shape) uint64 {
	d := xxhash.New()
	var buf [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	for _, e := range s.Elements {
		put(e.Position.X)
		put(e.Position.Y)
		put(e.Position.Z)
		put(e.Radius)
		put(e.Hardness)
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(e.Color)))
		_, _ = d.Write(buf[:])
	}
	return d.Sum64()
}

// settingsHash digests every option that changes an alignment result.
func (a *Aligner) settingsHash() uint64 {
	o := a.opts
	return xxhash.Sum64String(fmt.Sprintf("%d|%g|%s|%t|%t|%g|%g|%d|%g|%s|%d|%d|%s",
		o.Products.MaxOrder, o.Products.DistanceCutoff,
		o.Strategy, o.Policy.FastExp, o.Policy.Proximity, o.Policy.RadiusScale,
		o.QuatPenaltyFactor, o.MaxIterations, o.GradientThreshold,
		o.StartMode, o.RandomStarts, o.Seed, o.Metric))
}

func (a *Aligner) cacheKey(ref, overlay uint64) string {
	return fmt.Sprintf("align:%016x:%016x:%016x", ref, overlay, a.settingsHash())
}
