package alignment

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/domain/shape"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// ShapeFromDTO converts and validates a transport shape.  A zero hardness
// selects shape.DefaultHardness.
func ShapeFromDTO(d shapetypes.ShapeDTO) (*shape.Shape, error) {
	elements := make([]shape.Element, len(d.Elements))
	for i, e := range d.Elements {
		h := e.Hardness
		if h == 0 {
			h = shape.DefaultHardness
		}
		elements[i] = shape.Element{
			Position: r3.Vec{X: e.X, Y: e.Y, Z: e.Z},
			Radius:   e.Radius,
			Hardness: h,
			Color:    e.Color,
		}
	}
	s := shape.NewShape(d.Name, elements...)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// ShapeToDTO converts a domain shape for transport.
func ShapeToDTO(s *shape.Shape) shapetypes.ShapeDTO {
	out := shapetypes.ShapeDTO{Name: s.Name, Elements: make([]shapetypes.ElementDTO, len(s.Elements))}
	for i, e := range s.Elements {
		out.Elements[i] = shapetypes.ElementDTO{
			X:        e.Position.X,
			Y:        e.Position.Y,
			Z:        e.Position.Z,
			Radius:   e.Radius,
			Hardness: e.Hardness,
			Color:    e.Color,
		}
	}
	return out
}

func vecToDTO(v r3.Vec) shapetypes.Vec3 {
	return shapetypes.Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

func scoresToDTO(s shape.ScoreSet) shapetypes.Scores {
	return shapetypes.Scores{
		Overlap:            s.Overlap,
		RefSelfOverlap:     s.RefSelfOverlap,
		OverlaySelfOverlap: s.OverlaySelfOverlap,
		Tanimoto:           s.Tanimoto,
		TverskyRef:         s.TverskyRef,
		TverskyOverlay:     s.TverskyOverlay,
		ShapeTanimoto:      s.ShapeTanimoto,
		ColorTanimoto:      s.ColorTanimoto,
		ComboScore:         s.ComboScore,
	}
}

// ResultToDTO converts an alignment result for transport.
func ResultToDTO(ref, overlay string, r *Result) *shapetypes.AlignResponse {
	return &shapetypes.AlignResponse{
		Reference:   ref,
		Overlay:     overlay,
		Transform:   r.Transform.Flatten(),
		Quaternion:  [4]float64{r.Pose[0], r.Pose[1], r.Pose[2], r.Pose[3]},
		Translation: vecToDTO(r.Pose.Translation()),
		Metric:      string(r.Metric),
		Score:       r.Score,
		Scores:      scoresToDTO(r.Scores),
		Starts:      r.Starts,
		Evaluations: r.Evaluations,
		Cached:      r.Cached,
		DurationMs:  r.Duration.Milliseconds(),
	}
}

// ScreenResultToDTO converts a screening result for transport.
func ScreenResultToDTO(r *ScreenResult) *shapetypes.ScreenResponse {
	out := &shapetypes.ScreenResponse{
		Metric:     string(r.Metric),
		Screened:   r.Screened,
		Hits:       make([]shapetypes.ScreenHit, len(r.Hits)),
		DurationMs: r.Duration.Milliseconds(),
	}
	for i, h := range r.Hits {
		out.Hits[i] = shapetypes.ScreenHit{
			Rank:      i + 1,
			Index:     h.Index,
			Name:      h.Name,
			Score:     h.Result.Score,
			Scores:    scoresToDTO(h.Result.Scores),
			Transform: h.Result.Transform.Flatten(),
		}
	}
	for _, f := range r.Failures {
		out.Failures = append(out.Failures, shapetypes.ScreenFailure{Index: f.Index, Name: f.Name, Error: f.Err.Error()})
	}
	return out
}
