package shape

import "github.com/turtacn/keyshape/pkg/errors"

// DefaultTverskyAlpha weights the reference self-overlap in TverskyRef.
const DefaultTverskyAlpha = 0.95

// Tanimoto returns o / (sa + sb - o), or 0 when the denominator vanishes.
func Tanimoto(o, sa, sb float64) float64 {
	d := sa + sb - o
	if d <= 0 {
		return 0
	}
	return o / d
}

// Tversky returns o / (α·sa + (1-α)·sb).
func Tversky(o, sa, sb, alpha float64) float64 {
	d := alpha*sa + (1-alpha)*sb
	if d <= 0 {
		return 0
	}
	return o / d
}

// ScoreSet holds similarity scores for one reference/overlay pose.
type ScoreSet struct {
	Overlap            float64 `json:"overlap"`
	RefSelfOverlap     float64 `json:"ref_self_overlap"`
	OverlaySelfOverlap float64 `json:"overlay_self_overlap"`
	Tanimoto           float64 `json:"tanimoto"`
	TverskyRef         float64 `json:"tversky_ref"`
	TverskyOverlay     float64 `json:"tversky_overlay"`
	ShapeTanimoto      float64 `json:"shape_tanimoto"`
	ColorTanimoto      float64 `json:"color_tanimoto"`
	ComboScore         float64 `json:"combo_score"`
}

// ScoreMetric names the ScoreSet field used for ranking.
type ScoreMetric string

const (
	MetricTanimoto      ScoreMetric = "tanimoto"
	MetricTverskyRef    ScoreMetric = "tversky_ref"
	MetricShapeTanimoto ScoreMetric = "shape_tanimoto"
	MetricComboScore    ScoreMetric = "combo"
)

// ParseScoreMetric validates a metric name.
func ParseScoreMetric(s string) (ScoreMetric, error) {
	switch m := ScoreMetric(s); m {
	case MetricTanimoto, MetricTverskyRef, MetricShapeTanimoto, MetricComboScore:
		return m, nil
	}
	return "", errors.Newf(errors.ErrCodeValidation, "unsupported score metric: %s", s)
}

// Value returns the score selected by m; unknown metrics fall back to Tanimoto.
func (s ScoreSet) Value(m ScoreMetric) float64 {
	switch m {
	case MetricTverskyRef:
		return s.TverskyRef
	case MetricShapeTanimoto:
		return s.ShapeTanimoto
	case MetricComboScore:
		return s.ComboScore
	default:
		return s.Tanimoto
	}
}

// Score evaluates fn at xform and derives the full ScoreSet.  Shape and color
// components are computed by temporarily filtering on ShapeColor; the filter
// previously set on fn is restored afterwards.
func Score(fn OverlapFunction, xform Matrix4) (ScoreSet, error) {
	var s ScoreSet
	var err error

	total := func() (o, sa, sb float64, err error) {
		if o, err = fn.OverlapAt(xform); err != nil {
			return
		}
		if sa, err = fn.SelfOverlap(true); err != nil {
			return
		}
		sb, err = fn.SelfOverlap(false)
		return
	}

	if s.Overlap, s.RefSelfOverlap, s.OverlaySelfOverlap, err = total(); err != nil {
		return s, err
	}
	s.Tanimoto = Tanimoto(s.Overlap, s.RefSelfOverlap, s.OverlaySelfOverlap)
	s.TverskyRef = Tversky(s.Overlap, s.RefSelfOverlap, s.OverlaySelfOverlap, DefaultTverskyAlpha)
	s.TverskyOverlay = Tversky(s.Overlap, s.OverlaySelfOverlap, s.RefSelfOverlap, DefaultTverskyAlpha)

	defer fn.SetColorFilterFunc(fn.ColorFilterFunc())

	fn.SetColorFilterFunc(func(c int) bool { return c == ShapeColor })
	o, sa, sb, err := total()
	if err != nil {
		return s, err
	}
	s.ShapeTanimoto = Tanimoto(o, sa, sb)

	fn.SetColorFilterFunc(func(c int) bool { return c != ShapeColor })
	o, sa, sb, err = total()
	if err != nil {
		return s, err
	}
	s.ColorTanimoto = Tanimoto(o, sa, sb)
	s.ComboScore = s.ShapeTanimoto + s.ColorTanimoto
	return s, nil
}
