package alignment

import (
	"context"

	"github.com/turtacn/keyshape/internal/domain/shape"
	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// Service defines the application operations exposed by the HTTP API, the
// CLI and the screening worker.
type Service interface {
	Properties(ctx context.Context, req *shapetypes.PropertiesRequest) (*shapetypes.PropertiesResponse, error)
	Overlap(ctx context.Context, req *shapetypes.OverlapRequest) (*shapetypes.OverlapResponse, error)
	Align(ctx context.Context, req *shapetypes.AlignRequest) (*shapetypes.AlignResponse, error)
	Screen(ctx context.Context, req *shapetypes.ScreenRequest) (*shapetypes.ScreenResponse, error)
}

// serviceImpl implements the Service interface.
type serviceImpl struct {
	aligner *Aligner
	logger  logging.Logger
}

// NewService creates a new alignment service.
func NewService(aligner *Aligner, logger logging.Logger) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &serviceImpl{aligner: aligner, logger: logger}
}

func (s *serviceImpl) productOptions(o *shapetypes.ProductOptions) shape.ProductListOptions {
	opts := s.aligner.opts.Products
	if o == nil {
		return opts
	}
	if o.MaxOrder != nil {
		opts.MaxOrder = *o.MaxOrder
	}
	if o.DistanceCutoff != nil {
		opts.DistanceCutoff = *o.DistanceCutoff
	}
	return opts
}

// Properties computes volume, surface area, centroid and principal axes.
func (s *serviceImpl) Properties(ctx context.Context, req *shapetypes.PropertiesRequest) (*shapetypes.PropertiesResponse, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	sh, err := ShapeFromDTO(req.Shape)
	if err != nil {
		return nil, err
	}
	fn, err := shape.NewShapeFunctionFor(sh, s.productOptions(req.Options))
	if err != nil {
		return nil, err
	}
	list := fn.ProductList()
	s.aligner.metrics.ObserveProducts(list.NumProducts())

	resp := &shapetypes.PropertiesResponse{
		Name:                sh.Name,
		NumElements:         sh.NumElements(),
		NumProducts:         list.NumProducts(),
		MaxProductOrder:     list.MaxProductOrder(),
		Volume:              fn.Volume(),
		SurfaceArea:         fn.SurfaceArea(),
		ElementSurfaceAreas: fn.ElementSurfaceAreas(),
		Centroid:            vecToDTO(fn.Centroid()),
	}
	axes, err := fn.PrincipalAxes()
	if err != nil {
		return nil, err
	}
	for i := range axes.Axes {
		resp.PrincipalAxes[i] = vecToDTO(axes.Axes[i])
		resp.PrincipalMoments[i] = axes.Moments[i]
	}
	return resp, nil
}

// Overlap scores the overlay, optionally transformed, against the reference
// without optimisation.
func (s *serviceImpl) Overlap(ctx context.Context, req *shapetypes.OverlapRequest) (*shapetypes.OverlapResponse, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	ref, err := ShapeFromDTO(req.Reference)
	if err != nil {
		return nil, err
	}
	ovl, err := ShapeFromDTO(req.Overlay)
	if err != nil {
		return nil, err
	}

	xform := shape.IdentityMatrix()
	if len(req.Transform) > 0 {
		if xform, err = shape.Matrix4FromSlice(req.Transform); err != nil {
			return nil, err
		}
	}

	strategy := s.aligner.opts.Strategy
	if req.Strategy != "" {
		if strategy, err = shape.ParseStrategy(req.Strategy); err != nil {
			return nil, err
		}
	}

	opts := s.productOptions(req.Options)
	refFn, err := shape.NewShapeFunctionFor(ref, opts)
	if err != nil {
		return nil, err
	}
	ovlFn, err := shape.NewShapeFunctionFor(ovl, opts)
	if err != nil {
		return nil, err
	}
	fn, err := s.aligner.newOverlapFunction(strategy)
	if err != nil {
		return nil, err
	}
	fn.SetShapeFunction(refFn, true)
	fn.SetShapeFunction(ovlFn, false)

	scores, err := shape.Score(fn, xform)
	if err != nil {
		return nil, err
	}
	return &shapetypes.OverlapResponse{Strategy: string(strategy), Scores: scoresToDTO(scores)}, nil
}

// Align runs the multi-start alignment.
func (s *serviceImpl) Align(ctx context.Context, req *shapetypes.AlignRequest) (*shapetypes.AlignResponse, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	ref, err := ShapeFromDTO(req.Reference)
	if err != nil {
		return nil, err
	}
	ovl, err := ShapeFromDTO(req.Overlay)
	if err != nil {
		return nil, err
	}
	res, err := s.aligner.Align(ctx, ref, ovl)
	if err != nil {
		return nil, err
	}
	return ResultToDTO(ref.Name, ovl.Name, res), nil
}

// Screen aligns and ranks every candidate.  A malformed candidate is
// reported as a failure rather than rejecting the whole request.
func (s *serviceImpl) Screen(ctx context.Context, req *shapetypes.ScreenRequest) (*shapetypes.ScreenResponse, error) {
	if req == nil {
		return nil, errors.InvalidParam("request is required")
	}
	if len(req.Candidates) == 0 {
		return nil, errors.InvalidParam("at least one candidate is required")
	}
	ref, err := ShapeFromDTO(req.Reference)
	if err != nil {
		return nil, err
	}

	so := ScreenOptions{TopN: s.aligner.opts.TopN, MinScore: s.aligner.opts.MinScore}
	if req.TopN != nil {
		so.TopN = *req.TopN
	}
	if req.MinScore != nil {
		so.MinScore = *req.MinScore
	}

	candidates := make([]*shape.Shape, 0, len(req.Candidates))
	indexes := make([]int, 0, len(req.Candidates))
	var invalid []Failure
	for i, c := range req.Candidates {
		sh, err := ShapeFromDTO(c)
		if err != nil {
			invalid = append(invalid, Failure{Index: i, Name: c.Name, Err: err})
			continue
		}
		candidates = append(candidates, sh)
		indexes = append(indexes, i)
	}

	res, err := s.aligner.Screen(ctx, ref, candidates, so)
	if err != nil {
		return nil, err
	}
	// Map indexes back to the request order.
	for i := range res.Hits {
		res.Hits[i].Index = indexes[res.Hits[i].Index]
	}
	for i := range res.Failures {
		res.Failures[i].Index = indexes[res.Failures[i].Index]
	}
	res.Failures = mergeFailures(invalid, res.Failures)
	res.Screened = len(req.Candidates)

	s.logger.Debug("screen request served",
		logging.Int("candidates", len(req.Candidates)),
		logging.Int("invalid", len(invalid)))
	return ScreenResultToDTO(res), nil
}

func mergeFailures(a, b []Failure) []Failure {
	out := make([]Failure, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].Index < b[j].Index {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}
