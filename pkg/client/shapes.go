package client

import (
	"context"

	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// ShapesClient calls the /api/v1/shapes endpoints.  Its method set matches
// the server-side shape service, so it can stand in for a local one.
type ShapesClient struct {
	client *Client
}

func (s *ShapesClient) Properties(ctx context.Context, req *shapetypes.PropertiesRequest) (*shapetypes.PropertiesResponse, error) {
	var resp shapetypes.PropertiesResponse
	if err := s.client.post(ctx, "/api/v1/shapes/properties", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s *ShapesClient) Overlap(ctx context.Context, req *shapetypes.OverlapRequest) (*shapetypes.OverlapResponse, error) {
	var resp shapetypes.OverlapResponse
	if err := s.client.post(ctx, "/api/v1/shapes/overlap", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Align finds the best rigid motion of req.Overlay onto req.Reference.
func (s *ShapesClient) Align(ctx context.Context, req *shapetypes.AlignRequest) (*shapetypes.AlignResponse, error) {
	var resp shapetypes.AlignResponse
	if err := s.client.post(ctx, "/api/v1/shapes/align", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Screen aligns every candidate onto the reference and returns ranked hits.
func (s *ShapesClient) Screen(ctx context.Context, req *shapetypes.ScreenRequest) (*shapetypes.ScreenResponse, error) {
	var resp shapetypes.ScreenResponse
	if err := s.client.post(ctx, "/api/v1/shapes/screen", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
