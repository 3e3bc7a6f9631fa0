package client

import (
	"context"
	"net/url"
	"strconv"

	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// LibrariesClient calls the /api/v1/libraries endpoints.
type LibrariesClient struct {
	client *Client
}

// ListOptions selects a page.  Zero values use the server defaults.
type ListOptions struct {
	Page     int
	PageSize int
}

func (o ListOptions) encode() string {
	q := url.Values{}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(o.PageSize))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

func libraryPath(name string, suffix string) string {
	return "/api/v1/libraries/" + url.PathEscape(name) + suffix
}

func (l *LibrariesClient) Create(ctx context.Context, req *shapetypes.CreateLibraryRequest) (*shapetypes.LibraryDTO, error) {
	var resp shapetypes.LibraryDTO
	if err := l.client.post(ctx, "/api/v1/libraries", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (l *LibrariesClient) Get(ctx context.Context, name string) (*shapetypes.LibraryDTO, error) {
	var resp shapetypes.LibraryDTO
	if err := l.client.get(ctx, libraryPath(name, ""), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (l *LibrariesClient) List(ctx context.Context, opts ListOptions) (*shapetypes.ListLibrariesResponse, error) {
	var resp shapetypes.ListLibrariesResponse
	if err := l.client.get(ctx, "/api/v1/libraries"+opts.encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Delete removes the library and every stored shape.
func (l *LibrariesClient) Delete(ctx context.Context, name string) error {
	return l.client.delete(ctx, libraryPath(name, ""), nil)
}

// AddShapes appends shapes.  The server rejects the whole batch when any
// shape is invalid.
func (l *LibrariesClient) AddShapes(ctx context.Context, name string, req *shapetypes.AddShapesRequest) (*shapetypes.AddShapesResponse, error) {
	var resp shapetypes.AddShapesResponse
	if err := l.client.post(ctx, libraryPath(name, "/shapes"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (l *LibrariesClient) ListShapes(ctx context.Context, name string, opts ListOptions) (*shapetypes.ListShapesResponse, error) {
	var resp shapetypes.ListShapesResponse
	if err := l.client.get(ctx, libraryPath(name, "/shapes")+opts.encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Screen ranks the library's shapes against req.Reference.  Hit indexes are
// library positions.
func (l *LibrariesClient) Screen(ctx context.Context, name string, req *shapetypes.LibraryScreenRequest) (*shapetypes.ScreenResponse, error) {
	var resp shapetypes.ScreenResponse
	if err := l.client.post(ctx, libraryPath(name, "/screen"), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
