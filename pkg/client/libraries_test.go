package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

func TestLibraries_Routes(t *testing.T) {
	type call struct{ method, uri string }
	var calls []call

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, call{r.Method, r.URL.RequestURI()})
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/libraries":
			var req shapetypes.CreateLibraryRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.WriteHeader(http.StatusCreated)
			writeData(w, shapetypes.LibraryDTO{ID: "id-1", Name: req.Name})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/libraries":
			writeData(w, shapetypes.ListLibrariesResponse{Total: 3, Page: 2, PageSize: 1})
		case r.Method == http.MethodDelete:
			writeData(w, shapetypes.DeleteLibraryResponse{Library: "fragments", Deleted: true})
		case r.URL.Path == "/api/v1/libraries/fragments/shapes" && r.Method == http.MethodPost:
			writeData(w, shapetypes.AddShapesResponse{Library: "fragments", Added: 1, FirstPosition: 2, ShapeCount: 3})
		case r.URL.Path == "/api/v1/libraries/fragments/shapes":
			writeData(w, shapetypes.ListShapesResponse{Library: "fragments", Total: 3})
		case r.URL.Path == "/api/v1/libraries/fragments/screen":
			writeData(w, shapetypes.ScreenResponse{Screened: 3, Hits: []shapetypes.ScreenHit{{Rank: 1, Index: 2}}})
		default:
			writeData(w, shapetypes.LibraryDTO{Name: "fragments", ShapeCount: 3})
		}
	})
	libs := c.Libraries()
	assert.Same(t, libs, c.Libraries())
	ctx := context.Background()

	created, err := libs.Create(ctx, &shapetypes.CreateLibraryRequest{Name: "fragments"})
	require.NoError(t, err)
	assert.Equal(t, "fragments", created.Name)

	got, err := libs.Get(ctx, "fragments")
	require.NoError(t, err)
	assert.Equal(t, 3, got.ShapeCount)

	list, err := libs.List(ctx, ListOptions{Page: 2, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)

	added, err := libs.AddShapes(ctx, "fragments", &shapetypes.AddShapesRequest{Shapes: []shapetypes.ShapeDTO{{Name: "a"}}})
	require.NoError(t, err)
	assert.Equal(t, 2, added.FirstPosition)

	entries, err := libs.ListShapes(ctx, "fragments", ListOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, entries.Total)

	screened, err := libs.Screen(ctx, "fragments", &shapetypes.LibraryScreenRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, screened.Hits[0].Index)

	require.NoError(t, libs.Delete(ctx, "fragments"))

	assert.Equal(t, []call{
		{http.MethodPost, "/api/v1/libraries"},
		{http.MethodGet, "/api/v1/libraries/fragments"},
		{http.MethodGet, "/api/v1/libraries?page=2&page_size=1"},
		{http.MethodPost, "/api/v1/libraries/fragments/shapes"},
		{http.MethodGet, "/api/v1/libraries/fragments/shapes"},
		{http.MethodPost, "/api/v1/libraries/fragments/screen"},
		{http.MethodDelete, "/api/v1/libraries/fragments"},
	}, calls)
}

func TestLibraries_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "LIB_001", "shape library not found")
	})

	_, err := c.Libraries().Get(context.Background(), "ghost")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "LIB_001", apiErr.Code)
}

func TestListOptionsEncode(t *testing.T) {
	assert.Equal(t, "", ListOptions{}.encode())
	assert.Equal(t, "?page=3", ListOptions{Page: 3}.encode())
	assert.Equal(t, "?page=1&page_size=50", ListOptions{Page: 1, PageSize: 50}.encode())
}
