package cli

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/application/alignment"
	"github.com/turtacn/keyshape/internal/application/library"
	"github.com/turtacn/keyshape/internal/interfaces/http/handlers"
	"github.com/turtacn/keyshape/internal/testutil"
	"github.com/turtacn/keyshape/pkg/client"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

func newShapeServer(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts, err := alignment.OptionsFromConfig(testutil.Config())
	require.NoError(t, err)
	svc := alignment.NewService(alignment.NewAligner(opts, nil), nil)

	r := gin.New()
	api := r.Group("/api/v1")
	handlers.NewShapeHandler(svc, nil).RegisterRoutes(api)
	libs := library.NewService(testutil.NewMemoryLibraryRepository(), svc, nil)
	handlers.NewLibraryHandler(libs, nil).RegisterRoutes(api)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestAlign_RemoteServer(t *testing.T) {
	url := newShapeServer(t)
	dir := t.TempDir()
	ref := testutil.Toluenol()
	refPath := writeJSON(t, dir, "ref.json", testutil.DTO(ref))
	ovlPath := writeJSON(t, dir, "ovl.json", testutil.DTO(testutil.Moved(ref, r3.Vec{Z: 1}, 0.4, r3.Vec{X: 1})))

	out, err := runCLI(t, "", "--server", url, "-o", "json", "align", "--ref", refPath, "--overlay", ovlPath)
	require.NoError(t, err)

	var resp shapetypes.AlignResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "toluenol-moved", resp.Overlay)
	assert.Greater(t, resp.Score, 0.99)
}

func TestProperties_RemoteValidationError(t *testing.T) {
	url := newShapeServer(t)

	_, err := runCLI(t, "0 0 0 1.7\n1 0 0 -1\n", "--server", url, "properties", "-f", "-")
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, string(errors.ErrCodeInvalidShapeElement), apiErr.Code)
}

func TestInitService_BadServerURL(t *testing.T) {
	_, err := runCLI(t, "", "--server", "ftp://nowhere", "properties", "-f", "-")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestLibrary_RemoteWorkflow(t *testing.T) {
	url := newShapeServer(t)
	dir := t.TempDir()
	ref := testutil.Toluenol()
	refPath := writeJSON(t, dir, "ref.json", testutil.DTO(ref))
	libPath := writeJSON(t, dir, "lib.json", []shapetypes.ShapeDTO{
		testutil.DTO(testutil.Rod("rod", 3)),
		testutil.DTO(testutil.Moved(ref, r3.Vec{X: 1}, 0.8, r3.Vec{Y: 2})),
	})

	out, err := runCLI(t, "", "--server", url, "library", "create", "fragments", "--description", "test set")
	require.NoError(t, err)
	assert.Contains(t, out, "fragments  0 shapes")

	out, err = runCLI(t, "", "--server", url, "library", "add", "fragments", "-f", libPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Added 2 shapes to fragments at positions 0-1")

	out, err = runCLI(t, "", "--server", url, "-o", "json", "library", "screen", "fragments", "--ref", refPath, "--top-n", "1")
	require.NoError(t, err)
	var resp shapetypes.ScreenResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Hits, 1)
	assert.Equal(t, 1, resp.Hits[0].Index)
	assert.Equal(t, "toluenol-moved", resp.Hits[0].Name)

	out, err = runCLI(t, "", "--server", url, "-o", "table", "library", "shapes", "fragments")
	require.NoError(t, err)
	assert.Contains(t, out, "toluenol-moved")

	_, err = runCLI(t, "", "--server", url, "library", "delete", "fragments")
	require.NoError(t, err)

	_, err = runCLI(t, "", "--server", url, "library", "get", "fragments")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
}

func TestLibrary_RequiresServer(t *testing.T) {
	_, err := runCLI(t, "", "library", "list")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}
