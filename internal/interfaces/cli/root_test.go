package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/turtacn/keyshape/internal/testutil"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--no-color", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeJSON(t *testing.T, dir, name string, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "keyshape", cmd.Use)
	assert.NotEmpty(t, cmd.Short)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"properties", "overlap", "align", "screen", "library"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
	for _, flag := range []string{"config", "output", "verbose", "no-color", "timeout", "log-level", "server", "api-key"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "missing flag %q", flag)
	}
}

func TestProperties_TextAndJSON(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "tol.json", testutil.DTO(testutil.Toluenol()))

	out, err := runCLI(t, "", "properties", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Shape:         toluenol")
	assert.Contains(t, out, "Volume:")

	out, err = runCLI(t, "", "-o", "json", "properties", "-f", path, "--max-order", "1")
	require.NoError(t, err)
	var resp shapetypes.PropertiesResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "toluenol", resp.Name)
	assert.Equal(t, resp.NumElements, resp.NumProducts)
	assert.Equal(t, 1, resp.MaxProductOrder)
}

func TestProperties_ElementLinesFromStdin(t *testing.T) {
	input := "# x y z r\n0 0 0 1.7\n1.4 0 0 1.7 2.7\n"
	out, err := runCLI(t, input, "-o", "table", "properties", "-f", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "SURFACE AREA")
	assert.Contains(t, out, "volume")
}

func TestProperties_Errors(t *testing.T) {
	_, err := runCLI(t, "", "properties")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file")

	_, err = runCLI(t, "0 0 0\n", "properties", "-f", "-")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))

	_, err = runCLI(t, "0 0 0 -1\n", "properties", "-f", "-")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidShapeElement))

	_, err = runCLI(t, "0 0 0 1\n", "-o", "yaml", "properties", "-f", "-")
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestOverlap_WithTransform(t *testing.T) {
	dir := t.TempDir()
	path := writeJSON(t, dir, "tol.json", testutil.DTO(testutil.Toluenol()))

	out, err := runCLI(t, "", "-o", "json", "overlap", "--ref", path, "--overlay", path, "--strategy", "exact")
	require.NoError(t, err)
	var same shapetypes.OverlapResponse
	require.NoError(t, json.Unmarshal([]byte(out), &same))
	assert.InDelta(t, 1, same.Scores.Tanimoto, 1e-6)

	shift := "1,0,0,3, 0,1,0,0, 0,0,1,0, 0,0,0,1"
	out, err = runCLI(t, "", "-o", "json", "overlap", "--ref", path, "--overlay", path, "--transform", shift)
	require.NoError(t, err)
	var moved shapetypes.OverlapResponse
	require.NoError(t, json.Unmarshal([]byte(out), &moved))
	assert.Less(t, moved.Scores.Tanimoto, same.Scores.Tanimoto)

	_, err = runCLI(t, "", "overlap", "--ref", path, "--overlay", path, "--transform", "1,2,3")
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidTransform))
}

func TestAlign_RecoversPose(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.Toluenol()
	refPath := writeJSON(t, dir, "ref.json", testutil.DTO(ref))
	ovlPath := writeJSON(t, dir, "ovl.json", testutil.DTO(testutil.Moved(ref, r3.Vec{Z: 1}, 0.9, r3.Vec{X: 2})))

	out, err := runCLI(t, "", "-o", "json", "align", "--ref", refPath, "--overlay", ovlPath)
	require.NoError(t, err)
	var resp shapetypes.AlignResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Greater(t, resp.Score, 0.95)
	assert.Len(t, resp.Transform, 16)

	out, err = runCLI(t, "", "align", "--ref", refPath, "--overlay", ovlPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Transform:")
	assert.Contains(t, out, "Overlay:       toluenol-moved")
}

func TestScreen_JSONLinesLibrary(t *testing.T) {
	dir := t.TempDir()
	ref := testutil.Toluenol()
	refPath := writeJSON(t, dir, "ref.json", testutil.DTO(ref))

	var lib bytes.Buffer
	enc := json.NewEncoder(&lib)
	require.NoError(t, enc.Encode(testutil.DTO(testutil.Rod("rod", 3))))
	require.NoError(t, enc.Encode(testutil.DTO(testutil.Moved(ref, r3.Vec{X: 1}, 0.4, r3.Vec{}))))
	require.NoError(t, enc.Encode(shapetypes.ShapeDTO{Name: "empty"}))
	libPath := filepath.Join(dir, "lib.jsonl")
	require.NoError(t, os.WriteFile(libPath, lib.Bytes(), 0o600))

	out, err := runCLI(t, "", "-o", "table", "screen", "--ref", refPath, "--library", libPath, "--top-n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "toluenol-moved")
	assert.NotContains(t, out, "rod")

	out, err = runCLI(t, "", "screen", "--ref", refPath, "--library", libPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Screened 3 candidates")
	assert.Contains(t, out, "failed #2 empty")
}

func TestParseTransform(t *testing.T) {
	got, err := parseTransform("1, 0 0,2")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0, 2}, got)

	got, err = parseTransform("")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseTransform("1,x")
	assert.Error(t, err)
}

func TestParseElementLines(t *testing.T) {
	dto, err := parseElementLines([]byte("1 2 3 1.5 # carbon\n\n4 5 6 1.2 3.0 7\n"), "mol")
	require.NoError(t, err)
	assert.Equal(t, "mol", dto.Name)
	require.Len(t, dto.Elements, 2)
	assert.Equal(t, shapetypes.ElementDTO{X: 1, Y: 2, Z: 3, Radius: 1.5}, dto.Elements[0])
	assert.Equal(t, shapetypes.ElementDTO{X: 4, Y: 5, Z: 6, Radius: 1.2, Hardness: 3, Color: 7}, dto.Elements[1])

	_, err = parseElementLines([]byte("1 2 3 1 2 x\n"), "mol")
	assert.Error(t, err)
}
