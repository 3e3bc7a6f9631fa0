package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// readInput returns the contents of path, or stdin for "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" {
		return nil, errors.InvalidParam("missing input file")
	}
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot read input").WithDetail(path)
	}
	return data, nil
}

// readShape loads a single shape.  JSON input is a ShapeDTO object; any other
// input is parsed as whitespace-separated "x y z radius [hardness [color]]"
// lines with '#' comments, named after the file.
func readShape(cmd *cobra.Command, path string) (shapetypes.ShapeDTO, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return shapetypes.ShapeDTO{}, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var dto shapetypes.ShapeDTO
		if err := json.Unmarshal(trimmed, &dto); err != nil {
			return dto, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid shape JSON").WithDetail(path)
		}
		return dto, nil
	}
	return parseElementLines(trimmed, shapeName(path))
}

// readShapes loads a shape library: a JSON array of shapes or one JSON shape
// per line.
func readShapes(cmd *cobra.Command, path string) ([]shapetypes.ShapeDTO, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var dtos []shapetypes.ShapeDTO
		if err := json.Unmarshal(trimmed, &dtos); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid shape library").WithDetail(path)
		}
		return dtos, nil
	}

	var dtos []shapetypes.ShapeDTO
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for dec.More() {
		var dto shapetypes.ShapeDTO
		if err := dec.Decode(&dto); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "invalid shape library").
				WithDetail(fmt.Sprintf("%s: entry %d", path, len(dtos)))
		}
		dtos = append(dtos, dto)
	}
	return dtos, nil
}

func parseElementLines(data []byte, name string) (shapetypes.ShapeDTO, error) {
	dto := shapetypes.ShapeDTO{Name: name}
	sc := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 4 || len(fields) > 6 {
			return dto, errors.InvalidParam("expected x y z radius [hardness [color]]").
				WithDetail(fmt.Sprintf("line %d", lineNo))
		}
		var vals [5]float64
		for i := 0; i < len(fields) && i < 5; i++ {
			v, err := strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return dto, errors.InvalidParam("invalid number").WithDetail(fmt.Sprintf("line %d: %q", lineNo, fields[i]))
			}
			vals[i] = v
		}
		el := shapetypes.ElementDTO{X: vals[0], Y: vals[1], Z: vals[2], Radius: vals[3], Hardness: vals[4]}
		if len(fields) == 6 {
			c, err := strconv.Atoi(fields[5])
			if err != nil {
				return dto, errors.InvalidParam("invalid color").WithDetail(fmt.Sprintf("line %d: %q", lineNo, fields[5]))
			}
			el.Color = c
		}
		dto.Elements = append(dto.Elements, el)
	}
	if err := sc.Err(); err != nil {
		return dto, errors.Wrap(err, errors.ErrCodeBadRequest, "cannot read shape")
	}
	return dto, nil
}

func shapeName(path string) string {
	if path == "-" {
		return "stdin"
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseTransform reads 16 comma- or space-separated numbers in row-major
// order.
func parseTransform(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, errors.InvalidParam("invalid transform value").WithDetail(f)
		}
		out = append(out, v)
	}
	return out, nil
}
