package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyshape/internal/infrastructure/monitoring/logging"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

// productFlags binds --max-order and --cutoff; unset flags keep the config.
type productFlags struct {
	maxOrder int
	cutoff   float64
}

func (p *productFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&p.maxOrder, "max-order", 0, "maximum product order (0 = unbounded, 1 = primitives only)")
	cmd.Flags().Float64Var(&p.cutoff, "cutoff", 0, "added to the radius sum when testing whether two elements touch")
}

func (p *productFlags) options(cmd *cobra.Command) *shapetypes.ProductOptions {
	var o shapetypes.ProductOptions
	set := false
	if cmd.Flags().Changed("max-order") {
		o.MaxOrder = &p.maxOrder
		set = true
	}
	if cmd.Flags().Changed("cutoff") {
		o.DistanceCutoff = &p.cutoff
		set = true
	}
	if !set {
		return nil
	}
	return &o
}

// ─────────────────────────────────────────────────────────────────────────────
// properties
// ─────────────────────────────────────────────────────────────────────────────

func newPropertiesCmd() *cobra.Command {
	var (
		file     string
		products productFlags
	)
	cmd := &cobra.Command{
		Use:   "properties",
		Short: "Compute volume, surface area and principal axes of a shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			dto, err := readShape(cmd, file)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			resp, err := cliCtx.Service.Properties(ctx, &shapetypes.PropertiesRequest{
				Shape:   dto,
				Options: products.options(cmd),
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, propertiesView{resp})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "shape file (JSON or x y z radius lines, - for stdin)")
	products.register(cmd)
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

type propertiesView struct {
	*shapetypes.PropertiesResponse
}

func (v propertiesView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Shape:         %s\n", v.Name)
	fmt.Fprintf(&sb, "Elements:      %d\n", v.NumElements)
	fmt.Fprintf(&sb, "Products:      %d (max order %d)\n", v.NumProducts, v.MaxProductOrder)
	fmt.Fprintf(&sb, "Volume:        %.4f\n", v.Volume)
	fmt.Fprintf(&sb, "Surface area:  %.4f\n", v.SurfaceArea)
	fmt.Fprintf(&sb, "Centroid:      %s\n", vecString(v.Centroid))
	for i, ax := range v.PrincipalAxes {
		fmt.Fprintf(&sb, "Axis %d:        %s  moment %.4f\n", i+1, vecString(ax), v.PrincipalMoments[i])
	}
	return sb.String()
}

func (v propertiesView) TableHeaders() []string {
	return []string{"Element", "Surface Area"}
}

func (v propertiesView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.ElementSurfaceAreas)+2)
	for i, a := range v.ElementSurfaceAreas {
		rows = append(rows, []string{strconv.Itoa(i), fmt.Sprintf("%.4f", a)})
	}
	rows = append(rows,
		[]string{"total", fmt.Sprintf("%.4f", v.SurfaceArea)},
		[]string{"volume", fmt.Sprintf("%.4f", v.Volume)},
	)
	return rows
}

// ─────────────────────────────────────────────────────────────────────────────
// overlap
// ─────────────────────────────────────────────────────────────────────────────

func newOverlapCmd() *cobra.Command {
	var (
		refFile, overlayFile string
		transform, strategy  string
		products             productFlags
	)
	cmd := &cobra.Command{
		Use:   "overlap",
		Short: "Evaluate the overlap volume of two shapes in a fixed pose",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ref, err := readShape(cmd, refFile)
			if err != nil {
				return err
			}
			ovl, err := readShape(cmd, overlayFile)
			if err != nil {
				return err
			}
			xform, err := parseTransform(transform)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			resp, err := cliCtx.Service.Overlap(ctx, &shapetypes.OverlapRequest{
				Reference: ref,
				Overlay:   ovl,
				Transform: xform,
				Strategy:  strategy,
				Options:   products.options(cmd),
			})
			if err != nil {
				return err
			}
			return PrintResult(cmd, overlapView{resp})
		},
	}
	cmd.Flags().StringVar(&refFile, "ref", "", "reference shape file")
	cmd.Flags().StringVar(&overlayFile, "overlay", "", "overlay shape file")
	cmd.Flags().StringVar(&transform, "transform", "", "row-major 4x4 transform applied to the overlay (16 numbers)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "overlap strategy (exact, fast); default from config")
	products.register(cmd)
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("overlay")
	return cmd
}

type overlapView struct {
	*shapetypes.OverlapResponse
}

func (v overlapView) String() string {
	return fmt.Sprintf("Strategy:      %s\n", v.Strategy) + scoresString(v.Scores)
}

func (v overlapView) TableHeaders() []string { return scoreHeaders }

func (v overlapView) TableRows() [][]string { return scoreRows(v.Scores) }

// ─────────────────────────────────────────────────────────────────────────────
// align
// ─────────────────────────────────────────────────────────────────────────────

func newAlignCmd() *cobra.Command {
	var refFile, overlayFile string
	cmd := &cobra.Command{
		Use:   "align",
		Short: "Find the rigid motion of the overlay that maximises its overlap with the reference",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ref, err := readShape(cmd, refFile)
			if err != nil {
				return err
			}
			ovl, err := readShape(cmd, overlayFile)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			resp, err := cliCtx.Service.Align(ctx, &shapetypes.AlignRequest{Reference: ref, Overlay: ovl})
			if err != nil {
				return err
			}
			cliCtx.Logger.Debug("alignment done",
				logging.Int("starts", resp.Starts),
				logging.Int("evaluations", resp.Evaluations))
			return PrintResult(cmd, alignView{resp})
		},
	}
	cmd.Flags().StringVar(&refFile, "ref", "", "reference shape file")
	cmd.Flags().StringVar(&overlayFile, "overlay", "", "overlay shape file")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("overlay")
	return cmd
}

type alignView struct {
	*shapetypes.AlignResponse
}

func (v alignView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reference:     %s\n", v.Reference)
	fmt.Fprintf(&sb, "Overlay:       %s\n", v.Overlay)
	fmt.Fprintf(&sb, "Score (%s): %s\n", v.Metric, scoreString(v.Score))
	fmt.Fprintf(&sb, "Starts:        %d, %d evaluations, %d ms\n", v.Starts, v.Evaluations, v.DurationMs)
	q := v.Quaternion
	fmt.Fprintf(&sb, "Rotation:      q = (%.5f, %.5f, %.5f, %.5f)\n", q[0], q[1], q[2], q[3])
	fmt.Fprintf(&sb, "Translation:   %s\n", vecString(v.Translation))
	sb.WriteString("Transform:\n")
	for r := 0; r < 4 && len(v.Transform) == 16; r++ {
		row := v.Transform[4*r : 4*r+4]
		fmt.Fprintf(&sb, "  % .6f % .6f % .6f % .6f\n", row[0], row[1], row[2], row[3])
	}
	sb.WriteString(scoresString(v.Scores))
	return sb.String()
}

func (v alignView) TableHeaders() []string { return scoreHeaders }

func (v alignView) TableRows() [][]string { return scoreRows(v.Scores) }

// ─────────────────────────────────────────────────────────────────────────────
// screen
// ─────────────────────────────────────────────────────────────────────────────

func newScreenCmd() *cobra.Command {
	var (
		refFile, libraryFile string
		topN                 int
		minScore             float64
	)
	cmd := &cobra.Command{
		Use:   "screen",
		Short: "Align every shape of a library onto a reference and rank them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			ref, err := readShape(cmd, refFile)
			if err != nil {
				return err
			}
			candidates, err := readShapes(cmd, libraryFile)
			if err != nil {
				return err
			}
			req := &shapetypes.ScreenRequest{Reference: ref, Candidates: candidates}
			if cmd.Flags().Changed("top-n") {
				req.TopN = &topN
			}
			if cmd.Flags().Changed("min-score") {
				req.MinScore = &minScore
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()

			resp, err := cliCtx.Service.Screen(ctx, req)
			if err != nil {
				return err
			}
			for _, f := range resp.Failures {
				cliCtx.Logger.Warn("candidate skipped",
					logging.Int("index", f.Index),
					logging.String("name", f.Name),
					logging.String("error", f.Error))
			}
			return PrintResult(cmd, screenView{resp})
		},
	}
	cmd.Flags().StringVar(&refFile, "ref", "", "reference shape file")
	cmd.Flags().StringVar(&libraryFile, "library", "", "candidate shapes (JSON array or JSON lines)")
	cmd.Flags().IntVar(&topN, "top-n", 0, "keep only the best N hits (0 = all)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop hits scoring below this value")
	_ = cmd.MarkFlagRequired("ref")
	_ = cmd.MarkFlagRequired("library")
	return cmd
}

type screenView struct {
	*shapetypes.ScreenResponse
}

func (v screenView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Screened %d candidates by %s in %d ms: %d hits, %d failures\n",
		v.Screened, v.Metric, v.DurationMs, len(v.Hits), len(v.Failures))
	for _, h := range v.Hits {
		fmt.Fprintf(&sb, "%4d. %s  #%d %s\n", h.Rank, scoreString(h.Score), h.Index, h.Name)
	}
	for _, f := range v.Failures {
		fmt.Fprintf(&sb, "  failed #%d %s: %s\n", f.Index, f.Name, f.Error)
	}
	return sb.String()
}

func (v screenView) TableHeaders() []string {
	return []string{"Rank", "Index", "Name", "Score", "Tanimoto", "Tversky Ref", "Tversky Overlay"}
}

func (v screenView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Hits))
	for _, h := range v.Hits {
		rows = append(rows, []string{
			strconv.Itoa(h.Rank),
			strconv.Itoa(h.Index),
			h.Name,
			fmt.Sprintf("%.4f", h.Score),
			fmt.Sprintf("%.4f", h.Scores.Tanimoto),
			fmt.Sprintf("%.4f", h.Scores.TverskyRef),
			fmt.Sprintf("%.4f", h.Scores.TverskyOverlay),
		})
	}
	return rows
}

// ─────────────────────────────────────────────────────────────────────────────
// formatting helpers
// ─────────────────────────────────────────────────────────────────────────────

var scoreHeaders = []string{"Metric", "Value"}

func scoreRows(s shapetypes.Scores) [][]string {
	f := func(x float64) string { return fmt.Sprintf("%.4f", x) }
	return [][]string{
		{"overlap", f(s.Overlap)},
		{"ref_self_overlap", f(s.RefSelfOverlap)},
		{"overlay_self_overlap", f(s.OverlaySelfOverlap)},
		{"tanimoto", f(s.Tanimoto)},
		{"tversky_ref", f(s.TverskyRef)},
		{"tversky_overlay", f(s.TverskyOverlay)},
		{"shape_tanimoto", f(s.ShapeTanimoto)},
		{"color_tanimoto", f(s.ColorTanimoto)},
		{"combo_score", f(s.ComboScore)},
	}
}

func scoresString(s shapetypes.Scores) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Overlap:       %.4f (ref %.4f, overlay %.4f)\n", s.Overlap, s.RefSelfOverlap, s.OverlaySelfOverlap)
	fmt.Fprintf(&sb, "Tanimoto:      %s\n", scoreString(s.Tanimoto))
	fmt.Fprintf(&sb, "Tversky:       ref %.4f, overlay %.4f\n", s.TverskyRef, s.TverskyOverlay)
	fmt.Fprintf(&sb, "Combo:         %.4f (shape %.4f, color %.4f)\n", s.ComboScore, s.ShapeTanimoto, s.ColorTanimoto)
	return sb.String()
}

func vecString(v shapetypes.Vec3) string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", v.X, v.Y, v.Z)
}
