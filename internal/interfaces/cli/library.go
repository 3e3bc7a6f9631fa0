package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/keyshape/pkg/client"
	"github.com/turtacn/keyshape/pkg/errors"
	shapetypes "github.com/turtacn/keyshape/pkg/types/shape"
)

func newLibraryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage shape libraries stored on a keyshape server (requires --server)",
	}
	cmd.AddCommand(
		newLibraryCreateCmd(),
		newLibraryListCmd(),
		newLibraryGetCmd(),
		newLibraryAddCmd(),
		newLibraryShapesCmd(),
		newLibraryScreenCmd(),
		newLibraryDeleteCmd(),
	)
	return cmd
}

// librariesClient returns the library endpoints, which only exist remotely.
func librariesClient(cmd *cobra.Command) (*CLIContext, *client.LibrariesClient, error) {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cliCtx.Client == nil {
		return nil, nil, errors.InvalidParam("library commands require --server")
	}
	return cliCtx, cliCtx.Client.Libraries(), nil
}

func newLibraryCreateCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create an empty library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			lib, err := libs.Create(ctx, &shapetypes.CreateLibraryRequest{Name: args[0], Description: description})
			if err != nil {
				return err
			}
			return PrintResult(cmd, libraryListView{Libraries: []shapetypes.LibraryDTO{*lib}, Total: 1})
		},
	}
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	return cmd
}

func newLibraryListCmd() *cobra.Command {
	var page client.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List libraries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			resp, err := libs.List(ctx, page)
			if err != nil {
				return err
			}
			return PrintResult(cmd, libraryListView{Libraries: resp.Libraries, Total: resp.Total})
		},
	}
	pageFlags(cmd, &page)
	return cmd
}

func newLibraryGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show one library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			lib, err := libs.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return PrintResult(cmd, libraryListView{Libraries: []shapetypes.LibraryDTO{*lib}, Total: 1})
		},
	}
}

func newLibraryAddCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Append shapes to a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			shapes, err := readShapes(cmd, file)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			resp, err := libs.AddShapes(ctx, args[0], &shapetypes.AddShapesRequest{Shapes: shapes})
			if err != nil {
				return err
			}
			if resp.Added == 0 {
				return PrintResult(cmd, fmt.Sprintf("No shapes added to %s", resp.Library))
			}
			return PrintResult(cmd, fmt.Sprintf("Added %d shapes to %s at positions %d-%d (%d total)",
				resp.Added, resp.Library, resp.FirstPosition, resp.FirstPosition+resp.Added-1, resp.ShapeCount))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "shapes to add (JSON array or JSON lines, - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newLibraryShapesCmd() *cobra.Command {
	var page client.ListOptions
	cmd := &cobra.Command{
		Use:   "shapes NAME",
		Short: "List the shapes stored in a library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			resp, err := libs.ListShapes(ctx, args[0], page)
			if err != nil {
				return err
			}
			return PrintResult(cmd, entriesView{resp})
		},
	}
	pageFlags(cmd, &page)
	return cmd
}

func newLibraryScreenCmd() *cobra.Command {
	var (
		refFile  string
		topN     int
		minScore float64
	)
	cmd := &cobra.Command{
		Use:   "screen NAME",
		Short: "Screen a reference against every shape of a stored library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			ref, err := readShape(cmd, refFile)
			if err != nil {
				return err
			}
			req := &shapetypes.LibraryScreenRequest{Reference: ref}
			if cmd.Flags().Changed("top-n") {
				req.TopN = &topN
			}
			if cmd.Flags().Changed("min-score") {
				req.MinScore = &minScore
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			resp, err := libs.Screen(ctx, args[0], req)
			if err != nil {
				return err
			}
			return PrintResult(cmd, screenView{resp})
		},
	}
	cmd.Flags().StringVar(&refFile, "ref", "", "reference shape file")
	cmd.Flags().IntVar(&topN, "top-n", 0, "keep only the best N hits (0 = all)")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "drop hits scoring below this value")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func newLibraryDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a library and all of its shapes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, libs, err := librariesClient(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := cliCtx.commandContext(cmd)
			defer cancel()
			if err := libs.Delete(ctx, args[0]); err != nil {
				return err
			}
			return PrintResult(cmd, fmt.Sprintf("Deleted library %s", args[0]))
		},
	}
}

func pageFlags(cmd *cobra.Command, opts *client.ListOptions) {
	cmd.Flags().IntVar(&opts.Page, "page", 0, "page number, starting at 1")
	cmd.Flags().IntVar(&opts.PageSize, "page-size", 0, "entries per page")
}

type libraryListView struct {
	Libraries []shapetypes.LibraryDTO `json:"libraries"`
	Total     int64                   `json:"total"`
}

func (v libraryListView) String() string {
	var sb strings.Builder
	for _, l := range v.Libraries {
		fmt.Fprintf(&sb, "%s  %d shapes  updated %s\n", l.Name, l.ShapeCount, l.UpdatedAt.Format("2006-01-02 15:04"))
		if l.Description != "" {
			fmt.Fprintf(&sb, "    %s\n", l.Description)
		}
	}
	if int64(len(v.Libraries)) < v.Total {
		fmt.Fprintf(&sb, "(%d of %d libraries)\n", len(v.Libraries), v.Total)
	}
	return sb.String()
}

func (v libraryListView) TableHeaders() []string {
	return []string{"Name", "Shapes", "Description", "Updated"}
}

func (v libraryListView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Libraries))
	for _, l := range v.Libraries {
		rows = append(rows, []string{l.Name, strconv.Itoa(l.ShapeCount), l.Description, l.UpdatedAt.Format("2006-01-02 15:04")})
	}
	return rows
}

type entriesView struct {
	*shapetypes.ListShapesResponse
}

func (v entriesView) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %d shapes\n", v.Library, v.Total)
	for _, e := range v.Entries {
		fmt.Fprintf(&sb, "%6d  %s (%d elements)\n", e.Position, e.Shape.Name, len(e.Shape.Elements))
	}
	return sb.String()
}

func (v entriesView) TableHeaders() []string {
	return []string{"Position", "Name", "Elements"}
}

func (v entriesView) TableRows() [][]string {
	rows := make([][]string, 0, len(v.Entries))
	for _, e := range v.Entries {
		rows = append(rows, []string{strconv.Itoa(e.Position), e.Shape.Name, strconv.Itoa(len(e.Shape.Elements))})
	}
	return rows
}
