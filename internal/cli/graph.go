package cli

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/pipeline"
	"github.com/soldep/soldep/pkg/render/importgraph"
)

// graphCommand creates the graph command: resolve a project and render its
// import graph.
func (c *CLI) graphCommand() *cobra.Command {
	var (
		output   string
		compact  bool
		deadline time.Duration
		noCache  bool
	)

	cmd := &cobra.Command{
		Use:   "graph [path...]",
		Short: "Render the import graph of a contract project",
		Long: `Graph resolves every import reachable from the given contract files and
renders the resulting graph. The output format follows the file extension:
.svg renders via Graphviz, .dot writes the raw DOT source.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := loadSources(args)
			if err != nil {
				return err
			}

			runner, err := c.newRunner(cmd.Context(), noCache, "", false)
			if err != nil {
				return err
			}

			sp := newSpinner(cmd.Context(), "Resolving imports...")
			sp.Start()

			result, err := runner.Execute(cmd.Context(), sources, pipeline.Options{
				Deadline:    deadline,
				ResolveOnly: true,
			})
			if err != nil {
				sp.StopWithError(errors.UserMessage(err))
				return err
			}
			sp.Stop()

			dot := importgraph.ToDOT(result.Resolution, sources.Keys(), importgraph.Options{Compact: compact})

			var data []byte
			if strings.HasSuffix(output, ".dot") {
				data = []byte(dot)
			} else {
				data, err = importgraph.RenderSVG(cmd.Context(), dot)
				if err != nil {
					return err
				}
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}

			printSuccess("Rendered import graph")
			printStats(
				result.Resolution.Stats.ImportsFound,
				result.Resolution.Stats.Resolved,
				result.Resolution.Stats.MappedLocal,
				result.Resolution.Stats.Failed)
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "imports.svg", "output file (.svg or .dot)")
	cmd.Flags().BoolVar(&compact, "compact", false, "shorten node labels to file names")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall deadline (default 2m)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the on-disk fetch cache")

	return cmd
}
