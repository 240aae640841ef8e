package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/pipeline"
)

// resolveCommand creates the resolve command: run the import resolution pass
// without compiling, useful for auditing what a project pulls in.
func (c *CLI) resolveCommand() *cobra.Command {
	var (
		output   string
		workers  int
		deadline time.Duration
		noCache  bool
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [path...]",
		Short: "Resolve external imports without compiling",
		Args:  cobra.MinimumNArgs(1),
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
				Workers:     workers,
				ResolveOnly: true,
			})
			if err != nil {
				sp.StopWithError(errors.UserMessage(err))
				return err
			}
			sp.StopWithSuccess("Resolved")

			printStats(
				result.Resolution.Stats.ImportsFound,
				result.Resolution.Stats.Resolved,
				result.Resolution.Stats.MappedLocal,
				result.Resolution.Stats.Failed)
			printWarnings(result)

			if verbose {
				for _, path := range result.Resolution.Files.Keys() {
					printDetail("%s", path)
				}
			}

			if output != "" {
				data, err := json.MarshalIndent(map[string]any{
					"files":      result.Resolution.Files.Keys(),
					"aliases":    result.Resolution.Aliases,
					"unresolved": result.Resolution.Unresolved,
					"stats":      result.Resolution.Stats,
				}, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0o644); err != nil {
					return err
				}
				printFile(output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write a JSON resolution report")
	cmd.Flags().IntVar(&workers, "workers", 1, "concurrent fetch workers")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall deadline (default 2m)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the on-disk fetch cache")
	cmd.Flags().BoolVar(&verbose, "list", false, "list every file in the resolved set")

	return cmd
}
