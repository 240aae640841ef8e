package cli

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/soldep/soldep/pkg/compiler"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/pipeline"
)

// compileCommand creates the compile command.
func (c *CLI) compileCommand() *cobra.Command {
	var (
		entryFile string
		output    string
		solcBin   string
		optimize  bool
		runs      int
		workers   int
		deadline  time.Duration
		noCache   bool
		noPicker  bool
	)

	cmd := &cobra.Command{
		Use:   "compile [path...]",
		Short: "Resolve external imports and compile a contract project",
		Long: `Compile reads contract files from the given paths (directories are walked
recursively), fetches every external library import they reference, and runs
the compiler over the complete file set. Artifacts are written as JSON.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := loadSources(args)
			if err != nil {
				return err
			}

			if entryFile == "" && !noPicker {
				entryFile, err = pickEntryFile(sources)
				if err != nil {
					return err
				}
			}

			runner, err := c.newRunner(cmd.Context(), noCache, solcBin, true)
			if err != nil {
				return err
			}

			sp := newSpinner(cmd.Context(), "Resolving imports and compiling...")
			sp.Start()

			track := newProgress(loggerFromContext(cmd.Context()))
			result, err := runner.Execute(cmd.Context(), sources, pipeline.Options{
				EntryFile: entryFile,
				Deadline:  deadline,
				Workers:   workers,
				Settings: compiler.Settings{
					OptimizerEnabled: optimize,
					OptimizerRuns:    runs,
				},
			})
			if err != nil {
				sp.StopWithError(errors.UserMessage(err))
				if result != nil {
					printDiagnostics(result.Output)
				}
				return err
			}
			sp.Stop()

			track.done("Compiled")
			printStats(
				result.Resolution.Stats.ImportsFound,
				result.Resolution.Stats.Resolved,
				result.Resolution.Stats.MappedLocal,
				result.Resolution.Stats.Failed)
			printWarnings(result)
			printDiagnostics(result.Output)

			data, err := json.MarshalIndent(result.Output, "", "  ")
			if err != nil {
				return err
			}
			if output == "-" {
				os.Stdout.Write(data)
				os.Stdout.WriteString("\n")
				return nil
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			printSuccess("Wrote %d contracts", len(result.Output.Contracts))
			printFile(output)
			return nil
		},
	}

	cmd.Flags().StringVarP(&entryFile, "entry", "e", "", "entry contract file (interactive picker if omitted)")
	cmd.Flags().StringVarP(&output, "output", "o", "artifacts.json", "output file, or - for stdout")
	cmd.Flags().StringVar(&solcBin, "solc", "", "solc binary (default: solc on PATH)")
	cmd.Flags().BoolVar(&optimize, "optimize", false, "enable the optimizer")
	cmd.Flags().IntVar(&runs, "optimize-runs", 200, "optimizer runs")
	cmd.Flags().IntVar(&workers, "workers", 1, "concurrent fetch workers")
	cmd.Flags().DurationVar(&deadline, "deadline", 0, "overall deadline (default 2m)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "bypass the on-disk fetch cache")
	cmd.Flags().BoolVar(&noPicker, "no-picker", false, "skip the interactive entry file picker")

	return cmd
}

func printWarnings(result *pipeline.Result) {
	for _, path := range result.Resolution.Unresolved {
		printWarning("unresolved import: %s", path)
	}
}

func printDiagnostics(out *compiler.Output) {
	if out == nil {
		return
	}
	for _, d := range out.Diagnostics {
		switch d.Severity {
		case compiler.SeverityError:
			printError("%s", d.Message)
		case compiler.SeverityWarning:
			printWarning("%s", d.Message)
		default:
			printDetail("%s", d.Message)
		}
	}
}
