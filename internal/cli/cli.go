// Package cli implements the soldep command-line interface.
//
// Commands cover the full pipeline: resolve external imports for a contract
// project, compile it, render its import graph, serve the HTTP API, and
// manage the local fetch cache. All commands support --verbose (-v) for
// debug-level logging; loggers travel through context.Context.
package cli

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/soldep/soldep/pkg/buildinfo"
	"github.com/soldep/soldep/pkg/cache"
	"github.com/soldep/soldep/pkg/compiler"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/pipeline"
	"github.com/soldep/soldep/pkg/registry"
	"github.com/soldep/soldep/pkg/store"
)

// appName is used for directories and display.
const appName = "soldep"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Soldep resolves and compiles Solidity contracts with external imports",
		Long:         `Soldep fetches the external library files a Solidity project imports, maps relative imports onto local files, and hands the complete file set to the compiler, so multi-file contracts build without a local node_modules tree.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	root.AddCommand(c.compileCommand())
	root.AddCommand(c.resolveCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// newRunner creates a pipeline runner for CLI use, logging through the
// context-attached logger. With noCache the fetch caches live in memory
// only, so every run hits the network fresh.
func (c *CLI) newRunner(ctx context.Context, noCache bool, solcBinary string, withCompiler bool) (*pipeline.Runner, error) {
	backend := newCacheBackend(noCache)
	fetcher := fetch.New(backend, fetch.Config{})

	var comp compiler.Compiler
	if withCompiler {
		solc, err := compiler.NewSolc(solcBinary)
		if err != nil {
			return nil, err
		}
		comp = solc
	}

	return pipeline.NewRunner(registry.Default(), fetcher, comp, store.NewMemoryStore(), loggerFromContext(ctx)), nil
}

func newCacheBackend(noCache bool) cache.Cache {
	if noCache {
		return cache.NewMemoryCache()
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewMemoryCache()
	}
	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return cache.NewMemoryCache()
	}
	return fc
}

// cacheDir returns the cache directory using XDG standard (~/.cache/soldep/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}
