package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/soldep/soldep/internal/config"
	"github.com/soldep/soldep/internal/server"
	"github.com/soldep/soldep/pkg/cache"
	"github.com/soldep/soldep/pkg/compiler"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/pipeline"
	"github.com/soldep/soldep/pkg/registry"
	"github.com/soldep/soldep/pkg/store"
)

// serveCommand creates the serve command: run the HTTP API.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the compilation HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := loggerFromContext(cmd.Context())
			if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
				logger.SetLevel(level)
			}

			srv, cleanup, err := buildServer(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			httpSrv := &http.Server{
				Addr:              cfg.Server.Addr,
				Handler:           srv.Router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("listening", "addr", cfg.Server.Addr)
				errCh <- httpSrv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				return err
			case <-cmd.Context().Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				logger.Info("shutting down")
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					return err
				}
				return nil
			}
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a TOML config file")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides config)")

	return cmd
}

// buildServer wires the full server stack from configuration. The returned
// cleanup closes external connections.
func buildServer(ctx context.Context, cfg config.Config, logger *log.Logger) (*server.Server, func(), error) {
	backend, err := buildCache(ctx, cfg.Cache)
	if err != nil {
		return nil, nil, err
	}

	st, err := buildStore(ctx, cfg.Store)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}

	solc, err := compiler.NewSolc(cfg.Solc.Binary)
	if err != nil {
		logger.Warn("solc not available; only /v1/resolve and /v1/graph will work", "error", err)
	}
	var comp compiler.Compiler
	if solc != nil {
		comp = solc
	}

	fetcher := fetch.New(backend, fetch.Config{
		Retries:  cfg.Fetch.Retries,
		Timeout:  cfg.Fetch.Timeout.Std(),
		CacheTTL: cfg.Fetch.CacheTTL.Std(),
	})
	runner := pipeline.NewRunner(registry.Default(), fetcher, comp, st, logger)

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = st.Close(shutdownCtx)
		_ = backend.Close()
	}
	return server.New(runner, st, cfg.SourceLimits(), logger), cleanup, nil
}

func buildCache(ctx context.Context, cfg config.Cache) (cache.Cache, error) {
	switch cfg.Backend {
	case "file":
		dir := cfg.Dir
		if dir == "" {
			var err error
			dir, err = cacheDir()
			if err != nil {
				return nil, err
			}
		}
		fc, err := cache.NewFileCache(dir)
		if err != nil {
			return nil, err
		}
		return fc, nil
	case "redis":
		return cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Addr,
			Password: cfg.Pass,
			DB:       cfg.DB,
		})
	case "memory":
		return cache.NewMemoryCache(), nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown cache backend %q", cfg.Backend)
	}
}

func buildStore(ctx context.Context, cfg config.Store) (store.Store, error) {
	if cfg.Backend == "mongo" {
		return store.NewMongoStore(ctx, store.MongoConfig{
			URI:        cfg.URI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
		})
	}
	return store.NewMemoryStore(), nil
}
