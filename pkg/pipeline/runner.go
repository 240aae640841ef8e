// Package pipeline runs the full validate → resolve → compile flow shared by
// the CLI and the HTTP API. Centralizing it here keeps limit enforcement,
// deadline handling, and record keeping identical across entry points.
package pipeline

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/soldep/soldep/pkg/compiler"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/registry"
	"github.com/soldep/soldep/pkg/resolve"
	"github.com/soldep/soldep/pkg/solsrc"
	"github.com/soldep/soldep/pkg/store"
)

// DefaultDeadline bounds one full pipeline run, resolution and compilation
// included. Individual fetches carry their own shorter timeouts.
const DefaultDeadline = 2 * time.Minute

// Options configures one pipeline run.
type Options struct {
	EntryFile string
	Limits    solsrc.Limits
	Settings  compiler.Settings
	Deadline  time.Duration
	Workers   int
	// ResolveOnly skips compilation; the result carries the resolution
	// pass and no contracts.
	ResolveOnly bool
}

// WithDefaults returns a copy of Options with zero values replaced.
func (o Options) WithDefaults() Options {
	out := o
	out.Limits = o.Limits.WithDefaults()
	if out.Deadline <= 0 {
		out.Deadline = DefaultDeadline
	}
	return out
}

// Result is the output of one pipeline run.
type Result struct {
	ID         string
	Resolution *resolve.Result
	Output     *compiler.Output
	Record     store.Record
}

// Runner executes pipelines. It is stateless apart from its collaborators;
// one Runner serves all requests.
type Runner struct {
	Engine   *resolve.Engine
	Fetcher  *fetch.Fetcher
	Compiler compiler.Compiler
	Store    store.Store
	Logger   *log.Logger
}

// NewRunner wires a pipeline. Compiler and store may be nil: a nil compiler
// restricts the runner to resolve-only mode, a nil store disables record
// keeping.
func NewRunner(reg *registry.Registry, fetcher *fetch.Fetcher, comp compiler.Compiler, st store.Store, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Engine:   resolve.NewEngine(reg, fetcher, logger),
		Fetcher:  fetcher,
		Compiler: comp,
		Store:    st,
		Logger:   logger,
	}
}

// Execute runs one pipeline: validate the sources, resolve every external
// import, and compile the merged file set. The record is stored regardless
// of compile outcome so failures stay queryable.
func (r *Runner) Execute(ctx context.Context, sources solsrc.Sources, opts Options) (*Result, error) {
	opts = opts.WithDefaults()

	ctx, cancel := context.WithTimeout(ctx, opts.Deadline)
	defer cancel()

	if err := sources.Validate(opts.Limits); err != nil {
		return nil, err
	}
	if opts.EntryFile != "" && !sources.Contains(opts.EntryFile) {
		return nil, errors.New(errors.ErrCodeInvalidInput, "entry file %q not present in sources", opts.EntryFile)
	}

	resolution, err := r.Engine.Resolve(ctx, sources, resolve.Options{
		Limits:  opts.Limits,
		Workers: opts.Workers,
	})
	if err != nil {
		return nil, err
	}
	r.Logger.Info("resolved imports",
		"found", resolution.Stats.ImportsFound,
		"resolved", resolution.Stats.Resolved,
		"failed", resolution.Stats.Failed,
		"duration", resolution.Stats.Duration)

	result := &Result{
		ID:         uuid.NewString(),
		Resolution: resolution,
	}

	var compileErr error
	if !opts.ResolveOnly {
		if r.Compiler == nil {
			return nil, errors.New(errors.ErrCodeInternal, "no compiler configured")
		}
		result.Output, compileErr = r.Compiler.Compile(ctx, compiler.Input{
			Sources:   resolution.Files,
			Lookup:    resolve.NewLookup(resolution, r.Fetcher),
			EntryFile: opts.EntryFile,
			Settings:  opts.Settings,
		})
		if compileErr == nil {
			r.Logger.Info("compiled", "contracts", len(result.Output.Contracts))
		}
	}

	result.Record = r.record(ctx, result, opts, compileErr)
	if compileErr != nil {
		return result, compileErr
	}
	return result, nil
}

// record builds and stores the summary. Store failures are logged, not
// propagated; the compile result matters more than its bookkeeping.
func (r *Runner) record(ctx context.Context, result *Result, opts Options, compileErr error) store.Record {
	rec := store.Record{
		ID:         result.ID,
		CreatedAt:  time.Now().UTC(),
		EntryFile:  opts.EntryFile,
		Success:    compileErr == nil,
		Stats:      result.Resolution.Stats,
		Unresolved: result.Resolution.Unresolved,
	}
	if result.Output != nil {
		rec.DiagnosticCount = len(result.Output.Diagnostics)
	}
	if r.Store != nil {
		if err := r.Store.Put(ctx, rec); err != nil {
			r.Logger.Warn("storing compilation record failed", "id", rec.ID, "error", err)
		}
	}
	return rec
}
