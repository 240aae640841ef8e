// Package resolve implements the external import resolution engine: it
// drives a breadth-first worklist over the imports reachable from a user's
// source files, fetching external library files, discovering the nested
// imports inside fetched content, and mapping relative imports onto local
// files, until every reachable import is materialized or diagnosed.
//
// A single Engine is long-lived and safe for concurrent use; every Resolve
// call owns its own per-pass state (queue, discovered/processing/resolved
// sets, version preferences), so concurrent compilation requests never
// interfere.
package resolve

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/observability"
	"github.com/soldep/soldep/pkg/registry"
	"github.com/soldep/soldep/pkg/solsrc"
)

// iterationCeilingFactor bounds the worklist: the drain stops with an error
// after MaxImports × this many iterations, guaranteeing termination even
// under pathological nested-import chains.
const iterationCeilingFactor = 4

// Edge is one import relationship, used for diagnostics and graph rendering.
type Edge struct {
	From string // importing file (user file or library path)
	To   string // imported path, as resolved
}

// Stats summarizes one resolution pass.
type Stats struct {
	ImportsFound int           `json:"imports_found"` // distinct import paths discovered
	Resolved     int           `json:"resolved"`      // externally fetched and materialized
	MappedLocal  int           `json:"mapped_local"`  // satisfied by a user file
	Failed       int           `json:"failed"`        // exhausted every option
	Iterations   int           `json:"iterations"`    // worklist iterations consumed
	Duration     time.Duration `json:"duration"`
}

// Options configures one resolution pass.
type Options struct {
	Limits  solsrc.Limits
	Workers int // concurrent dequeues; 1 (the default) preserves strict BFS order
}

// WithDefaults returns a copy of Options with zero values replaced.
func (o Options) WithDefaults() Options {
	out := o
	out.Limits = o.Limits.WithDefaults()
	if out.Workers <= 0 {
		out.Workers = 1
	}
	return out
}

// Result is the output of one resolution pass.
type Result struct {
	// Files is the merged mapping: every user file plus every fetched
	// library file, keyed by import path. User files are never overwritten
	// by fetched content.
	Files solsrc.Sources

	// Aliases maps relative import paths to the user file key that
	// satisfied them by filename match.
	Aliases map[string]string

	// Unresolved lists discovered paths that ended neither resolved nor
	// mapped local. Reported as warnings; not fatal to compilation.
	Unresolved []string

	// Failures carries the retained error for each failed path.
	Failures map[string]error

	// Edges records the import graph including fetched files.
	Edges []Edge

	Stats Stats
}

// Engine resolves external imports. Construct once with the process-wide
// fetcher and registry; call Resolve per compilation request.
type Engine struct {
	registry *registry.Registry
	fetcher  *fetch.Fetcher
	logger   *log.Logger
}

// NewEngine creates a resolution engine. A nil logger disables logging.
func NewEngine(reg *registry.Registry, fetcher *fetch.Fetcher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.New(nil)
		logger.SetLevel(log.FatalLevel)
	}
	return &Engine{registry: reg, fetcher: fetcher, logger: logger}
}

// Resolve runs one pass: version detection over the user files, seeding from
// their top-level imports, then a breadth-first drain that fetches external
// content and walks every nested import it discovers.
//
// Per-path failures are recovered locally and reported in aggregate; only
// input-limit violations, the iteration ceiling, and context expiry abort
// the pass.
func (e *Engine) Resolve(ctx context.Context, sources solsrc.Sources, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	start := time.Now()

	prefs := registry.NewPreferences()
	e.registry.Detect(sources, prefs)

	st := newState()
	if err := e.seed(st, sources, opts.Limits); err != nil {
		return nil, err
	}

	observability.Resolver().OnResolveStart(ctx, len(st.queue))

	p := &pass{
		engine:  e,
		state:   st,
		sources: sources,
		prefs:   prefs,
		opts:    opts,
	}

	var err error
	if opts.Workers > 1 {
		err = p.drainConcurrent(ctx)
	} else {
		err = p.drainSequential(ctx)
	}
	if err != nil {
		return nil, err
	}

	result := p.result()
	result.Stats.Duration = time.Since(start)

	observability.Resolver().OnResolveComplete(ctx, result.Stats.Resolved, result.Stats.Failed, result.Stats.Duration)
	e.logger.Debug("resolution pass complete",
		"found", result.Stats.ImportsFound,
		"resolved", result.Stats.Resolved,
		"local", result.Stats.MappedLocal,
		"failed", result.Stats.Failed,
		"duration", result.Stats.Duration)

	return result, nil
}

// seed extracts the top-level imports from every user file (in stable sorted
// order) and queues the ones that need external resolution. The distinct
// external import count is checked here, before any fetch.
func (e *Engine) seed(st *state, sources solsrc.Sources, limits solsrc.Limits) error {
	for _, file := range sources.Keys() {
		for _, imp := range solsrc.Imports(sources[file]) {
			if solsrc.IsRelative(imp) {
				e.seedRelative(st, sources, file, imp)
				continue
			}
			if sources.Contains(imp) {
				st.addEdge(file, strings.TrimPrefix(imp, "/"))
				continue
			}
			if key, ok := matchLocal(sources, imp); ok {
				st.setAlias(imp, key)
				st.addEdge(file, key)
				continue
			}
			if st.enqueue(imp) {
				st.addEdge(file, imp)
			}
		}
	}

	if len(st.queue) > limits.MaxImports {
		return errors.New(errors.ErrCodeInputTooLarge,
			"%d external imports exceed the limit of %d", len(st.queue), limits.MaxImports)
	}
	return nil
}

// seedRelative handles a relative import written in a user file: resolve it
// against the importing file's directory, fall back to a filename match, and
// otherwise record it as unresolved for diagnostics. Relative paths are
// never fetched.
func (e *Engine) seedRelative(st *state, sources solsrc.Sources, file, imp string) {
	if joined, ok := solsrc.Join(solsrc.Dir(file), imp); ok && sources.Contains(joined) {
		st.setAlias(imp, joined)
		st.addEdge(file, joined)
		return
	}
	if key, ok := matchLocal(sources, imp); ok {
		st.setAlias(imp, key)
		st.addEdge(file, key)
		return
	}
	st.markDiscovered(imp)
	st.addEdge(file, imp)
}

// matchLocal implements the local resolver heuristic: find a user file whose
// final path segment matches the import's final segment, with or without the
// source extension. Keys are scanned in sorted order, so a basename shared
// by several files resolves to the lexicographically smallest key, an
// arbitrary but deterministic tie-break.
func matchLocal(sources solsrc.Sources, importPath string) (string, bool) {
	base := solsrc.Base(importPath)
	if base == "" {
		return "", false
	}
	withExt := base
	if !strings.HasSuffix(withExt, solsrc.Ext) {
		withExt += solsrc.Ext
	}
	for _, key := range sources.Keys() {
		kb := solsrc.Base(key)
		if kb == base || kb == withExt {
			return key, true
		}
	}
	return "", false
}

// pass carries the moving parts of one drain so the sequential and
// concurrent variants share the per-path logic.
type pass struct {
	engine  *Engine
	state   *state
	sources solsrc.Sources
	prefs   *registry.Preferences
	opts    Options

	iterations  atomic.Int64
	prefixLocks sync.Map // prefix → *sync.Mutex, serializing version fallback per library

	// submit, when set by the concurrent drain, routes newly discovered
	// paths into the worker channel instead of the queue slice.
	submit func(path string)
}

func (p *pass) ceiling() int64 {
	return int64(p.opts.Limits.MaxImports) * iterationCeilingFactor
}

// drainSequential processes the queue one path at a time: deterministic
// ordering, race-free version preferences. This is the default mode.
func (p *pass) drainSequential(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(errors.ErrCodeDeadline, err, "resolution aborted")
		}
		path, ok := p.state.dequeue()
		if !ok {
			return nil
		}
		if p.iterations.Add(1) > p.ceiling() {
			return errors.New(errors.ErrCodeIterationLimit,
				"resolution exceeded %d iterations; aborting", p.ceiling())
		}
		p.process(ctx, path)
	}
}

// drainConcurrent processes independent paths on several workers, tracking
// in-flight work with a pending counter: every submitted path increments it,
// every completed one decrements it, and the drain ends when it hits zero.
// Version fallback stays single-flight per library prefix via prefixLocks,
// so two workers can never disagree about a library's working version.
func (p *pass) drainConcurrent(ctx context.Context) error {
	p.state.mu.Lock()
	seeds := p.state.queue
	p.state.queue = nil
	p.state.mu.Unlock()

	if len(seeds) == 0 {
		return nil
	}

	var (
		wg       sync.WaitGroup
		pending  atomic.Int64
		exceeded atomic.Bool
	)
	jobs := make(chan string, p.opts.Workers*4)
	drained := make(chan struct{})
	done := make(chan struct{})

	p.submit = func(path string) {
		pending.Add(1)
		// Sent from a fresh goroutine so a worker discovering imports
		// never deadlocks on a full channel.
		go func() {
			select {
			case jobs <- path:
			case <-done:
			}
		}()
	}

	pending.Store(int64(len(seeds)))
	go func() {
		for _, s := range seeds {
			select {
			case jobs <- s:
			case <-done:
				return
			}
		}
	}()

	for range p.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				case path := <-jobs:
					if ctx.Err() == nil {
						if p.iterations.Add(1) > p.ceiling() {
							exceeded.Store(true)
						} else {
							p.process(ctx, path)
						}
					}
					if pending.Add(-1) == 0 {
						close(drained)
					}
				}
			}
		}()
	}

	var fatal error
	select {
	case <-drained:
	case <-ctx.Done():
		fatal = errors.Wrap(errors.ErrCodeDeadline, ctx.Err(), "resolution aborted")
	}
	close(done)
	wg.Wait()
	p.submit = nil

	if fatal != nil {
		return fatal
	}
	if exceeded.Load() {
		return errors.New(errors.ErrCodeIterationLimit,
			"resolution exceeded %d iterations; aborting", p.ceiling())
	}
	return nil
}

// process runs the state machine for one dequeued path.
func (p *pass) process(ctx context.Context, path string) {
	if !p.state.beginProcessing(path) {
		return
	}
	defer p.state.endProcessing(path)

	content, err := p.fetchExternal(ctx, path)
	if err != nil {
		p.state.markFailed(path, err)
		observability.Resolver().OnPathFailed(ctx, path, err)
		p.engine.logger.Warn("import failed", "path", path, "error", errors.UserMessage(err))
		return
	}

	p.state.markResolved(path, content)
	p.discoverNested(path, content)
}

// fetchExternal resolves one bare import path to content: registry match,
// failure-cache short-circuit, preferred-version fetch, fallback scan over
// the remaining versions, and finally the special-case URL table.
func (p *pass) fetchExternal(ctx context.Context, path string) (string, error) {
	clean, _ := registry.StripQualifier(path)

	lib, ok := p.engine.registry.Match(clean)
	if !ok {
		return "", errors.New(errors.ErrCodeUnsupportedImport, "no registered library matches %q", path)
	}

	if cached, ok := p.engine.fetcher.Content(ctx, path); ok {
		return cached, nil
	}
	if failure, ok := p.engine.fetcher.HasFailed(ctx, path); ok {
		return "", failure
	}

	// Version fallback is single-flight per library prefix: the first
	// worker in discovers the working version, the rest inherit it.
	lockAny, _ := p.prefixLocks.LoadOrStore(lib.Prefix, &sync.Mutex{})
	lock := lockAny.(*sync.Mutex)
	lock.Lock()
	defer lock.Unlock()

	preferred := lib.Default()
	if name, ok := p.prefs.Get(lib.Prefix); ok {
		if v, ok := lib.Version(name); ok {
			preferred = v
		}
	}

	content, firstErr := p.engine.fetcher.Fetch(ctx, path, lib.ContentURL(preferred, clean))
	if firstErr == nil {
		observability.Resolver().OnPathResolved(ctx, path, preferred.Name)
		return content, nil
	}
	if errors.Is(firstErr, errors.ErrCodeDeadline) {
		return "", firstErr
	}

	for _, v := range lib.Versions {
		if v.Name == preferred.Name {
			continue
		}
		content, err := p.engine.fetcher.Fetch(ctx, path, lib.ContentURL(v, clean))
		if err != nil {
			if errors.Is(err, errors.ErrCodeDeadline) {
				return "", err
			}
			continue
		}
		// This version works; every later path under the prefix goes
		// straight to it.
		p.prefs.Set(lib.Prefix, v.Name)
		observability.Resolver().OnVersionFallback(ctx, lib.Prefix, preferred.Name, v.Name)
		observability.Resolver().OnPathResolved(ctx, path, v.Name)
		p.engine.logger.Debug("version fallback", "prefix", lib.Prefix, "from", preferred.Name, "to", v.Name)
		return content, nil
	}

	if url, ok := p.engine.registry.Fallback(clean); ok {
		if content, err := p.engine.fetcher.Fetch(ctx, path, url); err == nil {
			observability.Resolver().OnPathResolved(ctx, path, "fallback")
			return content, nil
		}
	}

	failure := errors.Wrap(errors.ErrCodeAllVersionsFailed, firstErr,
		"every registered version of %s failed for %s", lib.Prefix, path)
	p.engine.fetcher.RecordFailure(ctx, path, failure)
	return "", failure
}

// discoverNested extracts the imports inside freshly fetched content and
// queues the ones not yet seen. Relative imports are resolved against the
// importing path's directory; ones that escape the root are recorded as
// unresolved rather than crashing the pass.
func (p *pass) discoverNested(importer, content string) {
	clean, _ := registry.StripQualifier(importer)
	baseDir := solsrc.Dir(clean)

	for _, imp := range solsrc.Imports(content) {
		target := imp
		if solsrc.IsRelative(imp) {
			joined, ok := solsrc.Join(baseDir, imp)
			if !ok {
				p.state.markDiscovered(imp)
				p.engine.logger.Warn("relative import escapes root", "importer", importer, "import", imp)
				continue
			}
			target = joined
		}

		p.state.addEdge(importer, target)

		if p.sources.Contains(target) {
			continue
		}
		if p.state.discoveredCount() >= p.opts.Limits.MaxImports {
			p.state.markDiscovered(target)
			continue
		}
		if p.state.enqueue(target) && p.submit != nil {
			p.submit(target)
		}
	}
}

// result assembles the merged file set and statistics after the drain. The
// drain has fully stopped by the time this runs, so the per-method locks in
// state suffice.
func (p *pass) result() *Result {
	st := p.state
	unresolvedPaths := st.unresolved()

	st.mu.Lock()
	defer st.mu.Unlock()

	merged := p.sources.Clone()
	for path, content := range st.resolved {
		if _, exists := merged[path]; exists {
			// A fetched path never displaces a user file.
			continue
		}
		merged[path] = content
	}

	aliases := make(map[string]string, len(st.aliases))
	for k, v := range st.aliases {
		aliases[k] = v
	}
	failures := make(map[string]error, len(st.failed))
	for k, v := range st.failed {
		failures[k] = v
	}

	return &Result{
		Files:      merged,
		Aliases:    aliases,
		Unresolved: unresolvedPaths,
		Failures:   failures,
		Edges:      append([]Edge(nil), st.edges...),
		Stats: Stats{
			ImportsFound: len(st.discovered),
			Resolved:     len(st.resolved),
			MappedLocal:  len(st.aliases),
			Failed:       len(st.failed),
			Iterations:   int(p.iterations.Load()),
		},
	}
}
