// Package fetch retrieves raw library source text over HTTP with bounded
// retries, per-attempt timeouts, and process-wide content and failure caches.
//
// Both caches are keyed by the logical import path, not the URL: a path
// fetched once is never fetched again while the cache lives, regardless of
// which version's URL eventually served it, and a path that permanently
// failed short-circuits instead of hammering the network on every request.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/soldep/soldep/pkg/cache"
	sderrors "github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/observability"
)

// Config tunes fetch behavior. Zero values are replaced by defaults.
type Config struct {
	Retries   int           // Attempts per Fetch call (default 3)
	BaseDelay time.Duration // Initial backoff delay, doubling per retry (default 500ms)
	Timeout   time.Duration // Per-attempt timeout (default 10s)
	CacheTTL  time.Duration // TTL for cached content and failures (0 = no expiry)
}

// Default fetch settings.
const (
	DefaultRetries   = 3
	DefaultBaseDelay = 500 * time.Millisecond
	DefaultTimeout   = 10 * time.Second
)

// WithDefaults returns a copy of Config with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	out := c
	if out.Retries <= 0 {
		out.Retries = DefaultRetries
	}
	if out.BaseDelay <= 0 {
		out.BaseDelay = DefaultBaseDelay
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// Fetcher retrieves literal source text for URLs. It is long-lived and safe
// for concurrent use; the resolution engine receives one per process.
type Fetcher struct {
	http    *http.Client
	content cache.Cache
	failed  cache.Cache
	cfg     Config
}

// Cache key namespaces. Exported so cache tooling can tell library content
// apart from failure records.
const (
	ContentNamespace = "content:"
	FailedNamespace  = "failed:"
)

// New creates a Fetcher backed by the given cache. The cache is shared,
// long-lived state; the Fetcher namespaces its keys under ContentNamespace
// and FailedNamespace.
func New(backend cache.Cache, cfg Config) *Fetcher {
	cfg = cfg.WithDefaults()
	return &Fetcher{
		// Per-attempt timeouts are enforced via request contexts, so the
		// client itself carries none.
		http:    &http.Client{},
		content: cache.Namespaced(backend, ContentNamespace),
		failed:  cache.Namespaced(backend, FailedNamespace),
		cfg:     cfg,
	}
}

// Content returns the cached text for a logical import path, if present.
func (f *Fetcher) Content(ctx context.Context, key string) (string, bool) {
	data, ok, err := f.content.Get(ctx, key)
	if err != nil || !ok {
		return "", false
	}
	return string(data), true
}

// HasFailed reports whether the path was previously recorded as permanently
// failed, returning the cached failure for re-raising.
func (f *Fetcher) HasFailed(ctx context.Context, key string) (error, bool) {
	data, ok, err := f.failed.Get(ctx, key)
	if err != nil || !ok {
		return nil, false
	}
	var rec failureRecord
	if json.Unmarshal(data, &rec) != nil {
		return nil, false
	}
	return sderrors.New(rec.Code, "%s", rec.Message), true
}

// RecordFailure stores a permanent failure for a logical path. Subsequent
// resolution attempts for the exact path short-circuit via HasFailed for the
// lifetime of the cache. Context cancellation is never recorded: a deadline
// hit on this request says nothing about the path itself.
func (f *Fetcher) RecordFailure(ctx context.Context, key string, failure error) {
	if failure == nil || errors.Is(failure, context.Canceled) || errors.Is(failure, context.DeadlineExceeded) {
		return
	}
	rec := failureRecord{
		Code:    sderrors.GetCode(failure),
		Message: sderrors.UserMessage(failure),
	}
	if rec.Code == "" {
		rec.Code = sderrors.ErrCodeNetwork
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	_ = f.failed.Set(ctx, key, data, f.cfg.CacheTTL)
}

type failureRecord struct {
	Code    sderrors.Code `json:"code"`
	Message string        `json:"message"`
}

// Fetch retrieves the text behind url, caching the result under the logical
// path key. Transient failures (timeouts, connection errors, 5xx) are
// retried with exponential backoff up to the configured attempt count,
// counted per call. Fetch consults the content cache but never writes the
// failure cache; recording a path as permanently failed is the caller's
// call, made only after every candidate URL for the path has been tried.
func (f *Fetcher) Fetch(ctx context.Context, key, url string) (string, error) {
	if text, ok := f.Content(ctx, key); ok {
		observability.CacheEvents().OnCacheHit(ctx, "content")
		return text, nil
	}
	observability.CacheEvents().OnCacheMiss(ctx, "content")

	var text string
	err := Retry(ctx, f.cfg.Retries, f.cfg.BaseDelay, func() error {
		var attemptErr error
		text, attemptErr = f.get(ctx, url)
		return attemptErr
	})
	if err != nil {
		return "", err
	}

	_ = f.content.Set(ctx, key, []byte(text), f.cfg.CacheTTL)
	observability.CacheEvents().OnCacheSet(ctx, "content", len(text))
	return text, nil
}

// get performs a single GET attempt with the per-attempt timeout.
func (f *Fetcher) get(ctx context.Context, url string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	observability.HTTP().OnRequest(ctx, http.MethodGet, url)
	start := time.Now()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", sderrors.Wrap(sderrors.ErrCodeNetwork, err, "build request for %s", url)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, url, err)
		return "", f.classify(ctx, url, err)
	}
	defer resp.Body.Close()

	observability.HTTP().OnResponse(ctx, http.MethodGet, url, resp.StatusCode, time.Since(start))

	if resp.StatusCode != http.StatusOK {
		httpErr := sderrors.New(sderrors.ErrCodeFetchHTTP, "GET %s: status %d", url, resp.StatusCode)
		if resp.StatusCode >= 500 {
			return "", Retryable(httpErr)
		}
		return "", httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Retryable(sderrors.Wrap(sderrors.ErrCodeNetwork, err, "read body of %s", url))
	}
	return string(body), nil
}

// classify converts a transport error into the taxonomy: timeouts get their
// own cause, everything else is a generic network error. A cancelled parent
// context aborts without retrying.
func (f *Fetcher) classify(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return sderrors.Wrap(sderrors.ErrCodeDeadline, ctx.Err(), "fetch %s aborted", url)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Retryable(sderrors.New(sderrors.ErrCodeFetchTimeout, "GET %s timed out after %s", url, f.cfg.Timeout))
	}
	return Retryable(sderrors.Wrap(sderrors.ErrCodeNetwork, err, "GET %s", url))
}
