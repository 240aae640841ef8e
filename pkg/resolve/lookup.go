package resolve

import (
	"context"
	"strings"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/solsrc"
)

// Lookup is the synchronous read surface handed to the compiler. All network
// work happened during the resolution pass; a Lookup call only consults the
// merged file set, the alias table, and the process-wide content cache, in
// that order. It never blocks on I/O.
type Lookup struct {
	files    solsrc.Sources
	aliases  map[string]string
	failures map[string]error
	fetcher  *fetch.Fetcher
}

// NewLookup builds the compiler-facing lookup surface from a resolution
// result. The fetcher may be nil, in which case the content-cache tier is
// skipped.
func NewLookup(result *Result, fetcher *fetch.Fetcher) *Lookup {
	return &Lookup{
		files:    result.Files,
		aliases:  result.Aliases,
		failures: result.Failures,
		fetcher:  fetcher,
	}
}

// Source returns the content for an import path the compiler asks about.
// Tiers, in order: exact key in the merged file set, the same key with a
// single leading slash stripped, the alias table from relative-import
// matching, and finally the process-wide content cache. A miss on every
// tier returns a not-found error naming the path and the likely cause:
// the failure recorded for it during the resolution pass, a relative path
// matching no supplied file, or an external package the pass never saw.
func (l *Lookup) Source(ctx context.Context, path string) (string, error) {
	if content, ok := l.files[path]; ok {
		return content, nil
	}
	if stripped := strings.TrimPrefix(path, "/"); stripped != path {
		if content, ok := l.files[stripped]; ok {
			return content, nil
		}
	}
	if key, ok := l.aliases[path]; ok {
		if content, ok := l.files[key]; ok {
			return content, nil
		}
	}
	if l.fetcher != nil {
		if content, ok := l.fetcher.Content(ctx, path); ok {
			return content, nil
		}
	}
	if cause, ok := l.failures[path]; ok {
		return "", errors.Wrap(errors.ErrCodeNotFound, cause,
			"no source for import %q: %s", path, errors.UserMessage(cause))
	}
	if solsrc.IsRelative(path) {
		return "", errors.New(errors.ErrCodeNotFound,
			"no source for import %q; the relative path matched no supplied file", path)
	}
	return "", errors.New(errors.ErrCodeNotFound,
		"no source for import %q; the external package was not requested during the resolution pass", path)
}

// Has reports whether Source would succeed for path.
func (l *Lookup) Has(ctx context.Context, path string) bool {
	_, err := l.Source(ctx, path)
	return err == nil
}

// Files exposes the merged file set, keyed by import path.
func (l *Lookup) Files() solsrc.Sources {
	return l.files
}
