// Package solsrc models a user-supplied Solidity source tree: the file
// mapping handed to the compiler, the safety limits enforced before any
// network activity, import statement extraction, and the path arithmetic
// used to resolve relative imports.
package solsrc

import (
	"sort"
	"strings"

	"github.com/soldep/soldep/pkg/errors"
)

// Ext is the standard Solidity source file extension.
const Ext = ".sol"

// Sources maps file paths to literal source text. It is the input to a
// compilation request and, after resolution, the merged set of user files
// and fetched library files.
type Sources map[string]string

// Keys returns the file paths in sorted order. All iteration over a source
// set goes through this so that version detection and local-file matching
// are deterministic across runs.
func (s Sources) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy. Resolution merges fetched files into a copy
// so the caller's map is never mutated.
func (s Sources) Clone() Sources {
	out := make(Sources, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Contains reports whether path is present, either exactly or with a single
// leading slash stripped.
func (s Sources) Contains(path string) bool {
	if _, ok := s[path]; ok {
		return true
	}
	if stripped, ok := strings.CutPrefix(path, "/"); ok {
		_, ok := s[stripped]
		return ok
	}
	return false
}

// Limits bounds a compilation request. All limits are tunable; zero values
// are replaced by defaults via WithDefaults.
type Limits struct {
	MaxFiles     int // Maximum number of user-supplied files
	MaxFileSize  int // Maximum size in bytes of a single file
	MaxTotalSize int // Maximum aggregate size in bytes of all files
	MaxImports   int // Maximum distinct external imports per resolution pass
}

// Default safety limits.
const (
	DefaultMaxFiles     = 100
	DefaultMaxFileSize  = 512 * 1024
	DefaultMaxTotalSize = 4 * 1024 * 1024
	DefaultMaxImports   = 200
)

// WithDefaults returns a copy of Limits with zero values replaced by defaults.
func (l Limits) WithDefaults() Limits {
	out := l
	if out.MaxFiles <= 0 {
		out.MaxFiles = DefaultMaxFiles
	}
	if out.MaxFileSize <= 0 {
		out.MaxFileSize = DefaultMaxFileSize
	}
	if out.MaxTotalSize <= 0 {
		out.MaxTotalSize = DefaultMaxTotalSize
	}
	if out.MaxImports <= 0 {
		out.MaxImports = DefaultMaxImports
	}
	return out
}

// Validate checks the source set against the limits. It is called before
// any resolution begins so that oversized input is rejected without a single
// network request.
func (s Sources) Validate(limits Limits) error {
	limits = limits.WithDefaults()

	if len(s) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "no source files supplied")
	}
	if len(s) > limits.MaxFiles {
		return errors.New(errors.ErrCodeInputTooLarge, "too many files: %d (max %d)", len(s), limits.MaxFiles)
	}

	total := 0
	for _, path := range s.Keys() {
		size := len(s[path])
		if size > limits.MaxFileSize {
			return errors.New(errors.ErrCodeInputTooLarge, "file %s is %d bytes (max %d)", path, size, limits.MaxFileSize)
		}
		total += size
	}
	if total > limits.MaxTotalSize {
		return errors.New(errors.ErrCodeInputTooLarge, "sources total %d bytes (max %d)", total, limits.MaxTotalSize)
	}
	return nil
}
