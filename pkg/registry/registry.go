// Package registry holds the static catalog of supported external Solidity
// library packages, each with an ordered list of fetchable versions, and the
// heuristics that pick a version from the user's source text.
//
// The catalog is data, not branching logic: adding a library or a version is
// a new LibrarySpec entry with marker patterns, never a new code path.
package registry

import (
	"fmt"
	"regexp"
	"strings"
)

// VersionSpec is one fetchable version of a library: a content base URL and
// the marker patterns whose presence in user code implies this version.
type VersionSpec struct {
	Name    string           // Version name, unique within its library (e.g. "v4.9.6")
	BaseURL string           // Content root; BaseURL + path-within-library yields raw source
	Markers []*regexp.Regexp // Patterns implying this version is required
}

// LibrarySpec is a registered external package family. Immutable after
// registry construction.
type LibrarySpec struct {
	Prefix         string        // Import path prefix (e.g. "@openzeppelin/contracts")
	DefaultVersion string        // Version used when detection finds nothing
	Versions       []VersionSpec // Ordered; fallback iteration follows this order
}

// Version returns the named version spec.
func (l *LibrarySpec) Version(name string) (VersionSpec, bool) {
	for _, v := range l.Versions {
		if v.Name == name {
			return v, true
		}
	}
	return VersionSpec{}, false
}

// Default returns the library's default version spec.
func (l *LibrarySpec) Default() VersionSpec {
	v, _ := l.Version(l.DefaultVersion)
	return v
}

// ContentURL builds the fetch URL for an import path under this library:
// the version's base URL plus the path remainder after the prefix.
func (l *LibrarySpec) ContentURL(v VersionSpec, importPath string) string {
	rest := strings.TrimPrefix(importPath, l.Prefix)
	if rest != "" && !strings.HasPrefix(rest, "/") {
		rest = "/" + rest
	}
	return v.BaseURL + rest
}

// Registry is the static catalog. Read-only after construction and safe to
// share across concurrent resolution passes.
type Registry struct {
	libs      []*LibrarySpec
	fallbacks map[string]string // exact import path → special-case URL
}

// New constructs a Registry and validates every library spec: at least one
// version, unique version names, and a default naming a registered version.
func New(libs []*LibrarySpec, fallbacks map[string]string) (*Registry, error) {
	for _, lib := range libs {
		if lib.Prefix == "" {
			return nil, fmt.Errorf("library with empty prefix")
		}
		if len(lib.Versions) == 0 {
			return nil, fmt.Errorf("library %s has no versions", lib.Prefix)
		}
		seen := make(map[string]bool, len(lib.Versions))
		for _, v := range lib.Versions {
			if seen[v.Name] {
				return nil, fmt.Errorf("library %s has duplicate version %s", lib.Prefix, v.Name)
			}
			seen[v.Name] = true
		}
		if !seen[lib.DefaultVersion] {
			return nil, fmt.Errorf("library %s default version %s is not registered", lib.Prefix, lib.DefaultVersion)
		}
	}
	if fallbacks == nil {
		fallbacks = map[string]string{}
	}
	return &Registry{libs: libs, fallbacks: fallbacks}, nil
}

// Match finds the library owning an import path: the longest registered
// prefix the path starts with. Pure lookup; a miss just means the path is
// not externally resolvable.
func (r *Registry) Match(path string) (*LibrarySpec, bool) {
	var best *LibrarySpec
	for _, lib := range r.libs {
		if !strings.HasPrefix(path, lib.Prefix) {
			continue
		}
		// Prefix must end at a path boundary: "@openzeppelin/contracts"
		// must not claim "@openzeppelin/contracts-upgradeable/...".
		rest := path[len(lib.Prefix):]
		if rest != "" && rest[0] != '/' && rest[0] != '@' {
			continue
		}
		if best == nil || len(lib.Prefix) > len(best.Prefix) {
			best = lib
		}
	}
	return best, best != nil
}

// Fallback returns the special-case URL for an exact import path, if one is
// registered. These are known edge-case files (moved or removed between
// versions) tried only after every registered version has failed.
func (r *Registry) Fallback(path string) (string, bool) {
	url, ok := r.fallbacks[path]
	return url, ok
}

// Libraries returns the registered library specs in registration order.
func (r *Registry) Libraries() []*LibrarySpec {
	return r.libs
}

// qualifierRe matches an embedded version tag directly after a package
// prefix, e.g. "@openzeppelin/contracts@4.8.3/token/ERC20/ERC20.sol".
var qualifierRe = regexp.MustCompile(`@(\d+(?:\.\d+)*(?:-[\w.]+)?)(/|$)`)

// StripQualifier removes an embedded version tag from an import path,
// returning the cleaned path and the tag (empty when none is present).
func StripQualifier(path string) (string, string) {
	m := qualifierRe.FindStringSubmatch(path)
	if m == nil {
		return path, ""
	}
	return qualifierRe.ReplaceAllString(path, "$2"), m[1]
}
