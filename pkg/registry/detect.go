package registry

import (
	"sort"
	"strings"
	"sync"
)

// Preferences maps a library prefix to the version name chosen for one
// resolution pass. A preference is set once by detection or by a successful
// fallback during fetching and then read by every subsequent fetch under the
// same prefix, so a pass never flaps between versions.
//
// Preferences are per-pass state: each compilation request owns its own.
type Preferences struct {
	mu sync.Mutex
	m  map[string]string
}

// NewPreferences creates an empty preference set.
func NewPreferences() *Preferences {
	return &Preferences{m: make(map[string]string)}
}

// Get returns the preferred version name for a prefix, if one was chosen.
func (p *Preferences) Get(prefix string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.m[prefix]
	return name, ok
}

// Set records the preferred version for a prefix, overwriting any previous
// choice. Callers own the stickiness contract: after detection completes,
// only a successful version fallback may call Set.
func (p *Preferences) Set(prefix, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[prefix] = name
}

// Detect scans user source files for version signals and fills prefs.
//
// Files are processed in sorted-key order so repeated runs over the same
// input produce the same preferences even when files disagree (last match
// wins). Two kinds of signal exist per library:
//
//   - an explicit version qualifier embedded in an import path
//     ("@openzeppelin/contracts@4.8.3/..."), matched to the registered
//     version with the same major version
//   - a marker pattern of one of the library's versions matching anywhere
//     in a file that mentions the library prefix
//
// Libraries with no signal are left unset; the default version applies at
// fetch time.
func (r *Registry) Detect(files map[string]string, prefs *Preferences) {
	keys := make([]string, 0, len(files))
	for k := range files {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		text := files[key]
		for _, lib := range r.libs {
			if !strings.Contains(text, lib.Prefix) {
				continue
			}
			if name, ok := detectQualifier(lib, text); ok {
				prefs.Set(lib.Prefix, name)
				continue
			}
			if name, ok := detectMarkers(lib, text); ok {
				prefs.Set(lib.Prefix, name)
			}
		}
	}
}

// detectQualifier looks for an embedded version tag after the library prefix
// and maps it to a registered version by major version.
func detectQualifier(lib *LibrarySpec, text string) (string, bool) {
	idx := strings.Index(text, lib.Prefix+"@")
	if idx < 0 {
		return "", false
	}
	rest := text[idx+len(lib.Prefix):]
	_, tag := StripQualifier(rest)
	if tag == "" {
		return "", false
	}
	major := strings.SplitN(tag, ".", 2)[0]
	for _, v := range lib.Versions {
		name := strings.TrimPrefix(v.Name, "v")
		if name == tag || name == major || strings.HasPrefix(name, major+".") {
			return v.Name, true
		}
	}
	return "", false
}

// detectMarkers tests each version's marker patterns against the text,
// in registry order; the first matching version wins.
func detectMarkers(lib *LibrarySpec, text string) (string, bool) {
	for _, v := range lib.Versions {
		for _, marker := range v.Markers {
			if marker.MatchString(text) {
				return v.Name, true
			}
		}
	}
	return "", false
}
