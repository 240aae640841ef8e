package resolve

import (
	"sort"
	"sync"
)

// state holds the per-pass bookkeeping for one resolution run. Every import
// path moves through discovered → processing → one of resolved, mapped-local
// (aliases), or failed; processing membership is what breaks re-entrant
// cycles. The invariants processing ⊆ discovered, resolved ⊆ discovered and
// processing ∩ resolved = ∅ hold at every step.
//
// state is owned by a single Resolve call and discarded afterwards. The
// mutex only matters when the pass runs with multiple workers.
type state struct {
	mu         sync.Mutex
	queue      []string
	discovered map[string]bool
	processing map[string]bool
	resolved   map[string]string // path → fetched content
	failed     map[string]error
	aliases    map[string]string // relative import path → matched local file key
	edges      []Edge
}

func newState() *state {
	return &state{
		discovered: make(map[string]bool),
		processing: make(map[string]bool),
		resolved:   make(map[string]string),
		failed:     make(map[string]error),
		aliases:    make(map[string]string),
	}
}

// enqueue appends a newly discovered path to the queue tail (breadth-first:
// nested imports surface after everything already queued). Returns false if
// the path was seen before.
func (s *state) enqueue(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.discovered[path] {
		return false
	}
	s.discovered[path] = true
	s.queue = append(s.queue, path)
	return true
}

// dequeue pops the queue head. ok=false means the queue is empty.
func (s *state) dequeue() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return "", false
	}
	path := s.queue[0]
	s.queue = s.queue[1:]
	return path, true
}

// beginProcessing marks a path in-flight. Returns false when the path is
// already terminal or in-flight, in which case the caller skips it.
func (s *state) beginProcessing(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processing[path] || s.failed[path] != nil {
		return false
	}
	if _, ok := s.resolved[path]; ok {
		return false
	}
	if _, ok := s.aliases[path]; ok {
		return false
	}
	s.discovered[path] = true
	s.processing[path] = true
	return true
}

// endProcessing removes a path from the in-flight set. Called on every exit
// path, success or not, so a failed pass never leaves poisoned state behind.
func (s *state) endProcessing(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.processing, path)
}

func (s *state) markResolved(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolved[path] = content
}

func (s *state) markFailed(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed[path] = err
}

func (s *state) setAlias(importPath, fileKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered[importPath] = true
	s.aliases[importPath] = fileKey
}

func (s *state) addEdge(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = append(s.edges, Edge{From: from, To: to})
}

// markDiscovered records a path for diagnostics without queueing it, used
// for relative imports that cannot be resolved and for paths dropped at the
// discovery limit.
func (s *state) markDiscovered(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discovered[path] = true
}

func (s *state) discoveredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.discovered)
}

// unresolved returns the discovered paths that ended neither resolved nor
// mapped to a local file, in sorted order.
func (s *state) unresolved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for path := range s.discovered {
		if _, ok := s.resolved[path]; ok {
			continue
		}
		if _, ok := s.aliases[path]; ok {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}
