package resolve

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soldep/soldep/pkg/cache"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/registry"
	"github.com/soldep/soldep/pkg/solsrc"
)

// libServer serves fake library trees under /<version>/<path> and counts
// requests per URL path.
type libServer struct {
	*httptest.Server
	files map[string]string // "/v5/token/ERC20.sol" → content
	hits  atomic.Int64
}

func newLibServer(files map[string]string) *libServer {
	s := &libServer{files: files}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		content, ok := s.files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	}))
	return s
}

// newEngine wires a registry with two versions of one library against the
// fake server, plus a second library for multi-prefix cases.
func newEngine(t *testing.T, srv *libServer, fallbacks map[string]string) *Engine {
	t.Helper()
	reg, err := registry.New([]*registry.LibrarySpec{
		{
			Prefix:         "@oz/contracts",
			DefaultVersion: "v5",
			Versions: []registry.VersionSpec{
				{Name: "v5", BaseURL: srv.URL + "/v5"},
				{Name: "v4", BaseURL: srv.URL + "/v4", Markers: []*regexp.Regexp{
					regexp.MustCompile(`\bCounters\.Counter\b`),
				}},
			},
		},
		{
			Prefix:         "solmate",
			DefaultVersion: "v7",
			Versions: []registry.VersionSpec{
				{Name: "v7", BaseURL: srv.URL + "/solmate7"},
			},
		},
	}, fallbacks)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}
	fetcher := fetch.New(cache.NewMemoryCache(), fetch.Config{
		Retries:   1,
		BaseDelay: time.Millisecond,
	})
	return NewEngine(reg, fetcher, nil)
}

func TestResolve_TransitiveNestedImports(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/token/ERC20.sol":  `import "./IERC20.sol"; contract ERC20 {}`,
		"/v5/token/IERC20.sol": `interface IERC20 {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Token.sol": `import "@oz/contracts/token/ERC20.sol"; contract Token {}`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if result.Stats.Resolved != 2 {
		t.Fatalf("resolved = %d, want 2 (root import plus nested)", result.Stats.Resolved)
	}
	if _, ok := result.Files["@oz/contracts/token/ERC20.sol"]; !ok {
		t.Error("root import missing from merged files")
	}
	if _, ok := result.Files["@oz/contracts/token/IERC20.sol"]; !ok {
		t.Error("nested relative import was not resolved against the importer's directory")
	}
	if _, ok := result.Files["Token.sol"]; !ok {
		t.Error("user file missing from merged files")
	}
	if len(result.Unresolved) != 0 {
		t.Errorf("unexpected unresolved paths: %v", result.Unresolved)
	}
}

func TestResolve_CycleTerminates(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `import "./B.sol"; contract A {}`,
		"/v5/B.sol": `import "./A.sol"; contract B {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";`,
	}

	done := make(chan struct{})
	var result *Result
	var err error
	go func() {
		result, err = engine.Resolve(context.Background(), sources, Options{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("cyclic imports did not terminate")
	}
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 2 {
		t.Fatalf("resolved = %d, want both halves of the cycle", result.Stats.Resolved)
	}
	// Each path fetched exactly once despite the mutual imports.
	if got := srv.hits.Load(); got != 2 {
		t.Errorf("server hits = %d, want 2", got)
	}
}

func TestResolve_VersionFallbackUpdatesPreference(t *testing.T) {
	// Both files exist only in v4. The first path must fall back; the
	// second must go straight to v4 because the preference stuck.
	srv := newLibServer(map[string]string{
		"/v4/utils/Counters.sol": `library Counters {}`,
		"/v4/utils/Strings.sol":  `import "./Counters.sol"; library Strings {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/utils/Strings.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 2 {
		t.Fatalf("resolved = %d, want 2; failures: %v", result.Stats.Resolved, result.Failures)
	}
	// Strings.sol: miss on v5 then hit on v4 (2 requests). Counters.sol:
	// direct hit on v4 thanks to the updated preference (1 request).
	if got := srv.hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3 (one v5 miss, two v4 hits)", got)
	}
}

func TestResolve_MarkerDetectionPinsVersion(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v4/utils/Counters.sol": `library Counters {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	// The user file mentions the library prefix and matches v4's marker,
	// so the first fetch already targets v4: no v5 miss.
	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/utils/Counters.sol";
contract Main { Counters.Counter private _ids; }`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 1 {
		t.Fatalf("resolved = %d, want 1; failures: %v", result.Stats.Resolved, result.Failures)
	}
	if got := srv.hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (marker detection should skip the default version)", got)
	}
}

func TestResolve_ContentCacheSkipsSecondPass(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `contract A {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";`,
	}

	for i := 0; i < 2; i++ {
		if _, err := engine.Resolve(context.Background(), sources, Options{}); err != nil {
			t.Fatalf("Resolve pass %d: %v", i+1, err)
		}
	}
	if got := srv.hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (second pass must be served from the content cache)", got)
	}
}

func TestResolve_LocalOnlyProjectMakesNoRequests(t *testing.T) {
	srv := newLibServer(nil)
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"contracts/Main.sol":       `import "./lib/Helper.sol"; contract Main {}`,
		"contracts/lib/Helper.sol": `contract Helper {}`,
		"Other.sol":                `import "Main.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := srv.hits.Load(); got != 0 {
		t.Errorf("server hits = %d, want 0 for a self-contained project", got)
	}
	if got := result.Aliases["./lib/Helper.sol"]; got != "contracts/lib/Helper.sol" {
		t.Errorf("relative import alias = %q, want contracts/lib/Helper.sol", got)
	}
	if got := result.Aliases["Main.sol"]; got != "contracts/Main.sol" {
		t.Errorf("filename-match alias = %q, want contracts/Main.sol", got)
	}
	if result.Stats.MappedLocal != 2 {
		t.Errorf("mapped local = %d, want 2", result.Stats.MappedLocal)
	}
}

func TestResolve_SeedLimitRejectedBeforeFetch(t *testing.T) {
	srv := newLibServer(nil)
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";
import "@oz/contracts/B.sol";
import "@oz/contracts/C.sol";`,
	}

	_, err := engine.Resolve(context.Background(), sources, Options{
		Limits: solsrc.Limits{MaxImports: 2},
	})
	if !errors.Is(err, errors.ErrCodeInputTooLarge) {
		t.Fatalf("error = %v, want code %s", err, errors.ErrCodeInputTooLarge)
	}
	if got := srv.hits.Load(); got != 0 {
		t.Errorf("server hits = %d, want 0 (limit must be enforced before any fetch)", got)
	}
}

func TestResolve_UnsupportedImportIsNonFatal(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `contract A {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";
import "@unknown/lib/X.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", result.Stats.Resolved)
	}
	failure := result.Failures["@unknown/lib/X.sol"]
	if !errors.Is(failure, errors.ErrCodeUnsupportedImport) {
		t.Errorf("failure = %v, want code %s", failure, errors.ErrCodeUnsupportedImport)
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0] != "@unknown/lib/X.sol" {
		t.Errorf("unresolved = %v, want the unknown import only", result.Unresolved)
	}
}

func TestResolve_RelativeEscapeRecordedNotFatal(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `import "../../../outside/X.sol"; contract A {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", result.Stats.Resolved)
	}
	if len(result.Unresolved) != 1 || result.Unresolved[0] != "../../../outside/X.sol" {
		t.Errorf("unresolved = %v, want the escaping relative import", result.Unresolved)
	}
}

func TestResolve_EmbeddedQualifierStripped(t *testing.T) {
	// An explicit version tag in the path picks the version, and the tag
	// is stripped before building the content URL.
	srv := newLibServer(map[string]string{
		"/v4/utils/Counters.sol": `library Counters {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts@4/utils/Counters.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 1 {
		t.Fatalf("resolved = %d, want 1; failures: %v", result.Stats.Resolved, result.Failures)
	}
	if got := srv.hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1 (qualifier should pin v4 directly)", got)
	}
	// The merged file set keeps the path as written, qualifier included.
	if _, ok := result.Files["@oz/contracts@4/utils/Counters.sol"]; !ok {
		t.Error("qualified path missing from merged files")
	}
}

func TestResolve_SpecialCaseFallbackURL(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/special/Legacy.sol": `contract Legacy {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, map[string]string{
		"@oz/contracts/legacy/Legacy.sol": srv.URL + "/special/Legacy.sol",
	})

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/legacy/Legacy.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 1 {
		t.Fatalf("resolved = %d, want 1 via the special-case URL; failures: %v",
			result.Stats.Resolved, result.Failures)
	}
}

func TestResolve_AllVersionsFailedRecordsFailure(t *testing.T) {
	srv := newLibServer(nil)
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/Missing.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	failure := result.Failures["@oz/contracts/Missing.sol"]
	if !errors.Is(failure, errors.ErrCodeAllVersionsFailed) {
		t.Fatalf("failure = %v, want code %s", failure, errors.ErrCodeAllVersionsFailed)
	}
	firstHits := srv.hits.Load()

	// A second pass must short-circuit on the failure cache.
	if _, err := engine.Resolve(context.Background(), sources, Options{}); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if got := srv.hits.Load(); got != firstHits {
		t.Errorf("server hits grew from %d to %d; failure cache should short-circuit", firstHits, got)
	}
}

func TestResolve_UserFileWinsPathCollision(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `contract Fetched {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol":            `import "@oz/contracts/A.sol";`,
		"@oz/contracts/A.sol": `contract Local {}`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := result.Files["@oz/contracts/A.sol"]; got != `contract Local {}` {
		t.Errorf("merged content = %q, want the user file to win", got)
	}
	if got := srv.hits.Load(); got != 0 {
		t.Errorf("server hits = %d, want 0 (path already present locally)", got)
	}
}

func TestResolve_ConcurrentWorkers(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `import "./C.sol"; contract A {}`,
		"/v5/B.sol": `contract B {}`,
		"/v5/C.sol": `contract C {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";
import "@oz/contracts/B.sol";`,
	}

	result, err := engine.Resolve(context.Background(), sources, Options{Workers: 4})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if result.Stats.Resolved != 3 {
		t.Fatalf("resolved = %d, want 3; failures: %v", result.Stats.Resolved, result.Failures)
	}
	if got := srv.hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
}

func TestResolve_DeadlineAborts(t *testing.T) {
	srv := newLibServer(map[string]string{
		"/v5/A.sol": `contract A {}`,
	})
	defer srv.Close()
	engine := newEngine(t, srv, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Resolve(ctx, solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";`,
	}, Options{})
	if !errors.Is(err, errors.ErrCodeDeadline) {
		t.Fatalf("error = %v, want code %s", err, errors.ErrCodeDeadline)
	}
}

func TestMatchLocal(t *testing.T) {
	sources := solsrc.Sources{
		"a/Token.sol": "a",
		"b/Token.sol": "b",
		"c/Other.sol": "c",
	}

	tests := []struct {
		name string
		path string
		want string
		ok   bool
	}{
		{"basename with extension", "lib/Token.sol", "a/Token.sol", true},
		{"basename without extension", "lib/Token", "a/Token.sol", true},
		{"tie breaks to smallest key", "Token.sol", "a/Token.sol", true},
		{"no match", "lib/Missing.sol", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := matchLocal(sources, tt.path)
			if ok != tt.ok || got != tt.want {
				t.Errorf("matchLocal(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}
}
