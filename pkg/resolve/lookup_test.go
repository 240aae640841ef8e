package resolve

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/soldep/soldep/pkg/cache"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/solsrc"
)

func testLookup(t *testing.T) *Lookup {
	t.Helper()
	fetcher := fetch.New(cache.NewMemoryCache(), fetch.Config{})
	result := &Result{
		Files: solsrc.Sources{
			"Main.sol":            `contract Main {}`,
			"@oz/contracts/A.sol": `contract A {}`,
		},
		Aliases: map[string]string{
			"./Helper.sol": "Main.sol",
		},
	}
	return NewLookup(result, fetcher)
}

func TestLookup_Source(t *testing.T) {
	l := testLookup(t)
	ctx := context.Background()

	tests := []struct {
		name string
		path string
		want string
	}{
		{"exact key", "@oz/contracts/A.sol", `contract A {}`},
		{"leading slash stripped", "/Main.sol", `contract Main {}`},
		{"alias table", "./Helper.sol", `contract Main {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.Source(ctx, tt.path)
			if err != nil {
				t.Fatalf("Source(%q): %v", tt.path, err)
			}
			if got != tt.want {
				t.Errorf("Source(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestLookup_ContentCacheTier(t *testing.T) {
	backend := cache.NewMemoryCache()
	fetcher := fetch.New(backend, fetch.Config{CacheTTL: time.Minute})

	// Seed the process-wide content cache the way a prior pass would.
	if err := backend.Set(context.Background(), "content:@oz/contracts/B.sol", []byte(`contract B {}`), time.Minute); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	l := NewLookup(&Result{Files: solsrc.Sources{}}, fetcher)
	got, err := l.Source(context.Background(), "@oz/contracts/B.sol")
	if err != nil {
		t.Fatalf("Source: %v", err)
	}
	if got != `contract B {}` {
		t.Errorf("Source = %q, want cached content", got)
	}
}

func TestLookup_NotFound(t *testing.T) {
	l := testLookup(t)

	_, err := l.Source(context.Background(), "@oz/contracts/Missing.sol")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("error = %v, want code %s", err, errors.ErrCodeNotFound)
	}
	if l.Has(context.Background(), "@oz/contracts/Missing.sol") {
		t.Error("Has reported true for a missing path")
	}
}

func TestLookup_NotFoundNamesCause(t *testing.T) {
	fetcher := fetch.New(cache.NewMemoryCache(), fetch.Config{})
	result := &Result{
		Files: solsrc.Sources{"Main.sol": `contract Main {}`},
		Failures: map[string]error{
			"weird/pkg/X.sol":        errors.New(errors.ErrCodeUnsupportedImport, `no registered library matches "weird/pkg/X.sol"`),
			"@oz/contracts/Gone.sol": errors.New(errors.ErrCodeAllVersionsFailed, `every registered version of @oz/contracts failed for @oz/contracts/Gone.sol`),
		},
	}
	l := NewLookup(result, fetcher)
	ctx := context.Background()

	tests := []struct {
		name      string
		path      string
		causeCode errors.Code
		want      string
	}{
		{"unsupported package", "weird/pkg/X.sol", errors.ErrCodeUnsupportedImport, "no registered library matches"},
		{"unresolved external", "@oz/contracts/Gone.sol", errors.ErrCodeAllVersionsFailed, "every registered version"},
		{"unknown local file", "./Nowhere.sol", "", "matched no supplied file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Source(ctx, tt.path)
			if !errors.Is(err, errors.ErrCodeNotFound) {
				t.Fatalf("error = %v, want code %s", err, errors.ErrCodeNotFound)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name the cause %q", err.Error(), tt.want)
			}
			if tt.causeCode != "" {
				var e *errors.Error
				if !stderrors.As(err, &e) || e.Cause == nil || errors.GetCode(e.Cause) != tt.causeCode {
					t.Errorf("cause = %v, want code %s", err, tt.causeCode)
				}
			}
		})
	}

	// Externals the pass never saw get their own message.
	_, err := l.Source(ctx, "@oz/contracts/Never.sol")
	if !strings.Contains(err.Error(), "not requested during the resolution pass") {
		t.Errorf("error %q does not name the never-requested cause", err.Error())
	}
}

func TestLookup_NilFetcher(t *testing.T) {
	l := NewLookup(&Result{Files: solsrc.Sources{"A.sol": "a"}}, nil)
	if got, err := l.Source(context.Background(), "A.sol"); err != nil || got != "a" {
		t.Fatalf("Source = %q, %v; want a, nil", got, err)
	}
	if _, err := l.Source(context.Background(), "B.sol"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Fatalf("error = %v, want code %s", err, errors.ErrCodeNotFound)
	}
}
