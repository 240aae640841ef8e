package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/soldep/soldep/pkg/cache"
	"github.com/soldep/soldep/pkg/compiler"
	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/fetch"
	"github.com/soldep/soldep/pkg/registry"
	"github.com/soldep/soldep/pkg/solsrc"
	"github.com/soldep/soldep/pkg/store"
)

func testRunner(t *testing.T, files map[string]string, comp compiler.Compiler) (*Runner, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(content))
	}))

	reg, err := registry.New([]*registry.LibrarySpec{
		{
			Prefix:         "@oz/contracts",
			DefaultVersion: "v5",
			Versions: []registry.VersionSpec{
				{Name: "v5", BaseURL: srv.URL + "/v5"},
			},
		},
	}, nil)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	fetcher := fetch.New(cache.NewMemoryCache(), fetch.Config{Retries: 1, BaseDelay: time.Millisecond})
	return NewRunner(reg, fetcher, comp, store.NewMemoryStore(), nil), srv
}

func okCompiler() compiler.Compiler {
	return compiler.Func(func(_ context.Context, input compiler.Input) (*compiler.Output, error) {
		return &compiler.Output{Contracts: map[string]compiler.Contract{
			input.EntryFile + ":Main": {Name: "Main", Bytecode: "6080"},
		}}, nil
	})
}

func TestRunner_Execute(t *testing.T) {
	runner, srv := testRunner(t, map[string]string{
		"/v5/A.sol": `contract A {}`,
	}, okCompiler())
	defer srv.Close()

	sources := solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol"; contract Main {}`,
	}
	result, err := runner.Execute(context.Background(), sources, Options{EntryFile: "Main.sol"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.ID == "" {
		t.Error("result has no ID")
	}
	if result.Resolution.Stats.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", result.Resolution.Stats.Resolved)
	}
	if len(result.Output.Contracts) != 1 {
		t.Errorf("contracts = %d, want 1", len(result.Output.Contracts))
	}

	// The record landed in the store.
	rec, err := runner.Store.Get(context.Background(), result.ID)
	if err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if !rec.Success || rec.EntryFile != "Main.sol" {
		t.Errorf("record = %+v", rec)
	}
}

func TestRunner_ResolveOnly(t *testing.T) {
	runner, srv := testRunner(t, map[string]string{
		"/v5/A.sol": `contract A {}`,
	}, nil)
	defer srv.Close()

	result, err := runner.Execute(context.Background(), solsrc.Sources{
		"Main.sol": `import "@oz/contracts/A.sol";`,
	}, Options{ResolveOnly: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Output != nil {
		t.Error("resolve-only run produced compiler output")
	}
	if result.Resolution.Stats.Resolved != 1 {
		t.Errorf("resolved = %d, want 1", result.Resolution.Stats.Resolved)
	}
}

func TestRunner_CompileFailureStillRecorded(t *testing.T) {
	failing := compiler.Func(func(context.Context, compiler.Input) (*compiler.Output, error) {
		return &compiler.Output{
			Diagnostics: []compiler.Diagnostic{{Severity: compiler.SeverityError, Message: "boom"}},
		}, errors.New(errors.ErrCodeCompilerFailure, "compilation produced errors")
	})
	runner, srv := testRunner(t, nil, failing)
	defer srv.Close()

	result, err := runner.Execute(context.Background(), solsrc.Sources{
		"Main.sol": `contract Main {}`,
	}, Options{})
	if !errors.Is(err, errors.ErrCodeCompilerFailure) {
		t.Fatalf("error = %v, want code %s", err, errors.ErrCodeCompilerFailure)
	}

	rec, recErr := runner.Store.Get(context.Background(), result.ID)
	if recErr != nil {
		t.Fatalf("stored record: %v", recErr)
	}
	if rec.Success {
		t.Error("failed compile recorded as success")
	}
	if rec.DiagnosticCount != 1 {
		t.Errorf("diagnostic count = %d, want 1", rec.DiagnosticCount)
	}
}

func TestRunner_ValidationRejects(t *testing.T) {
	runner, srv := testRunner(t, nil, okCompiler())
	defer srv.Close()

	tests := []struct {
		name    string
		sources solsrc.Sources
		opts    Options
		code    errors.Code
	}{
		{"empty sources", solsrc.Sources{}, Options{}, errors.ErrCodeInvalidInput},
		{"missing entry file", solsrc.Sources{"A.sol": "contract A {}"}, Options{EntryFile: "B.sol"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runner.Execute(context.Background(), tt.sources, tt.opts)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}
