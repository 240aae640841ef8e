// Package compiler defines the compilation boundary: the resolver hands a
// fully materialized file set plus a synchronous lookup surface to a
// Compiler, which turns it into contract artifacts and diagnostics. The
// package ships a solc implementation; anything satisfying the interface
// (a remote compile farm, a test fake) plugs in the same way.
package compiler

import (
	"context"
	"encoding/json"

	"github.com/soldep/soldep/pkg/resolve"
	"github.com/soldep/soldep/pkg/solsrc"
)

// Severity of a compiler diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Settings carries the compile options forwarded to the backend.
type Settings struct {
	OptimizerEnabled bool   `json:"optimizer_enabled"`
	OptimizerRuns    int    `json:"optimizer_runs"`
	EVMVersion       string `json:"evm_version,omitempty"`
}

// Input is one compilation request: the merged file set from a resolution
// pass plus the lookup surface for any import the backend asks about at
// compile time.
type Input struct {
	Sources   solsrc.Sources
	Lookup    *resolve.Lookup
	EntryFile string
	Settings  Settings
}

// Diagnostic is one message emitted by the backend, normalized across
// implementations.
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	File     string   `json:"file,omitempty"`
}

// Contract is one compiled artifact.
type Contract struct {
	Name     string          `json:"name"`
	ABI      json.RawMessage `json:"abi,omitempty"`
	Bytecode string          `json:"bytecode,omitempty"`
}

// Output is the result of a successful compile. Diagnostics may contain
// warnings even on success; error-severity diagnostics come back alongside
// a COMPILER_FAILURE error instead.
type Output struct {
	Contracts   map[string]Contract `json:"contracts"` // keyed by "file:Contract"
	Diagnostics []Diagnostic        `json:"diagnostics,omitempty"`
}

// Compiler compiles a resolved file set.
type Compiler interface {
	Compile(ctx context.Context, input Input) (*Output, error)
}

// Func adapts a plain function to the Compiler interface.
type Func func(ctx context.Context, input Input) (*Output, error)

func (f Func) Compile(ctx context.Context, input Input) (*Output, error) {
	return f(ctx, input)
}
