package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"

	"github.com/soldep/soldep/pkg/errors"
)

// Solc compiles via a local solc binary in --standard-json mode. The binary
// is looked up once at construction; the instance is safe for concurrent use
// since every Compile spawns its own process.
type Solc struct {
	path string
}

// NewSolc locates the solc binary. An empty binary name defaults to "solc"
// on PATH.
func NewSolc(binary string) (*Solc, error) {
	if binary == "" {
		binary = "solc"
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeCompilerFailure, err, "solc binary %q not found", binary)
	}
	return &Solc{path: path}, nil
}

// standard-json request/response shapes, trimmed to the fields used here.
type solcInput struct {
	Language string                `json:"language"`
	Sources  map[string]solcSource `json:"sources"`
	Settings solcSettings          `json:"settings"`
}

type solcSource struct {
	Content string `json:"content"`
}

type solcSettings struct {
	Optimizer       solcOptimizer                  `json:"optimizer"`
	EVMVersion      string                         `json:"evmVersion,omitempty"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

type solcOptimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs,omitempty"`
}

type solcOutput struct {
	Errors []struct {
		Severity         string `json:"severity"`
		FormattedMessage string `json:"formattedMessage"`
		Message          string `json:"message"`
		SourceLocation   *struct {
			File string `json:"file"`
		} `json:"sourceLocation"`
	} `json:"errors"`
	Contracts map[string]map[string]struct {
		ABI json.RawMessage `json:"abi"`
		EVM struct {
			Bytecode struct {
				Object string `json:"object"`
			} `json:"bytecode"`
		} `json:"evm"`
	} `json:"contracts"`
}

// Compile runs solc --standard-json over the resolved file set. Every file
// the resolution pass produced goes into the request; solc never performs
// its own import resolution here.
func (s *Solc) Compile(ctx context.Context, input Input) (*Output, error) {
	req := solcInput{
		Language: "Solidity",
		Sources:  make(map[string]solcSource, len(input.Sources)),
		Settings: solcSettings{
			Optimizer: solcOptimizer{
				Enabled: input.Settings.OptimizerEnabled,
				Runs:    input.Settings.OptimizerRuns,
			},
			EVMVersion: input.Settings.EVMVersion,
			OutputSelection: map[string]map[string][]string{
				"*": {"*": {"abi", "evm.bytecode.object"}},
			},
		},
	}
	for _, path := range input.Sources.Keys() {
		req.Sources[path] = solcSource{Content: input.Sources[path]}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "marshaling compiler input")
	}

	cmd := exec.CommandContext(ctx, s.path, "--standard-json")
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrCodeDeadline, ctx.Err(), "compilation aborted")
		}
		return nil, errors.Wrap(errors.ErrCodeCompilerFailure, err, "solc failed: %s", stderr.String())
	}

	var resp solcOutput
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCompilerFailure, err, "unparseable solc output")
	}

	out := &Output{Contracts: make(map[string]Contract)}
	failed := false
	for _, e := range resp.Errors {
		d := Diagnostic{Severity: Severity(e.Severity), Message: e.Message}
		if e.FormattedMessage != "" {
			d.Message = e.FormattedMessage
		}
		if e.SourceLocation != nil {
			d.File = e.SourceLocation.File
		}
		out.Diagnostics = append(out.Diagnostics, d)
		if d.Severity == SeverityError {
			failed = true
		}
	}

	for file, contracts := range resp.Contracts {
		for name, c := range contracts {
			out.Contracts[file+":"+name] = Contract{
				Name:     name,
				ABI:      c.ABI,
				Bytecode: c.EVM.Bytecode.Object,
			}
		}
	}

	if failed {
		return out, errors.New(errors.ErrCodeCompilerFailure, "compilation produced errors")
	}
	return out, nil
}
