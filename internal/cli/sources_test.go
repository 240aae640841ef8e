package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/soldep/soldep/pkg/errors"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadSources_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Main.sol"), "contract Main {}")
	writeFile(t, filepath.Join(dir, "lib", "Helper.sol"), "contract Helper {}")
	writeFile(t, filepath.Join(dir, "README.md"), "not a contract")
	writeFile(t, filepath.Join(dir, "node_modules", "dep", "Dep.sol"), "contract Dep {}")

	sources, err := loadSources([]string{dir})
	if err != nil {
		t.Fatalf("loadSources: %v", err)
	}

	if len(sources) != 2 {
		t.Fatalf("loaded %d files, want 2: %v", len(sources), sources.Keys())
	}
	if _, ok := sources["Main.sol"]; !ok {
		t.Error("Main.sol missing")
	}
	if _, ok := sources["lib/Helper.sol"]; !ok {
		t.Error("lib/Helper.sol missing; keys must be slash-separated relative paths")
	}
}

func TestLoadSources_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Token.sol")
	writeFile(t, path, "contract Token {}")

	sources, err := loadSources([]string{path})
	if err != nil {
		t.Fatalf("loadSources: %v", err)
	}
	if got := sources["Token.sol"]; got != "contract Token {}" {
		t.Errorf("sources[Token.sol] = %q", got)
	}
}

func TestLoadSources_Missing(t *testing.T) {
	_, err := loadSources([]string{"/nonexistent/project"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error = %v, want code %s", err, errors.ErrCodeInvalidInput)
	}
}

func TestLoadSources_EmptyDir(t *testing.T) {
	_, err := loadSources([]string{t.TempDir()})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("error = %v, want code %s", err, errors.ErrCodeInvalidInput)
	}
}
