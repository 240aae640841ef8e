package cli

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/soldep/soldep/pkg/errors"
	"github.com/soldep/soldep/pkg/solsrc"
)

// loadSources reads contract files from the given paths. A directory is
// walked recursively for source files; file keys are slash-separated paths
// relative to the argument, matching how imports reference them.
func loadSources(paths []string) (solsrc.Sources, error) {
	sources := make(solsrc.Sources)
	for _, arg := range paths {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading %s", arg)
		}
		if info.IsDir() {
			if err := loadDir(sources, arg); err != nil {
				return nil, err
			}
			continue
		}
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "reading %s", arg)
		}
		sources[filepath.ToSlash(filepath.Base(arg))] = string(data)
	}
	if len(sources) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "no contract files found")
	}
	return sources, nil
}

func loadDir(sources solsrc.Sources, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip dependency trees and VCS metadata.
			name := d.Name()
			if name == "node_modules" || strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, solsrc.Ext) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(errors.ErrCodeInvalidInput, err, "reading %s", path)
		}
		sources[filepath.ToSlash(rel)] = string(data)
		return nil
	})
}
