package solsrc

import (
	"regexp"
	"strings"
)

// importRe matches the Solidity import statement forms:
//
//	import "./Token.sol";
//	import './Token.sol';
//	import "@openzeppelin/contracts/token/ERC20/ERC20.sol" as oz;
//	import * as oz from "@openzeppelin/contracts/token/ERC20/ERC20.sol";
//	import {ERC20, IERC20} from "@openzeppelin/contracts/token/ERC20/ERC20.sol";
//
// This is a text-level scan, not a parse: an import-shaped string inside a
// comment or string literal will also match. That imprecision is accepted;
// the worst case is fetching a file nobody references.
var importRe = regexp.MustCompile(`import\s+(?:(?:\{[^}]*\}|\*\s*as\s+[A-Za-z_$][\w$]*)\s+from\s+)?["']([^"']+)["']`)

// Imports extracts the import path strings referenced by source text, in
// order of first appearance with duplicates removed.
func Imports(text string) []string {
	matches := importRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	paths := make([]string, 0, len(matches))
	for _, m := range matches {
		path := m[1]
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}

// IsRelative reports whether an import path is relative (./ or ../) and must
// be resolved against the importing file's directory rather than a library
// registry.
func IsRelative(path string) bool {
	return strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../")
}
