package solsrc

import "strings"

// Dir returns the directory portion of a slash-separated path, without a
// trailing slash. A path without a slash has directory "".
func Dir(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// Base returns the final segment of a slash-separated path.
func Base(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

// Join resolves a relative import against a base directory using segment
// arithmetic: "." segments are dropped and ".." pops one directory. A ".."
// that would pop above the root makes the path unresolvable and Join returns
// ok=false rather than guessing.
func Join(baseDir, rel string) (string, bool) {
	segments := []string{}
	if baseDir != "" {
		segments = strings.Split(baseDir, "/")
	}

	for _, seg := range strings.Split(rel, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				return "", false
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		return "", false
	}
	return strings.Join(segments, "/"), true
}
