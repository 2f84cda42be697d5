package world

import (
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// ScannerConfig controls which files a traversal picks up and how much of
// each it reads.
type ScannerConfig struct {
	// Extensions restricts the traversal to these file extensions
	// ("py" or ".py"). Empty accepts every file.
	Extensions []string
	// IgnorePatterns skips matching paths/dirs (relative to the root).
	// Supports simple names (e.g. "node_modules") and globs (e.g. "vendor/*").
	IgnorePatterns []string
	// MaxBytesPerFile caps how much of each file is read. Zero or negative
	// reads whole files.
	MaxBytesPerFile int
	// MaxConcurrency limits concurrent file reads.
	MaxConcurrency int
}

// DefaultScannerConfig returns the defaults used when nothing is configured.
func DefaultScannerConfig() ScannerConfig {
	workers := runtime.NumCPU()
	if workers > 20 {
		workers = 20
	}
	if workers < 4 {
		workers = 4
	}
	return ScannerConfig{
		MaxBytesPerFile: 8192,
		MaxConcurrency:  workers,
	}
}

func normalizePattern(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimSuffix(p, "\\")
	return filepath.ToSlash(p)
}

// isIgnoredRel reports whether a relative path should be ignored.
func isIgnoredRel(rel, name string, patterns []string) bool {
	rel = filepath.ToSlash(rel)
	for _, raw := range patterns {
		p := normalizePattern(raw)
		if p == "" {
			continue
		}
		// Glob pattern
		if strings.ContainsAny(p, "*?[]") {
			if ok, _ := path.Match(p, rel); ok {
				return true
			}
			if ok, _ := path.Match(p, name); ok {
				return true
			}
			// Handle directory globs like "vendor/*"
			if strings.HasSuffix(p, "/*") {
				prefix := strings.TrimSuffix(p, "/*")
				if strings.HasPrefix(rel, prefix+"/") {
					return true
				}
			}
			continue
		}
		// Simple dir/file name
		if name == p || rel == p {
			return true
		}
		// Prefix match for nested paths
		if strings.HasPrefix(rel, p+"/") {
			return true
		}
	}
	return false
}

// extensionSet normalises configured extensions to lower-case without the
// leading dot. A nil set accepts everything.
func extensionSet(exts []string) map[string]bool {
	if len(exts) == 0 {
		return nil
	}
	set := make(map[string]bool, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e != "" {
			set[e] = true
		}
	}
	return set
}

// extensionOf returns the lower-cased extension of name, dot included.
func extensionOf(name string) string {
	return strings.ToLower(filepath.Ext(name))
}
