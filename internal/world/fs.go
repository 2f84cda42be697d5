// Package world walks the workspace and turns it into template variables:
// the absolute root, a rendered source tree and the list of file contents.
package world

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"codeprompt/internal/logging"
	"codeprompt/internal/vars"
)

// Viewer renders a file in place of its raw content (e.g. a PDF to text).
type Viewer func(ctx context.Context, path string) (string, error)

// FileEntry is one file picked up by a traversal.
type FileEntry struct {
	Path string `json:"path" yaml:"path"` // slash-separated, relative to the root
	Code string `json:"code" yaml:"code"`
}

// Traversal is the result of walking a directory.
type Traversal struct {
	AbsolutePath string
	SourceTree   string
	Files        []FileEntry
}

// Vars returns the traversal as the seed keys of a context.
func (t *Traversal) Vars() vars.Map {
	files := make([]map[string]any, 0, len(t.Files))
	for _, f := range t.Files {
		files = append(files, map[string]any{"path": f.Path, "code": f.Code})
	}
	return vars.Map{
		vars.KeyAbsolutePath: t.AbsolutePath,
		vars.KeySourceTree:   t.SourceTree,
		vars.KeyFilesArray:   files,
	}
}

// Scanner handles file system traversal.
type Scanner struct {
	config ScannerConfig

	mu      sync.RWMutex
	viewers map[string]Viewer
}

// NewScanner creates a scanner with the given configuration.
func NewScanner(cfg ScannerConfig) *Scanner {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultScannerConfig().MaxConcurrency
	}
	return &Scanner{config: cfg, viewers: make(map[string]Viewer)}
}

// RegisterViewer installs a custom viewer for files with extension ext
// (".pdf" or "pdf"). A later registration for the same extension wins.
func (s *Scanner) RegisterViewer(ext string, v Viewer) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewers[ext] = v
	logging.WorldDebug("Viewer registered for %s", ext)
}

func (s *Scanner) viewer(ext string) (Viewer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.viewers[ext]
	return v, ok
}

type candidate struct {
	rel  string
	full string
}

// Traverse walks root and reads every accepted file. Files are listed in
// lexical path order regardless of the order reads complete in.
func (s *Scanner) Traverse(ctx context.Context, root string) (*Traversal, error) {
	timer := logging.StartTimer(logging.CategoryWorld, "Traverse "+root)
	defer timer.Stop()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	exts := extensionSet(s.config.Extensions)
	var files []candidate

	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == abs {
			return nil
		}

		rel, err := filepath.Rel(abs, path)
		if err != nil {
			return err
		}
		if isIgnoredRel(rel, d.Name(), s.config.IgnorePatterns) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if exts != nil && !exts[strings.TrimPrefix(extensionOf(d.Name()), ".")] {
			return nil
		}

		files = append(files, candidate{rel: filepath.ToSlash(rel), full: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", abs, err)
	}

	entries := make([]FileEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrency)
	for i, c := range files {
		g.Go(func() error {
			code, err := s.readFile(gctx, c.full)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", c.rel, err)
			}
			entries[i] = FileEntry{Path: c.rel, Code: code}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tree := newTreeNode()
	for _, e := range entries {
		tree.insert(strings.Split(e.Path, "/"))
	}

	logging.World("Traversed %s: %d files", abs, len(entries))
	return &Traversal{
		AbsolutePath: abs,
		SourceTree:   tree.String(),
		Files:        entries,
	}, nil
}

func (s *Scanner) readFile(ctx context.Context, path string) (string, error) {
	if v, ok := s.viewer(extensionOf(path)); ok {
		return v(ctx, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var r io.Reader = f
	if s.config.MaxBytesPerFile > 0 {
		r = io.LimitReader(f, int64(s.config.MaxBytesPerFile))
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return decodeText(data, s.config.MaxBytesPerFile > 0 && len(data) == s.config.MaxBytesPerFile), nil
}

// decodeText turns file bytes into a string. A rune cut by the byte cap is
// dropped; other invalid sequences become U+FFFD.
func decodeText(data []byte, truncated bool) string {
	if truncated && len(data) > 0 {
		k := lastRuneStart(data)
		if !utf8.FullRune(data[len(data)-k:]) {
			data = data[:len(data)-k]
		}
	}
	return strings.ToValidUTF8(string(data), string(utf8.RuneError))
}

// lastRuneStart returns how many trailing bytes belong to the final
// (possibly incomplete) rune.
func lastRuneStart(data []byte) int {
	n := 0
	for i := len(data) - 1; i >= 0 && n < utf8.UTFMax; i-- {
		n++
		if utf8.RuneStart(data[i]) {
			return n
		}
	}
	return 1
}
