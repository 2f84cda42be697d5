package prompt

import (
	"fmt"
	"io/fs"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"

	"codeprompt/internal/logging"
)

// DefaultCacheSize bounds the number of parsed templates kept by a Loader.
const DefaultCacheSize = 64

// Loader reads templates from disk and caches parsed results. A cached
// entry is reused only while the file's modification time and size are
// unchanged.
type Loader struct {
	cache *lru.Cache[string, *Template]
	opts  ParseOptions
}

// NewLoader creates a loader with a cache of the given size.
func NewLoader(size int, opts ParseOptions) (*Loader, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New[string, *Template](size)
	if err != nil {
		return nil, err
	}
	return &Loader{cache: cache, opts: opts}, nil
}

// Load reads and parses the template at path. A missing file yields an
// error wrapping fs.ErrNotExist.
func (l *Loader) Load(path string) (*Template, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("template file not found: %s: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to stat template %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("template %s is a directory", path)
	}

	key := fmt.Sprintf("%s|%d|%d", path, info.ModTime().UnixNano(), info.Size())
	if t, ok := l.cache.Get(key); ok {
		logging.TemplateDebug("Template cache hit: %s", path)
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", path, err)
	}

	t, err := Parse(path, string(data), l.opts)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, t)
	logging.Template("Loaded template %s (%d fragments)", path, len(t.fragments))
	return t, nil
}

// Purge drops every cached template.
func (l *Loader) Purge() {
	l.cache.Purge()
}
