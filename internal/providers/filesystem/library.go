package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/TinySandbox/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/TinySandbox/backend/internal/providers/browser"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// DefaultPattern selects host pages when no pattern is configured.
const DefaultPattern = "**/*.html"

var (
	ErrNoLibrary   = errors.New("page library not configured")
	ErrNotFound    = errors.New("page not found in library")
	ErrOutsideRoot = errors.New("path escapes library root")
	ErrNotHTML     = errors.New("file is not html")
	ErrTooLarge    = errors.New("file too large")
)

// Entry describes one page in the library.
type Entry struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}

// Library is a read-only directory of host pages.
type Library struct {
	root     string
	pattern  string
	maxBytes int64
	logger   *logging.Logger
}

// NewLibrary opens root. An empty root yields a library that reports ErrNoLibrary.
func NewLibrary(root, pattern string, logger *logging.Logger) (*Library, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid library pattern %q", pattern)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lib := &Library{
		pattern:  pattern,
		maxBytes: browser.MaxHTMLSize,
		logger:   logger.Named("library"),
	}
	if root == "" {
		return lib, nil
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", abs)
	}
	lib.root = abs
	return lib, nil
}

// Root returns the absolute library directory, or "" when unconfigured.
func (l *Library) Root() string { return l.root }

// Enabled reports whether the library has a root.
func (l *Library) Enabled() bool { return l.root != "" }

// List walks the root and returns matching pages sorted by name.
func (l *Library) List(ctx context.Context) ([]Entry, error) {
	if !l.Enabled() {
		return nil, ErrNoLibrary
	}

	var (
		mu      sync.Mutex
		entries []Entry
	)
	conf := fastwalk.Config{Follow: false}

	// fastwalk invokes the callback from several goroutines.
	err := fastwalk.Walk(&conf, l.root, func(p string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil || d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return nil
		}
		name := filepath.ToSlash(rel)
		if ok, _ := doublestar.Match(l.pattern, name); !ok {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		mu.Lock()
		entries = append(entries, Entry{Name: name, Size: info.Size(), ModTime: info.ModTime()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk library: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	l.logger.Debug("library listed", zap.Int("pages", len(entries)))
	return entries, nil
}

// Read returns the page named by a slash-separated path relative to the root.
func (l *Library) Read(name string) ([]byte, error) {
	if !l.Enabled() {
		return nil, ErrNoLibrary
	}

	full, clean, err := l.resolve(name)
	if err != nil {
		return nil, err
	}
	if ok, _ := doublestar.Match(l.pattern, clean); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}

	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", clean, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, clean)
	}
	if info.Size() > l.maxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, clean, info.Size())
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", clean, err)
	}
	if mtype := mimetype.Detect(data); !mtype.Is("text/html") {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotHTML, clean, mtype.String())
	}
	return data, nil
}

// resolve maps name onto the root, rejecting anything that would escape it.
func (l *Library) resolve(name string) (full, clean string, err error) {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return "", "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}
	clean = path.Clean(name)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}

	full = filepath.Join(l.root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %q", ErrOutsideRoot, name)
	}
	return full, clean, nil
}
