// Package discovery locates guest-language source files under a root
// directory using include and ignore glob patterns.
package discovery

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Matcher decides whether a root-relative, slash-separated path is in scope.
type Matcher struct {
	include []compiledPattern
	ignore  []compiledPattern
}

// NewMatcher compiles include and ignore patterns.
func NewMatcher(include, ignore []string) (*Matcher, error) {
	m := &Matcher{}
	var err error
	if m.include, err = compile(include); err != nil {
		return nil, err
	}
	if m.ignore, err = compile(ignore); err != nil {
		return nil, err
	}
	return m, nil
}

func compile(patterns []string) ([]compiledPattern, error) {
	out := make([]compiledPattern, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
		}
		out = append(out, compiledPattern{pattern: pattern, glob: g})
	}
	return out, nil
}

// Match reports whether relPath is included and not ignored.
func (m *Matcher) Match(relPath string) bool {
	return !m.Ignored(relPath) && matchesAny(relPath, m.include)
}

// Ignored checks if a path, or a directory containing it, matches an
// ignore pattern.
func (m *Matcher) Ignored(relPath string) bool {
	// Always ignore the anchors directory
	if relPath == ".anchors" || strings.HasPrefix(relPath, ".anchors/") {
		return true
	}
	if matchesAny(relPath, m.ignore) {
		return true
	}
	// "node_modules" should match pattern "node_modules/**"
	return matchesAny(relPath+"/**", m.ignore)
}

// matchesAny checks if a path matches any of the given patterns.
func matchesAny(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// Files in the root have no slash, so "**/*.rb" would not match
	// "Rakefile.rb". Retry without the leading "**/".
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if simplified, ok := strings.CutPrefix(cp.pattern, "**/"); ok {
				if g, err := glob.Compile(simplified, '/'); err == nil && g.Match(path) {
					return true
				}
			}
		}
	}

	return false
}

// File is a discovered source file.
type File struct {
	Path     string             // absolute path
	RelPath  string             // slash-separated, relative to the root
	Language extractor.Language // detected from the file name
	Size     int64
}

// Skipped records a file that matched the patterns but will not be extracted.
type Skipped struct {
	Path   string
	Reason string
}

// Discoverer walks roots and classifies files.
type Discoverer struct {
	root     string
	matcher  *Matcher
	registry *extractor.Registry
	maxSize  int64
	logger   *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithRegistry detects languages with r instead of the default registry.
func WithRegistry(r *extractor.Registry) Option {
	return func(d *Discoverer) { d.registry = r }
}

// WithMaxFileSize skips files larger than n bytes. Zero disables the limit.
func WithMaxFileSize(n int64) Option {
	return func(d *Discoverer) { d.maxSize = n }
}

// WithLogger sets the logger used for walk warnings.
func WithLogger(l *slog.Logger) Option {
	return func(d *Discoverer) { d.logger = l }
}

// New creates a Discoverer for root.
func New(root string, matcher *Matcher, opts ...Option) (*Discoverer, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	d := &Discoverer{
		root:    abs,
		matcher: matcher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.registry == nil {
		d.registry = extractor.DefaultRegistry()
	}
	return d, nil
}

// Root returns the absolute root directory.
func (d *Discoverer) Root() string {
	return d.root
}

// Discover walks the given paths (files or directories, default the root)
// and returns matching files sorted by relative path. Explicitly named
// files bypass the include patterns but not language detection.
func (d *Discoverer) Discover(ctx context.Context, paths ...string) ([]File, []Skipped, error) {
	if len(paths) == 0 {
		paths = []string{d.root}
	}

	var files []File
	var skipped []Skipped
	seen := make(map[string]bool)

	add := func(path string, explicit bool) {
		if seen[path] {
			return
		}
		seen[path] = true
		f, skip, ok := d.classify(path, explicit)
		switch {
		case skip != nil:
			skipped = append(skipped, *skip)
		case ok:
			files = append(files, f)
		}
	}

	for _, p := range paths {
		abs, err := d.abs(p)
		if err != nil {
			return nil, nil, err
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			add(abs, true)
			continue
		}

		err = filepath.WalkDir(abs, func(path string, entry fs.DirEntry, err error) error {
			if err != nil {
				if path == abs {
					return err
				}
				d.logger.Warn("skipping unreadable path", "path", path, "error", err)
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			rel := d.rel(path)
			if entry.IsDir() {
				if path != abs && d.matcher.Ignored(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			if d.matcher.Match(rel) {
				add(path, false)
			}
			return nil
		})
		if err != nil {
			return nil, nil, fmt.Errorf("walk %s: %w", p, err)
		}
	}

	slices.SortFunc(files, func(a, b File) int { return strings.Compare(a.RelPath, b.RelPath) })
	return files, skipped, nil
}

// Classify reports how a single changed path would be treated, for callers
// such as the watcher that receive paths one at a time. ok is false when
// the path is out of scope or no longer exists.
func (d *Discoverer) Classify(path string) (File, *Skipped, bool) {
	abs, err := d.abs(path)
	if err != nil || !d.matcher.Match(d.rel(abs)) {
		return File{}, nil, false
	}
	return d.classify(abs, false)
}

func (d *Discoverer) classify(path string, explicit bool) (File, *Skipped, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return File{}, nil, false
	}

	rel := d.rel(path)
	lang, ok := d.registry.Detect(path)
	if !ok {
		if explicit {
			return File{}, &Skipped{Path: rel, Reason: "unsupported language"}, false
		}
		return File{}, nil, false
	}
	if d.maxSize > 0 && info.Size() > d.maxSize {
		return File{}, &Skipped{Path: rel, Reason: fmt.Sprintf("file size %d exceeds limit %d", info.Size(), d.maxSize)}, false
	}

	return File{Path: path, RelPath: rel, Language: lang, Size: info.Size()}, nil, true
}

func (d *Discoverer) abs(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(d.root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	return abs, nil
}

// rel returns the slash-separated path relative to the root. Paths outside
// the root keep their absolute form.
func (d *Discoverer) rel(path string) string {
	rel, err := filepath.Rel(d.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, "../") || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
