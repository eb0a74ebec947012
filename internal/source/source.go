// Package source loads guest-language files, extracts their symbols and
// caches the result per path until the file contents change.
package source

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maypok86/otter"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
)

var (
	// ErrAnchorNotFound indicates that a file has no symbol with the requested anchor
	ErrAnchorNotFound = errors.New("anchor not found")
	// ErrInvalidReference indicates a reference that does not parse
	ErrInvalidReference = errors.New("invalid reference")
	// ErrLineOutOfRange indicates a single-line selection past the end of the file
	ErrLineOutOfRange = errors.New("line out of range")
)

// File is a loaded source file together with its extracted symbols.
// A File is never modified after it is returned.
type File struct {
	Path     string
	Contents string
	Language extractor.Language
	Symbols  []extraction.Symbol
	Hash     string // hex SHA-256 of Contents

	lines []string
}

// Hash returns the hex SHA-256 of contents, the form stored in File.Hash.
func Hash(contents []byte) string {
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:])
}

// NewFile wraps contents already extracted elsewhere, such as symbols read
// back from storage.
func NewFile(path string, contents []byte, lang extractor.Language, symbols []extraction.Symbol) *File {
	text := string(contents)
	return &File{
		Path:     path,
		Contents: text,
		Language: lang,
		Symbols:  symbols,
		Hash:     Hash(contents),
		lines:    strings.Split(strings.TrimSuffix(text, "\n"), "\n"),
	}
}

// LineCount returns the number of lines in the file.
func (f *File) LineCount() int {
	if f.Contents == "" {
		return 0
	}
	return len(f.lines)
}

// Lines returns lines start through end (1-based, inclusive), clamped to
// the file. An empty range yields nil.
func (f *File) Lines(start, end int) []string {
	start = max(start, 1)
	end = min(end, f.LineCount())
	if start > end {
		return nil
	}
	return f.lines[start-1 : end]
}

// Symbol returns the symbol with the given anchor.
func (f *File) Symbol(anchor string) (extraction.Symbol, bool) {
	for _, s := range f.Symbols {
		if s.Anchor == anchor {
			return s, true
		}
	}
	return extraction.Symbol{}, false
}

// Select returns the source lines of the symbol with the given anchor,
// from its documentation block through its terminator.
func (f *File) Select(anchor string) ([]string, error) {
	s, ok := f.Symbol(anchor)
	if !ok {
		return nil, fmt.Errorf("%w: %s#%s", ErrAnchorNotFound, f.Path, anchor)
	}
	return f.Lines(s.StartLine(), s.EndLine), nil
}

// Dedent shifts lines left by their smallest common indentation. Blank
// lines do not count towards the indentation and come back empty.
func Dedent(lines []string) []string {
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}

	out := make([]string, len(lines))
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		out[i] = line[max(indent, 0):]
	}
	return out
}

// List loads files on demand and caches them by canonical path. A cached
// entry is reused only while the file's content hash is unchanged.
type List struct {
	extractor *extractor.Extractor
	cache     otter.Cache[string, *File]
	logger    *slog.Logger
}

// Option configures a List.
type Option func(*List)

// WithExtractor sets the extractor used for newly loaded files.
func WithExtractor(e *extractor.Extractor) Option {
	return func(l *List) { l.extractor = e }
}

// WithLogger sets the logger for cache activity.
func WithLogger(logger *slog.Logger) Option {
	return func(l *List) { l.logger = logger }
}

// NewList creates a List holding up to size files. size must be positive.
func NewList(size int, opts ...Option) (*List, error) {
	builder, err := otter.NewBuilder[string, *File](size)
	if err != nil {
		return nil, fmt.Errorf("failed to configure source cache: %w", err)
	}
	cache, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build source cache: %w", err)
	}

	l := &List{cache: cache, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	if l.extractor == nil {
		l.extractor = extractor.New()
	}
	return l, nil
}

// Get reads and extracts path, or returns the cached File when the
// contents have not changed since the last call.
func (l *List) Get(path string) (*File, error) {
	canonical, err := Canonicalize(path)
	if err != nil {
		return nil, err
	}
	contents, err := os.ReadFile(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return l.Load(canonical, contents)
}

// Load extracts contents as the file at path without touching the
// filesystem. The language is detected from the path.
func (l *List) Load(path string, contents []byte) (*File, error) {
	lang, ok := l.extractor.Registry().Detect(path)
	if !ok {
		return nil, fmt.Errorf("load %s: %w", path, &extractor.UnsupportedLanguageError{Language: extractor.Language(filepath.Ext(path))})
	}

	hash := Hash(contents)
	if cached, ok := l.cache.Get(path); ok && cached.Hash == hash {
		l.logger.Debug("source cache hit", "path", path)
		return cached, nil
	}

	symbols, err := l.extractor.Extract(string(contents), lang)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	f := NewFile(path, contents, lang, symbols)
	l.cache.Set(path, f)
	l.logger.Debug("source extracted", "path", path, "language", lang, "symbols", len(symbols))
	return f, nil
}

// Invalidate drops the cached entry for path.
func (l *List) Invalidate(path string) {
	l.cache.Delete(path)
	if canonical, err := Canonicalize(path); err == nil && canonical != path {
		l.cache.Delete(canonical)
	}
}

// Len returns the number of cached files.
func (l *List) Len() int {
	return l.cache.Size()
}

// Close releases the cache.
func (l *List) Close() {
	l.cache.Close()
}

// Canonicalize returns the absolute, symlink-resolved form of path. Paths
// that do not exist yet are returned in absolute form.
func Canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}
