package extractor

import (
	"fmt"
	"iter"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/parsers"
)

// Language identifies a guest language, e.g. "ruby".
type Language string

const (
	Ruby   Language = "ruby"
	Python Language = "python"
)

// Recognizer is the per-language tokenizer and scope-aware parser pair.
// Implementations must be safe for concurrent use.
type Recognizer interface {
	Tokenize(source string) iter.Seq[parsers.Token]
	Parse(source string, opts parsers.ParseOptions) *parsers.ScopeNode
}

// Registry maps languages to recognizers and file names to languages.
type Registry struct {
	mu          sync.RWMutex
	recognizers map[Language]Recognizer
	patterns    map[Language][]string
	extensions  map[string]Language
	basenames   map[string]Language
	aliases     map[string]Language
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		recognizers: make(map[Language]Recognizer),
		patterns:    make(map[Language][]string),
		extensions:  make(map[string]Language),
		basenames:   make(map[string]Language),
		aliases:     make(map[string]Language),
	}
}

// Register adds a recognizer. Patterns starting with "." are file
// extensions; any other pattern is an exact base name such as "Rakefile".
func (r *Registry) Register(lang Language, rec Recognizer, patterns ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recognizers[lang] = rec
	r.aliases[strings.ToLower(string(lang))] = lang
	for _, p := range patterns {
		if strings.HasPrefix(p, ".") {
			ext := strings.ToLower(p)
			r.extensions[ext] = lang
			r.aliases[strings.TrimPrefix(ext, ".")] = lang
		} else {
			r.basenames[p] = lang
		}
		r.patterns[lang] = append(r.patterns[lang], p)
	}
}

// Lookup returns the recognizer for lang.
func (r *Registry) Lookup(lang Language) (Recognizer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.recognizers[lang]
	if !ok {
		return nil, &UnsupportedLanguageError{Language: lang}
	}
	return rec, nil
}

// Detect determines the language of a file from its name.
func (r *Registry) Detect(path string) (Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	base := filepath.Base(path)
	if lang, ok := r.basenames[base]; ok {
		return lang, true
	}
	lang, ok := r.extensions[strings.ToLower(filepath.Ext(base))]
	return lang, ok
}

// Parse resolves a language name or alias ("ruby", "rb", "py").
func (r *Registry) Parse(name string) (Language, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if lang, ok := r.aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		return lang, nil
	}
	return "", &UnsupportedLanguageError{Language: Language(name)}
}

// Languages returns the registered languages in sorted order.
func (r *Registry) Languages() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs := make([]Language, 0, len(r.recognizers))
	for lang := range r.recognizers {
		langs = append(langs, lang)
	}
	slices.Sort(langs)
	return langs
}

// Patterns returns the file patterns registered for lang.
func (r *Registry) Patterns(lang Language) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.patterns[lang])
}

// DefaultRegistry returns the process-wide registry with every built-in
// language. It is built once and only read afterwards.
var DefaultRegistry = sync.OnceValue(func() *Registry {
	r := NewRegistry()
	r.Register(Ruby, parsers.NewRubyParser(), ".rb", ".rake", ".gemspec", ".ru", "Rakefile", "Gemfile", "Guardfile")
	r.Register(Python, parsers.NewPythonParser(), ".py", ".pyi")
	return r
})

// DetectLanguage determines the language of path using the default registry.
func DetectLanguage(path string) (Language, bool) {
	return DefaultRegistry().Detect(path)
}

// ParseLanguage resolves a language name using the default registry.
func ParseLanguage(name string) (Language, error) {
	lang, err := DefaultRegistry().Parse(name)
	if err != nil {
		return "", fmt.Errorf("parse language: %w", err)
	}
	return lang, nil
}
