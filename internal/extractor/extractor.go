// Package extractor turns guest-language source text into an ordered list
// of documentable symbols with stable anchors.
//
// Extraction is a pure transformation: no filesystem or network access
// happens here, and malformed source never fails a call. The only error is
// an unsupported language.
package extractor

import (
	"iter"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/parsers"
)

// Extractor dispatches to registered recognizers. It holds no per-call
// state and may be shared between goroutines.
type Extractor struct {
	registry *Registry
	opts     parsers.ParseOptions
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithRegistry uses r instead of the default registry.
func WithRegistry(r *Registry) Option {
	return func(e *Extractor) {
		e.registry = r
	}
}

// WithAttributeDocs sets how a doc block is shared by multi-name attribute
// statements.
func WithAttributeDocs(policy parsers.AttributeDocPolicy) Option {
	return func(e *Extractor) {
		e.opts.AttributeDocs = policy
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	if e.registry == nil {
		e.registry = DefaultRegistry()
	}
	return e
}

// Registry returns the registry used for dispatch.
func (e *Extractor) Registry() *Registry {
	return e.registry
}

// Extract returns the symbols of source in declaration order.
func (e *Extractor) Extract(source string, lang Language) ([]extraction.Symbol, error) {
	rec, err := e.registry.Lookup(lang)
	if err != nil {
		return nil, err
	}

	symbols := Build(rec.Parse(source, e.opts))
	anchors := NewAnchorTable()
	for i := range symbols {
		symbols[i].Anchor = anchors.Issue(symbols[i].Path, symbols[i].Kind)
	}
	return symbols, nil
}

// Tokenize returns the token stream of source.
func (e *Extractor) Tokenize(source string, lang Language) (iter.Seq[parsers.Token], error) {
	rec, err := e.registry.Lookup(lang)
	if err != nil {
		return nil, err
	}
	return rec.Tokenize(source), nil
}

// Extract runs a default Extractor.
func Extract(source string, lang Language) ([]extraction.Symbol, error) {
	return New().Extract(source, lang)
}
