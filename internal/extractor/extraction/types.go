package extraction

import "strings"

// Kind identifies which declaration construct produced a symbol.
type Kind string

const (
	KindModule    Kind = "module"
	KindClass     Kind = "class"
	KindConstant  Kind = "constant"
	KindAttribute Kind = "attribute"
	KindMethod    Kind = "method"
)

// Kinds lists every kind.
var Kinds = []Kind{KindModule, KindClass, KindConstant, KindAttribute, KindMethod}

// IsScope reports whether declarations of this kind open a nested scope.
func (k Kind) IsScope() bool {
	return k == KindModule || k == KindClass
}

// AttributeMode describes which accessors an attribute declaration generates.
type AttributeMode string

const (
	ModeReader   AttributeMode = "reader"
	ModeWriter   AttributeMode = "writer"
	ModeAccessor AttributeMode = "accessor"
)

// Merge combines two modes declared for the same attribute name.
// A reader and a writer for the same name make an accessor.
func (m AttributeMode) Merge(other AttributeMode) AttributeMode {
	switch {
	case m == "":
		return other
	case other == "" || m == other:
		return m
	default:
		return ModeAccessor
	}
}

// Visibility is the access level of a method or attribute.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityProtected Visibility = "protected"
	VisibilityPrivate   Visibility = "private"
)

// Symbol is one documentable entity extracted from a source file.
// Symbols are immutable once emitted.
type Symbol struct {
	Path        []string      `json:"path" yaml:"path"`
	Kind        Kind          `json:"kind" yaml:"kind"`
	Anchor      string        `json:"anchor" yaml:"anchor"`
	Doc         string        `json:"doc,omitempty" yaml:"doc,omitempty"`
	Line        int           `json:"line" yaml:"line"`
	EndLine     int           `json:"end_line" yaml:"end_line"`
	DocLine     int           `json:"doc_line,omitempty" yaml:"doc_line,omitempty"`
	Mode        AttributeMode `json:"mode,omitempty" yaml:"mode,omitempty"`
	Initializer bool          `json:"initializer,omitempty" yaml:"initializer,omitempty"`
	Value       string        `json:"value,omitempty" yaml:"value,omitempty"`
	Visibility  Visibility    `json:"visibility,omitempty" yaml:"visibility,omitempty"`
	Singleton   bool          `json:"singleton,omitempty" yaml:"singleton,omitempty"`
	Fingerprint string        `json:"fingerprint" yaml:"fingerprint"`
}

// Name returns the symbol's own name (the last path segment).
func (s Symbol) Name() string {
	if len(s.Path) == 0 {
		return ""
	}
	return s.Path[len(s.Path)-1]
}

// QualifiedName joins the path with the given separator, e.g. "MyModule::Foo".
func (s Symbol) QualifiedName(sep string) string {
	return strings.Join(s.Path, sep)
}

// HasDoc reports whether a documentation block was attached.
func (s Symbol) HasDoc() bool {
	return s.Doc != ""
}

// StartLine is the first line of the symbol's source range, including its
// leading documentation block when one is attached.
func (s Symbol) StartLine() int {
	if s.DocLine > 0 && s.DocLine < s.Line {
		return s.DocLine
	}
	return s.Line
}
