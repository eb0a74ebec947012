package parsers

import (
	"fmt"
	"strings"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
)

// TokenKind classifies a lexical token.
type TokenKind uint8

const (
	TokenEOF TokenKind = iota
	TokenIdentifier
	TokenKeyword
	TokenPunctuation
	TokenCommentLine
	TokenStringLiteral
	TokenNumberLiteral
	TokenNewline
)

var tokenKindNames = [...]string{
	TokenEOF:           "EOF",
	TokenIdentifier:    "Identifier",
	TokenKeyword:       "Keyword",
	TokenPunctuation:   "Punctuation",
	TokenCommentLine:   "CommentLine",
	TokenStringLiteral: "StringLiteral",
	TokenNumberLiteral: "NumberLiteral",
	TokenNewline:       "Newline",
}

func (k TokenKind) String() string {
	if int(k) < len(tokenKindNames) {
		return tokenKindNames[k]
	}
	return fmt.Sprintf("TokenKind(%d)", k)
}

// Token is a lexical unit pointing back into the source.
// Text is always the verbatim source slice; comment tokens keep their marker.
// Line and Column are 1-based, Offset is the byte offset of the first byte.
type Token struct {
	Kind   TokenKind
	Text   string
	Line   int
	Column int
	Offset int
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Text)
}

func (t Token) String() string {
	return fmt.Sprintf("%d:%d %s %q", t.Line, t.Column, t.Kind, t.Text)
}

// is reports whether the token has the given kind and text.
func (t Token) is(kind TokenKind, text string) bool {
	return t.Kind == kind && t.Text == text
}

// CommentBlock is a run of consecutive comment lines attached to a declaration.
// Verbatim blocks hold marker-free text (e.g. Python docstrings).
type CommentBlock struct {
	Lines    []Token
	Verbatim bool
}

// FirstLine returns the line of the first comment in the block.
func (b *CommentBlock) FirstLine() int {
	if b == nil || len(b.Lines) == 0 {
		return 0
	}
	return b.Lines[0].Line
}

// ScopeKind is the kind of a node in the scope tree.
type ScopeKind uint8

const (
	ScopeTopLevel ScopeKind = iota
	ScopeModule
	ScopeClass
)

func (k ScopeKind) String() string {
	switch k {
	case ScopeModule:
		return "Module"
	case ScopeClass:
		return "Class"
	default:
		return "TopLevel"
	}
}

// ScopeNode mirrors one lexical scope. Module and Class nodes are also
// declarations in their parent; TopLevel contributes no path segment.
type ScopeNode struct {
	Kind         ScopeKind
	Name         string
	Children     []*ScopeNode
	Declarations []*Declaration
}

// NewTopLevel creates the root of a scope tree.
func NewTopLevel() *ScopeNode {
	return &ScopeNode{Kind: ScopeTopLevel}
}

// Declaration is one recognized construct inside a scope.
type Declaration struct {
	Kind        extraction.Kind
	Name        string
	Line        int
	EndLine     int
	Doc         *CommentBlock
	Value       string
	Mode        extraction.AttributeMode
	Initializer bool
	Visibility  extraction.Visibility
	Singleton   bool

	// Scope is set for module and class declarations.
	Scope *ScopeNode
}

// Declare appends a non-scope declaration. A repeated declaration with the
// same kind, name and receiver is folded into the first one: attribute
// modes merge and a missing doc block is filled in. The surviving
// declaration is returned.
func (n *ScopeNode) Declare(decl *Declaration) *Declaration {
	for _, existing := range n.Declarations {
		if existing.Scope == nil && existing.Kind == decl.Kind && existing.Name == decl.Name && existing.Singleton == decl.Singleton {
			existing.Mode = existing.Mode.Merge(decl.Mode)
			if existing.Doc == nil {
				existing.Doc = decl.Doc
			}
			return existing
		}
	}
	n.Declarations = append(n.Declarations, decl)
	return decl
}

// OpenScope returns the child scope for a module or class declaration.
// Reopening a sibling of the same kind and name reuses the existing node and
// reports reopened=true; no second declaration is recorded in that case.
//
// Scoped names ("A::B") are resolved through existing children first, so
// "class A::B" next to "module A" opens B inside A.
func (n *ScopeNode) OpenScope(decl *Declaration) (scope *ScopeNode, reopened bool) {
	kind := ScopeClass
	if decl.Kind == extraction.KindModule {
		kind = ScopeModule
	}

	for {
		head, rest, ok := strings.Cut(decl.Name, "::")
		if !ok {
			break
		}
		inner := n.child(head)
		if inner == nil {
			break
		}
		n, decl.Name = inner, rest
	}

	for _, child := range n.Children {
		if child.Kind == kind && child.Name == decl.Name {
			for _, existing := range n.Declarations {
				if existing.Scope == child && existing.Doc == nil && decl.Doc != nil {
					existing.Doc = decl.Doc
				}
			}
			return child, true
		}
	}

	child := &ScopeNode{Kind: kind, Name: decl.Name}
	decl.Scope = child
	n.Children = append(n.Children, child)
	n.Declarations = append(n.Declarations, decl)
	return child, false
}

// child returns the first child scope named name, of any kind.
func (n *ScopeNode) child(name string) *ScopeNode {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// findScope returns the declaration that owns child.
func (n *ScopeNode) findScope(child *ScopeNode) *Declaration {
	for _, decl := range n.Declarations {
		if decl.Scope == child {
			return decl
		}
	}
	return nil
}

// AttributeDocPolicy controls how one leading comment block is shared by a
// statement that declares several attributes at once.
type AttributeDocPolicy uint8

const (
	// AttributeDocsBroadcast attaches the block to every listed name.
	AttributeDocsBroadcast AttributeDocPolicy = iota
	// AttributeDocsFirstOnly attaches the block to the first listed name only.
	AttributeDocsFirstOnly
)

// ParseAttributeDocPolicy parses "broadcast" or "first".
func ParseAttributeDocPolicy(s string) (AttributeDocPolicy, error) {
	switch s {
	case "", "broadcast":
		return AttributeDocsBroadcast, nil
	case "first", "first_only":
		return AttributeDocsFirstOnly, nil
	}
	return 0, fmt.Errorf("unknown attribute doc policy %q", s)
}

func (p AttributeDocPolicy) String() string {
	if p == AttributeDocsFirstOnly {
		return "first"
	}
	return "broadcast"
}

// ParseOptions tunes a single parse call.
type ParseOptions struct {
	AttributeDocs AttributeDocPolicy
}

// docFor returns the block that the i-th name of a multi-name statement gets.
func (o ParseOptions) docFor(block *CommentBlock, i int) *CommentBlock {
	if i > 0 && o.AttributeDocs == AttributeDocsFirstOnly {
		return nil
	}
	return block
}
