package parsers

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
	python "github.com/tree-sitter/tree-sitter-python/bindings/go"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
)

// pythonParser recognizes Python declarations from a tree-sitter syntax tree.
type pythonParser struct {
	*treeSitterParser
}

// NewPythonParser creates a new Python recognizer.
func NewPythonParser() *pythonParser {
	lang := sitter.NewLanguage(python.Language())
	return &pythonParser{
		treeSitterParser: newTreeSitterParser(lang),
	}
}

// Tokenize returns the leaves of the syntax tree as tokens. The tree is
// built on first iteration.
func (p *pythonParser) Tokenize(source string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		src := []byte(source)
		tree := p.parse(src)
		if tree == nil {
			yield(Token{Kind: TokenEOF, Line: 1, Column: 1})
			return
		}
		defer tree.Close()

		if !leafTokens(tree.RootNode(), source, classifyPythonLeaf, isPythonAtomic, yield) {
			return
		}
		line := strings.Count(source, "\n") + 1
		yield(Token{
			Kind:   TokenEOF,
			Line:   line,
			Column: utf8.RuneCountInString(source[lineStartAt(source, len(source)):]) + 1,
			Offset: len(source),
		})
	}
}

func isPythonAtomic(n *sitter.Node) bool {
	return n.Kind() == "string"
}

func classifyPythonLeaf(n *sitter.Node, text string) TokenKind {
	switch n.Kind() {
	case "comment":
		return TokenCommentLine
	case "identifier":
		return TokenIdentifier
	case "string", "string_content":
		return TokenStringLiteral
	case "integer", "float":
		return TokenNumberLiteral
	case "true", "false", "none":
		return TokenKeyword
	}
	if !n.IsNamed() {
		r := []rune(text)
		if len(r) > 0 && unicode.IsLetter(r[0]) {
			return TokenKeyword
		}
		return TokenPunctuation
	}
	return TokenIdentifier
}

// isPythonPragma matches tool directives that are never documentation.
func isPythonPragma(text string) bool {
	if strings.HasPrefix(text, "#!") {
		return true
	}
	body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
	if strings.HasPrefix(body, "-*-") || strings.HasPrefix(body, "vim:") {
		return true
	}
	for _, prefix := range []string{"coding:", "coding=", "type:", "noqa", "pylint:", "fmt:", "mypy:", "pyright:", "isort:"} {
		if strings.HasPrefix(body, prefix) {
			return true
		}
	}
	return false
}

// pythonParse holds the state of one Parse call.
type pythonParse struct {
	src []byte

	// starts maps the first byte of a declaration (its first decorator when
	// decorated) to the declaration, for comment attachment.
	starts map[int]*Declaration
	// bodies remembers class and function bodies for docstring lookup.
	bodies map[*Declaration]*sitter.Node
}

// Parse builds the scope tree for source. Comments directly above a
// definition are its doc block; a docstring is used when there is none.
func (p *pythonParser) Parse(source string, opts ParseOptions) *ScopeNode {
	root := NewTopLevel()
	src := []byte(source)
	tree := p.parse(src)
	if tree == nil {
		return root
	}
	defer tree.Close()

	pp := &pythonParse{
		src:    src,
		starts: make(map[int]*Declaration),
		bodies: make(map[*Declaration]*sitter.Node),
	}
	pp.block(tree.RootNode(), root, false)
	pp.attachComments(tree.RootNode(), source)
	pp.attachDocstrings()
	return root
}

// block visits the statements of a module or class body.
func (pp *pythonParse) block(node *sitter.Node, scope *ScopeNode, inClass bool) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(uint(i))
		switch child.Kind() {
		case "class_definition", "function_definition":
			pp.definition(child, child, nil, scope, inClass)
		case "decorated_definition":
			def := child.ChildByFieldName("definition")
			if def != nil {
				pp.definition(def, child, findChildrenByType(child, "decorator"), scope, inClass)
			}
		case "expression_statement":
			pp.assignment(child, scope)
		}
	}
}

func (pp *pythonParse) definition(node, start *sitter.Node, decorators []*sitter.Node, scope *ScopeNode, inClass bool) {
	name := extractNodeText(node.ChildByFieldName("name"), pp.src)
	if name == "" {
		return
	}
	body := node.ChildByFieldName("body")

	if node.Kind() == "class_definition" {
		decl := &Declaration{
			Kind:    extraction.KindClass,
			Name:    name,
			Line:    nodeLine(node),
			EndLine: nodeEndLine(node),
		}
		child, reopened := scope.OpenScope(decl)
		if reopened {
			decl = scope.findScope(child)
		}
		pp.record(start, decl, body)
		pp.block(body, child, true)
		return
	}

	decl := &Declaration{
		Kind:       extraction.KindMethod,
		Name:       name,
		Line:       nodeLine(node),
		EndLine:    nodeEndLine(node),
		Visibility: pythonVisibility(name),
	}
	if inClass && name == "__init__" {
		decl.Initializer = true
	}

	for _, d := range decorators {
		switch target := decoratorName(d, pp.src); {
		case target == "staticmethod" || target == "classmethod":
			decl.Singleton = true
		case inClass && (target == "property" || strings.HasSuffix(target, "cached_property")):
			decl.Kind = extraction.KindAttribute
			decl.Mode = extraction.ModeReader
		case inClass && target == name+".setter":
			decl.Kind = extraction.KindAttribute
			decl.Mode = extraction.ModeWriter
		case inClass && target == name+".deleter":
			return
		}
	}

	decl = scope.Declare(decl)
	pp.record(start, decl, body)
}

func (pp *pythonParse) record(start *sitter.Node, decl *Declaration, body *sitter.Node) {
	if _, seen := pp.starts[int(start.StartByte())]; !seen {
		pp.starts[int(start.StartByte())] = decl
	}
	if _, seen := pp.bodies[decl]; !seen && body != nil {
		pp.bodies[decl] = body
	}
}

// decoratorName returns the dotted expression of a decorator without
// arguments, e.g. "property" or "name.setter".
func decoratorName(d *sitter.Node, src []byte) string {
	text := strings.TrimSpace(strings.TrimPrefix(extractNodeText(d, src), "@"))
	if i := strings.IndexByte(text, '('); i >= 0 {
		text = text[:i]
	}
	return strings.TrimPrefix(text, "functools.")
}

func pythonVisibility(name string) extraction.Visibility {
	if strings.HasPrefix(name, "_") && !(strings.HasPrefix(name, "__") && strings.HasSuffix(name, "__")) {
		return extraction.VisibilityPrivate
	}
	return extraction.VisibilityPublic
}

// assignment records NAME = value and NAME: type = value statements.
func (pp *pythonParse) assignment(stmt *sitter.Node, scope *ScopeNode) {
	if stmt.NamedChildCount() != 1 {
		return
	}
	assign := stmt.NamedChild(0)
	if assign.Kind() != "assignment" {
		return
	}
	left, right := assign.ChildByFieldName("left"), assign.ChildByFieldName("right")
	if left == nil || right == nil || left.Kind() != "identifier" {
		return
	}
	name := extractNodeText(left, pp.src)
	if !isConstantName(name) {
		return
	}
	decl := scope.Declare(&Declaration{
		Kind:       extraction.KindConstant,
		Name:       name,
		Line:       nodeLine(stmt),
		EndLine:    nodeEndLine(stmt),
		Value:      extractNodeText(right, pp.src),
		Visibility: pythonVisibility(name),
	})
	pp.record(stmt, decl, nil)
}

// isConstantName accepts UPPER_CASE names with at least one letter.
func isConstantName(name string) bool {
	letter := false
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			if !unicode.IsUpper(r) {
				return false
			}
			letter = true
		case r == '_' || unicode.IsDigit(r):
		default:
			return false
		}
	}
	return letter
}

// attachComments feeds every leaf through a CommentCollector in source order
// and hands the pending block to the declaration starting at each leaf.
func (pp *pythonParse) attachComments(root *sitter.Node, source string) {
	c := NewCommentCollector(isPythonPragma)
	leafTokens(root, source, classifyPythonLeaf, isPythonAtomic, func(tok Token) bool {
		switch tok.Kind {
		case TokenCommentLine:
			c.Comment(tok)
		case TokenNewline:
		default:
			if decl, ok := pp.starts[tok.Offset]; ok {
				if block := c.Take(tok.Line); block != nil && decl.Doc == nil {
					decl.Doc = block
				}
			}
			c.Code(tok.Line)
		}
		return true
	})
}

// attachDocstrings fills in docs from a leading string statement.
func (pp *pythonParse) attachDocstrings() {
	for decl, body := range pp.bodies {
		if decl.Doc != nil || body.NamedChildCount() == 0 {
			continue
		}
		first := body.NamedChild(0)
		if first.Kind() != "expression_statement" || first.NamedChildCount() != 1 {
			continue
		}
		str := first.NamedChild(0)
		if str.Kind() != "string" {
			continue
		}
		lines := docstringLines(extractNodeText(str, pp.src))
		if len(lines) == 0 {
			continue
		}
		block := &CommentBlock{Verbatim: true}
		line := nodeLine(str)
		for i, text := range lines {
			block.Lines = append(block.Lines, Token{Kind: TokenStringLiteral, Text: text, Line: line + i})
		}
		decl.Doc = block
	}
}

// docstringLines strips the prefix and quotes of a string literal and
// removes the common indentation of its continuation lines.
func docstringLines(literal string) []string {
	s := strings.TrimLeft(literal, "rRuUbBfF")
	switch {
	case strings.HasPrefix(s, `"""`) || strings.HasPrefix(s, `'''`):
		q := s[:3]
		s = strings.TrimSuffix(strings.TrimPrefix(s, q), q)
	case len(s) >= 2 && (s[0] == '"' || s[0] == '\''):
		s = s[1 : len(s)-1]
	default:
		return nil
	}

	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	indent := -1
	for _, l := range lines[1:] {
		trimmed := strings.TrimLeft(l, " \t")
		if trimmed == "" {
			continue
		}
		if n := len(l) - len(trimmed); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		if indent > 0 && len(lines[i]) >= indent {
			lines[i] = lines[i][indent:]
		} else {
			lines[i] = strings.TrimLeft(lines[i], " \t")
		}
	}
	return lines
}
