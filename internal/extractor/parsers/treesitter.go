package parsers

import (
	"strings"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// treeSitterParser provides common tree-sitter parsing functionality.
type treeSitterParser struct {
	language *sitter.Language
}

// newTreeSitterParser creates a new tree-sitter parser for the given language.
func newTreeSitterParser(language *sitter.Language) *treeSitterParser {
	return &treeSitterParser{language: language}
}

// parse returns the syntax tree for source, or nil when tree-sitter gives up.
// Callers must Close the tree.
func (p *treeSitterParser) parse(source []byte) *sitter.Tree {
	parser := sitter.NewParser()
	defer parser.Close()

	if err := parser.SetLanguage(p.language); err != nil {
		return nil
	}
	return parser.Parse(source, nil)
}

// extractNodeText extracts the text content of a tree-sitter node.
func extractNodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return string(source[node.StartByte():node.EndByte()])
}

// nodeLine returns the 1-based start line of node.
func nodeLine(node *sitter.Node) int {
	return int(node.StartPosition().Row) + 1
}

// nodeEndLine returns the 1-based end line of node.
func nodeEndLine(node *sitter.Node) int {
	return int(node.EndPosition().Row) + 1
}

// walkTree recursively walks a tree-sitter tree and calls the visitor for each node.
func walkTree(node *sitter.Node, visitor func(*sitter.Node) bool) {
	if node == nil {
		return
	}

	if !visitor(node) {
		return
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		walkTree(child, visitor)
	}
}

// findChildrenByType finds all child nodes with the given type.
func findChildrenByType(node *sitter.Node, nodeType string) []*sitter.Node {
	var results []*sitter.Node
	if node == nil {
		return results
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(uint(i))
		if child.Kind() == nodeType {
			results = append(results, child)
		}
	}
	return results
}

// leafTokens walks the leaves of a syntax tree in source order and converts
// them to tokens. Nodes for which atomic returns true are emitted whole.
// Newline tokens are synthesized for every line break between leaves.
func leafTokens(root *sitter.Node, source string, classify func(*sitter.Node, string) TokenKind, atomic func(*sitter.Node) bool, yield func(Token) bool) bool {
	line := 1
	pos := 0

	emitGap := func(until int) bool {
		for pos < until {
			i := strings.IndexByte(source[pos:until], '\n')
			if i < 0 {
				pos = until
				return true
			}
			at := pos + i
			tok := Token{
				Kind:   TokenNewline,
				Text:   "\n",
				Line:   line,
				Column: utf8.RuneCountInString(source[lineStartAt(source, at):at]) + 1,
				Offset: at,
			}
			line++
			pos = at + 1
			if !yield(tok) {
				return false
			}
		}
		return true
	}

	ok := true
	walkTree(root, func(n *sitter.Node) bool {
		if !ok {
			return false
		}
		start, end := int(n.StartByte()), int(n.EndByte())
		if n.ChildCount() > 0 && !atomic(n) {
			return true
		}
		if start == end || start < pos {
			return false
		}
		if !emitGap(start) {
			ok = false
			return false
		}
		text := source[start:end]
		tok := Token{
			Kind:   classify(n, text),
			Text:   text,
			Line:   line,
			Column: utf8.RuneCountInString(source[lineStartAt(source, start):start]) + 1,
			Offset: start,
		}
		line += strings.Count(text, "\n")
		pos = end
		if !yield(tok) {
			ok = false
		}
		return false
	})
	if !ok {
		return false
	}
	return emitGap(len(source))
}

func lineStartAt(source string, offset int) int {
	return strings.LastIndexByte(source[:offset], '\n') + 1
}
