package extractor

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/mvp-joe/anchors-aweigh/internal/extractor/parsers"
)

// Build walks the scope tree depth-first, pre-order, and returns one symbol
// per declaration in source order. Module and class declarations are
// emitted before their members. Anchors are left empty.
func Build(root *parsers.ScopeNode) []extraction.Symbol {
	b := &builder{symbols: []extraction.Symbol{}, seen: make(map[string]int)}
	b.walk(root, nil)
	return b.symbols
}

type builder struct {
	symbols []extraction.Symbol
	seen    map[string]int
}

func (b *builder) walk(scope *parsers.ScopeNode, prefix []string) {
	for _, decl := range scope.Declarations {
		path := append(append([]string(nil), prefix...), splitName(decl.Name)...)
		b.symbols = append(b.symbols, b.symbol(decl, path))
		if decl.Scope != nil {
			b.walk(decl.Scope, path)
		}
	}
}

// splitName turns "A::B" into its path segments.
func splitName(name string) []string {
	if !strings.Contains(name, "::") {
		return []string{name}
	}
	var parts []string
	for _, p := range strings.Split(name, "::") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func (b *builder) symbol(decl *parsers.Declaration, path []string) extraction.Symbol {
	endLine := decl.EndLine
	if endLine < decl.Line {
		endLine = decl.Line
	}

	sym := extraction.Symbol{
		Path:        path,
		Kind:        decl.Kind,
		Doc:         DocText(decl.Doc),
		Line:        decl.Line,
		EndLine:     endLine,
		DocLine:     decl.Doc.FirstLine(),
		Mode:        decl.Mode,
		Initializer: decl.Initializer,
		Value:       decl.Value,
		Visibility:  decl.Visibility,
		Singleton:   decl.Singleton,
	}
	sym.Fingerprint = b.fingerprint(sym)
	return sym
}

// fingerprint hashes the identity of a symbol independent of its position,
// so consumers can follow a symbol across reorderings.
func (b *builder) fingerprint(sym extraction.Symbol) string {
	key := string(sym.Kind) + "\x00" + strings.Join(sym.Path, "\x00") + "\x00" + strconv.FormatBool(sym.Singleton)
	n := b.seen[key]
	b.seen[key] = n + 1

	sum := sha256.Sum256([]byte(key + "\x00" + strconv.Itoa(n)))
	return hex.EncodeToString(sum[:8])
}

// DocText strips comment markers from a block and joins its lines.
// Leading and trailing blank lines are dropped; inner breaks are kept.
func DocText(block *parsers.CommentBlock) string {
	if block == nil {
		return ""
	}

	lines := make([]string, 0, len(block.Lines))
	for _, tok := range block.Lines {
		text := tok.Text
		if !block.Verbatim {
			text = stripMarker(text)
		}
		lines = append(lines, strings.TrimRight(text, " \t\r"))
	}

	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// stripMarker removes a leading "#" run plus one space. Lines of an
// embedded =begin/=end document are kept as they are, except the
// delimiters themselves.
func stripMarker(line string) string {
	switch {
	case strings.HasPrefix(line, "#"):
		line = strings.TrimLeft(line, "#")
		return strings.TrimPrefix(line, " ")
	case strings.HasPrefix(line, "=begin"), strings.HasPrefix(line, "=end"):
		return ""
	}
	return line
}
