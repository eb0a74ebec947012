package parsers

import (
	"iter"
	"strings"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
)

// rubyParser recognizes Ruby declarations with a hand-written tokenizer and
// a stack-based scope tracker. It never fails: unrecognized constructs are
// skipped up to the next statement boundary.
type rubyParser struct{}

// NewRubyParser creates a new Ruby recognizer.
func NewRubyParser() *rubyParser {
	return &rubyParser{}
}

// Tokenize returns the lazy token stream for source.
func (p *rubyParser) Tokenize(source string) iter.Seq[Token] {
	return rubyTokens(source)
}

// Parse builds the scope tree for source.
func (p *rubyParser) Parse(source string, opts ParseOptions) *ScopeNode {
	rp := &rubyParse{
		src:      source,
		lex:      newRubyLexer(source),
		opts:     opts,
		comments: NewCommentCollector(isRubyPragma),
		root:     NewTopLevel(),
	}
	rp.frames = []*frame{{kind: frameScope, scope: rp.root, visibility: extraction.VisibilityPublic}}
	rp.run()
	return rp.root
}

// isRubyPragma matches magic comments that are never documentation.
func isRubyPragma(text string) bool {
	if strings.HasPrefix(text, "#!") {
		return true
	}
	body := strings.TrimSpace(strings.TrimPrefix(text, "#"))
	if strings.HasPrefix(body, "-*-") && strings.HasSuffix(body, "-*-") {
		return true
	}
	if strings.Contains(body, ":nodoc:") {
		return true
	}
	for _, prefix := range []string{
		"frozen_string_literal:", "encoding:", "coding:", "warn_indent:",
		"shareable_constant_value:", "warn_past_scope:", "rubocop:", "typed:",
	} {
		if strings.HasPrefix(body, prefix) {
			return true
		}
	}
	return false
}

type frameKind uint8

const (
	frameScope frameKind = iota
	frameSingleton
	frameMethod
	frameBlock
)

// frame is one entry of the nesting stack. Every frame is closed by "end".
type frame struct {
	kind       frameKind
	scope      *ScopeNode
	decl       *Declaration
	visibility extraction.Visibility
}

type rubyParse struct {
	src      string
	lex      *rubyLexer
	opts     ParseOptions
	comments *CommentCollector
	root     *ScopeNode
	frames   []*frame

	buf  []Token
	last Token

	// heredocs holds the offsets of heredoc openers consumed so far.
	heredocs []int

	// stmtDoc is the block taken for a statement that fell through to
	// skipStatement, for prefixed definitions such as "memoize def x".
	stmtDoc *CommentBlock
}

// fill makes sure n significant tokens are buffered. Comments are routed to
// the collector as they are lexed.
func (p *rubyParse) fill(n int) {
	for len(p.buf) < n {
		tok := p.lex.Next()
		if tok.Kind == TokenCommentLine {
			p.comments.Comment(tok)
			continue
		}
		p.buf = append(p.buf, tok)
	}
}

func (p *rubyParse) peek(i int) Token {
	p.fill(i + 1)
	return p.buf[i]
}

func (p *rubyParse) next() Token {
	p.fill(1)
	tok := p.buf[0]
	if tok.Kind != TokenEOF {
		p.buf = p.buf[1:]
	}
	if tok.Kind != TokenNewline && tok.Kind != TokenEOF {
		p.comments.Code(tok.Line + strings.Count(tok.Text, "\n"))
		p.last = tok
		if tok.Kind == TokenStringLiteral && strings.HasPrefix(tok.Text, "<<") {
			p.heredocs = append(p.heredocs, tok.Offset)
		}
	}
	return tok
}

// extentSince returns the end offset of the code consumed from start on,
// reaching through the bodies of heredocs opened in that range.
func (p *rubyParse) extentSince(start int) int {
	end := p.last.End()
	for i := len(p.heredocs) - 1; i >= 0 && p.heredocs[i] >= start; i-- {
		if bodyEnd, ok := p.lex.heredocEnd(p.heredocs[i]); ok && bodyEnd > end {
			end = bodyEnd
		}
	}
	return end
}

// lineAt returns the 1-based line holding offset.
func (p *rubyParse) lineAt(offset int) int {
	return strings.Count(p.src[:offset], "\n") + 1
}

// peekSignificant returns the first token after any newlines.
func (p *rubyParse) peekSignificant() Token {
	for i := 0; ; i++ {
		if tok := p.peek(i); tok.Kind != TokenNewline {
			return tok
		}
	}
}

func (p *rubyParse) top() *frame {
	return p.frames[len(p.frames)-1]
}

// context returns the innermost non-block frame, which decides whether
// declarations are recognized and where they go.
func (p *rubyParse) context() *frame {
	for i := len(p.frames) - 1; i >= 0; i-- {
		if p.frames[i].kind != frameBlock {
			return p.frames[i]
		}
	}
	return p.frames[0]
}

// scopeFrame returns the innermost frame that owns a scope node.
func (p *rubyParse) scopeFrame() *frame {
	for i := len(p.frames) - 1; i >= 0; i-- {
		if p.frames[i].scope != nil {
			return p.frames[i]
		}
	}
	return p.frames[0]
}

func (p *rubyParse) declaring() bool {
	k := p.context().kind
	return k == frameScope || k == frameSingleton
}

func (p *rubyParse) singleton() bool {
	return p.context().kind == frameSingleton
}

func (p *rubyParse) push(f *frame) {
	p.frames = append(p.frames, f)
}

func (p *rubyParse) pop(endLine int) {
	if len(p.frames) == 1 {
		return
	}
	f := p.top()
	if f.decl != nil {
		f.decl.EndLine = endLine
	}
	p.frames = p.frames[:len(p.frames)-1]
}

func (p *rubyParse) run() {
	for {
		tok := p.peek(0)
		switch {
		case tok.Kind == TokenEOF:
			p.finish()
			return
		case tok.Kind == TokenNewline || tok.is(TokenPunctuation, ";"):
			p.next()
		default:
			p.statement()
		}
	}
}

// finish closes frames left open at end of input.
func (p *rubyParse) finish() {
	last := 1
	if p.last.Line > 0 {
		last = p.lineAt(p.extentSince(p.last.Offset))
	}
	for len(p.frames) > 1 {
		p.pop(last)
	}
}

func (p *rubyParse) statement() {
	tok := p.peek(0)
	doc := p.comments.Take(tok.Line)

	switch tok.Kind {
	case TokenKeyword:
		switch tok.Text {
		case "module", "class":
			p.parseScope(doc)
			return
		case "def":
			p.parseDef(doc, "")
			return
		case "end":
			p.next()
			p.pop(tok.Line)
			p.skipRest()
			return
		}
	case TokenIdentifier:
		if p.declaring() {
			if mode, ok := attributeMode(tok.Text); ok {
				p.parseAttr(doc, mode, "")
				return
			}
			if vis, ok := visibilityKeyword(tok.Text); ok {
				p.parseVisibility(doc, vis, tok.Text)
				return
			}
			if isUpperStart(tok.Text) && p.peek(1).is(TokenPunctuation, "=") {
				p.parseConstant(doc)
				return
			}
		}
	}
	p.stmtDoc = doc
	p.skipStatement()
	p.stmtDoc = nil
}

func attributeMode(word string) (extraction.AttributeMode, bool) {
	switch word {
	case "attr_reader", "attr":
		return extraction.ModeReader, true
	case "attr_writer":
		return extraction.ModeWriter, true
	case "attr_accessor":
		return extraction.ModeAccessor, true
	}
	return "", false
}

func visibilityKeyword(word string) (extraction.Visibility, bool) {
	switch word {
	case "private", "private_class_method", "private_constant":
		return extraction.VisibilityPrivate, true
	case "protected":
		return extraction.VisibilityProtected, true
	case "public", "public_class_method", "public_constant":
		return extraction.VisibilityPublic, true
	}
	return "", false
}

// atStatementEnd reports whether tok terminates the current statement.
func atStatementEnd(tok Token) bool {
	return tok.Kind == TokenNewline || tok.Kind == TokenEOF || tok.is(TokenPunctuation, ";")
}

// parseScope handles "module Name", "class Name < Super" and "class << self".
func (p *rubyParse) parseScope(doc *CommentBlock) {
	kw := p.next()

	if kw.Text == "class" && p.peek(0).is(TokenPunctuation, "<<") {
		p.next()
		if p.declaring() {
			p.push(&frame{kind: frameSingleton, scope: p.scopeFrame().scope, visibility: extraction.VisibilityPublic})
		} else {
			p.push(&frame{kind: frameBlock})
		}
		p.skipRest()
		return
	}

	name, ok := p.constantPath()
	if !ok || !p.declaring() {
		p.push(&frame{kind: frameBlock})
		p.skipRest()
		return
	}

	kind := extraction.KindClass
	if kw.Text == "module" {
		kind = extraction.KindModule
	}
	decl := &Declaration{
		Kind:    kind,
		Name:    name,
		Line:    kw.Line,
		EndLine: kw.Line,
		Doc:     doc,
	}
	scope, reopened := p.scopeFrame().scope.OpenScope(decl)
	f := &frame{kind: frameScope, scope: scope, visibility: extraction.VisibilityPublic}
	if !reopened {
		f.decl = decl
	}
	p.push(f)
	p.skipRest()
}

// constantPath reads Name, ::Name or A::B::C.
func (p *rubyParse) constantPath() (string, bool) {
	if p.peek(0).is(TokenPunctuation, "::") {
		p.next()
	}
	tok := p.peek(0)
	if tok.Kind != TokenIdentifier || !isUpperStart(tok.Text) {
		return "", false
	}
	parts := []string{p.next().Text}
	for p.peek(0).is(TokenPunctuation, "::") && p.peek(1).Kind == TokenIdentifier && isUpperStart(p.peek(1).Text) {
		p.next()
		parts = append(parts, p.next().Text)
	}
	return strings.Join(parts, "::"), true
}

// parseDef handles instance, singleton, setter, operator and endless
// method definitions. vis overrides the section visibility when set.
func (p *rubyParse) parseDef(doc *CommentBlock, vis extraction.Visibility) {
	kw := p.next()
	singleton := p.singleton()

	// def self.name / def Const.name
	if t0, t1 := p.peek(0), p.peek(1); t1.is(TokenPunctuation, ".") && t1.Offset == t0.End() &&
		(t0.Text == "self" || (t0.Kind == TokenIdentifier && isUpperStart(t0.Text))) {
		p.next()
		p.next()
		singleton = true
	}

	name := p.methodName()
	if name == "" {
		// Not a definition we understand; keep the nesting balanced.
		p.push(&frame{kind: frameMethod})
		p.skipRest()
		return
	}

	p.skipParams()

	var decl *Declaration
	if p.declaring() {
		decl = &Declaration{
			Kind:       extraction.KindMethod,
			Name:       name,
			Line:       kw.Line,
			EndLine:    kw.Line,
			Doc:        doc,
			Visibility: p.context().visibility,
			Singleton:  singleton,
		}
		if singleton && p.context().kind != frameSingleton {
			decl.Visibility = extraction.VisibilityPublic
		}
		if name == "initialize" && !singleton {
			decl.Initializer = true
			decl.Visibility = extraction.VisibilityPrivate
		}
		if vis != "" {
			decl.Visibility = vis
		}
		decl = p.declare(decl)
	}

	if p.peek(0).is(TokenPunctuation, "=") {
		// Endless method: def name(args) = expr
		p.next()
		p.skipRest()
		if decl != nil {
			decl.EndLine = p.lineAt(p.extentSince(kw.Offset))
		}
		return
	}

	p.push(&frame{kind: frameMethod, decl: decl})
}

// methodName reads a method name, including setters (name=) and operators.
func (p *rubyParse) methodName() string {
	tok := p.peek(0)
	switch tok.Kind {
	case TokenIdentifier, TokenKeyword:
		p.next()
		name := tok.Text
		if eq := p.peek(0); eq.is(TokenPunctuation, "=") && eq.Offset == tok.End() {
			if after := p.peek(1); after.is(TokenPunctuation, "(") || after.Offset > eq.End() || atStatementEnd(after) {
				p.next()
				name += "="
			}
		}
		return name
	case TokenPunctuation:
		if atStatementEnd(tok) || tok.Text == "(" {
			return ""
		}
		var b strings.Builder
		end := tok.Offset
		for {
			t := p.peek(0)
			if t.Kind != TokenPunctuation || t.Offset != end || t.Text == "(" || atStatementEnd(t) {
				break
			}
			b.WriteString(t.Text)
			end = t.End()
			p.next()
		}
		return b.String()
	}
	return ""
}

// skipParams consumes a parenthesized parameter list or a bare one up to
// the end of the statement. A bare "=" right after the name starts an
// endless body instead.
func (p *rubyParse) skipParams() {
	if p.peek(0).is(TokenPunctuation, "(") {
		depth := 0
		for {
			tok := p.peek(0)
			if tok.Kind == TokenEOF {
				return
			}
			p.next()
			switch {
			case tok.Kind == TokenPunctuation && isOpenBracket(tok.Text):
				depth++
			case tok.Kind == TokenPunctuation && isCloseBracket(tok.Text):
				depth--
				if depth == 0 {
					return
				}
			}
		}
	}
	if p.peek(0).is(TokenPunctuation, "=") {
		return
	}
	for {
		tok := p.peek(0)
		if atStatementEnd(tok) {
			return
		}
		p.next()
	}
}

func (p *rubyParse) declare(decl *Declaration) *Declaration {
	return p.scopeFrame().scope.Declare(decl)
}

// parseAttr handles attr_reader/attr_writer/attr_accessor/attr statements.
func (p *rubyParse) parseAttr(doc *CommentBlock, mode extraction.AttributeMode, vis extraction.Visibility) {
	p.next()
	paren := false
	if t := p.peek(0); t.is(TokenPunctuation, "(") {
		p.next()
		paren = true
	}

	var names []Token
	for {
		tok := p.peek(0)
		name, ok := literalName(tok)
		if !ok {
			break
		}
		p.next()
		names = append(names, Token{Kind: tok.Kind, Text: name, Line: tok.Line, Column: tok.Column, Offset: tok.Offset})
		if !p.peek(0).is(TokenPunctuation, ",") {
			break
		}
		p.next()
		for p.peek(0).Kind == TokenNewline {
			p.next()
		}
	}
	if paren && p.peek(0).is(TokenPunctuation, ")") {
		p.next()
	}
	p.skipRest()

	if vis == "" {
		vis = p.context().visibility
	}
	for i, n := range names {
		p.declare(&Declaration{
			Kind:       extraction.KindAttribute,
			Name:       n.Text,
			Line:       n.Line,
			EndLine:    n.Line,
			Doc:        p.opts.docFor(doc, i),
			Mode:       mode,
			Visibility: vis,
			Singleton:  p.singleton(),
		})
	}
}

// literalName extracts the name from :sym, :"sym", 'str' or "str" tokens.
func literalName(tok Token) (string, bool) {
	if tok.Kind != TokenStringLiteral {
		return "", false
	}
	text := strings.TrimPrefix(tok.Text, ":")
	if len(text) >= 2 && (text[0] == '"' || text[0] == '\'') && text[len(text)-1] == text[0] {
		text = text[1 : len(text)-1]
		if strings.Contains(text, "#{") {
			return "", false
		}
	} else if text == tok.Text {
		return "", false
	}
	if text == "" || strings.ContainsAny(text, " \t\n") {
		return "", false
	}
	return text, true
}

// parseVisibility handles section form ("private"), the targeted form
// ("private :a, :b") and the prefix form ("private def x", "private attr_reader :y").
func (p *rubyParse) parseVisibility(doc *CommentBlock, vis extraction.Visibility, word string) {
	kw := p.next()
	classMethod := strings.HasSuffix(word, "_class_method")
	constant := strings.HasSuffix(word, "_constant")

	next := p.peek(0)
	if atStatementEnd(next) {
		if !classMethod && !constant {
			p.context().visibility = vis
		}
		return
	}

	paren := false
	if next.is(TokenPunctuation, "(") && next.Offset == kw.End() {
		p.next()
		paren = true
		next = p.peek(0)
	}

	if next.is(TokenKeyword, "def") {
		p.parseDef(doc, vis)
		return
	}
	if mode, ok := attributeMode(next.Text); ok && next.Kind == TokenIdentifier {
		p.parseAttr(doc, mode, vis)
		return
	}

	for {
		tok := p.peek(0)
		name, ok := literalName(tok)
		if !ok {
			break
		}
		p.next()
		p.applyVisibility(name, vis, classMethod, constant)
		if !p.peek(0).is(TokenPunctuation, ",") {
			break
		}
		p.next()
		for p.peek(0).Kind == TokenNewline {
			p.next()
		}
	}
	if paren && p.peek(0).is(TokenPunctuation, ")") {
		p.next()
	}
	p.skipRest()
}

func (p *rubyParse) applyVisibility(name string, vis extraction.Visibility, classMethod, constant bool) {
	scope := p.scopeFrame().scope
	singleton := p.singleton() || classMethod
	for _, decl := range scope.Declarations {
		if decl.Name != name {
			continue
		}
		switch {
		case constant && decl.Kind == extraction.KindConstant:
			decl.Visibility = vis
		case !constant && decl.Singleton == singleton &&
			(decl.Kind == extraction.KindMethod || decl.Kind == extraction.KindAttribute):
			decl.Visibility = vis
		}
	}
}

// parseConstant handles "NAME = expr", capturing expr verbatim.
func (p *rubyParse) parseConstant(doc *CommentBlock) {
	name := p.next()
	eq := p.next()
	p.skipRest()

	end := p.extentSince(eq.Offset)
	value := ""
	if end > eq.End() {
		value = strings.TrimSpace(p.src[eq.End():end])
	}
	p.declare(&Declaration{
		Kind:      extraction.KindConstant,
		Name:      name.Text,
		Line:      name.Line,
		EndLine:   p.lineAt(end),
		Doc:       doc,
		Value:     value,
		Singleton: p.singleton(),
	})
}

func isOpenBracket(s string) bool  { return s == "(" || s == "[" || s == "{" }
func isCloseBracket(s string) bool { return s == ")" || s == "]" || s == "}" }

// Tokens that leave an expression open at the end of a line.
func continues(tok Token) bool {
	switch tok.Kind {
	case TokenPunctuation:
		switch tok.Text {
		case ")", "]", "}", ";", "..", "...":
			return false
		}
		return true
	case TokenKeyword:
		return tok.Text == "and" || tok.Text == "or" || tok.Text == "not"
	}
	return false
}

// assignment reports operators after which "if"/"unless"/... open a block
// rather than acting as a modifier.
func assignment(tok Token) bool {
	if tok.Kind != TokenPunctuation || !strings.HasSuffix(tok.Text, "=") {
		return false
	}
	switch tok.Text {
	case "==", "!=", ">=", "<=", "===":
		return false
	}
	return true
}

// skipStatement consumes a whole statement that no handler recognized.
func (p *rubyParse) skipStatement() {
	p.skip(true)
}

// skipRest consumes the remainder of a statement whose head was handled.
func (p *rubyParse) skipRest() {
	p.skip(false)
}

// skip consumes tokens up to the end of the current statement, pushing
// frames for every construct that will be closed by "end". It stops before
// a top-level "end" so the caller can pop the matching frame.
func (p *rubyParse) skip(first bool) {
	depth := 0
	loopOpened := false
	prev, hasPrev := p.last, !first

	for {
		tok := p.peek(0)
		if tok.Kind == TokenEOF {
			return
		}

		if depth == 0 {
			switch {
			case tok.is(TokenPunctuation, ";"):
				p.next()
				return
			case tok.Kind == TokenNewline:
				if hasPrev && continues(prev) {
					p.next()
					continue
				}
				if next := p.peekSignificant(); next.is(TokenPunctuation, ".") || next.is(TokenPunctuation, "&.") {
					p.next()
					continue
				}
				return
			case tok.is(TokenKeyword, "end"):
				return
			}
		}

		if depth == 0 && tok.Kind == TokenKeyword {
			statementPos := first || (hasPrev && assignment(prev))
			switch tok.Text {
			case "def":
				doc := p.stmtDoc
				p.stmtDoc = nil
				p.parseDef(doc, "")
				return
			case "class", "module", "begin", "case":
				p.next()
				p.push(&frame{kind: frameBlock})
				prev, hasPrev, first = tok, true, false
				continue
			case "if", "unless", "while", "until", "for":
				p.next()
				if statementPos {
					p.push(&frame{kind: frameBlock})
					if tok.Text != "if" && tok.Text != "unless" {
						loopOpened = true
					}
				}
				prev, hasPrev, first = tok, true, false
				continue
			case "do":
				p.next()
				if loopOpened {
					loopOpened = false
					prev, hasPrev, first = tok, true, false
					continue
				}
				p.push(&frame{kind: frameBlock})
				p.skipBlockParams()
				return
			}
		}

		p.next()
		if tok.Kind == TokenPunctuation {
			switch {
			case isOpenBracket(tok.Text):
				depth++
			case isCloseBracket(tok.Text) && depth > 0:
				depth--
			}
		}
		prev, hasPrev, first = tok, true, false
	}
}

// skipBlockParams consumes "|a, b|" after a block opener.
func (p *rubyParse) skipBlockParams() {
	if !p.peek(0).is(TokenPunctuation, "|") {
		return
	}
	p.next()
	for {
		tok := p.peek(0)
		if tok.Kind == TokenEOF || tok.Kind == TokenNewline {
			return
		}
		p.next()
		if tok.is(TokenPunctuation, "|") {
			return
		}
	}
}
