package parsers

import (
	"iter"
	"strings"
	"unicode"
	"unicode/utf8"
)

var rubyKeywords = map[string]bool{
	"BEGIN": true, "END": true, "__ENCODING__": true, "__FILE__": true, "__LINE__": true,
	"alias": true, "and": true, "begin": true, "break": true, "case": true, "class": true,
	"def": true, "defined?": true, "do": true, "else": true, "elsif": true, "end": true,
	"ensure": true, "false": true, "for": true, "if": true, "in": true, "module": true,
	"next": true, "nil": true, "not": true, "or": true, "redo": true, "rescue": true,
	"retry": true, "return": true, "self": true, "super": true, "then": true, "true": true,
	"undef": true, "unless": true, "until": true, "when": true, "while": true, "yield": true,
}

// Keywords after which an expression (not an operator) is expected.
var rubyValueKeywords = map[string]bool{
	"and": true, "case": true, "do": true, "else": true, "elsif": true, "if": true,
	"in": true, "not": true, "or": true, "rescue": true, "return": true,
	"then": true, "unless": true, "until": true, "when": true, "while": true, "yield": true,
	"break": true, "next": true,
}

// Longest operators first.
var rubyOperators = []string{
	"**=", "<=>", "===", "...", "<<=", ">>=", "&&=", "||=",
	"&.", "::", "==", "!=", ">=", "<=", "&&", "||", "<<", ">>", "**", "=~", "!~",
	"+=", "-=", "*=", "/=", "%=", "|=", "&=", "^=", "..", "->", "=>",
}

type heredoc struct {
	id       string
	indented bool
	opener   int // offset of the <<ID token
}

// rubyLexer produces tokens on demand. It is single-pass.
type rubyLexer struct {
	src       string
	pos       int
	line      int
	lineStart int

	prev        Token
	hasPrev     bool
	spaceBefore bool
	pending     []heredoc
	bodyEnds    map[int]int // opener offset -> end of the terminator line
	inDoc       bool
	done        bool
}

func newRubyLexer(src string) *rubyLexer {
	return &rubyLexer{src: src, line: 1}
}

// rubyTokens returns the lazy token sequence for src, ending with EOF.
func rubyTokens(src string) iter.Seq[Token] {
	return func(yield func(Token) bool) {
		lx := newRubyLexer(src)
		for {
			tok := lx.Next()
			if !yield(tok) || tok.Kind == TokenEOF {
				return
			}
		}
	}
}

// Next returns the next token. After EOF it keeps returning EOF.
func (lx *rubyLexer) Next() Token {
	tok := lx.scan()
	if tok.Kind != TokenCommentLine {
		lx.prev = tok
		lx.hasPrev = true
	}
	return tok
}

func (lx *rubyLexer) scan() Token {
	if lx.done {
		return lx.make(TokenEOF, lx.pos, lx.pos)
	}

	lx.spaceBefore = false
	for lx.pos < len(lx.src) {
		if lx.pos == lx.lineStart {
			if tok, ok := lx.lineStartToken(); ok {
				return tok
			}
			if lx.done {
				return lx.make(TokenEOF, lx.pos, lx.pos)
			}
		}

		c := lx.src[lx.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\f' || c == '\v':
			lx.pos++
			lx.spaceBefore = true
		case c == '\\' && lx.peekAt(1) == '\n':
			lx.pos += 2
			lx.newline()
			lx.spaceBefore = true
		case c == '\\' && lx.peekAt(1) == '\r' && lx.peekAt(2) == '\n':
			lx.pos += 3
			lx.newline()
			lx.spaceBefore = true
		case c == '\n':
			start := lx.pos
			lx.pos++
			tok := lx.make(TokenNewline, start, lx.pos)
			lx.newline()
			lx.skipHeredocBodies()
			return tok
		case c == '#':
			return lx.comment()
		default:
			return lx.token()
		}
	}

	lx.done = true
	return lx.make(TokenEOF, lx.pos, lx.pos)
}

// lineStartToken handles constructs only valid at column 1.
func (lx *rubyLexer) lineStartToken() (Token, bool) {
	rest := lx.src[lx.pos:]
	if lx.inDoc {
		if _, ok := lineWord(rest, "=end"); ok {
			lx.inDoc = false
		}
		return lx.wholeLine(), true
	}
	if alone, ok := lineWord(rest, "__END__"); ok && alone {
		lx.done = true
		return Token{}, false
	}
	if _, ok := lineWord(rest, "=begin"); ok {
		lx.inDoc = true
		return lx.wholeLine(), true
	}
	return Token{}, false
}

// lineWord reports whether line starts with word followed by whitespace or
// end of line. alone is true when nothing else follows on the line.
func lineWord(line, word string) (alone bool, ok bool) {
	if !strings.HasPrefix(line, word) {
		return false, false
	}
	rest := line[len(word):]
	if rest == "" || rest[0] == '\n' || strings.HasPrefix(rest, "\r\n") {
		return true, true
	}
	if rest[0] == ' ' || rest[0] == '\t' {
		return false, true
	}
	return false, false
}

// wholeLine emits the current line of an embedded =begin/=end document as a
// comment token. The line terminator is left for the next scan.
func (lx *rubyLexer) wholeLine() Token {
	start := lx.pos
	lx.pos = lineEnd(lx.src, start)
	return lx.make(TokenCommentLine, start, lx.pos)
}

func (lx *rubyLexer) newline() {
	lx.line++
	lx.lineStart = lx.pos
}

func (lx *rubyLexer) peekAt(n int) byte {
	if lx.pos+n < len(lx.src) {
		return lx.src[lx.pos+n]
	}
	return 0
}

func (lx *rubyLexer) make(kind TokenKind, start, end int) Token {
	text := lx.src[start:end]
	if kind == TokenCommentLine {
		text = strings.TrimSuffix(text, "\r")
	}
	return Token{
		Kind:   kind,
		Text:   text,
		Line:   lx.lineOf(start),
		Column: utf8.RuneCountInString(lx.src[lx.lineStartOf(start):start]) + 1,
		Offset: start,
	}
}

// lineOf is only ever asked about offsets on the current line or the start
// of a multi-line token, which always begins on the line it was scanned from.
func (lx *rubyLexer) lineOf(offset int) int {
	if offset >= lx.lineStart {
		return lx.line
	}
	return lx.line - strings.Count(lx.src[offset:lx.lineStart], "\n")
}

func (lx *rubyLexer) lineStartOf(offset int) int {
	if offset >= lx.lineStart {
		return lx.lineStart
	}
	return strings.LastIndexByte(lx.src[:offset], '\n') + 1
}

func lineEnd(src string, from int) int {
	if i := strings.IndexByte(src[from:], '\n'); i >= 0 {
		return from + i
	}
	return len(src)
}

func (lx *rubyLexer) comment() Token {
	start := lx.pos
	lx.pos = lineEnd(lx.src, start)
	return lx.make(TokenCommentLine, start, lx.pos)
}

// advance moves pos to end, keeping line bookkeeping for embedded newlines.
func (lx *rubyLexer) advance(end int) {
	for i := lx.pos; i < end; i++ {
		if lx.src[i] == '\n' {
			lx.line++
			lx.lineStart = i + 1
		}
	}
	lx.pos = end
}

// valueExpected reports whether the next token starts an expression, which
// decides between e.g. division and a regexp literal.
func (lx *rubyLexer) valueExpected() bool {
	if !lx.hasPrev {
		return true
	}
	p := lx.prev
	switch p.Kind {
	case TokenNewline:
		return true
	case TokenKeyword:
		if p.Text == "def" {
			return false
		}
		return rubyValueKeywords[p.Text]
	case TokenPunctuation:
		switch p.Text {
		case ")", "]", "}":
			return false
		}
		return true
	case TokenIdentifier:
		// "puts /x/" is an argument, "a / b" and "a/b" are division.
		return lx.spaceBefore && !isSpace(lx.peekAt(1)) && !isUpperStart(p.Text)
	}
	return false
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == 0
}

func isUpperStart(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || r >= utf8.RuneSelf
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || unicode.IsDigit(r)
}

func (lx *rubyLexer) token() Token {
	start := lx.pos
	c := lx.src[start]
	r, size := utf8.DecodeRuneInString(lx.src[start:])

	switch {
	case r == utf8.RuneError && size <= 1:
		lx.pos++
		return lx.make(TokenPunctuation, start, lx.pos)
	case isIdentStart(r):
		return lx.word()
	case c >= '0' && c <= '9':
		return lx.number()
	case c == '"' || c == '`':
		if c == '`' && lx.hasPrev && lx.prev.is(TokenKeyword, "def") {
			break
		}
		lx.advance(scanQuoted(lx.src, start+1, c, 0, true))
		return lx.make(TokenStringLiteral, start, lx.pos)
	case c == '\'':
		lx.advance(scanQuoted(lx.src, start+1, c, 0, false))
		return lx.make(TokenStringLiteral, start, lx.pos)
	case c == '@' || c == '$':
		if end := sigilEnd(lx.src, start); end > start+1 {
			lx.pos = end
			return lx.make(TokenIdentifier, start, lx.pos)
		}
	case c == ':':
		if tok, ok := lx.symbol(); ok {
			return tok
		}
	case c == '%' && lx.valueExpected():
		if end, ok := scanPercent(lx.src, start); ok {
			lx.advance(end)
			return lx.make(TokenStringLiteral, start, lx.pos)
		}
	case c == '/' && lx.valueExpected():
		end := scanQuoted(lx.src, start+1, '/', 0, true)
		end = skipRegexpFlags(lx.src, end)
		lx.advance(end)
		return lx.make(TokenStringLiteral, start, lx.pos)
	case c == '?' && lx.valueExpected():
		if end, ok := scanCharLiteral(lx.src, start); ok {
			lx.pos = end
			return lx.make(TokenStringLiteral, start, lx.pos)
		}
	case c == '<' && strings.HasPrefix(lx.src[start:], "<<") && lx.valueExpected():
		if tok, ok := lx.heredocStart(); ok {
			return tok
		}
	}

	for _, op := range rubyOperators {
		if strings.HasPrefix(lx.src[start:], op) {
			lx.pos += len(op)
			return lx.make(TokenPunctuation, start, lx.pos)
		}
	}
	lx.pos += size
	return lx.make(TokenPunctuation, start, lx.pos)
}

func (lx *rubyLexer) word() Token {
	start := lx.pos
	end := identEnd(lx.src, start)
	if end < len(lx.src) && (lx.src[end] == '?' || lx.src[end] == '!') {
		if end+1 >= len(lx.src) || lx.src[end+1] != '=' || strings.HasPrefix(lx.src[end+1:], "==") {
			end++
		}
	}
	lx.pos = end
	text := lx.src[start:end]

	kind := TokenIdentifier
	if rubyKeywords[text] && !lx.isLabel(end) && !lx.afterMethodDot() && !(lx.hasPrev && lx.prev.is(TokenKeyword, "def")) {
		kind = TokenKeyword
	}
	return lx.make(kind, start, end)
}

// isLabel reports a hash-key label such as "if: true".
func (lx *rubyLexer) isLabel(end int) bool {
	return end < len(lx.src) && lx.src[end] == ':' && (end+1 >= len(lx.src) || lx.src[end+1] != ':')
}

func (lx *rubyLexer) afterMethodDot() bool {
	return lx.hasPrev && lx.prev.Kind == TokenPunctuation && (lx.prev.Text == "." || lx.prev.Text == "&.")
}

func identEnd(src string, i int) int {
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		if !isIdentPart(r) || (r == utf8.RuneError && size <= 1) {
			break
		}
		i += size
	}
	return i
}

// sigilEnd scans @ivar, @@cvar, $global and special globals like $1 or $!.
func sigilEnd(src string, start int) int {
	i := start + 1
	if src[start] == '@' && i < len(src) && src[i] == '@' {
		i++
	}
	if i < len(src) {
		r, _ := utf8.DecodeRuneInString(src[i:])
		if isIdentStart(r) {
			return identEnd(src, i)
		}
		if src[start] == '$' {
			if unicode.IsDigit(r) {
				for i < len(src) && src[i] >= '0' && src[i] <= '9' {
					i++
				}
				return i
			}
			if strings.IndexByte("!@&`'+~=/\\,;.<>_*$?:\"", src[i]) >= 0 {
				return i + 1
			}
			if src[i] == '-' && i+1 < len(src) {
				return i + 2
			}
		}
	}
	return start + 1
}

// symbol scans :name, :"quoted", :+ style operator symbols.
func (lx *rubyLexer) symbol() (Token, bool) {
	start := lx.pos
	if lx.peekAt(1) == ':' {
		return Token{}, false
	}
	i := start + 1
	if i >= len(lx.src) {
		return Token{}, false
	}
	switch c := lx.src[i]; {
	case c == '"' || c == '\'':
		lx.advance(scanQuoted(lx.src, i+1, c, 0, c == '"'))
		return lx.make(TokenStringLiteral, start, lx.pos), true
	case c == '@' || c == '$':
		if end := sigilEnd(lx.src, i); end > i+1 {
			lx.pos = end
			return lx.make(TokenStringLiteral, start, lx.pos), true
		}
		return Token{}, false
	}

	r, _ := utf8.DecodeRuneInString(lx.src[i:])
	if isIdentStart(r) {
		end := identEnd(lx.src, i)
		if end < len(lx.src) {
			switch lx.src[end] {
			case '?', '!':
				end++
			case '=':
				// :name= but not :name => or :name==
				if !strings.HasPrefix(lx.src[end:], "=>") && !strings.HasPrefix(lx.src[end:], "==") && !strings.HasPrefix(lx.src[end:], "=~") {
					end++
				}
			}
		}
		lx.pos = end
		return lx.make(TokenStringLiteral, start, lx.pos), true
	}

	for _, op := range []string{"[]=", "[]", "<=>", "===", "==", "=~", "!=", "!~", "**", "+@", "-@", "<<", ">>", "<=", ">=", "+", "-", "*", "/", "%", "<", ">", "!", "&", "|", "^", "~"} {
		if strings.HasPrefix(lx.src[i:], op) {
			lx.pos = i + len(op)
			return lx.make(TokenStringLiteral, start, lx.pos), true
		}
	}
	return Token{}, false
}

func (lx *rubyLexer) number() Token {
	start := lx.pos
	i := start
	src := lx.src
	digits := func(ok func(byte) bool) {
		for i < len(src) && (ok(src[i]) || (src[i] == '_' && i+1 < len(src) && ok(src[i+1]))) {
			i++
		}
	}
	dec := func(c byte) bool { return c >= '0' && c <= '9' }

	if src[i] == '0' && i+1 < len(src) && strings.IndexByte("xXbBoO", src[i+1]) >= 0 {
		i += 2
		digits(func(c byte) bool {
			return dec(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
		})
	} else {
		digits(dec)
		if i+1 < len(src) && src[i] == '.' && dec(src[i+1]) {
			i++
			digits(dec)
		}
		if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
			j := i + 1
			if j < len(src) && (src[j] == '+' || src[j] == '-') {
				j++
			}
			if j < len(src) && dec(src[j]) {
				i = j
				digits(dec)
			}
		}
	}
	for i < len(src) && (src[i] == 'r' || src[i] == 'i') && (i+1 >= len(src) || !isIdentPart(rune(src[i+1]))) {
		i++
	}
	lx.pos = i
	return lx.make(TokenNumberLiteral, start, i)
}

// scanQuoted returns the offset just past the closing delimiter. open is the
// nesting opener for bracketed percent literals, or 0. Interpolation is
// followed when interp is set. Unterminated literals run to end of input.
func scanQuoted(src string, i int, closer, open byte, interp bool) int {
	depth := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == '\\':
			i += 2
			continue
		case interp && c == '#' && i+1 < len(src) && src[i+1] == '{':
			i = scanInterpolation(src, i+2)
			continue
		case open != 0 && c == open:
			depth++
		case c == closer:
			if depth == 0 {
				return i + 1
			}
			depth--
		}
		i++
	}
	return len(src)
}

// scanInterpolation skips the body of #{...} including nested literals.
func scanInterpolation(src string, i int) int {
	depth := 0
	for i < len(src) {
		switch c := src[i]; c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				return i + 1
			}
			depth--
		case '"', '`':
			i = scanQuoted(src, i+1, c, 0, true)
			continue
		case '\'':
			i = scanQuoted(src, i+1, c, 0, false)
			continue
		case '\\':
			i++
		}
		i++
	}
	return len(src)
}

var percentClosers = map[byte]byte{'(': ')', '[': ']', '{': '}', '<': '>'}

// scanPercent scans %w[...], %q(...), %(...) and friends.
func scanPercent(src string, start int) (int, bool) {
	i := start + 1
	if i >= len(src) {
		return 0, false
	}
	interp := true
	if strings.IndexByte("qQwWiIrsx", src[i]) >= 0 {
		interp = strings.IndexByte("QWIrx", src[i]) >= 0
		i++
	}
	if i >= len(src) {
		return 0, false
	}
	delim := src[i]
	if isSpace(delim) || isIdentPart(rune(delim)) {
		return 0, false
	}
	if closer, ok := percentClosers[delim]; ok {
		end := scanQuoted(src, i+1, closer, delim, interp)
		return skipRegexpFlags(src, end), true
	}
	return skipRegexpFlags(src, scanQuoted(src, i+1, delim, 0, interp)), true
}

func skipRegexpFlags(src string, i int) int {
	for i < len(src) && strings.IndexByte("imxounse", src[i]) >= 0 {
		i++
	}
	return i
}

// scanCharLiteral scans ?a style character literals.
func scanCharLiteral(src string, start int) (int, bool) {
	i := start + 1
	if i >= len(src) || isSpace(src[i]) {
		return 0, false
	}
	if src[i] == '\\' {
		i = min(i+2, len(src))
	} else {
		_, size := utf8.DecodeRuneInString(src[i:])
		i += size
	}
	if i < len(src) {
		r, _ := utf8.DecodeRuneInString(src[i:])
		if isIdentPart(r) {
			return 0, false
		}
	}
	return i, true
}

// heredocStart scans <<~ID, <<-ID, <<ID and quoted forms. The body is
// skipped at the end of the current line.
func (lx *rubyLexer) heredocStart() (Token, bool) {
	start := lx.pos
	i := start + 2
	indented := false
	if i < len(lx.src) && (lx.src[i] == '~' || lx.src[i] == '-') {
		indented = true
		i++
	}
	if i >= len(lx.src) {
		return Token{}, false
	}

	var id string
	switch q := lx.src[i]; {
	case q == '\'' || q == '"' || q == '`':
		end := strings.IndexByte(lx.src[i+1:], q)
		if end < 0 {
			return Token{}, false
		}
		id = lx.src[i+1 : i+1+end]
		i = i + 2 + end
	default:
		r, _ := utf8.DecodeRuneInString(lx.src[i:])
		if !isIdentStart(r) {
			return Token{}, false
		}
		// Bare identifiers must be upper case, otherwise "a <<b" is a shift.
		end := identEnd(lx.src, i)
		id = lx.src[i:end]
		if !indented && !isUpperStart(id) {
			return Token{}, false
		}
		i = end
	}

	lx.pending = append(lx.pending, heredoc{id: id, indented: indented, opener: start})
	lx.pos = i
	return lx.make(TokenStringLiteral, start, i), true
}

// skipHeredocBodies runs after a newline and consumes the bodies of the
// heredocs opened on the previous line. An unterminated body runs to the
// end of the source.
func (lx *rubyLexer) skipHeredocBodies() {
	for len(lx.pending) > 0 {
		h := lx.pending[0]
		lx.pending = lx.pending[1:]
		bodyEnd := lx.pos
		for lx.pos < len(lx.src) {
			end := lineEnd(lx.src, lx.pos)
			line := strings.TrimSuffix(lx.src[lx.pos:end], "\r")
			if h.indented {
				line = strings.TrimLeft(line, " \t")
			}
			next := end
			if next < len(lx.src) {
				next++
			}
			lx.advance(next)
			bodyEnd = end
			if line == h.id {
				break
			}
		}
		if lx.bodyEnds == nil {
			lx.bodyEnds = make(map[int]int)
		}
		lx.bodyEnds[h.opener] = bodyEnd
	}
}

// heredocEnd returns the end offset of the terminator line of the heredoc
// opened at offset, once its body has been scanned.
func (lx *rubyLexer) heredocEnd(opener int) (int, bool) {
	end, ok := lx.bodyEnds[opener]
	return end, ok
}
