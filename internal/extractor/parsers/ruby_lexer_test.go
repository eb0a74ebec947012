package parsers

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for the Ruby tokenizer:
// - Comment lines keep their marker and report 1-based line/column
// - Keywords become identifiers after "." and "def" and as hash labels
// - "/" is a regexp only where an expression is expected
// - Heredoc bodies, percent literals and interpolated strings are single tokens or skipped
// - =begin/=end blocks produce one comment token per line
// - __END__ stops the stream
// - Unrecognized bytes become single-character punctuation
// - The sequence is lazy: stopping early is allowed, EOF repeats after the end

func significant(src string) []Token {
	var out []Token
	for tok := range rubyTokens(src) {
		if tok.Kind != TokenNewline {
			out = append(out, tok)
		}
	}
	return out
}

func texts(toks []Token) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.Text
	}
	return out
}

func TestRubyLexer_Fixture(t *testing.T) {
	t.Parallel()

	src, err := os.ReadFile("../../../testdata/code/ruby/sample_ruby_file.rb")
	require.NoError(t, err)

	toks := significant(string(src))
	require.NotEmpty(t, toks)

	assert.Equal(t, Token{Kind: TokenCommentLine, Text: "# frozen_string_literal: true", Line: 1, Column: 1, Offset: 0}, toks[0])
	assert.Equal(t, TokenKeyword, toks[1].Kind)
	assert.Equal(t, "module", toks[1].Text)
	assert.Equal(t, 3, toks[1].Line)
	assert.Equal(t, Token{Kind: TokenIdentifier, Text: "MyModule", Line: 3, Column: 8, Offset: 38}, toks[2])

	// PI = 3.142
	assert.Equal(t, []string{"PI", "=", "3.142"}, texts(toks[3:6]))
	assert.Equal(t, TokenNumberLiteral, toks[5].Kind)
	assert.Equal(t, 8, toks[5].Column)

	var comments []string
	for _, tok := range toks {
		if tok.Kind == TokenCommentLine {
			comments = append(comments, tok.Text)
		}
	}
	assert.Equal(t, []string{
		"# frozen_string_literal: true",
		"# = Foo",
		"#",
		"# Every foo has a name, so make sure you look",
		"# at it and make sure you like it.",
		"# @return [String]",
		"# @param name [String]",
		"# @return [Integer]",
		"# @param size [Integer]",
	}, comments)

	last := toks[len(toks)-1]
	assert.Equal(t, TokenEOF, last.Kind)
	assert.Equal(t, "end", toks[len(toks)-2].Text)
	assert.Equal(t, 29, toks[len(toks)-2].Line)
}

func TestRubyLexer_KeywordsAsIdentifiers(t *testing.T) {
	t.Parallel()

	toks := significant("self.class\ndef end; end\nfoo(if: 1)\n")
	kinds := map[string]TokenKind{}
	for _, tok := range toks[:3] {
		kinds[tok.Text] = tok.Kind
	}
	assert.Equal(t, TokenKeyword, kinds["self"])
	assert.Equal(t, TokenIdentifier, kinds["class"])

	assert.Equal(t, TokenKeyword, toks[3].Kind)    // def
	assert.Equal(t, TokenIdentifier, toks[4].Kind) // end as a method name
	assert.Equal(t, TokenKeyword, toks[6].Kind)    // closing end

	label := toks[9]
	assert.Equal(t, "if", label.Text)
	assert.Equal(t, TokenIdentifier, label.Kind)
}

func TestRubyLexer_RegexpVersusDivision(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want []string
		kind TokenKind
		at   int
	}{
		{name: "spaced division", src: "a / b", want: []string{"a", "/", "b"}, kind: TokenPunctuation, at: 1},
		{name: "tight division", src: "a/b", want: []string{"a", "/", "b"}, kind: TokenPunctuation, at: 1},
		{name: "command argument", src: "puts /ab c/", want: []string{"puts", "/ab c/"}, kind: TokenStringLiteral, at: 1},
		{name: "after paren", src: "split(/,\\s*/i)", want: []string{"split", "(", "/,\\s*/i", ")"}, kind: TokenStringLiteral, at: 2},
		{name: "after call parens", src: "f() / 2", want: []string{"f", "(", ")", "/", "2"}, kind: TokenPunctuation, at: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			toks := significant(tt.src)
			require.Len(t, toks, len(tt.want)+1)
			assert.Equal(t, tt.want, texts(toks[:len(tt.want)]))
			assert.Equal(t, tt.kind, toks[tt.at].Kind)
		})
	}
}

func TestRubyLexer_Literals(t *testing.T) {
	t.Parallel()

	src := "x = \"a #{b.map { |c| \"}\" }} d\"\ny = %w[one two] + %i(a b)\nz = :sym? + :\"q s\" + ?a\nn = 0x1F + 1_000 + 2.5e3 + 3r\n"
	toks := significant(src)
	var literals []string
	for _, tok := range toks {
		if tok.Kind == TokenStringLiteral || tok.Kind == TokenNumberLiteral {
			literals = append(literals, tok.Text)
		}
	}
	assert.Equal(t, []string{
		"\"a #{b.map { |c| \"}\" }} d\"",
		"%w[one two]", "%i(a b)",
		":sym?", ":\"q s\"", "?a",
		"0x1F", "1_000", "2.5e3", "3r",
	}, literals)
}

func TestRubyLexer_HeredocBodySkipped(t *testing.T) {
	t.Parallel()

	src := "TEXT = <<~EOS.strip\n  def hidden; end\n  EOS\ndef visible\nend\n"
	toks := significant(src)
	assert.Equal(t, []string{"TEXT", "=", "<<~EOS", ".", "strip", "def", "visible", "end", ""}, texts(toks))
	assert.Equal(t, 4, toks[5].Line)
}

func TestRubyLexer_EmbeddedDocument(t *testing.T) {
	t.Parallel()

	src := "=begin\nSome docs\n  indented\n=end\ndef x; end\n"
	toks := significant(src)
	require.GreaterOrEqual(t, len(toks), 4)
	for i, want := range []string{"=begin", "Some docs", "  indented", "=end"} {
		assert.Equal(t, TokenCommentLine, toks[i].Kind)
		assert.Equal(t, want, toks[i].Text)
		assert.Equal(t, i+1, toks[i].Line)
	}
	assert.Equal(t, "def", toks[4].Text)
	assert.Equal(t, 5, toks[4].Line)
}

func TestRubyLexer_EndMarker(t *testing.T) {
	t.Parallel()

	toks := significant("a = 1\n__END__\nclass Hidden\nend\n")
	assert.Equal(t, []string{"a", "=", "1", ""}, texts(toks))
	assert.Equal(t, TokenEOF, toks[3].Kind)
}

func TestRubyLexer_UnknownCharacters(t *testing.T) {
	t.Parallel()

	toks := significant("a \x01 \xff b")
	require.Len(t, toks, 5)
	assert.Equal(t, TokenPunctuation, toks[1].Kind)
	assert.Equal(t, "\x01", toks[1].Text)
	assert.Equal(t, TokenPunctuation, toks[2].Kind)
	assert.Equal(t, "\xff", toks[2].Text)
	assert.Equal(t, "b", toks[3].Text)
}

func TestRubyLexer_Lazy(t *testing.T) {
	t.Parallel()

	var got []string
	for tok := range rubyTokens("a b c d") {
		got = append(got, tok.Text)
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"a", "b"}, got)

	lx := newRubyLexer("")
	assert.Equal(t, TokenEOF, lx.Next().Kind)
	assert.Equal(t, TokenEOF, lx.Next().Kind)
}

func TestRubyLexer_Columns(t *testing.T) {
	t.Parallel()

	toks := significant("  café = 1\n\tx")
	require.Len(t, toks, 5)
	assert.Equal(t, 3, toks[0].Column)
	assert.Equal(t, 8, toks[1].Column) // runes, not bytes
	assert.Equal(t, 2, toks[3].Line)
	assert.Equal(t, 2, toks[3].Column)
}
