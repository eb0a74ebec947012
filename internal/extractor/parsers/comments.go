package parsers

// CommentCollector groups comment lines into documentation blocks.
//
// A block is the maximal run of comment lines that ends on the line directly
// above a declaration. Comments sharing a line with code are trailing and
// never start a block. A blank line between two runs drops the farther run.
// Pragma lines (as reported by isPragma) are skipped: they neither join the
// block nor break it.
type CommentCollector struct {
	isPragma func(text string) bool

	run      []Token
	lastLine int
	codeLine int
}

// NewCommentCollector creates a collector. isPragma may be nil.
func NewCommentCollector(isPragma func(text string) bool) *CommentCollector {
	return &CommentCollector{isPragma: isPragma}
}

// Comment feeds a CommentLine token in source order.
func (c *CommentCollector) Comment(tok Token) {
	if tok.Line == c.codeLine {
		c.reset()
		return
	}
	if c.lastLine != 0 && tok.Line != c.lastLine+1 {
		c.reset()
	}
	c.lastLine = tok.Line
	if c.isPragma != nil && c.isPragma(tok.Text) {
		return
	}
	c.run = append(c.run, tok)
}

// Code records that a non-comment token was seen on line.
func (c *CommentCollector) Code(line int) {
	c.codeLine = line
	c.reset()
}

// Take returns the block ending directly above declLine, or nil.
// The pending run is cleared either way.
func (c *CommentCollector) Take(declLine int) *CommentBlock {
	defer c.reset()
	if len(c.run) == 0 || c.lastLine != declLine-1 {
		return nil
	}
	lines := make([]Token, len(c.run))
	copy(lines, c.run)
	return &CommentBlock{Lines: lines}
}

func (c *CommentCollector) reset() {
	c.run = c.run[:0]
	c.lastLine = 0
}
