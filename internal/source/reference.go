package source

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// SelectorKind names a way of picking lines out of a file.
type SelectorKind string

const (
	// SelectFull takes the whole file: "path".
	SelectFull SelectorKind = "full"
	// SelectSymbol takes an extracted symbol: "path#anchor".
	SelectSymbol SelectorKind = "symbol"
	// SelectNamed takes the lines between ANCHOR and ANCHOR_END markers: "path:name".
	SelectNamed SelectorKind = "named"
	// SelectBetween takes an inclusive line range: "path:start:end".
	SelectBetween SelectorKind = "between"
	// SelectHereDown takes a line and everything after it: "path:n:".
	SelectHereDown SelectorKind = "here-down"
	// SelectDownTo takes the first n lines: "path::n".
	SelectDownTo SelectorKind = "down-to"
	// SelectLine takes a single line: "path:n".
	SelectLine SelectorKind = "line"
)

// Selector describes which lines of a file a reference points at. Name is
// the anchor for SelectSymbol and the marker name for SelectNamed. Start
// and End are 1-based line numbers; only the kinds that use them set them.
type Selector struct {
	Kind  SelectorKind
	Name  string
	Start int
	End   int
}

// String renders the selector the way it is written after a path.
func (s Selector) String() string {
	switch s.Kind {
	case SelectSymbol:
		return "#" + s.Name
	case SelectNamed:
		return ":" + s.Name
	case SelectBetween:
		return fmt.Sprintf(":%d:%d", s.Start, s.End)
	case SelectHereDown:
		return fmt.Sprintf(":%d:", s.Start)
	case SelectDownTo:
		return fmt.Sprintf("::%d", s.End)
	case SelectLine:
		return fmt.Sprintf(":%d", s.Start)
	}
	return ""
}

// Reference is a parsed "path[selector]" string.
type Reference struct {
	Path     string
	Selector Selector
}

func (r Reference) String() string {
	return r.Path + r.Selector.String()
}

var markerName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ParseReference parses a file reference. The path runs up to the first
// ':' or '#'; without either the whole file is selected.
//
//	lib/foo.rb                 whole file
//	lib/foo.rb#mymodule/foo    symbol anchor
//	lib/foo.rb:setup           ANCHOR: setup ... ANCHOR_END: setup
//	lib/foo.rb:42              line 42
//	lib/foo.rb:42:69           lines 42 through 69
//	lib/foo.rb:42:             line 42 to the end
//	lib/foo.rb::42             lines 1 through 42
func ParseReference(ref string) (Reference, error) {
	ref = strings.TrimSpace(ref)
	invalid := func(why string) (Reference, error) {
		return Reference{}, fmt.Errorf("%w: %q: %s", ErrInvalidReference, ref, why)
	}

	i := strings.IndexAny(ref, ":#")
	if i < 0 {
		if ref == "" {
			return invalid("empty path")
		}
		return Reference{Path: ref, Selector: Selector{Kind: SelectFull}}, nil
	}
	path, rest := ref[:i], ref[i:]
	if path == "" {
		return invalid("empty path")
	}

	if anchor, ok := strings.CutPrefix(rest, "#"); ok {
		if anchor == "" {
			return invalid("empty anchor")
		}
		return Reference{Path: path, Selector: Selector{Kind: SelectSymbol, Name: anchor}}, nil
	}

	if n, ok := strings.CutPrefix(rest, "::"); ok {
		end, ok := lineNumber(n)
		if !ok {
			return invalid("want ::<line>")
		}
		return Reference{Path: path, Selector: Selector{Kind: SelectDownTo, End: end}}, nil
	}

	body := rest[1:]
	first, second, twoParts := strings.Cut(body, ":")
	var sel Selector
	switch {
	case !twoParts:
		if line, ok := lineNumber(first); ok {
			sel = Selector{Kind: SelectLine, Start: line, End: line}
		} else if markerName.MatchString(first) && strings.Trim(first, "0123456789") != "" {
			sel = Selector{Kind: SelectNamed, Name: first}
		} else {
			return invalid("want :<line> or :<name>")
		}
	case second == "":
		start, ok := lineNumber(first)
		if !ok {
			return invalid("want :<line>:")
		}
		sel = Selector{Kind: SelectHereDown, Start: start}
	default:
		a, okA := lineNumber(first)
		b, okB := lineNumber(second)
		if !okA || !okB {
			return invalid("want :<start>:<end>")
		}
		bounds := []int{a, b}
		slices.Sort(bounds)
		sel = Selector{Kind: SelectBetween, Start: bounds[0], End: bounds[1]}
	}
	return Reference{Path: path, Selector: sel}, nil
}

// lineNumber parses a positive decimal line number.
func lineNumber(s string) (int, bool) {
	if s == "" || strings.Trim(s, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// SelectWith returns the lines sel points at. Ranges are clamped to the
// file, except that a single line past the end is an error.
func (f *File) SelectWith(sel Selector) ([]string, error) {
	switch sel.Kind {
	case SelectFull:
		return f.Lines(1, f.LineCount()), nil
	case SelectSymbol:
		return f.Select(sel.Name)
	case SelectNamed:
		return f.selectNamed(sel.Name)
	case SelectBetween:
		return f.Lines(sel.Start, sel.End), nil
	case SelectHereDown:
		return f.Lines(sel.Start, f.LineCount()), nil
	case SelectDownTo:
		return f.Lines(1, sel.End), nil
	case SelectLine:
		if sel.Start < 1 || sel.Start > f.LineCount() {
			return nil, fmt.Errorf("%w: %s has %d lines", ErrLineOutOfRange, f.Path, f.LineCount())
		}
		return f.Lines(sel.Start, sel.Start), nil
	}
	return nil, fmt.Errorf("%w: unknown selector %q", ErrInvalidReference, sel.Kind)
}

// selectNamed returns the lines strictly between "ANCHOR: name" and
// "ANCHOR_END: name". A missing end marker runs to the end of the file.
func (f *File) selectNamed(name string) ([]string, error) {
	lines := f.Lines(1, f.LineCount())
	start := slices.IndexFunc(lines, func(line string) bool {
		return hasMarker(line, "ANCHOR:", name)
	})
	if start < 0 {
		return nil, fmt.Errorf("%w: %s:%s", ErrAnchorNotFound, f.Path, name)
	}
	body := lines[start+1:]
	if end := slices.IndexFunc(body, func(line string) bool {
		return hasMarker(line, "ANCHOR_END:", name)
	}); end >= 0 {
		body = body[:end]
	}
	return body, nil
}

// hasMarker reports whether the first occurrence of tag in line is
// followed by whitespace and exactly name.
func hasMarker(line, tag, name string) bool {
	i := strings.Index(line, tag)
	if i < 0 {
		return false
	}
	after := line[i+len(tag):]
	trimmed := strings.TrimLeft(after, " \t")
	if len(trimmed) == len(after) {
		return false
	}
	rest, ok := strings.CutPrefix(trimmed, name)
	if !ok {
		return false
	}
	return rest == "" || !isMarkerByte(rest[0])
}

func isMarkerByte(c byte) bool {
	return c == '_' || c == '-' || ('0' <= c && c <= '9') || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}
