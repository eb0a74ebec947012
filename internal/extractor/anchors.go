package extractor

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
)

// AnchorSeparator joins the slugs of path segments.
const AnchorSeparator = "/"

// Slugs for names made only of operator characters.
var operatorSlugs = map[string]string{
	"[]": "aref", "[]=": "aset", "==": "eq", "===": "eqq", "!=": "ne",
	"<=>": "cmp", "<": "lt", "<=": "le", ">": "gt", ">=": "ge",
	"+": "plus", "-": "minus", "*": "mul", "/": "div", "%": "mod", "**": "pow",
	"+@": "uplus", "-@": "uminus", "!": "not", "~": "tilde",
	"=~": "match", "!~": "nmatch", "<<": "lshift", ">>": "rshift",
	"&": "and", "|": "or", "^": "xor", "`": "backtick",
}

// AnchorTable issues anchors that are unique within one extraction call.
// It is not safe for concurrent use; every call owns its own table.
type AnchorTable struct {
	issued map[string]struct{}
}

// NewAnchorTable creates an empty table.
func NewAnchorTable() *AnchorTable {
	return &AnchorTable{issued: make(map[string]struct{})}
}

// Issue returns the anchor for a symbol. The first symbol with a given base
// anchor keeps it; later ones get "-<kind>", then "-<kind>-2", "-<kind>-3", ...
func (t *AnchorTable) Issue(path []string, kind extraction.Kind) string {
	base := BaseAnchor(path)
	if t.claim(base) {
		return base
	}
	withKind := base + "-" + string(kind)
	if t.claim(withKind) {
		return withKind
	}
	for n := 2; ; n++ {
		if candidate := withKind + "-" + strconv.Itoa(n); t.claim(candidate) {
			return candidate
		}
	}
}

func (t *AnchorTable) claim(anchor string) bool {
	if _, taken := t.issued[anchor]; taken {
		return false
	}
	t.issued[anchor] = struct{}{}
	return true
}

// BaseAnchor is the collision-free-by-assumption anchor of a path, e.g.
// ["MyModule", "Foo"] becomes "mymodule/foo".
func BaseAnchor(path []string) string {
	slugs := make([]string, len(path))
	for i, segment := range path {
		slugs[i] = Slug(segment)
	}
	return strings.Join(slugs, AnchorSeparator)
}

// Slug transliterates one path segment: accents are folded to ASCII,
// letters are lowercased and every run of other characters becomes "-".
func Slug(segment string) string {
	if slug, ok := operatorSlugs[segment]; ok && !isWord(segment) {
		return slug
	}

	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), segment)
	if err != nil {
		folded = segment
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return fmt.Sprintf("x%x", segment)
	}
	return slug
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
