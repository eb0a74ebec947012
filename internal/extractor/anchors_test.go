package extractor

import (
	"testing"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor/extraction"
	"github.com/stretchr/testify/assert"
)

func TestSlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "MyModule", want: "mymodule"},
		{in: "HTTPClient", want: "httpclient"},
		{in: "port_cmp", want: "port-cmp"},
		{in: "__init__", want: "init"},
		{in: "host=", want: "host"},
		{in: "empty?", want: "empty"},
		{in: "Café", want: "cafe"},
		{in: "Ärger Über", want: "arger-uber"},
		{in: "[]", want: "aref"},
		{in: "[]=", want: "aset"},
		{in: "<=>", want: "cmp"},
		{in: "-@", want: "uminus"},
		{in: "==", want: "eq"},
		{in: "日本", want: "xe697a5e69cac"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Slug(tt.in))
		})
	}
}

func TestBaseAnchor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "mymodule/foo", BaseAnchor([]string{"MyModule", "Foo"}))
	assert.Equal(t, "", BaseAnchor(nil))
}

func TestAnchorTable_Collisions(t *testing.T) {
	t.Parallel()

	table := NewAnchorTable()
	path := []string{"Foo"}

	assert.Equal(t, "foo", table.Issue(path, extraction.KindClass))
	assert.Equal(t, "foo-constant", table.Issue(path, extraction.KindConstant))
	assert.Equal(t, "foo-constant-2", table.Issue(path, extraction.KindConstant))
	assert.Equal(t, "foo-method", table.Issue([]string{"foo?"}, extraction.KindMethod))
	assert.Equal(t, "foo-method-2", table.Issue([]string{"foo!"}, extraction.KindMethod))
	assert.Equal(t, "foo/bar", table.Issue([]string{"Foo", "Bar"}, extraction.KindClass))
}

func TestAnchorTable_SuffixDoesNotStealLaterBase(t *testing.T) {
	t.Parallel()

	table := NewAnchorTable()
	assert.Equal(t, "a", table.Issue([]string{"A"}, extraction.KindClass))
	assert.Equal(t, "a-method", table.Issue([]string{"a"}, extraction.KindMethod))
	// A symbol literally named "a_method" now collides with the suffixed form.
	assert.Equal(t, "a-method-method", table.Issue([]string{"a_method"}, extraction.KindMethod))
}

func TestAnchorTable_FreshPerCall(t *testing.T) {
	t.Parallel()

	src := "class Foo\nend\nFoo = 1\n"
	for range 2 {
		symbols, err := Extract(src, Ruby)
		assert.NoError(t, err)
		assert.Equal(t, []string{"foo", "foo-constant"}, anchorsOf(symbols))
	}
}
