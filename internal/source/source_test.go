package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/anchors-aweigh/internal/extractor"
)

// Test Plan for source.List:
// - Get extracts a file once and reuses the cached File while contents are unchanged
// - Changing the file on disk produces a fresh File with new symbols
// - Invalidate forces the next Get to re-extract
// - Unsupported file names fail with ErrUnsupportedLanguage
// - Select returns a symbol's doc block through its terminator
// - Dedent removes the common indentation and keeps blank lines

const sampleFixture = "../../testdata/code/ruby/sample_ruby_file.rb"

func newList(t *testing.T) *List {
	t.Helper()
	l, err := NewList(16)
	require.NoError(t, err)
	t.Cleanup(l.Close)
	return l
}

func TestList_GetCaches(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lib.rb")
	require.NoError(t, os.WriteFile(path, []byte("class A\nend\n"), 0644))

	l := newList(t)
	first, err := l.Get(path)
	require.NoError(t, err)
	assert.Equal(t, extractor.Ruby, first.Language)
	require.Len(t, first.Symbols, 1)
	assert.Equal(t, "a", first.Symbols[0].Anchor)
	assert.Len(t, first.Hash, 64)

	again, err := l.Get(path)
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, os.WriteFile(path, []byte("class A\nend\nclass B\nend\n"), 0644))
	changed, err := l.Get(path)
	require.NoError(t, err)
	assert.NotSame(t, first, changed)
	assert.Len(t, changed.Symbols, 2)
	assert.NotEqual(t, first.Hash, changed.Hash)

	l.Invalidate(path)
	reloaded, err := l.Get(path)
	require.NoError(t, err)
	assert.NotSame(t, changed, reloaded)
	assert.Equal(t, changed.Symbols, reloaded.Symbols)
}

func TestList_Errors(t *testing.T) {
	t.Parallel()

	l := newList(t)
	_, err := l.Load("notes.txt", []byte("hello"))
	assert.ErrorIs(t, err, extractor.ErrUnsupportedLanguage)

	_, err = l.Get(filepath.Join(t.TempDir(), "missing.rb"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	for _, size := range []int{0, -1} {
		_, err := NewList(size)
		assert.Error(t, err, "size %d", size)
	}
}

func TestFile_Select(t *testing.T) {
	t.Parallel()

	l := newList(t)
	f, err := l.Get(sampleFixture)
	require.NoError(t, err)
	assert.Equal(t, 29, f.LineCount())

	lines, err := f.Select("mymodule/foo")
	require.NoError(t, err)
	require.Len(t, lines, 13)
	assert.Equal(t, "  # = Foo", lines[0])
	assert.Equal(t, "  end", lines[12])

	lines, err = f.Select("mymodule/pi")
	require.NoError(t, err)
	assert.Equal(t, []string{"  PI = 3.142"}, lines)

	_, err = f.Select("mymodule/baz")
	assert.ErrorIs(t, err, ErrAnchorNotFound)
}

func TestFile_Lines(t *testing.T) {
	t.Parallel()

	f := NewFile("x.rb", []byte("a\nb\nc\n"), extractor.Ruby, nil)
	assert.Equal(t, 3, f.LineCount())
	assert.Equal(t, []string{"b", "c"}, f.Lines(2, 10))
	assert.Equal(t, []string{"a"}, f.Lines(-1, 1))
	assert.Nil(t, f.Lines(3, 2))
	assert.Zero(t, NewFile("e.rb", nil, extractor.Ruby, nil).LineCount())
}

func TestDedent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{name: "common indent", in: []string{"    def a", "      1", "    end"}, want: []string{"def a", "  1", "end"}},
		{name: "blank lines ignored", in: []string{"  # doc", "", "   ", "  X = 1"}, want: []string{"# doc", "", "", "X = 1"}},
		{name: "no indent", in: []string{"a", "  b"}, want: []string{"a", "  b"}},
		{name: "empty", in: nil, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Dedent(tt.in))
		})
	}
}
