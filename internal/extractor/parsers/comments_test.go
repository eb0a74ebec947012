package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for CommentCollector:
// - A run ending on the line above the declaration is returned in order
// - A blank line between the run and the declaration drops it
// - A blank line between two runs keeps only the nearer one
// - Trailing comments on a code line never start a block
// - Pragmas are skipped without breaking contiguity
// - Take always clears the pending run

func comment(line int, text string) Token {
	return Token{Kind: TokenCommentLine, Text: text, Line: line, Column: 1}
}

func blockTexts(b *CommentBlock) []string {
	if b == nil {
		return nil
	}
	return texts(b.Lines)
}

func TestCommentCollector_Contiguous(t *testing.T) {
	t.Parallel()

	c := NewCommentCollector(nil)
	c.Comment(comment(1, "# one"))
	c.Comment(comment(2, "# two"))

	block := c.Take(3)
	require.NotNil(t, block)
	assert.Equal(t, []string{"# one", "# two"}, blockTexts(block))
	assert.Equal(t, 1, block.FirstLine())
	assert.False(t, block.Verbatim)

	assert.Nil(t, c.Take(3), "Take clears the run")
}

func TestCommentCollector_BlankLineSeparation(t *testing.T) {
	t.Parallel()

	t.Run("gap before declaration", func(t *testing.T) {
		t.Parallel()
		c := NewCommentCollector(nil)
		c.Comment(comment(1, "# detached"))
		assert.Nil(t, c.Take(3))
	})

	t.Run("nearer run wins", func(t *testing.T) {
		t.Parallel()
		c := NewCommentCollector(nil)
		c.Comment(comment(1, "# far"))
		c.Comment(comment(3, "# near"))
		assert.Equal(t, []string{"# near"}, blockTexts(c.Take(4)))
	})
}

func TestCommentCollector_Trailing(t *testing.T) {
	t.Parallel()

	c := NewCommentCollector(nil)
	c.Code(5)
	c.Comment(comment(5, "# trailing"))
	assert.Nil(t, c.Take(6))

	c.Comment(comment(7, "# doc"))
	c.Code(8)
	assert.Nil(t, c.Take(9), "code between comment and declaration")
}

func TestCommentCollector_Pragmas(t *testing.T) {
	t.Parallel()

	c := NewCommentCollector(isRubyPragma)
	c.Comment(comment(1, "# frozen_string_literal: true"))
	assert.Nil(t, c.Take(2), "a pragma alone is not documentation")

	c.Comment(comment(3, "# Docs"))
	c.Comment(comment(4, "# rubocop:disable Metrics/AbcSize"))
	assert.Equal(t, []string{"# Docs"}, blockTexts(c.Take(5)))
}

func TestIsRubyPragma(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"#!/usr/bin/env ruby",
		"# frozen_string_literal: true",
		"# encoding: utf-8",
		"# -*- coding: utf-8 -*-",
		"# rubocop:disable Style/Foo",
		"# :nodoc:",
		"# typed: strict",
	} {
		assert.True(t, isRubyPragma(text), text)
	}
	for _, text := range []string{"# @return [String]", "#", "# = Foo", "# Encodes things"} {
		assert.False(t, isRubyPragma(text), text)
	}
}
