// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLabelIndex() *labelIndex {
	idx := newLabelIndex()

	idx.insert("foo.example.com")
	idx.insert("bar.example.com")
	idx.insert("foo.example.net")
	idx.insert("foobar.example.com")

	return idx
}

func TestLabelIndexSearch(t *testing.T) {
	idx := testLabelIndex()

	tests := []struct {
		Pattern  string
		Expected []string
	}{
		{"foo*.example.com", []string{"foo.example.com", "foobar.example.com"}},
		{"foo.example*", []string{"foo.example.com", "foo.example.net"}},
		{"bar*.example.com", []string{"bar.example.com"}},
		{"foo.*", []string{"foo.example.com", "foo.example.net"}},
		{"zzz*.example.com", nil},
		{"foo.example.com*", []string{"foo.example.com"}},
	}

	for _, test := range tests {
		matches, err := idx.search(test.Pattern)
		require.NoError(t, err, test.Pattern)

		assert.ElementsMatch(t, test.Expected, matches, test.Pattern)
	}
}

func TestLabelIndexSearchValidation(t *testing.T) {
	idx := testLabelIndex()

	invalid := []string{
		"no-wildcard.example.com",
		"two*.wild*.example",
		"mid*dle.example",
		"*.example.com",
	}

	for _, pattern := range invalid {
		_, err := idx.search(pattern)

		assert.ErrorIs(t, err, ErrInvalidSearch, pattern)
	}
}

func TestLabelIndexCaseInsensitive(t *testing.T) {
	idx := testLabelIndex()

	matches, err := idx.search("FOO*.example.com")
	require.NoError(t, err)

	assert.Contains(t, matches, "foo.example.com")
}

func TestLabelIndexClone(t *testing.T) {
	idx := testLabelIndex()

	clone := idx.clone()
	clone.insert("new.example.com")

	matches, err := idx.search("new*.example.com")
	require.NoError(t, err)
	assert.Empty(t, matches)

	matches, err = clone.search("new*.example.com")
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}
