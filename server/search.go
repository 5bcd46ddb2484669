// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"fmt"
	"sort"
	"strings"
)

// A labelIndex supports RFC 9082 name searches: exactly one "*" wildcard,
// terminating a label, e.g. "exam*.com" or "ns*.example.com".
//
// For each stored name, every label-suffix ("example.com", "com", and the
// root "") buckets the remaining left part. A search splits its pattern at
// the wildcard, picks the bucket of the fixed suffix, and binary-searches
// the bucket for the prefix range.
type labelIndex struct {
	// suffix -> sorted left parts, e.g. "com" -> ["bar.example", "example"].
	suffixes map[string][]indexedName
}

// An indexedName is one left part and the full name it belongs to.
type indexedName struct {
	left string
	name string
}

func newLabelIndex() *labelIndex {
	return &labelIndex{
		suffixes: make(map[string][]indexedName),
	}
}

func (idx *labelIndex) clone() *labelIndex {
	c := newLabelIndex()
	for suffix, names := range idx.suffixes {
		c.suffixes[suffix] = append([]indexedName(nil), names...)
	}

	return c
}

// insert indexes |name| under each of its label-suffixes.
func (idx *labelIndex) insert(name string) {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' && i != 0 {
			left := name[:i]
			suffix := name[i+1:]
			idx.add(suffix, left, name)
		}
	}

	// The root: pattern with no fixed suffix, e.g. "exam*".
	idx.add("", name, name)
}

func (idx *labelIndex) add(suffix string, left string, name string) {
	names := idx.suffixes[suffix]

	at := sort.Search(len(names), func(i int) bool {
		if names[i].left != left {
			return names[i].left > left
		}

		return names[i].name >= name
	})

	if at < len(names) && names[at].left == left && names[at].name == name {
		return
	}

	names = append(names, indexedName{})
	copy(names[at+1:], names[at:])
	names[at] = indexedName{left: left, name: name}

	idx.suffixes[suffix] = names
}

// validateSearchPattern checks RFC 9082 wildcard syntax: exactly one "*",
// terminating a label, with a non-empty prefix.
func validateSearchPattern(pattern string) (prefix string, suffix string, err error) {
	if strings.Count(pattern, "*") != 1 {
		return "", "", fmt.Errorf("%w: exactly one '*' is required", ErrInvalidSearch)
	}

	star := strings.IndexByte(pattern, '*')
	if star != len(pattern)-1 && pattern[star+1] != '.' {
		return "", "", fmt.Errorf("%w: '*' must terminate a label", ErrInvalidSearch)
	}

	prefix = pattern[:star]
	suffix = strings.TrimPrefix(pattern[star+1:], ".")

	if prefix == "" {
		return "", "", fmt.Errorf("%w: a prefix is required", ErrInvalidSearch)
	}

	return prefix, suffix, nil
}

// search returns the stored names matching |pattern|. An empty result is
// legal.
func (idx *labelIndex) search(pattern string) ([]string, error) {
	prefix, suffix, err := validateSearchPattern(strings.ToLower(pattern))
	if err != nil {
		return nil, err
	}

	names := idx.suffixes[suffix]

	from := sort.Search(len(names), func(i int) bool {
		return names[i].left >= prefix
	})

	var matches []string
	seen := make(map[string]bool)

	for i := from; i < len(names) && strings.HasPrefix(names[i].left, prefix); i++ {
		if !seen[names[i].name] {
			seen[names[i].name] = true
			matches = append(matches, names[i].name)
		}
	}

	return matches, nil
}
