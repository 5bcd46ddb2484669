// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"fmt"
	"net/url"
	"strings"
)

// An ObjectTagRegistry implements bootstrap lookups for entity handles, using
// the RFC 8521 object tag: the trailing segment of the handle after the last
// "-", e.g. the handle "ABC123-ARIN" carries ARIN's tag.
type ObjectTagRegistry struct {
	// Map of service tag (e.g. "ARIN") to RDAP base URLs. Keys are stored
	// uppercased; matching is case-insensitive.
	Tags map[string][]*url.URL

	file *File
}

// NewObjectTagRegistry creates an ObjectTagRegistry from an object-tags.json
// registry document.
func NewObjectTagRegistry(json []byte) (*ObjectTagRegistry, error) {
	var f *File
	f, err := NewFile(json)

	if err != nil {
		return nil, fmt.Errorf("error parsing object tag bootstrap: %s", err)
	}

	tags := make(map[string][]*url.URL, len(f.Entries))
	for tag, urls := range f.Entries {
		tags[strings.ToUpper(tag)] = urls
	}

	return &ObjectTagRegistry{
		Tags: tags,
		file: f,
	}, nil
}

// Lookup returns a list of RDAP base URLs for the entity handle in
// |question|.
//
// e.g. for the handle "ABC123-ARIN", the RDAP base URLs for "ARIN" are
// returned.
//
// Missing/unknown tags are not treated as errors. An empty list of URLs is
// returned in these cases.
func (s *ObjectTagRegistry) Lookup(question *Question) (*Answer, error) {
	input := question.Query

	offset := strings.LastIndexByte(input, '-')

	if offset == -1 || offset == len(input)-1 {
		return &Answer{
			Query: input,
		}, nil
	}

	tag := strings.ToUpper(input[offset+1:])

	urls, ok := s.Tags[tag]

	if !ok {
		tag = ""
	}

	return &Answer{
		URLs:  urls,
		Query: input,
		Entry: tag,
	}, nil
}

// File returns a struct describing the registry's JSON document.
func (s *ObjectTagRegistry) File() *File {
	return s.file
}
