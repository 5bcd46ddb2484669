// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"fmt"
	"net/url"
	"strings"
)

// A DNSRegistry implements bootstrap lookups for domain names.
type DNSRegistry struct {
	// Map of TLD/suffix to RDAP base URLs.
	DNS map[string][]*url.URL

	file *File
}

// NewDNSRegistry creates a queryable DNS registry from a DNS registry JSON
// document.
//
// The document format is specified in
// https://tools.ietf.org/html/rfc9224#section-3.
func NewDNSRegistry(json []byte) (*DNSRegistry, error) {
	var f *File
	f, err := NewFile(json)

	if err != nil {
		return nil, fmt.Errorf("error parsing DNS bootstrap: %s", err)
	}

	// Suffix matching is case-insensitive, normalise the keys.
	entries := make(map[string][]*url.URL, len(f.Entries))
	for suffix, urls := range f.Entries {
		entries[strings.ToLower(suffix)] = urls
	}

	return &DNSRegistry{
		DNS:  entries,
		file: f,
	}, nil
}

// Lookup returns the RDAP base URLs for a domain name.
//
// The longest matching dot-suffix of the domain name wins, matched case
// insensitively.
func (d *DNSRegistry) Lookup(question *Question) (*Answer, error) {
	input := strings.TrimSuffix(question.Query, ".")
	input = strings.ToLower(input)
	fqdn := input

	// Lookup the FQDN.
	// e.g. for an.example.com, the following lookups could occur:
	// - "an.example.com"
	// - "example.com"
	// - "com"
	// - "" (the root zone)
	//
	// Stripping labels left to right means the first hit is the longest
	// matching suffix.
	var urls []*url.URL
	for {
		var ok bool
		urls, ok = d.DNS[fqdn]

		if ok {
			break
		} else if fqdn == "" {
			break
		}

		index := strings.IndexByte(fqdn, '.')
		if index == -1 {
			fqdn = ""
		} else {
			fqdn = fqdn[index+1:]
		}
	}

	return &Answer{
		URLs:  urls,
		Query: input,
		Entry: fqdn,
	}, nil
}

// File returns a struct describing the registry's JSON document.
func (d *DNSRegistry) File() *File {
	return d.file
}
