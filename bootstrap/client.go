// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

// Package bootstrap implements Registration Data Access Protocol (RDAP)
// bootstrapping.
//
// All RDAP queries are handled by an RDAP server. To help clients discover
// RDAP servers, IANA publishes Service Registry files
// (https://data.iana.org/rdap) for several query types: domain names, IP
// addresses, Autonomous Systems, and entity object tags.
//
// Given an RDAP query, this package finds the list of RDAP server URLs which
// can answer it. This includes downloading & parsing the Service Registry
// files.
//
// Basic usage:
//
//	b := bootstrap.NewClient()
//	answer, err := b.Lookup(&bootstrap.Question{
//		RegistryType: bootstrap.DNS,
//		Query:        "google.cz",
//	}) // Downloads https://data.iana.org/rdap/dns.json automatically.
//
//	if err == nil {
//		for _, url := range answer.URLs {
//			fmt.Println(url)
//		}
//	}
//
// A bootstrap.Client stores the Service Registry files in a Store, both for
// performance, and courtesy to data.iana.org. The default Store keeps them
// in memory; NewDiskStore() persists them in a cache directory instead
// (default $HOME/.openrdap/bootstrap), where each registry is stored with the
// HTTP response metadata of its download, so the server's cache hints decide
// freshness across processes.
//
// RDAP bootstrapping is defined in https://tools.ietf.org/html/rfc9224.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/openrdap/rdapkit/cache"
)

// A RegistryType represents a bootstrap registry type.
type RegistryType int

const (
	DNS RegistryType = iota
	IPv4
	IPv6
	ASN
	ObjectTag
)

const (
	// Default URL of the Service Registry files.
	DefaultBaseURL = "https://data.iana.org/rdap/"

	// Default maximum age of a stored Service Registry, when the server's
	// cache hints do not keep it fresh for longer.
	DefaultPolicyMaxAge = time.Hour * 24
)

// Errors returned by bootstrap lookups.
var (
	// No network access and no stored registry available.
	ErrUnavailable = errors.New("bootstrap registry unavailable")

	// No key in the registry matches the query.
	ErrNotFound = errors.New("no RDAP servers found for query")

	// The registry document is malformed.
	ErrMalformed = errors.New("malformed bootstrap registry")
)

// A Question is a single bootstrap lookup.
type Question struct {
	// Registry to look in.
	RegistryType RegistryType

	// Query text, e.g. "google.cz", "192.0.2.0/25", "AS15169", "ABC-ARIN".
	Query string

	ctx context.Context
}

// WithContext returns a shallow copy of the Question with its context set to
// |ctx|.
func (q *Question) WithContext(ctx context.Context) *Question {
	q2 := *q
	q2.ctx = ctx

	return &q2
}

// Context returns the Question's context, defaulting to
// context.Background().
func (q *Question) Context() context.Context {
	if q.ctx == nil {
		return context.Background()
	}

	return q.ctx
}

// An Answer represents the result of bootstrapping a single query.
type Answer struct {
	// Query looked up in the registry.
	//
	// This includes any canonicalisation performed to match the Service
	// Registry's data format. e.g. lowercasing of domain names, and removal
	// of "AS" from AS numbers.
	Query string

	// Matching service entry. Empty string if no match.
	Entry string

	// List of RDAP base URLs.
	URLs []*url.URL
}

// PreferredURL returns the best base URL of the Answer: the first URL with
// an https scheme, or failing that the first URL. Any trailing "/" is
// trimmed.
//
// Returns ErrNotFound if the Answer holds no URLs.
func (a *Answer) PreferredURL() (string, error) {
	if len(a.URLs) == 0 {
		return "", ErrNotFound
	}

	preferred := a.URLs[0]
	for _, u := range a.URLs {
		if u.Scheme == "https" {
			preferred = u
			break
		}
	}

	return strings.TrimRight(preferred.String(), "/"), nil
}

// A Registry implements bootstrap lookups over one parsed registry file.
type Registry interface {
	Lookup(question *Question) (*Answer, error)
}

// Client implements an RDAP bootstrap client.
//
// Create a Client using NewClient().
type Client struct {
	HTTP    *http.Client // HTTP client.
	BaseURL *url.URL     // Base URL of the Service Registry files. Default is DefaultBaseURL.
	Store   Store        // Service Registry store. Default is a memory store.

	// Optional callback function for verbose messages.
	Verbose func(text string)
}

// NewClient creates a new bootstrap.Client.
func NewClient() *Client {
	c := &Client{
		HTTP:  &http.Client{},
		Store: NewMemoryStore(),
	}

	c.BaseURL, _ = url.Parse(DefaultBaseURL)

	return c
}

func (c *Client) verbose(text string) {
	if c.Verbose != nil {
		c.Verbose(text)
	}
}

// Download downloads a single bootstrap registry file and saves it in the
// Store.
func (c *Client) Download(ctx context.Context, registry RegistryType) error {
	json, httpData, err := c.download(ctx, registry)

	if err != nil {
		return err
	}

	return c.Store.PutRegistry(registry, json, httpData)
}

func (c *Client) download(ctx context.Context, registry RegistryType) ([]byte, *cache.HTTPData, error) {
	u, err := url.Parse(registry.Filename())
	if err != nil {
		return nil, nil, err
	}

	fetchURL := c.BaseURL.ResolveReference(u)

	c.verbose(fmt.Sprintf("bootstrap: downloading %s", fetchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL.String(), nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("bootstrap server returned status %d for %s",
			resp.StatusCode, fetchURL)
	}

	json, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	// Validate before saving.
	if _, err := newRegistry(registry, json); err != nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	httpData := &cache.HTTPData{
		StatusCode:    resp.StatusCode,
		Scheme:        fetchURL.Scheme,
		Host:          fetchURL.Host,
		RequestURI:    fetchURL.String(),
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: resp.ContentLength,
		Expires:       resp.Header.Get("Expires"),
		CacheControl:  resp.Header.Get("Cache-Control"),
		Received:      time.Now(),
	}

	return json, httpData, nil
}

// DownloadAll downloads all five bootstrap registry files.
func (c *Client) DownloadAll(ctx context.Context) error {
	registryTypes := []RegistryType{ASN, DNS, IPv4, IPv6, ObjectTag}

	for _, registryType := range registryTypes {
		err := c.Download(ctx, registryType)
		if err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the RDAP base URLs for the |question|.
//
// The registry file is downloaded if the Store lacks a fresh copy. A stale
// stored copy is still used when the download fails, so cached-only
// operation works offline.
//
// The returned Answer holds the query text as given and the matching URLs;
// its Entry is left empty.
func (c *Client) Lookup(question *Question) (*Answer, error) {
	registry := question.RegistryType

	if !c.Store.HasRegistry(registry) {
		if err := c.Download(question.Context(), registry); err != nil {
			c.verbose(fmt.Sprintf("bootstrap: download failed (%s), trying stored copy", err))
		}
	}

	urls, err := c.lookupURLs(registry, question.Query)
	if err != nil {
		return nil, err
	}

	return &Answer{
		Query: question.Query,
		URLs:  urls,
	}, nil
}

// LookupHint cascades a textual |hint| through the object tag, DNS, IPv4,
// IPv6, and ASN registries in that order, returning the first Answer with
// URLs.
//
// This is used when the query type of the hint cannot be derived.
func (c *Client) LookupHint(ctx context.Context, hint string) (*Answer, error) {
	cascade := []RegistryType{ObjectTag, DNS, IPv4, IPv6, ASN}

	for _, registryType := range cascade {
		question := &Question{
			RegistryType: registryType,
			Query:        hint,
		}

		answer, err := c.Lookup(question.WithContext(ctx))
		if err == nil && len(answer.URLs) > 0 {
			return answer, nil
		}
	}

	return nil, ErrNotFound
}

func (c *Client) lookupURLs(registry RegistryType, query string) ([]*url.URL, error) {
	switch registry {
	case DNS:
		return c.Store.DNSURLs(query)
	case ASN:
		return c.Store.ASNURLs(query)
	case IPv4:
		return c.Store.IPv4URLs(query)
	case IPv6:
		return c.Store.IPv6URLs(query)
	case ObjectTag:
		return c.Store.TagURLs(query)
	default:
		return nil, fmt.Errorf("unknown registry type %d", registry)
	}
}

func newRegistry(registry RegistryType, json []byte) (Registry, error) {
	var s Registry
	var err error

	switch registry {
	case ASN:
		s, err = NewASNRegistry(json)
	case DNS:
		s, err = NewDNSRegistry(json)
	case IPv4:
		s, err = NewNetRegistry(json, 4)
	case IPv6:
		s, err = NewNetRegistry(json, 6)
	case ObjectTag:
		s, err = NewObjectTagRegistry(json)
	default:
		panic("Unknown RegistryType")
	}

	return s, err
}

// Filename returns the registry's JSON document filename: one of
// {asn,dns,ipv4,ipv6,object-tags}.json.
func (r RegistryType) Filename() string {
	switch r {
	case ASN:
		return "asn.json"
	case DNS:
		return "dns.json"
	case IPv4:
		return "ipv4.json"
	case IPv6:
		return "ipv6.json"
	case ObjectTag:
		return "object-tags.json"
	default:
		panic("Unknown RegistryType")
	}
}

func (r RegistryType) String() string {
	switch r {
	case ASN:
		return "asn"
	case DNS:
		return "dns"
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	case ObjectTag:
		return "object-tags"
	default:
		return "unknown"
	}
}
