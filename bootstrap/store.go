// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"fmt"
	"net/url"
	"sync"
	"time"

	bscache "github.com/openrdap/rdapkit/bootstrap/cache"
	"github.com/openrdap/rdapkit/cache"
)

// A Store holds downloaded bootstrap registries and answers URL lookups over
// them.
//
// A stored registry is fresh while the store's policy maximum age has not
// elapsed since its download and, when the download carried a Cache-Control
// max-age (or, failing that, a parsable Expires header), that window is still
// open too. See cache.HTTPData.IsExpired.
type Store interface {
	// HasRegistry reports whether a fresh copy of the registry is stored.
	HasRegistry(registry RegistryType) bool

	// PutRegistry stores a downloaded registry document together with its
	// HTTP response metadata.
	PutRegistry(registry RegistryType, json []byte, httpData *cache.HTTPData) error

	// The lookup operations. Each returns the base URLs bound to the
	// matching service key, or an empty list when no key matches. They
	// return ErrUnavailable when the registry has never been stored.
	DNSURLs(ldh string) ([]*url.URL, error)
	ASNURLs(autnum string) ([]*url.URL, error)
	IPv4URLs(cidr string) ([]*url.URL, error)
	IPv6URLs(cidr string) ([]*url.URL, error)
	TagURLs(tag string) ([]*url.URL, error)
}

// cacheStore implements Store over a byte-level registry cache backend.
//
// Stored entries are framed in the HTTPData cache file format (one JSON line,
// "---", registry document), so the backend needs no knowledge of either
// JSON or HTTP.
type cacheStore struct {
	backend      bscache.RegistryCache
	policyMaxAge time.Duration

	mu     sync.Mutex
	parsed map[RegistryType]Registry
}

// NewMemoryStore creates a Store keeping registries in memory.
func NewMemoryStore() Store {
	return newCacheStore(bscache.NewMemoryCache())
}

// NewDiskStore creates a Store persisting registries in the default cache
// directory ($HOME/.openrdap/bootstrap), one file per registry kind.
func NewDiskStore() Store {
	return newCacheStore(bscache.NewDiskCache())
}

// NewDiskStoreAt creates a Store persisting registries in the directory
// |dir|.
func NewDiskStoreAt(dir string) Store {
	return newCacheStore(bscache.NewDiskCacheIn(dir))
}

// NewStore creates a Store over a custom byte-level backend.
func NewStore(backend bscache.RegistryCache) Store {
	return newCacheStore(backend)
}

func newCacheStore(backend bscache.RegistryCache) *cacheStore {
	return &cacheStore{
		backend:      backend,
		policyMaxAge: DefaultPolicyMaxAge,
		parsed:       make(map[RegistryType]Registry),
	}
}

func (s *cacheStore) HasRegistry(registry RegistryType) bool {
	contents, err := s.backend.Load(registry.Filename())
	if err != nil {
		return false
	}

	httpData, _, err := cache.FromLines(string(contents))
	if err != nil {
		return false
	}

	return !httpData.IsExpired(s.policyMaxAge)
}

func (s *cacheStore) PutRegistry(registry RegistryType, json []byte, httpData *cache.HTTPData) error {
	contents, err := httpData.ToLines(string(json))
	if err != nil {
		return err
	}

	if err := s.backend.Save(registry.Filename(), []byte(contents)); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.parsed, registry)
	s.mu.Unlock()

	return nil
}

// registry returns the parsed registry, re-reading the backend when the
// backend's copy is newer than the parse.
func (s *cacheStore) registry(registry RegistryType) (Registry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.parsed[registry]; ok {
		if s.backend.State(registry.Filename()) != bscache.ShouldReload {
			return r, nil
		}
	}

	contents, err := s.backend.Load(registry.Filename())
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, registry)
	}

	_, body, err := cache.FromLines(string(contents))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	r, err := newRegistry(registry, []byte(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	s.parsed[registry] = r

	return r, nil
}

func (s *cacheStore) lookup(registry RegistryType, query string) ([]*url.URL, error) {
	r, err := s.registry(registry)
	if err != nil {
		return nil, err
	}

	answer, err := r.Lookup(&Question{RegistryType: registry, Query: query})
	if err != nil {
		return nil, err
	}

	return answer.URLs, nil
}

func (s *cacheStore) DNSURLs(ldh string) ([]*url.URL, error) {
	return s.lookup(DNS, ldh)
}

func (s *cacheStore) ASNURLs(autnum string) ([]*url.URL, error) {
	return s.lookup(ASN, autnum)
}

func (s *cacheStore) IPv4URLs(cidr string) ([]*url.URL, error) {
	return s.lookup(IPv4, cidr)
}

func (s *cacheStore) IPv6URLs(cidr string) ([]*url.URL, error) {
	return s.lookup(IPv6, cidr)
}

func (s *cacheStore) TagURLs(tag string) ([]*url.URL, error) {
	return s.lookup(ObjectTag, tag)
}
