// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

// Package server implements a reference RDAP server.
//
// Objects are loaded from a data directory into a store (in-memory or
// SQLite), looked up by the HTTP handlers, and served as RDAP JSON. A server
// configured as a bootstrap source additionally holds error overlays, used
// to synthesise redirects towards authoritative servers.
package server

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"sync/atomic"

	"github.com/google/btree"

	rdap "github.com/openrdap/rdapkit"
)

// Storage errors.
var (
	// An object was refused because it lacks its identifying key.
	ErrEmptyIndexData = errors.New("object lacks its identifying key")

	// A search pattern failed structural validation.
	ErrInvalidSearch = errors.New("invalid search pattern")
)

// StoreOps is the interface of a storage backend.
//
// Lookup operations return (nil, nil) for objects which are not stored. The
// …Err operations read the error overlays, which hold administratively
// configured RDAP error documents used to synthesise bootstrap referrals.
type StoreOps interface {
	// Init prepares the backend.
	Init() error

	// NewTx opens a transaction staging changes on top of the current
	// contents.
	NewTx() (TxHandle, error)

	// NewTruncateTx opens a transaction staging a complete replacement of
	// the contents.
	NewTruncateTx() (TxHandle, error)

	DomainByLDH(ldh string) (*rdap.Domain, error)
	DomainByUnicode(name string) (*rdap.Domain, error)
	DomainErr(suffix string) (*rdap.Error, error)

	EntityByHandle(handle string) (*rdap.Entity, error)
	EntityErr(tag string) (*rdap.Error, error)

	NameserverByLDH(ldh string) (*rdap.Nameserver, error)

	AutnumByNumber(autnum uint32) (*rdap.Autnum, error)
	AutnumErr(autnum uint32) (*rdap.Error, error)

	NetworkByIP(addr netip.Addr) (*rdap.IPNetwork, error)
	NetworkErr(addr netip.Addr) (*rdap.Error, error)
	NetworkByCIDR(prefix netip.Prefix) (*rdap.IPNetwork, error)

	SearchDomainsByName(pattern string) ([]*rdap.Domain, error)
	SearchDomainsByNSIP(addr netip.Addr) ([]*rdap.Domain, error)
	SearchNameserversByName(pattern string) ([]*rdap.Nameserver, error)
	SearchNameserversByIP(addr netip.Addr) ([]*rdap.Nameserver, error)

	Help() (*rdap.Help, error)
}

// TxHandle stages writes to a store. Commit publishes them atomically;
// readers observe either the pre-commit or post-commit store, never a mix.
type TxHandle interface {
	AddDomain(domain *rdap.Domain) error
	AddEntity(entity *rdap.Entity) error
	AddNameserver(nameserver *rdap.Nameserver) error
	AddAutnum(autnum *rdap.Autnum) error
	AddNetwork(network *rdap.IPNetwork) error

	AddDomainErr(suffix string, rdapError *rdap.Error) error
	AddEntityErr(tag string, rdapError *rdap.Error) error
	AddAutnumErr(start uint32, end uint32, rdapError *rdap.Error) error
	AddNetworkErr(prefix netip.Prefix, rdapError *rdap.Error) error

	SetHelp(help *rdap.Help) error

	Commit() error
	Rollback() error
}

// SearchConfig selects which search indexes a store maintains.
type SearchConfig struct {
	DomainSearchByName     bool
	NameserverSearchByName bool
	NameserverSearchByIP   bool
	DomainSearchByNSIP     bool
}

// An autnumEntry is one autnum range (or error overlay range) in an
// interval index. Entries are ordered by End so the first entry with
// End >= n is the only candidate containing n.
type autnumEntry struct {
	Start uint32
	End   uint32

	Autnum *rdap.Autnum
	Err    *rdap.Error
}

func autnumLess(a, b autnumEntry) bool {
	if a.End != b.End {
		return a.End < b.End
	}

	return a.Start < b.Start
}

// A snapshot is one immutable generation of the in-memory store.
type snapshot struct {
	domains        map[string]*rdap.Domain
	domainsUnicode map[string]*rdap.Domain
	domainErrs     map[string]*rdap.Error

	entities   map[string]*rdap.Entity
	entityErrs map[string]*rdap.Error

	nameservers map[string]*rdap.Nameserver

	autnums    *btree.BTreeG[autnumEntry]
	autnumErrs *btree.BTreeG[autnumEntry]

	networks    map[netip.Prefix]*rdap.IPNetwork
	networkErrs map[netip.Prefix]*rdap.Error

	domainSearch *labelIndex
	nsSearch     *labelIndex
	nsByIP       map[netip.Addr][]*rdap.Nameserver
	domainsByNS  map[netip.Addr][]*rdap.Domain

	help *rdap.Help
}

func newSnapshot(search SearchConfig) *snapshot {
	s := &snapshot{
		domains:        make(map[string]*rdap.Domain),
		domainsUnicode: make(map[string]*rdap.Domain),
		domainErrs:     make(map[string]*rdap.Error),
		entities:       make(map[string]*rdap.Entity),
		entityErrs:     make(map[string]*rdap.Error),
		nameservers:    make(map[string]*rdap.Nameserver),
		autnums:        btree.NewG(8, autnumLess),
		autnumErrs:     btree.NewG(8, autnumLess),
		networks:       make(map[netip.Prefix]*rdap.IPNetwork),
		networkErrs:    make(map[netip.Prefix]*rdap.Error),
		nsByIP:         make(map[netip.Addr][]*rdap.Nameserver),
		domainsByNS:    make(map[netip.Addr][]*rdap.Domain),
	}

	if search.DomainSearchByName {
		s.domainSearch = newLabelIndex()
	}
	if search.NameserverSearchByName {
		s.nsSearch = newLabelIndex()
	}

	return s
}

// clone copies a snapshot for staging. Maps are copied shallowly; objects
// are treated as immutable once stored.
func (s *snapshot) clone() *snapshot {
	c := &snapshot{
		domains:        copyMap(s.domains),
		domainsUnicode: copyMap(s.domainsUnicode),
		domainErrs:     copyMap(s.domainErrs),
		entities:       copyMap(s.entities),
		entityErrs:     copyMap(s.entityErrs),
		nameservers:    copyMap(s.nameservers),
		autnums:        s.autnums.Clone(),
		autnumErrs:     s.autnumErrs.Clone(),
		networks:       copyMap(s.networks),
		networkErrs:    copyMap(s.networkErrs),
		nsByIP:         copyMap(s.nsByIP),
		domainsByNS:    copyMap(s.domainsByNS),
		help:           s.help,
	}

	if s.domainSearch != nil {
		c.domainSearch = s.domainSearch.clone()
	}
	if s.nsSearch != nil {
		c.nsSearch = s.nsSearch.clone()
	}

	return c
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}

	return c
}

// Memory is the in-memory storage backend.
//
// Reads are lock-free: each lookup loads the current snapshot from an atomic
// pointer and works on that generation. Writers stage into a cloned
// snapshot; commit is a single pointer swap. Concurrent commits are
// last-writer-wins on the whole store, acceptable because all writers are
// administrative.
type Memory struct {
	snap   atomic.Pointer[snapshot]
	search SearchConfig
}

// NewMemory creates an empty in-memory store.
func NewMemory(search SearchConfig) *Memory {
	m := &Memory{search: search}
	m.snap.Store(newSnapshot(search))

	return m
}

func (m *Memory) Init() error {
	return nil
}

func (m *Memory) NewTx() (TxHandle, error) {
	return &memTx{mem: m, staging: m.snap.Load().clone()}, nil
}

func (m *Memory) NewTruncateTx() (TxHandle, error) {
	return &memTx{mem: m, staging: newSnapshot(m.search)}, nil
}

func (m *Memory) DomainByLDH(ldh string) (*rdap.Domain, error) {
	return m.snap.Load().domains[normaliseDomainName(ldh)], nil
}

func (m *Memory) DomainByUnicode(name string) (*rdap.Domain, error) {
	return m.snap.Load().domainsUnicode[normaliseDomainName(name)], nil
}

func (m *Memory) DomainErr(suffix string) (*rdap.Error, error) {
	return m.snap.Load().domainErrs[normaliseDomainName(suffix)], nil
}

func (m *Memory) EntityByHandle(handle string) (*rdap.Entity, error) {
	return m.snap.Load().entities[handle], nil
}

func (m *Memory) EntityErr(tag string) (*rdap.Error, error) {
	return m.snap.Load().entityErrs[strings.ToUpper(tag)], nil
}

func (m *Memory) NameserverByLDH(ldh string) (*rdap.Nameserver, error) {
	return m.snap.Load().nameservers[normaliseDomainName(ldh)], nil
}

func (m *Memory) AutnumByNumber(autnum uint32) (*rdap.Autnum, error) {
	entry, ok := autnumLookup(m.snap.Load().autnums, autnum)
	if !ok {
		return nil, nil
	}

	return entry.Autnum, nil
}

func (m *Memory) AutnumErr(autnum uint32) (*rdap.Error, error) {
	entry, ok := autnumLookup(m.snap.Load().autnumErrs, autnum)
	if !ok {
		return nil, nil
	}

	return entry.Err, nil
}

func autnumLookup(index *btree.BTreeG[autnumEntry], autnum uint32) (autnumEntry, bool) {
	var found autnumEntry
	ok := false

	index.AscendGreaterOrEqual(autnumEntry{Start: 0, End: autnum}, func(entry autnumEntry) bool {
		if entry.Start <= autnum && autnum <= entry.End {
			found = entry
			ok = true
		}

		// The first range ending at or after the number decides.
		return false
	})

	return found, ok
}

func (m *Memory) NetworkByIP(addr netip.Addr) (*rdap.IPNetwork, error) {
	snap := m.snap.Load()

	if prefix, ok := longestPrefixMatch(snap.networks, addr); ok {
		return snap.networks[prefix], nil
	}

	return nil, nil
}

func (m *Memory) NetworkErr(addr netip.Addr) (*rdap.Error, error) {
	snap := m.snap.Load()

	if prefix, ok := longestPrefixMatch(snap.networkErrs, addr); ok {
		return snap.networkErrs[prefix], nil
	}

	return nil, nil
}

func (m *Memory) NetworkByCIDR(prefix netip.Prefix) (*rdap.IPNetwork, error) {
	snap := m.snap.Load()

	masked := prefix.Masked()
	if network, ok := snap.networks[masked]; ok {
		return network, nil
	}

	// Fall back to the smallest containing network.
	for bits := masked.Bits() - 1; bits >= 0; bits-- {
		probe, err := masked.Addr().Prefix(bits)
		if err != nil {
			continue
		}

		if network, ok := snap.networks[probe]; ok {
			return network, nil
		}
	}

	return nil, nil
}

// longestPrefixMatch finds the longest prefix in |prefixes| containing
// |addr|, by probing each possible length, longest first.
func longestPrefixMatch[V any](prefixes map[netip.Prefix]V, addr netip.Addr) (netip.Prefix, bool) {
	for bits := addr.BitLen(); bits >= 0; bits-- {
		probe, err := addr.Prefix(bits)
		if err != nil {
			continue
		}

		if _, ok := prefixes[probe]; ok {
			return probe, true
		}
	}

	return netip.Prefix{}, false
}

func (m *Memory) SearchDomainsByName(pattern string) ([]*rdap.Domain, error) {
	snap := m.snap.Load()
	if snap.domainSearch == nil {
		return nil, fmt.Errorf("domain search by name is not indexed")
	}

	names, err := snap.domainSearch.search(pattern)
	if err != nil {
		return nil, err
	}

	domains := make([]*rdap.Domain, 0, len(names))
	for _, name := range names {
		if domain, ok := snap.domains[name]; ok {
			domains = append(domains, domain)
		}
	}

	return domains, nil
}

func (m *Memory) SearchNameserversByName(pattern string) ([]*rdap.Nameserver, error) {
	snap := m.snap.Load()
	if snap.nsSearch == nil {
		return nil, fmt.Errorf("nameserver search by name is not indexed")
	}

	names, err := snap.nsSearch.search(pattern)
	if err != nil {
		return nil, err
	}

	nameservers := make([]*rdap.Nameserver, 0, len(names))
	for _, name := range names {
		if nameserver, ok := snap.nameservers[name]; ok {
			nameservers = append(nameservers, nameserver)
		}
	}

	return nameservers, nil
}

func (m *Memory) SearchNameserversByIP(addr netip.Addr) ([]*rdap.Nameserver, error) {
	return m.snap.Load().nsByIP[addr], nil
}

func (m *Memory) SearchDomainsByNSIP(addr netip.Addr) ([]*rdap.Domain, error) {
	return m.snap.Load().domainsByNS[addr], nil
}

func (m *Memory) Help() (*rdap.Help, error) {
	return m.snap.Load().help, nil
}

// normaliseDomainName canonicalises a domain name for indexing: trailing dot
// removed, surrounding space trimmed, ASCII lowercased.
func normaliseDomainName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimSuffix(name, ".")

	return strings.ToLower(name)
}
