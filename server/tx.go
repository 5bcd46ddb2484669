// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package server

import (
	"fmt"
	"net/netip"
	"strings"

	rdap "github.com/openrdap/rdapkit"
)

// memTx stages writes against a cloned snapshot. Commit publishes the
// staging snapshot with a single atomic pointer swap.
type memTx struct {
	mem     *Memory
	staging *snapshot
	done    bool
}

func (tx *memTx) checkOpen() error {
	if tx.done {
		return fmt.Errorf("transaction already finished")
	}

	return nil
}

func (tx *memTx) AddDomain(domain *rdap.Domain) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if domain.LDHName == "" {
		return fmt.Errorf("%w: domain has no ldhName", ErrEmptyIndexData)
	}

	ldh := normaliseDomainName(domain.LDHName)
	tx.staging.domains[ldh] = domain

	if domain.UnicodeName != "" {
		tx.staging.domainsUnicode[normaliseDomainName(domain.UnicodeName)] = domain
	}

	if tx.staging.domainSearch != nil {
		tx.staging.domainSearch.insert(ldh)
	}

	if tx.mem.search.DomainSearchByNSIP {
		for _, nameserver := range domain.Nameservers {
			for _, addr := range nameserverAddrs(&nameserver) {
				tx.staging.domainsByNS[addr] = appendUnique(tx.staging.domainsByNS[addr], domain)
			}
		}
	}

	return nil
}

func (tx *memTx) AddEntity(entity *rdap.Entity) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if entity.Handle == "" {
		return fmt.Errorf("%w: entity has no handle", ErrEmptyIndexData)
	}

	tx.staging.entities[entity.Handle] = entity

	return nil
}

func (tx *memTx) AddNameserver(nameserver *rdap.Nameserver) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if nameserver.LDHName == "" {
		return fmt.Errorf("%w: nameserver has no ldhName", ErrEmptyIndexData)
	}

	ldh := normaliseDomainName(nameserver.LDHName)
	tx.staging.nameservers[ldh] = nameserver

	if tx.staging.nsSearch != nil {
		tx.staging.nsSearch.insert(ldh)
	}

	if tx.mem.search.NameserverSearchByIP {
		for _, addr := range nameserverAddrs(nameserver) {
			tx.staging.nsByIP[addr] = appendUnique(tx.staging.nsByIP[addr], nameserver)
		}
	}

	return nil
}

func (tx *memTx) AddAutnum(autnum *rdap.Autnum) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	start, end, err := autnumRangeOf(autnum)
	if err != nil {
		return err
	}

	tx.staging.autnums.ReplaceOrInsert(autnumEntry{
		Start:  start,
		End:    end,
		Autnum: autnum,
	})

	return nil
}

func (tx *memTx) AddNetwork(network *rdap.IPNetwork) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	prefix, err := networkPrefixOf(network)
	if err != nil {
		return err
	}

	tx.staging.networks[prefix] = network

	return nil
}

func (tx *memTx) AddDomainErr(suffix string, rdapError *rdap.Error) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if suffix == "" {
		return fmt.Errorf("%w: domain error overlay has no suffix", ErrEmptyIndexData)
	}

	tx.staging.domainErrs[normaliseDomainName(suffix)] = rdapError

	return nil
}

func (tx *memTx) AddEntityErr(tag string, rdapError *rdap.Error) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if tag == "" {
		return fmt.Errorf("%w: entity error overlay has no tag", ErrEmptyIndexData)
	}

	tx.staging.entityErrs[strings.ToUpper(tag)] = rdapError

	return nil
}

func (tx *memTx) AddAutnumErr(start uint32, end uint32, rdapError *rdap.Error) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if end < start {
		start, end = end, start
	}

	tx.staging.autnumErrs.ReplaceOrInsert(autnumEntry{
		Start: start,
		End:   end,
		Err:   rdapError,
	})

	return nil
}

func (tx *memTx) AddNetworkErr(prefix netip.Prefix, rdapError *rdap.Error) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	if !prefix.IsValid() {
		return fmt.Errorf("%w: network error overlay has no prefix", ErrEmptyIndexData)
	}

	tx.staging.networkErrs[prefix.Masked()] = rdapError

	return nil
}

func (tx *memTx) SetHelp(help *rdap.Help) error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	tx.staging.help = help

	return nil
}

func (tx *memTx) Commit() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	tx.mem.snap.Store(tx.staging)
	tx.done = true

	return nil
}

func (tx *memTx) Rollback() error {
	if err := tx.checkOpen(); err != nil {
		return err
	}

	tx.staging = nil
	tx.done = true

	return nil
}

// autnumRangeOf reads an autnum's range, accepting a single startAutnum as a
// one-number range.
func autnumRangeOf(autnum *rdap.Autnum) (uint32, uint32, error) {
	start := uint32(autnum.StartAutnum)
	end := uint32(autnum.EndAutnum)

	if autnum.StartAutnum == 0 && autnum.EndAutnum == 0 {
		return 0, 0, fmt.Errorf("%w: autnum has no startAutnum/endAutnum", ErrEmptyIndexData)
	}

	if end == 0 {
		end = start
	}
	if end < start {
		start, end = end, start
	}

	return start, end, nil
}

// networkPrefixOf derives the index prefix of a network object, from its
// CIDR0 prefixes when present, else from the startAddress/endAddress range.
func networkPrefixOf(network *rdap.IPNetwork) (netip.Prefix, error) {
	if len(network.CIDR0CIDRs) > 0 {
		cidr := network.CIDR0CIDRs[0]

		text := cidr.V4Prefix
		if text == "" {
			text = cidr.V6Prefix
		}

		prefix, err := netip.ParsePrefix(fmt.Sprintf("%s/%d", text, cidr.Length))
		if err == nil {
			return prefix.Masked(), nil
		}
	}

	if network.StartAddress == "" {
		return netip.Prefix{}, fmt.Errorf("%w: network has no startAddress", ErrEmptyIndexData)
	}

	start, err := netip.ParseAddr(network.StartAddress)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("network startAddress: %w", err)
	}

	end := start
	if network.EndAddress != "" {
		end, err = netip.ParseAddr(network.EndAddress)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("network endAddress: %w", err)
		}
	}

	return rangeToPrefix(start, end)
}

// rangeToPrefix returns the smallest prefix covering [start, end].
func rangeToPrefix(start netip.Addr, end netip.Addr) (netip.Prefix, error) {
	if start.BitLen() != end.BitLen() {
		return netip.Prefix{}, fmt.Errorf("network range mixes IP versions")
	}

	for bits := start.BitLen(); bits >= 0; bits-- {
		prefix, err := start.Prefix(bits)
		if err != nil {
			return netip.Prefix{}, err
		}

		if prefix.Contains(end) {
			return prefix.Masked(), nil
		}
	}

	return netip.Prefix{}, fmt.Errorf("no covering prefix for %s-%s", start, end)
}

// nameserverAddrs parses a nameserver's glue addresses.
func nameserverAddrs(nameserver *rdap.Nameserver) []netip.Addr {
	if nameserver.IPAddresses == nil {
		return nil
	}

	var addrs []netip.Addr

	for _, text := range append(append([]string{}, nameserver.IPAddresses.V4...), nameserver.IPAddresses.V6...) {
		if addr, err := netip.ParseAddr(text); err == nil {
			addrs = append(addrs, addr)
		}
	}

	return addrs
}

func appendUnique[T comparable](list []T, item T) []T {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}

	return append(list, item)
}
