// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// A NetRegistry implements bootstrap lookups for IPv4/IPv6 addresses and
// networks.
type NetRegistry struct {
	// Networks, keyed by prefix length.
	Networks map[int][]NetEntry

	numIPBytes int
	file       *File
}

// A NetEntry is a single network and its RDAP base URLs.
type NetEntry struct {
	Net  *net.IPNet
	URLs []*url.URL
}

type netEntrySorter []NetEntry

func (a netEntrySorter) Len() int {
	return len(a)
}

func (a netEntrySorter) Swap(i int, j int) {
	a[i], a[j] = a[j], a[i]
}

func (a netEntrySorter) Less(i int, j int) bool {
	return bytes.Compare(a[i].Net.IP, a[j].Net.IP) <= 0
}

// NewNetRegistry creates a queryable IP network registry from an
// ipv4.json/ipv6.json registry document. |ipVersion| is 4 or 6.
//
// The document format is specified in
// https://tools.ietf.org/html/rfc9224#section-5.1.
func NewNetRegistry(json []byte, ipVersion int) (*NetRegistry, error) {
	if ipVersion != 4 && ipVersion != 6 {
		return nil, fmt.Errorf("unknown IP version %d", ipVersion)
	}

	var f *File
	f, err := NewFile(json)

	if err != nil {
		return nil, fmt.Errorf("error parsing net registry file: %s", err)
	}

	n := &NetRegistry{
		Networks:   map[int][]NetEntry{},
		numIPBytes: numIPBytesForVersion(ipVersion),
		file:       f,
	}

	var cidr string
	var urls []*url.URL
	for cidr, urls = range f.Entries {
		_, ipNet, err := net.ParseCIDR(cidr)

		if err != nil {
			continue
		} else if len(ipNet.IP) != n.numIPBytes {
			continue
		}

		size, _ := ipNet.Mask.Size()
		n.Networks[size] = append(n.Networks[size], NetEntry{Net: ipNet, URLs: urls})
	}

	for _, nets := range n.Networks {
		sort.Sort(netEntrySorter(nets))
	}

	return n, nil
}

// Lookup returns the RDAP base URLs of the smallest registered network
// containing the IP address or CIDR in |question|.
func (n *NetRegistry) Lookup(question *Question) (*Answer, error) {
	input := question.Query

	if !strings.ContainsAny(input, "/") {
		// Convert IP address to CIDR format, with a /32 or /128 mask.
		input = fmt.Sprintf("%s/%d", input, n.numIPBytes*8)
	}

	_, lookupNet, err := net.ParseCIDR(input)

	if err != nil {
		return nil, err
	}

	if len(lookupNet.IP) != n.numIPBytes {
		return nil, errors.New("lookup address has wrong IP protocol")
	}

	lookupMask, _ := lookupNet.Mask.Size()

	var bestEntry string
	var bestURLs []*url.URL
	var bestMask int

	var mask int
	var nets []NetEntry
	for mask, nets = range n.Networks {
		if mask < bestMask || mask > lookupMask {
			continue
		}

		index := sort.Search(len(nets), func(i int) bool {
			net := nets[i].Net
			return net.Contains(lookupNet.IP) || bytes.Compare(net.IP, lookupNet.IP) >= 0
		})

		if index == len(nets) || !nets[index].Net.Contains(lookupNet.IP) {
			continue
		}

		bestEntry = nets[index].Net.String()
		bestMask = mask
		bestURLs = nets[index].URLs
	}

	return &Answer{
		Query: input,
		Entry: bestEntry,
		URLs:  bestURLs,
	}, nil
}

// File returns a struct describing the registry's JSON document.
func (n *NetRegistry) File() *File {
	return n.file
}

func numIPBytesForVersion(ipVersion int) int {
	len := 0

	switch ipVersion {
	case 4:
		len = net.IPv4len
	case 6:
		len = net.IPv6len
	default:
		panic("Unknown IP version")
	}

	return len
}
