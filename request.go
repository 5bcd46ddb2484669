// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// A RequestType specifies an RDAP request type.
type RequestType int

const (
	IPv4Request RequestType = iota
	IPv6Request
	IPv4CIDRRequest
	IPv6CIDRRequest
	AutnumRequest
	DomainRequest
	NameserverRequest
	EntityRequest
	HelpRequest
	RawRequest

	DomainSearchRequest
	DomainSearchByNameserverRequest
	DomainSearchByNameserverIPRequest
	NameserverSearchRequest
	NameserverSearchByNameserverIPRequest
	EntitySearchRequest
	EntitySearchByHandleRequest
)

// String returns a human readable name for the request type, e.g. "Domain
// Lookup".
func (r RequestType) String() string {
	switch r {
	case IPv4Request:
		return "IPv4 Address Lookup"
	case IPv6Request:
		return "IPv6 Address Lookup"
	case IPv4CIDRRequest:
		return "IPv4 CIDR Lookup"
	case IPv6CIDRRequest:
		return "IPv6 CIDR Lookup"
	case AutnumRequest:
		return "Autonomous System Number Lookup"
	case DomainRequest:
		return "Domain Lookup"
	case NameserverRequest:
		return "Nameserver Lookup"
	case EntityRequest:
		return "Entity Lookup"
	case HelpRequest:
		return "Server Help Lookup"
	case RawRequest:
		return "Explicit URL"
	case DomainSearchRequest:
		return "Domain Name Search"
	case DomainSearchByNameserverRequest:
		return "Domain Nameserver Name Search"
	case DomainSearchByNameserverIPRequest:
		return "Domain Nameserver IP Address Search"
	case NameserverSearchRequest:
		return "Nameserver Name Search"
	case NameserverSearchByNameserverIPRequest:
		return "Nameserver IP Address Search"
	case EntitySearchRequest:
		return "Entity Name Search"
	case EntitySearchByHandleRequest:
		return "Entity Handle Search"
	}

	return "Unknown Lookup"
}

// A Request represents an RDAP request.
//
// Requests are executed by a Client. To execute a Request, an RDAP server is
// required. The servers for Autnum, IP, Domain, and tagged Entity queries can
// be determined automatically (bootstrapped); for other query types the
// server must be specified.
type Request struct {
	Type  RequestType
	Query string

	// Server is the RDAP server's base URL. Optional for bootstrappable
	// request types.
	Server *url.URL

	ctx context.Context
}

// NewRequest creates a new Request of |requestType| for |query|.
//
// For AutnumRequest, any leading "AS"/"as" prefix of the query is stripped,
// the Request stores the number only.
func NewRequest(requestType RequestType, query string) *Request {
	if requestType == AutnumRequest {
		if autnum, err := parseAutnum(query); err == nil {
			query = strconv.FormatUint(uint64(autnum), 10)
		}
	}

	return &Request{
		Type:  requestType,
		Query: query,
	}
}

// NewAutnumRequest creates a Request for the AS number |autnum|, e.g. 5400.
func NewAutnumRequest(autnum uint32) *Request {
	return &Request{
		Type:  AutnumRequest,
		Query: strconv.FormatUint(uint64(autnum), 10),
	}
}

// NewIPRequest creates a Request for the IPv4/IPv6 address |ip|.
func NewIPRequest(ip net.IP) *Request {
	requestType := IPv6Request
	if ip.To4() != nil {
		requestType = IPv4Request
	}

	return &Request{
		Type:  requestType,
		Query: ip.String(),
	}
}

// NewIPNetRequest creates a Request for the IP network |net|.
func NewIPNetRequest(ipNet *net.IPNet) *Request {
	requestType := IPv6CIDRRequest
	if ipNet.IP.To4() != nil {
		requestType = IPv4CIDRRequest
	}

	return &Request{
		Type:  requestType,
		Query: ipNet.String(),
	}
}

// NewDomainRequest creates a Request for the domain |domain|. Both A-labels
// ("xn--caf-dma.example") and U-labels ("café.example") are accepted.
func NewDomainRequest(domain string) *Request {
	return &Request{
		Type:  DomainRequest,
		Query: domain,
	}
}

// NewNameserverRequest creates a Request for the nameserver |nameserver|.
func NewNameserverRequest(nameserver string) *Request {
	return &Request{
		Type:  NameserverRequest,
		Query: nameserver,
	}
}

// NewEntityRequest creates a Request for the entity handle |handle|.
func NewEntityRequest(handle string) *Request {
	return &Request{
		Type:  EntityRequest,
		Query: handle,
	}
}

// NewHelpRequest creates a Request for a server's help information.
func NewHelpRequest() *Request {
	return &Request{
		Type: HelpRequest,
	}
}

// NewRawRequest creates a Request for the RDAP URL |rdapURL|, e.g.
// "https://rdap.nic.cz/domain/example.cz".
func NewRawRequest(rdapURL *url.URL) *Request {
	u := *rdapURL

	return &Request{
		Type:   RawRequest,
		Query:  rdapURL.String(),
		Server: &u,
	}
}

// NewAutoRequest creates a Request by inferring the request type from
// |queryText|.
//
// An http/https URL is used verbatim as a raw request. Otherwise the
// classification rules are evaluated in order, first match wins:
//
//  1. AS number     - "AS2856", "as2856", "2856"
//  2. IP address    - "192.0.2.0", "2001:db8::"
//  3. IP network    - "192.0.2.0/24", "2001:db8::/32"
//  4. Nameserver    - two or more LDH labels, the first starting 'n' or 's'
//  5. Domain        - two or more LDH labels otherwise
//  6. Entity handle - any other single token
//
// Returns ErrAmbiguousQueryType if the query contains whitespace and matches
// none of the above.
func NewAutoRequest(queryText string) (*Request, error) {
	// Full RDAP URL?
	if fullURL, err := url.Parse(queryText); err == nil &&
		(fullURL.Scheme == "http" || fullURL.Scheme == "https") {
		return NewRawRequest(fullURL), nil
	}

	// AS number? The prefix strip is deliberately loose, any run of
	// a/A/s/S characters is removed before the digits.
	if autnum, err := parseAutnum(queryText); err == nil {
		return NewAutnumRequest(autnum), nil
	}

	// IP address?
	if ip := net.ParseIP(queryText); ip != nil {
		return NewIPRequest(ip), nil
	}

	// IP network?
	if prefix, length, ok := splitCIDR(queryText); ok {
		if ip := net.ParseIP(prefix); ip != nil {
			if _, err := strconv.ParseUint(length, 10, 8); err == nil {
				requestType := IPv6CIDRRequest
				if ip.To4() != nil {
					requestType = IPv4CIDRRequest
				}

				return &Request{Type: requestType, Query: queryText}, nil
			}
		}
	}

	// Domain or nameserver name?
	if labels := strings.Split(queryText, "."); len(labels) > 1 && allLabelsLDH(labels) {
		if strings.HasPrefix(labels[0], "n") || strings.HasPrefix(labels[0], "s") {
			return NewNameserverRequest(queryText), nil
		}

		return NewDomainRequest(queryText), nil
	}

	// A single word is an entity handle.
	if !strings.ContainsFunc(queryText, unicode.IsSpace) && queryText != "" {
		return NewEntityRequest(queryText), nil
	}

	return nil, ErrAmbiguousQueryType
}

func parseAutnum(autnum string) (uint32, error) {
	autnum = strings.TrimLeft(autnum, "asAS")
	result, err := strconv.ParseUint(autnum, 10, 32)

	if err != nil {
		return 0, err
	}

	return uint32(result), nil
}

func splitCIDR(text string) (prefix string, length string, ok bool) {
	prefix, length, ok = strings.Cut(text, "/")
	if !ok || prefix == "" || length == "" {
		return "", "", false
	}

	return prefix, length, true
}

// allLabelsLDH reports whether every label consists of letters, digits, and
// hyphens only. U-labels count, their letters are simply not ASCII.
func allLabelsLDH(labels []string) bool {
	for _, label := range labels {
		if label == "" {
			return false
		}

		for _, r := range label {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' {
				return false
			}
		}
	}

	return true
}

// pathSegment percent-encodes |text| for use in a URL, encoding the
// URI-reserved set. Unreserved characters (ALPHA / DIGIT / "-" / "." / "_" /
// "~") pass through, everything else is percent-encoded byte-wise.
func pathSegment(text string) string {
	var escaped strings.Builder

	for i := 0; i < len(text); i++ {
		b := text[i]

		if ('A' <= b && b <= 'Z') || ('a' <= b && b <= 'z') || ('0' <= b && b <= '9') ||
			b == '-' || b == '.' || b == '_' || b == '~' {
			escaped.WriteByte(b)
		} else {
			escaped.WriteByte('%')
			escaped.WriteByte("0123456789ABCDEF"[b>>4])
			escaped.WriteByte("0123456789ABCDEF"[b&0xF])
		}
	}

	return escaped.String()
}

// URL constructs the request URL under the base URL |base|.
//
// Any trailing "/" of the base is trimmed first. User supplied query values
// are percent-encoded. For RawRequest the query is returned unchanged.
func (r *Request) URL(base string) (string, error) {
	base = strings.TrimRight(base, "/")

	switch r.Type {
	case IPv4Request, IPv6Request:
		return fmt.Sprintf("%s/ip/%s", base, pathSegment(r.Query)), nil
	case IPv4CIDRRequest, IPv6CIDRRequest:
		prefix, length, ok := splitCIDR(r.Query)
		if !ok {
			return "", ErrInvalidQueryValue
		}

		return fmt.Sprintf("%s/ip/%s/%s", base, pathSegment(prefix), pathSegment(length)), nil
	case AutnumRequest:
		autnum := strings.TrimLeft(r.Query, "asAS")
		return fmt.Sprintf("%s/autnum/%s", base, pathSegment(autnum)), nil
	case DomainRequest:
		return fmt.Sprintf("%s/domain/%s", base, pathSegment(r.Query)), nil
	case NameserverRequest:
		return fmt.Sprintf("%s/nameserver/%s", base, pathSegment(r.Query)), nil
	case EntityRequest:
		return fmt.Sprintf("%s/entity/%s", base, pathSegment(r.Query)), nil
	case HelpRequest:
		return base + "/help", nil
	case RawRequest:
		return r.Query, nil
	case DomainSearchRequest:
		return fmt.Sprintf("%s/domains?name=%s", base, pathSegment(r.Query)), nil
	case DomainSearchByNameserverRequest:
		return fmt.Sprintf("%s/domains?nsLdhName=%s", base, pathSegment(r.Query)), nil
	case DomainSearchByNameserverIPRequest:
		return fmt.Sprintf("%s/domains?nsIp=%s", base, pathSegment(r.Query)), nil
	case NameserverSearchRequest:
		return fmt.Sprintf("%s/nameservers?name=%s", base, pathSegment(r.Query)), nil
	case NameserverSearchByNameserverIPRequest:
		return fmt.Sprintf("%s/nameservers?ip=%s", base, pathSegment(r.Query)), nil
	case EntitySearchRequest:
		return fmt.Sprintf("%s/entities?fn=%s", base, pathSegment(r.Query)), nil
	case EntitySearchByHandleRequest:
		return fmt.Sprintf("%s/entities?handle=%s", base, pathSegment(r.Query)), nil
	}

	return "", ErrInvalidQueryValue
}

// WithContext returns a shallow copy of the Request with its context set to
// |ctx|.
func (r *Request) WithContext(ctx context.Context) *Request {
	r2 := *r
	r2.ctx = ctx

	return &r2
}

// Context returns the Request's context, defaulting to context.Background().
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}

	return r.ctx
}

// WithServer returns a shallow copy of the Request with the server base URL
// set to |server|.
func (r *Request) WithServer(server *url.URL) *Request {
	r2 := *r
	u := *server
	r2.Server = &u

	return &r2
}
