// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

// Package rdap implements a client for the Registration Data Access Protocol
// (RDAP).
//
// RDAP is a modern replacement for the text-based WHOIS (port 43) protocol.
// It provides registration data for domain names/IP addresses/AS numbers, and
// more, in a structured format.
//
// This client executes RDAP queries and returns the responses as Go values.
//
// Example quick usage:
//
//	client := rdap.NewClient(nil)
//	domain, err := client.QueryDomain("google.cz")
//
//	if err == nil {
//		fmt.Printf("Handle=%s Domain=%s\n", domain.Handle, domain.LDHName)
//	}
//
// Manual request construction:
//
//	req, err := rdap.NewAutoRequest("192.0.2.0/24")
//	client := rdap.NewClient(nil)
//	resp, err := client.Do(req)
//
// The RDAP servers to query are determined automatically for domain, IP,
// autnum, nameserver, and tagged entity queries, using the IANA bootstrap
// registries (https://data.iana.org/rdap/). See the bootstrap subpackage.
//
// Responses can be cached on disk (see the cache subpackage), referral links
// can be walked (WalkLinkTargets), and RFC 9537 redactions can be applied
// and simplified (ApplyRedactions, SimplifyRedactions).
//
// A reference RDAP server built on the same response model lives in the
// server subpackage.
//
// The RDAP protocol is defined in RFC 7480-7484, RFC 9082-9083, RFC 9224,
// and RFC 9537.
package rdap
