// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap_test

import (
	"fmt"
	"net/url"

	rdap "github.com/openrdap/rdapkit"
	"github.com/openrdap/rdapkit/test"
)

// Query a domain against a specific RDAP server.
func ExampleClient_Do() {
	test.Start(test.Responses)
	defer test.Finish()

	server, _ := url.Parse("https://rdap.nic.cz")
	req := rdap.NewDomainRequest("example.cz").WithServer(server)

	client := &rdap.Client{}
	resp, err := client.Do(req)

	if err != nil {
		fmt.Println(err)
		return
	}

	if domain, ok := resp.Object.(*rdap.Domain); ok {
		fmt.Printf("Handle=%s Domain=%s\n", domain.Handle, domain.LDHName)
	}

	// Output: Handle=EXAMPLE-CZ Domain=example.cz
}

// Infer the query type from a user supplied string.
func ExampleNewAutoRequest() {
	for _, query := range []string{"192.0.2.1", "AS701", "café.example", "foo-ARIN"} {
		req, err := rdap.NewAutoRequest(query)
		if err != nil {
			fmt.Println(err)
			continue
		}

		fmt.Printf("%s: %s\n", query, req.Type)
	}

	// Output:
	// 192.0.2.1: IPv4 Address Lookup
	// AS701: Autonomous System Number Lookup
	// café.example: Domain Lookup
	// foo-ARIN: Entity Lookup
}
