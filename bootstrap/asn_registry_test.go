// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"testing"

	"github.com/openrdap/rdapkit/test"
)

func TestASNRegistryLookups(t *testing.T) {
	test.Start(test.Bootstrap)
	defer test.Finish()

	var bytes []byte = test.Get("https://data.iana.org/rdap/asn.json")

	var a *ASNRegistry
	a, err := NewASNRegistry(bytes)

	if err != nil {
		t.Fatal(err)
	}

	tests := []registryTest{
		{
			"as64496",
			false,
			"AS64496",
			[]string{"https://rir3.example.com/myrdap/"},
		},
		{
			"AS64499",
			false,
			"AS64497-AS64510",
			[]string{"https://example.org/"},
		},
		{
			"64499",
			false,
			"AS64497-AS64510",
			[]string{"https://example.org/"},
		},
		{
			"65537",
			false,
			"AS65536-AS65551",
			[]string{"https://example.org/"},
		},
		{
			"64512",
			false,
			"AS64512-AS65534",
			[]string{"http://example.net/rdaprir2/", "https://example.net/rdaprir2/"},
		},
		{
			"65535",
			false,
			"",
			[]string{},
		},
		{
			"not-an-asn",
			true,
			"",
			[]string{},
		},
	}

	runRegistryTests(t, tests, a)
}
