// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"testing"

	"github.com/openrdap/rdapkit/test"
)

func TestNetRegistryLookupsIPv4(t *testing.T) {
	test.Start(test.Bootstrap)
	defer test.Finish()

	var bytes []byte = test.Get("https://data.iana.org/rdap/ipv4.json")

	var n *NetRegistry
	n, err := NewNetRegistry(bytes, 4)

	if err != nil {
		t.Fatal(err)
	}

	tests := []registryTest{
		{
			"255.0.0.0",
			false,
			"",
			[]string{},
		},
		{
			"41.0.0.0",
			false,
			"41.0.0.0/8",
			[]string{
				"https://rdap.afrinic.net/rdap/",
				"http://rdap.afrinic.net/rdap/",
			},
		},
		{
			"41.255.255.255",
			false,
			"41.0.0.0/8",
			[]string{
				"https://rdap.afrinic.net/rdap/",
				"http://rdap.afrinic.net/rdap/",
			},
		},
		{
			"198.51.100.47/32",
			false,
			"198.51.100.0/24",
			[]string{"https://rir.example.com/myrdap/"},
		},
		{
			"41.",
			true,
			"",
			[]string{},
		},
		{
			"2001:db8::",
			true,
			"",
			[]string{},
		},
	}

	runRegistryTests(t, tests, n)
}

func TestNetRegistryLookupsIPv6(t *testing.T) {
	test.Start(test.Bootstrap)
	defer test.Finish()

	var bytes []byte = test.Get("https://data.iana.org/rdap/ipv6.json")

	var n *NetRegistry
	n, err := NewNetRegistry(bytes, 6)

	if err != nil {
		t.Fatal(err)
	}

	tests := []registryTest{
		{
			"2c00::",
			false,
			"2c00::/12",
			[]string{
				"https://rdap.afrinic.net/rdap/",
				"http://rdap.afrinic.net/rdap/",
			},
		},
		{
			"2001:db8:1234::/48",
			false,
			"2001:db8::/32",
			[]string{"https://rir.example.com/myrdap/"},
		},
		{
			"2000::",
			false,
			"",
			[]string{},
		},
	}

	runRegistryTests(t, tests, n)
}
