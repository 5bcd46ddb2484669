// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"net"
	"net/url"
	"testing"
)

const (
	ExampleServer = "https://test.rdap.example/rdap"
)

func testRequestURL(t *testing.T, r *Request, path string) {
	expectedURL := ExampleServer + "/" + path

	actualURL, err := r.URL(ExampleServer)

	if err != nil {
		t.Errorf("URL error: %s\n", err)
		return
	}

	if actualURL != expectedURL {
		t.Errorf("Got URL %s, expected %s\n", actualURL, expectedURL)
		return
	}
}

func TestNewAutnumRequest(t *testing.T) {
	r := NewAutnumRequest(123456)

	testRequestURL(t, r, "autnum/123456")
}

func TestNewIPv4Request(t *testing.T) {
	r := NewIPRequest(net.ParseIP("192.0.2.0"))

	testRequestURL(t, r, "ip/192.0.2.0")
}

func TestNewIPv6Request(t *testing.T) {
	r := NewIPRequest(net.ParseIP("2001:DB8::a"))

	testRequestURL(t, r, "ip/2001%3Adb8%3A%3Aa")
}

func TestNewIPv4NetRequest(t *testing.T) {
	_, ipNet, _ := net.ParseCIDR("192.0.2.0/24")
	r := NewIPNetRequest(ipNet)

	testRequestURL(t, r, "ip/192.0.2.0/24")
}

func TestNewIPv6NetRequest(t *testing.T) {
	_, ipNet, _ := net.ParseCIDR("2001:DB8::1/128")
	r := NewIPNetRequest(ipNet)

	testRequestURL(t, r, "ip/2001%3Adb8%3A%3A1/128")
}

func TestNewNameserverRequest(t *testing.T) {
	r := NewNameserverRequest("ns.example")

	testRequestURL(t, r, "nameserver/ns.example")
}

func TestNewDomainRequest(t *testing.T) {
	tests := []struct {
		Query        string
		ExpectedPath string
	}{
		{"example.com", "domain/example.com"},
		{"example/../com", "domain/example%2F..%2Fcom"},
		{"café.example", "domain/caf%C3%A9.example"},
	}

	for _, test := range tests {
		r := NewDomainRequest(test.Query)

		testRequestURL(t, r, test.ExpectedPath)
	}
}

func TestNewEntityRequest(t *testing.T) {
	tests := []struct {
		Query        string
		ExpectedPath string
	}{
		{"MY-HANDLE", "entity/MY-HANDLE"},
		{"MY-HANDLE/../com", "entity/MY-HANDLE%2F..%2Fcom"},
	}

	for _, test := range tests {
		r := NewEntityRequest(test.Query)

		testRequestURL(t, r, test.ExpectedPath)
	}
}

func TestNewHelpRequest(t *testing.T) {
	r := NewHelpRequest()

	testRequestURL(t, r, "help")
}

func TestNewRawRequest(t *testing.T) {
	urlString := "https://example.com/domain/example.com"
	u, _ := url.Parse(urlString)
	r := NewRawRequest(u)

	actualURL, err := r.URL("https://unused.example")
	if err != nil {
		t.Fatal(err)
	}

	if actualURL != urlString {
		t.Errorf("Raw query for %s got %s\n", urlString, actualURL)
	}
}

func TestSearchRequestURLs(t *testing.T) {
	tests := []struct {
		Type         RequestType
		Query        string
		ExpectedPath string
	}{
		{DomainSearchRequest, "example*.com", "domains?name=example%2A.com"},
		{DomainSearchByNameserverRequest, "ns1.example.com", "domains?nsLdhName=ns1.example.com"},
		{DomainSearchByNameserverIPRequest, "192.0.2.0", "domains?nsIp=192.0.2.0"},
		{NameserverSearchRequest, "ns1.example*.com", "nameservers?name=ns1.example%2A.com"},
		{NameserverSearchByNameserverIPRequest, "2001:db8::", "nameservers?ip=2001%3Adb8%3A%3A"},
		{EntitySearchRequest, "Bobby Joe*", "entities?fn=Bobby%20Joe%2A"},
		{EntitySearchByHandleRequest, "CID-40*", "entities?handle=CID-40%2A"},
	}

	for _, test := range tests {
		r := NewRequest(test.Type, test.Query)

		testRequestURL(t, r, test.ExpectedPath)
	}
}

func TestBaseURLTrailingSlashTrimmed(t *testing.T) {
	r := NewDomainRequest("example.com")

	actualURL, err := r.URL(ExampleServer + "/")
	if err != nil {
		t.Fatal(err)
	}

	if actualURL != ExampleServer+"/domain/example.com" {
		t.Errorf("Got URL %s\n", actualURL)
	}
}

func TestNewAutoRequest(t *testing.T) {
	tests := []struct {
		Query        string
		ExpectedType RequestType
	}{
		{"129.129.1.1", IPv4Request},
		{"2001::1", IPv6Request},
		{"129.129.1.1/8", IPv4CIDRRequest},
		{"2001::1/20", IPv6CIDRRequest},
		{"16509", AutnumRequest},
		{"as16509", AutnumRequest},
		{"AS16509", AutnumRequest},
		{"example.com", DomainRequest},
		{"café.example", DomainRequest},
		{"ns.example.com", NameserverRequest},
		{"srv01.example.com", NameserverRequest},
		{"foo", EntityRequest},
		{"foo-ARIN", EntityRequest},
	}

	for _, test := range tests {
		r, err := NewAutoRequest(test.Query)

		if err != nil {
			t.Errorf("Query %s: unexpected error %s\n", test.Query, err)
			continue
		}

		if r.Type != test.ExpectedType {
			t.Errorf("Query %s: got type %s, expected %s\n",
				test.Query, r.Type, test.ExpectedType)
		}
	}
}

func TestNewAutoRequestAmbiguous(t *testing.T) {
	_, err := NewAutoRequest("not a query")

	if err != ErrAmbiguousQueryType {
		t.Errorf("Expected ErrAmbiguousQueryType, got %v\n", err)
	}
}

func TestNewAutoRequestStripsAutnumPrefix(t *testing.T) {
	r, err := NewAutoRequest("AS701")
	if err != nil {
		t.Fatal(err)
	}

	if r.Query != "701" {
		t.Errorf("Autnum query stored as %q, expected \"701\"\n", r.Query)
	}

	testRequestURL(t, r, "autnum/701")
}
