// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package bootstrap

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/openrdap/rdapkit/cache"
	"github.com/openrdap/rdapkit/test"
)

func TestClientLookupDownloadsRegistry(t *testing.T) {
	test.Start(test.Bootstrap)
	defer test.Finish()

	c := NewClient()

	answer, err := c.Lookup(&Question{
		RegistryType: DNS,
		Query:        "example.br",
	})

	if err != nil {
		t.Fatal(err)
	}

	preferred, err := answer.PreferredURL()
	if err != nil {
		t.Fatal(err)
	}

	if preferred != "https://rdap.registro.br" {
		t.Errorf("Got %s\n", preferred)
	}
}

func TestClientLookupUsesStoredRegistry(t *testing.T) {
	test.Start(test.Bootstrap)

	c := NewClient()

	if _, err := c.Lookup(&Question{RegistryType: DNS, Query: "example.br"}); err != nil {
		t.Fatal(err)
	}

	// All responders are gone: a second lookup must not hit the network.
	test.Finish()

	answer, err := c.Lookup(&Question{RegistryType: DNS, Query: "example.org"})
	if err != nil {
		t.Fatal(err)
	}

	if len(answer.URLs) != 1 || answer.URLs[0].String() != "https://example.org/" {
		t.Errorf("Got %v\n", answer.URLs)
	}
}

func TestClientLookupHTTPError(t *testing.T) {
	test.Start(test.BootstrapHTTPError)
	defer test.Finish()

	c := NewClient()

	_, err := c.Lookup(&Question{RegistryType: DNS, Query: "example.br"})

	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v\n", err)
	}
}

func TestClientLookupHint(t *testing.T) {
	test.Start(test.Bootstrap)
	defer test.Finish()

	c := NewClient()

	// An entity tag resolves via the object tag registry, first in the
	// cascade.
	answer, err := c.LookupHint(context.Background(), "ABC123-ARIN")
	if err != nil {
		t.Fatal(err)
	}

	if answer.Entry != "" && answer.Entry != "ARIN" {
		t.Errorf("Got entry %s\n", answer.Entry)
	}

	preferred, err := answer.PreferredURL()
	if err != nil {
		t.Fatal(err)
	}

	if preferred != "https://rdap.arin.net/registry" {
		t.Errorf("Got %s\n", preferred)
	}

	// A domain-looking hint falls through to the DNS registry.
	answer, err = c.LookupHint(context.Background(), "example.br")
	if err != nil {
		t.Fatal(err)
	}

	preferred, err = answer.PreferredURL()
	if err != nil {
		t.Fatal(err)
	}

	if preferred != "https://rdap.registro.br" {
		t.Errorf("Got %s\n", preferred)
	}
}

func TestPreferredURL(t *testing.T) {
	tests := []struct {
		URLs     []string
		Expected string
		Error    bool
	}{
		{[]string{"http://foo.example"}, "http://foo.example", false},
		{[]string{"http://foo.example", "https://foo.example"}, "https://foo.example", false},
		{[]string{"https://foo.example/", "http://bar.example"}, "https://foo.example", false},
		{[]string{}, "", true},
	}

	for _, test := range tests {
		answer := &Answer{}
		for _, u := range test.URLs {
			parsed, _ := url.Parse(u)
			answer.URLs = append(answer.URLs, parsed)
		}

		actual, err := answer.PreferredURL()

		if test.Error {
			if err == nil {
				t.Errorf("URLs %v: expected error\n", test.URLs)
			}
			continue
		}

		if err != nil {
			t.Errorf("URLs %v: unexpected error %s\n", test.URLs, err)
			continue
		}

		if actual != test.Expected {
			t.Errorf("URLs %v: got %s, expected %s\n", test.URLs, actual, test.Expected)
		}
	}
}

func TestStoreFreshness(t *testing.T) {
	store := NewMemoryStore()

	registry := []byte(`
	{
		"version": "1.0",
		"publication": "2024-01-07T10:11:12Z",
		"description": "Some text",
		"services": [
			[["org"], ["https://example.org/"]]
		]
	}`)

	if store.HasRegistry(DNS) {
		t.Error("Empty store claims to have a registry")
	}

	httpData := &cache.HTTPData{
		StatusCode: 200,
		Host:       "data.iana.org",
		Received:   time.Now(),
	}

	if err := store.PutRegistry(DNS, registry, httpData); err != nil {
		t.Fatal(err)
	}

	if !store.HasRegistry(DNS) {
		t.Error("Fresh registry reported missing")
	}

	urls, err := store.DNSURLs("foo.org")
	if err != nil {
		t.Fatal(err)
	}

	if len(urls) != 1 || urls[0].String() != "https://example.org/" {
		t.Errorf("Got %v\n", urls)
	}

	// A registry whose max-age has elapsed is stale.
	stale := &cache.HTTPData{
		StatusCode:   200,
		Host:         "data.iana.org",
		CacheControl: "max-age=0",
		Received:     time.Now().Add(-time.Hour),
	}

	if err := store.PutRegistry(DNS, registry, stale); err != nil {
		t.Fatal(err)
	}

	if store.HasRegistry(DNS) {
		t.Error("Stale registry reported fresh")
	}

	// Stale registries still answer lookups (offline operation).
	urls, err = store.DNSURLs("foo.org")
	if err != nil || len(urls) != 1 {
		t.Errorf("Stale registry unusable: %v %v\n", urls, err)
	}
}

func TestDiskStorePersists(t *testing.T) {
	dir := t.TempDir()

	store := NewDiskStoreAt(dir)

	registry := []byte(`
	{
		"version": "1.0",
		"publication": "2024-01-07T10:11:12Z",
		"description": "Some text",
		"services": [
			[["64496-64511"], ["https://rir.example.com/"]]
		]
	}`)

	httpData := &cache.HTTPData{
		StatusCode: 200,
		Host:       "data.iana.org",
		Received:   time.Now(),
	}

	if err := store.PutRegistry(ASN, registry, httpData); err != nil {
		t.Fatal(err)
	}

	// A second store over the same directory sees the registry.
	store2 := NewDiskStoreAt(dir)

	if !store2.HasRegistry(ASN) {
		t.Fatal("Second store does not see the registry")
	}

	urls, err := store2.ASNURLs("AS64500")
	if err != nil {
		t.Fatal(err)
	}

	if len(urls) != 1 || urls[0].String() != "https://rir.example.com/" {
		t.Errorf("Got %v\n", urls)
	}
}
