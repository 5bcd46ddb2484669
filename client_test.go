// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/openrdap/rdapkit/cache"
	"github.com/openrdap/rdapkit/test"
)

func TestQueryDomainWithServer(t *testing.T) {
	test.Start(test.Responses)
	defer test.Finish()

	req := NewDomainRequest("example.cz")
	req, err := requestWithServerURL(req, "https://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{}
	resp, err := client.Do(req)

	if err != nil {
		t.Fatal(err)
	}

	domain, ok := resp.Object.(*Domain)
	if !ok {
		t.Fatalf("Expected Domain, got %T", resp.Object)
	}

	if domain.LDHName != "example.cz" || domain.Handle != "EXAMPLE-CZ" {
		t.Errorf("Domain fields bad: %v", domain)
	}

	if len(resp.HTTP) != 1 || resp.HTTP[0].Data.StatusCode != 200 {
		t.Errorf("HTTP metadata bad: %v", resp.HTTP)
	}
}

func TestQueryDomainNotFound(t *testing.T) {
	test.Start(test.Responses)
	defer test.Finish()

	req := NewDomainRequest("non-existent.cz")
	req, err := requestWithServerURL(req, "https://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{}
	_, err = client.Do(req)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ProtocolStatusError {
		t.Fatalf("Expected ProtocolStatusError, got %v", err)
	}

	if clientErr.HTTP == nil || clientErr.HTTP.StatusCode != 404 {
		t.Errorf("HTTP metadata not preserved: %v", clientErr.HTTP)
	}
}

func TestQueryDomainMalformed(t *testing.T) {
	test.Start(test.Responses)
	defer test.Finish()

	req := NewDomainRequest("malformed.cz")
	req, err := requestWithServerURL(req, "https://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{}
	_, err = client.Do(req)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != ParsingError {
		t.Fatalf("Expected ParsingError, got %v", err)
	}
}

func TestHTTPSOnlyEnforced(t *testing.T) {
	req := NewDomainRequest("example.cz")
	req, err := requestWithServerURL(req, "http://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{}
	_, err = client.Do(req)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != UserError {
		t.Fatalf("Expected UserError for non-HTTPS URL, got %v", err)
	}
}

func TestRetryAfter429(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	requests := 0
	httpmock.RegisterResponder("GET", "https://rdap.nic.cz/domain/example.cz",
		func(req *http.Request) (*http.Response, error) {
			requests++
			if requests == 1 {
				resp := httpmock.NewStringResponse(429, "")
				resp.Header.Set("Retry-After", "1")
				return resp, nil
			}

			return httpmock.NewStringResponse(200,
				`{"objectClassName": "domain", "ldhName": "example.cz"}`), nil
		})

	req := NewDomainRequest("example.cz")
	req, err := requestWithServerURL(req, "https://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{}
	client.config = ClientConfig{
		MaxRetries:   1,
		MaxRetrySecs: 5,
		DefRetrySecs: 5,
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatal(err)
	}

	if requests != 2 {
		t.Errorf("Expected 2 requests, got %d", requests)
	}

	if elapsed < time.Second {
		t.Errorf("Expected at least 1s of retry delay, got %s", elapsed)
	}

	if len(resp.HTTP) != 1 || resp.HTTP[0].Retries != 1 {
		t.Errorf("Expected one recorded retry: %v", resp.HTTP)
	}
}

func TestRetryBudgetExhausted(t *testing.T) {
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	responder := httpmock.NewStringResponder(429, "")
	httpmock.RegisterResponder("GET", "https://rdap.nic.cz/domain/example.cz", responder)

	req := NewDomainRequest("example.cz")
	req, err := requestWithServerURL(req, "https://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	client := &Client{}
	client.config = ClientConfig{
		MaxRetries:   1,
		MaxRetrySecs: 1,
		DefRetrySecs: 1,
	}

	_, err = client.Do(req)

	var clientErr *ClientError
	if !errors.As(err, &clientErr) || clientErr.Type != RateLimitError {
		t.Fatalf("Expected RateLimitError, got %v", err)
	}
}

func TestResponseCacheHit(t *testing.T) {
	test.Start(test.Responses)

	respCache := cache.NewResponseCache()
	respCache.Dir = t.TempDir()

	client := &Client{Cache: respCache}

	req := NewDomainRequest("example.cz")
	req, err := requestWithServerURL(req, "https://rdap.nic.cz")
	if err != nil {
		t.Fatal(err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.FromCache {
		t.Fatal("First response unexpectedly from cache")
	}

	firstBody := resp.HTTP[0].Body

	// No responders registered: any network access now fails.
	test.Finish()
	httpmock.Activate()
	defer httpmock.DeactivateAndReset()

	resp2, err := client.Do(req)
	if err != nil {
		t.Fatal(err)
	}

	if !resp2.FromCache {
		t.Error("Second response not served from cache")
	}

	if !bytes.Equal(firstBody, resp2.HTTP[0].Body) {
		t.Error("Cached response body differs")
	}
}

func requestWithServerURL(req *Request, server string) (*Request, error) {
	u, err := url.Parse(server)
	if err != nil {
		return nil, err
	}

	return req.WithServer(u), nil
}
