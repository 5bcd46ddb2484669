// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package cache

import (
	"os"
	"testing"
	"time"
)

func testCache(t *testing.T) *ResponseCache {
	return &ResponseCache{
		Dir:    t.TempDir(),
		MaxAge: time.Hour,
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c := testCache(t)

	data := exampleHTTPData("", "")
	body := `{"objectClassName": "domain", "ldhName": "example.com"}`

	queryURL := "https://rdap.example/domain/example.com"

	if err := c.Save(queryURL, data, body, ""); err != nil {
		t.Fatal(err)
	}

	loaded, loadedBody, ok := c.Load(queryURL)
	if !ok {
		t.Fatal("Cache miss after save")
	}

	if loadedBody != body {
		t.Errorf("Body bad: %q", loadedBody)
	}

	if loaded.StatusCode != data.StatusCode || !loaded.Received.Equal(data.Received) {
		t.Errorf("HTTPData bad: %v", loaded)
	}
}

func TestCacheKeying(t *testing.T) {
	c := testCache(t)

	data := exampleHTTPData("", "")

	if err := c.Save("https://rdap.example/domain/a.example", data, "a", ""); err != nil {
		t.Fatal(err)
	}
	if err := c.Save("https://rdap.example/domain/b.example", data, "b", ""); err != nil {
		t.Fatal(err)
	}

	if _, body, ok := c.Load("https://rdap.example/domain/a.example"); !ok || body != "a" {
		t.Errorf("Wrong cache entry for a.example: %q", body)
	}

	entries, err := os.ReadDir(c.Dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, entry := range entries {
		if name := entry.Name(); len(name) < 7 || name[len(name)-6:] != ".cache" {
			t.Errorf("Cache file without .cache suffix: %s", name)
		}
	}
}

func TestCacheSelfLinkSecondary(t *testing.T) {
	c := testCache(t)

	data := exampleHTTPData("", "")
	selfLink := "https://authoritative.example/domain/example.com"

	if err := c.Save("https://rdap.example/domain/example.com", data, "body", selfLink); err != nil {
		t.Fatal(err)
	}

	if _, body, ok := c.Load(selfLink); !ok || body != "body" {
		t.Error("Self link cache entry missing")
	}
}

func TestCacheNoStoreNotWritten(t *testing.T) {
	c := testCache(t)

	tests := []string{"no-store", "no-cache", "private, no-store"}

	for _, cacheControl := range tests {
		data := exampleHTTPData(cacheControl, "")

		queryURL := "https://rdap.example/domain/" + cacheControl

		if err := c.Save(queryURL, data, "body", ""); err != nil {
			t.Fatal(err)
		}

		if _, _, ok := c.Load(queryURL); ok {
			t.Errorf("Cache-Control %q was cached", cacheControl)
		}
	}
}

func TestCacheExpiry(t *testing.T) {
	c := testCache(t)

	queryURL := "https://rdap.example/domain/example.com"

	// max-age=0 expires immediately.
	data := exampleHTTPData("max-age=0", "")
	if err := c.Save(queryURL, data, "body", ""); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := c.Load(queryURL); ok {
		t.Error("Expired entry served")
	}

	// Caller max age already elapsed.
	c2 := testCache(t)
	c2.MaxAge = 0

	data = exampleHTTPData("", "")
	if err := c2.Save(queryURL, data, "body", ""); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := c2.Load(queryURL); ok {
		t.Error("Entry older than MaxAge served")
	}
}

func TestCacheExpire(t *testing.T) {
	c := testCache(t)

	queryURL := "https://rdap.example/domain/example.com"

	if err := c.Save(queryURL, exampleHTTPData("", ""), "body", ""); err != nil {
		t.Fatal(err)
	}

	if err := c.Expire(queryURL); err != nil {
		t.Fatal(err)
	}

	if _, _, ok := c.Load(queryURL); ok {
		t.Error("Entry served after Expire")
	}

	// Expiring a missing entry is not an error.
	if err := c.Expire(queryURL); err != nil {
		t.Fatal(err)
	}
}
