// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package cache

import (
	"bytes"
	"testing"
)

func TestMemoryCache(t *testing.T) {
	m := NewMemoryCache()

	if m.State("dns.json") != Absent {
		t.Error("Empty cache not Absent")
	}

	if _, err := m.Load("dns.json"); err == nil {
		t.Error("Load of missing file did not error")
	}

	data := []byte("{}")
	if err := m.Save("dns.json", data); err != nil {
		t.Fatal(err)
	}

	if m.State("dns.json") != Good {
		t.Error("Saved file not Good")
	}

	loaded, err := m.Load("dns.json")
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(loaded, data) {
		t.Errorf("Got %q\n", loaded)
	}

	// The cache copies data in and out.
	loaded[0] = 'X'
	loaded2, _ := m.Load("dns.json")
	if !bytes.Equal(loaded2, data) {
		t.Error("Cache returned aliased data")
	}
}
