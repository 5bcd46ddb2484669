// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDiskCache(t *testing.T) {
	d := NewDiskCacheIn(t.TempDir())

	if d.State("dns.json") != Absent {
		t.Error("Empty cache not Absent")
	}

	data := []byte("{}")
	if err := d.Save("dns.json", data); err != nil {
		t.Fatal(err)
	}

	if d.State("dns.json") != Good {
		t.Error("Saved file not Good")
	}

	loaded, err := d.Load("dns.json")
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(loaded, data) {
		t.Errorf("Got %q\n", loaded)
	}
}

func TestDiskCacheShouldReload(t *testing.T) {
	dir := t.TempDir()
	d := NewDiskCacheIn(dir)

	if err := d.Save("dns.json", []byte("{}")); err != nil {
		t.Fatal(err)
	}

	// Another process overwrites the file with a newer mtime.
	future := time.Now().Add(time.Hour)
	path := filepath.Join(dir, "dns.json")
	if err := os.WriteFile(path, []byte(`{"v":2}`), 0664); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}

	if d.State("dns.json") != ShouldReload {
		t.Error("Modified file not ShouldReload")
	}

	if _, err := d.Load("dns.json"); err != nil {
		t.Fatal(err)
	}

	if d.State("dns.json") != Good {
		t.Error("File not Good after reload")
	}
}
