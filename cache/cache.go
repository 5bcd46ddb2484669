// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

// Package cache implements caching of RDAP responses.
//
// Responses are cached on disk, one file per query URL. A cache file holds
// one line of JSON HTTPData (the response metadata), a literal "---"
// separator line, then the original response body. Expiry honours the
// server's Cache-Control max-age and Expires hints, falling back to a caller
// supplied maximum age.
package cache

import (
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

const (
	DefaultCacheDirName = ".openrdap"

	// DefaultMaxAge applies when the server sent no caching hints.
	DefaultMaxAge = time.Hour * 24
)

// A ResponseCache is a disk cache of RDAP responses, keyed by query URL.
type ResponseCache struct {
	// Dir is the cache directory. Files are named by percent-encoding the
	// query URL and appending ".cache".
	Dir string

	// MaxAge is the fallback expiry for responses without caching hints.
	MaxAge time.Duration
}

// NewResponseCache creates a ResponseCache in the default directory
// ($HOME/.openrdap/responses).
func NewResponseCache() *ResponseCache {
	dir, err := homedir.Dir()
	if err != nil {
		panic("Can't determine your home directory")
	}

	return &ResponseCache{
		Dir:    filepath.Join(dir, DefaultCacheDirName, "responses"),
		MaxAge: DefaultMaxAge,
	}
}

// InitDir creates the cache directory if missing. Returns true if the
// directory was created.
func (c *ResponseCache) InitDir() (bool, error) {
	fileInfo, err := os.Stat(c.Dir)
	if err == nil {
		if fileInfo.IsDir() {
			return false, nil
		}

		return false, errors.New("cache dir is not a dir")
	}

	if os.IsNotExist(err) {
		return true, os.MkdirAll(c.Dir, 0775)
	}

	return false, err
}

// cacheFileName maps a query URL to its cache file name: the percent-encoded
// URL with a ".cache" suffix.
func cacheFileName(queryURL string) string {
	return url.QueryEscape(queryURL) + ".cache"
}

func (c *ResponseCache) path(queryURL string) string {
	return filepath.Join(c.Dir, cacheFileName(queryURL))
}

// Save writes a response to the cache, keyed by |queryURL|.
//
// Responses whose Cache-Control forbids caching (no-store, no-cache) are
// silently skipped. If |selfLink| is non-empty and differs from the query
// URL, a second cache file keyed by the self link is written, so later
// queries arriving via the object's canonical URL hit too.
func (c *ResponseCache) Save(queryURL string, data *HTTPData, body string, selfLink string) error {
	if !data.ShouldCache() {
		return nil
	}

	if _, err := c.InitDir(); err != nil {
		return err
	}

	contents, err := data.ToLines(body)
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.path(queryURL), []byte(contents), 0664); err != nil {
		return err
	}

	if selfLink != "" && selfLink != queryURL {
		if err := os.WriteFile(c.path(selfLink), []byte(contents), 0664); err != nil {
			return err
		}
	}

	return nil
}

// Load reads a fresh cached response for |queryURL|.
//
// Returns ok=false when no cache entry exists or the entry has expired.
func (c *ResponseCache) Load(queryURL string) (data *HTTPData, body string, ok bool) {
	contents, err := os.ReadFile(c.path(queryURL))
	if err != nil {
		return nil, "", false
	}

	data, body, err = FromLines(string(contents))
	if err != nil {
		return nil, "", false
	}

	if data.IsExpired(c.MaxAge) {
		return nil, "", false
	}

	return data, body, true
}

// Expire removes the cache entry for |queryURL|, if any.
func (c *ResponseCache) Expire(queryURL string) error {
	err := os.Remove(c.path(queryURL))
	if os.IsNotExist(err) {
		return nil
	}

	return err
}
