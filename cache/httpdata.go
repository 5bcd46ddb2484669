// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package cache

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// HTTPData records the metadata of a single HTTP response.
//
// It captures the headers RDAP clients care about (caching, rate limiting,
// CORS, redirects) together with the wall clock time the response was
// received. HTTPData values are attached to query results, stored in cache
// files, and kept alongside downloaded bootstrap registries.
type HTTPData struct {
	StatusCode    int    `json:"status_code"`
	Scheme        string `json:"scheme,omitempty"`
	Host          string `json:"host"`
	RequestURI    string `json:"request_uri,omitempty"`
	ContentType   string `json:"content_type,omitempty"`
	ContentLength int64  `json:"content_length,omitempty"`

	Expires      string `json:"expires,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`

	Location                 string `json:"location,omitempty"`
	AccessControlAllowOrigin string `json:"access_control_allow_origin,omitempty"`
	StrictTransportSecurity  string `json:"strict_transport_security,omitempty"`
	RetryAfter               string `json:"retry_after,omitempty"`

	// Wall clock time the response was received by the client.
	Received time.Time `json:"received"`
}

// Date layouts accepted for the Expires header. Servers are supposed to send
// RFC 2822 dates, a few send the RFC 1123 variant without a numeric zone.
var httpDateLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 -0700",
	"Mon, 2 Jan 2006 15:04:05 MST",
}

// ParseHTTPDate parses an HTTP header date in its common formats.
func ParseHTTPDate(value string) (time.Time, error) {
	for _, layout := range httpDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, errors.New("unparsable HTTP date")
}

// maxAgeFrom returns the max-age directive from a Cache-Control header value,
// or ok=false if the directive is absent or malformed.
func maxAgeFrom(cacheControl string) (secs int64, ok bool) {
	for _, directive := range strings.Split(cacheControl, ",") {
		directive = strings.TrimSpace(directive)

		if strings.HasPrefix(directive, "max-age=") {
			secs, err := strconv.ParseInt(strings.TrimPrefix(directive, "max-age="), 10, 64)
			if err != nil {
				return 0, false
			}

			return secs, true
		}
	}

	return 0, false
}

// IsExpired reports whether the response is older than allowed.
//
// A response is expired when the caller supplied |maxAge| has elapsed since
// Received. Otherwise a Cache-Control max-age directive, when present,
// decides; failing that, a parsable Expires date decides.
func (h *HTTPData) IsExpired(maxAge time.Duration) bool {
	now := time.Now()

	if !now.Before(h.Received.Add(maxAge)) {
		return true
	}

	if h.CacheControl != "" {
		if secs, ok := maxAgeFrom(h.CacheControl); ok {
			return !now.Before(h.Received.Add(time.Duration(secs) * time.Second))
		}
	}

	if h.Expires != "" {
		expires, err := ParseHTTPDate(h.Expires)
		if err != nil {
			return false
		}

		return !now.Before(expires)
	}

	return false
}

// ShouldCache reports whether the response may be written to a cache.
//
// Responses with a no-store or no-cache Cache-Control directive must not be
// cached.
func (h *HTTPData) ShouldCache() bool {
	for _, directive := range strings.Split(h.CacheControl, ",") {
		directive = strings.TrimSpace(directive)

		if directive == "no-store" || directive == "no-cache" {
			return false
		}
	}

	return true
}

// ToLines serialises the HTTPData and |body| in the cache file format: a
// single line of JSON, a "---" separator line, then the body verbatim.
func (h *HTTPData) ToLines(body string) (string, error) {
	header, err := json.Marshal(h)
	if err != nil {
		return "", err
	}

	return string(header) + "\n---\n" + body, nil
}

// FromLines parses the cache file format written by ToLines, returning the
// HTTPData header and the remaining body text.
func FromLines(contents string) (*HTTPData, string, error) {
	header, body, found := strings.Cut(contents, "\n---\n")
	if !found {
		return nil, "", errors.New("missing '---' separator")
	}

	data := &HTTPData{}
	if err := json.Unmarshal([]byte(header), data); err != nil {
		return nil, "", err
	}

	return data, body, nil
}
