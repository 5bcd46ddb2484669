// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/openrdap/rdapkit/bootstrap"
	"github.com/openrdap/rdapkit/cache"
)

const (
	// Version is appended to the User-Agent of outgoing requests.
	Version = "0.9.0"

	rdapMediaType = "application/rdap+json"
	acceptHeader  = rdapMediaType + ", application/json"
)

// ClientConfig configures a Client's HTTP behaviour.
//
// The zero value is usable: HTTPS-only, redirects followed, 60s timeout, one
// 429 retry.
type ClientConfig struct {
	// UserAgentSuffix is appended to the User-Agent header, so library users
	// may identify their programs.
	UserAgentSuffix string

	// AllowHTTP permits plain http:// servers. Off by default.
	AllowHTTP bool

	// AcceptInvalidHostnames disables TLS hostname verification.
	AcceptInvalidHostnames bool

	// AcceptInvalidCertificates disables TLS certificate verification.
	AcceptInvalidCertificates bool

	// DisableRedirects stops the client following HTTP redirects.
	DisableRedirects bool

	// Host overrides the Host header of outgoing requests.
	Host string

	// Origin sets the Origin header of outgoing requests.
	Origin string

	// Timeout is the total budget for one request: connection plus reading
	// all the data. Default 60s.
	Timeout time.Duration

	// MaxRetries bounds the number of retries after HTTP 429 responses.
	// Default 1.
	MaxRetries int

	// MaxRetrySecs clamps the server's Retry-After hint. Default 120.
	MaxRetrySecs int

	// DefRetrySecs is the wait used when the server gives no usable
	// Retry-After hint. Default 60.
	DefRetrySecs int
}

func (c *ClientConfig) withDefaults() ClientConfig {
	config := ClientConfig{}
	if c != nil {
		config = *c
	}

	if config.Timeout == 0 {
		config.Timeout = time.Second * 60
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 1
	}
	if config.MaxRetrySecs == 0 {
		config.MaxRetrySecs = 120
	}
	if config.DefRetrySecs == 0 {
		config.DefRetrySecs = 60
	}

	return config
}

// Client implements an RDAP client.
//
// The client executes RDAP requests and returns the responses as Go values.
// One Client per process is sufficient and recommended: the underlying HTTP
// connection pool is held by the Client.
//
// Quick usage:
//
//	client := rdap.NewClient(nil)
//	domain, err := client.QueryDomain("google.cz")
//
//	if err == nil {
//		fmt.Printf("Handle=%s Domain=%s\n", domain.Handle, domain.LDHName)
//	}
//
// Normal usage:
//
//	req := &rdap.Request{
//		Type:  rdap.DomainRequest,
//		Query: "example.cz",
//	}
//
//	client := rdap.NewClient(nil)
//	resp, err := client.Do(req)
//
//	if domain, ok := resp.Object.(*rdap.Domain); ok {
//		fmt.Printf("Handle=%s Domain=%s\n", domain.Handle, domain.LDHName)
//	}
type Client struct {
	HTTP      *http.Client
	Bootstrap *bootstrap.Client

	// Cache enables disk caching of responses. Nil disables caching.
	Cache *cache.ResponseCache

	// ProcessRedactions enables the RFC 9537 redaction transforms on
	// decoded responses.
	ProcessRedactions bool

	// Optional callback function for verbose messages.
	Verbose func(text string)

	config ClientConfig
}

// A Response is the result of executing a Request.
type Response struct {
	// Object is the decoded RDAP document.
	Object RDAPObject

	// BootstrapAnswer describes the bootstrap lookup performed, or nil if
	// the request carried an explicit server.
	BootstrapAnswer *bootstrap.Answer

	// HTTP lists the HTTP exchanges made, in order. Referral walking
	// appends to this list.
	HTTP []*HTTPResponse

	// FromCache is true when the response body was served from the response
	// cache without network access.
	FromCache bool
}

// An HTTPResponse records one HTTP exchange.
type HTTPResponse struct {
	URL      string
	Data     *cache.HTTPData
	Body     []byte
	Duration time.Duration

	// Number of 429 retries performed for this exchange.
	Retries int
}

// NewClient creates a Client. A nil |config| selects the defaults.
func NewClient(config *ClientConfig) *Client {
	cfg := config.withDefaults()

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.AcceptInvalidCertificates || cfg.AcceptInvalidHostnames,
		},
	}

	httpClient := &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	if cfg.DisableRedirects {
		httpClient.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	return &Client{
		HTTP:      httpClient,
		Bootstrap: bootstrap.NewClient(),
		config:    cfg,
	}
}

func (c *Client) verbose(text string) {
	if c.Verbose != nil {
		c.Verbose(text)
	}
}

func (c *Client) userAgent() string {
	ua := "rdapkit/" + Version
	if c.config.UserAgentSuffix != "" {
		ua += " " + c.config.UserAgentSuffix
	}

	return ua
}

// Do executes a Request, returning the decoded Response.
//
// If the Request has no Server, the server is determined by IANA bootstrap.
// Errors are returned as *ClientError, or as one of the Err… sentinels for
// bootstrap/user errors.
func (c *Client) Do(req *Request) (*Response, error) {
	if req == nil {
		return nil, clientErrorf(InternalError, "nil Request")
	}

	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: time.Second * 60}
	}

	if c.Bootstrap == nil {
		c.Bootstrap = bootstrap.NewClient()
	}

	// Zero-value Clients get the default limits too.
	c.config = (&c.config).withDefaults()

	resp := &Response{}

	// Determine the base URL.
	var base string
	if req.Server != nil {
		base = req.Server.String()
	} else {
		registryType, ok := bootstrapTypeFor(req.Type)
		if !ok {
			return nil, clientErrorf(UserError,
				"cannot run query type %q without a server URL, the server must be specified",
				req.Type)
		}

		c.verbose(fmt.Sprintf("client: bootstrapping %q in the %s registry", req.Query, registryType))

		question := &bootstrap.Question{
			RegistryType: registryType,
			Query:        req.Query,
		}

		answer, err := c.Bootstrap.Lookup(question.WithContext(req.Context()))
		if err != nil {
			return nil, err
		}

		base, err = answer.PreferredURL()
		if err != nil {
			return nil, err
		}

		resp.BootstrapAnswer = answer
	}

	queryURL, err := req.URL(base)
	if err != nil {
		return nil, err
	}

	return c.do(req.Context(), queryURL, resp)
}

// do fetches and decodes |queryURL| into |resp|.
func (c *Client) do(ctx context.Context, queryURL string, resp *Response) (*Response, error) {
	httpResp, err := c.fetch(ctx, queryURL)
	if httpResp != nil {
		resp.HTTP = append(resp.HTTP, httpResp)
	}
	if err != nil {
		// Error statuses usually carry an RDAP error document; surface it
		// alongside the error.
		if httpResp != nil && len(httpResp.Body) > 0 {
			if object, decodeErr := DecodeResponse(httpResp.Body); decodeErr == nil {
				if rdapError, ok := object.(*Error); ok {
					resp.Object = rdapError
				}
			}
		}

		return resp, err
	}

	body := httpResp.Body
	if c.ProcessRedactions {
		if redacted, err := ApplyRedactions(body); err == nil {
			body = redacted
		}
	}

	object, err := DecodeResponse(body)
	if err != nil {
		if clientErr, ok := err.(*ClientError); ok {
			clientErr.HTTP = httpResp.Data
		}
		return resp, err
	}

	if c.ProcessRedactions {
		object = SimplifyRedactions(object)
	}

	resp.Object = object
	resp.FromCache = httpResp.Duration == 0

	// Cache the response, keyed by the query URL and by the object's self
	// link when they differ.
	if c.Cache != nil && httpResp.Duration > 0 {
		selfLink := SelfLink(object)
		if err := c.Cache.Save(queryURL, httpResp.Data, string(httpResp.Body), selfLink); err != nil {
			c.verbose(fmt.Sprintf("client: cache write failed: %s", err))
		}
	}

	return resp, nil
}

// fetch implements the HTTP transport: one GET of |queryURL|, retried on
// HTTP 429 according to the Retry-After header.
//
// Returns the HTTP metadata and body on success. Non-2xx statuses other than
// 429 are returned as *ClientError with the metadata preserved.
func (c *Client) fetch(ctx context.Context, queryURL string) (*HTTPResponse, error) {
	parsed, err := url.Parse(queryURL)
	if err != nil {
		return nil, clientErrorf(UserError, "invalid query URL %q", queryURL)
	}

	if parsed.Scheme != "https" && !c.config.AllowHTTP {
		return nil, clientErrorf(UserError,
			"refusing non-HTTPS URL %q (enable AllowHTTP to permit)", queryURL)
	}

	// Serve from the response cache when possible.
	if c.Cache != nil {
		if data, body, ok := c.Cache.Load(queryURL); ok {
			c.verbose(fmt.Sprintf("client: cache hit for %s", queryURL))

			return &HTTPResponse{
				URL:  queryURL,
				Data: data,
				Body: []byte(body),
			}, nil
		}
	}

	start := time.Now()
	retries := 0

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, queryURL, nil)
		if err != nil {
			return nil, &ClientError{Type: TransportError, Err: err}
		}

		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("User-Agent", c.userAgent())
		if c.config.Host != "" {
			req.Host = c.config.Host
		}
		if c.config.Origin != "" {
			req.Header.Set("Origin", c.config.Origin)
		}

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, &ClientError{
				Type: TransportError,
				Text: fmt.Sprintf("fetching %s: %s", queryURL, err),
				Err:  err,
			}
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, &ClientError{Type: TransportError, Err: err}
		}

		httpData := httpDataFromResponse(resp, parsed, queryURL)

		if resp.StatusCode == http.StatusTooManyRequests && retries < c.config.MaxRetries {
			wait := c.retryWait(httpData.RetryAfter)
			c.verbose(fmt.Sprintf("client: server says too many requests, waiting %s", wait))

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, &ClientError{Type: TransportError, Err: ctx.Err()}
			}

			retries++
			continue
		}

		httpResp := &HTTPResponse{
			URL:      queryURL,
			Data:     httpData,
			Body:     body,
			Duration: time.Since(start),
			Retries:  retries,
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return httpResp, nil
		case resp.StatusCode == http.StatusTooManyRequests:
			return httpResp, &ClientError{
				Type: RateLimitError,
				Text: fmt.Sprintf("server rate-limited %s and the retry budget is exhausted", queryURL),
				HTTP: httpData,
			}
		default:
			return httpResp, &ClientError{
				Type: ProtocolStatusError,
				Text: fmt.Sprintf("server returned HTTP status %d for %s", resp.StatusCode, queryURL),
				HTTP: httpData,
			}
		}
	}
}

// retryWait turns a Retry-After header value into a sleep duration.
//
// HTTP-dates become max(0, date-now); positive integers are delta seconds;
// anything else falls back to DefRetrySecs. The result is clamped to
// [1, MaxRetrySecs] seconds.
func (c *Client) retryWait(retryAfter string) time.Duration {
	secs := int64(c.config.DefRetrySecs)

	if retryAfter != "" {
		if date, err := cache.ParseHTTPDate(retryAfter); err == nil {
			secs = int64(time.Until(date).Seconds())
			if secs < 0 {
				secs = 0
			}
		} else if parsed, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && parsed > 0 {
			secs = parsed
		}
	}

	if secs < 1 {
		secs = 1
	}
	if secs > int64(c.config.MaxRetrySecs) {
		secs = int64(c.config.MaxRetrySecs)
	}

	return time.Duration(secs) * time.Second
}

func httpDataFromResponse(resp *http.Response, parsed *url.URL, queryURL string) *cache.HTTPData {
	contentLength := int64(0)
	if resp.ContentLength > 0 {
		contentLength = resp.ContentLength
	}

	return &cache.HTTPData{
		StatusCode:               resp.StatusCode,
		Scheme:                   parsed.Scheme,
		Host:                     parsed.Host,
		RequestURI:               queryURL,
		ContentType:              resp.Header.Get("Content-Type"),
		ContentLength:            contentLength,
		Expires:                  resp.Header.Get("Expires"),
		CacheControl:             resp.Header.Get("Cache-Control"),
		Location:                 resp.Header.Get("Location"),
		AccessControlAllowOrigin: resp.Header.Get("Access-Control-Allow-Origin"),
		StrictTransportSecurity:  resp.Header.Get("Strict-Transport-Security"),
		RetryAfter:               resp.Header.Get("Retry-After"),
		Received:                 time.Now(),
	}
}

// bootstrapTypeFor maps a request type to the registry which can answer it.
func bootstrapTypeFor(requestType RequestType) (bootstrap.RegistryType, bool) {
	switch requestType {
	case DomainRequest, NameserverRequest:
		return bootstrap.DNS, true
	case IPv4Request, IPv4CIDRRequest:
		return bootstrap.IPv4, true
	case IPv6Request, IPv6CIDRRequest:
		return bootstrap.IPv6, true
	case AutnumRequest:
		return bootstrap.ASN, true
	case EntityRequest:
		return bootstrap.ObjectTag, true
	}

	return 0, false
}

func (c *Client) doQuickRequest(req *Request) (*Response, error) {
	ctx, cancelFunc := context.WithTimeout(context.Background(), time.Second*30)
	defer cancelFunc()

	req = req.WithContext(ctx)
	resp, err := c.Do(req)

	return resp, err
}

// QueryDomain makes an RDAP request for the |domain|.
//
// The timeout is 30s.
func (c *Client) QueryDomain(domain string) (*Domain, error) {
	resp, err := c.doQuickRequest(NewDomainRequest(domain))
	if err != nil {
		return nil, err
	}

	if domain, ok := resp.Object.(*Domain); ok {
		return domain, nil
	}

	return nil, clientError(WrongResponseType, "the server didn't return an RDAP Domain response")
}

// QueryAutnum makes an RDAP request for the Autonomous System Number (ASN)
// |autnum|, e.g. "AS2856" or "5400".
//
// The timeout is 30s.
func (c *Client) QueryAutnum(autnum string) (*Autnum, error) {
	asn, err := parseAutnum(autnum)
	if err != nil {
		return nil, ErrInvalidQueryValue
	}

	resp, err := c.doQuickRequest(NewAutnumRequest(asn))
	if err != nil {
		return nil, err
	}

	if autnum, ok := resp.Object.(*Autnum); ok {
		return autnum, nil
	}

	return nil, clientError(WrongResponseType, "the server didn't return an RDAP Autnum response")
}

// QueryIP makes an RDAP request for the IPv4/6 address |ip|, e.g. "192.0.2.0"
// or "2001:db8::".
//
// The timeout is 30s.
func (c *Client) QueryIP(ip string) (*IPNetwork, error) {
	req, err := NewAutoRequest(ip)
	if err != nil || (req.Type != IPv4Request && req.Type != IPv6Request) {
		return nil, ErrInvalidQueryValue
	}

	resp, err := c.doQuickRequest(req)
	if err != nil {
		return nil, err
	}

	if ipNet, ok := resp.Object.(*IPNetwork); ok {
		return ipNet, nil
	}

	return nil, clientError(WrongResponseType, "the server didn't return an RDAP IPNetwork response")
}

func clientError(errType ClientErrorType, text string) *ClientError {
	return &ClientError{Type: errType, Text: text}
}
