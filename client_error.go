// OpenRDAP
// Copyright 2017 Tom Harwood
// MIT License, see the LICENSE file.

package rdap

import (
	"errors"
	"fmt"

	"github.com/openrdap/rdapkit/bootstrap"
	"github.com/openrdap/rdapkit/cache"
)

// A ClientErrorType classifies errors returned by the Client.
//
// The classes partition the CLI exit code space, see ExitCode().
type ClientErrorType int

const (
	// Internal consistency errors.
	InternalError ClientErrorType = iota

	// Filesystem and cache I/O errors.
	IOError

	// TCP/TLS/HTTP transport errors, including timeouts. Not retried
	// internally.
	TransportError

	// Non-2xx/3xx/429 HTTP status from the server.
	ProtocolStatusError

	// The server returned 429 and the retry budget was exhausted.
	RateLimitError

	// The response body is not JSON, or is JSON but not a recognised RDAP
	// document.
	ParsingError

	// Bootstrap registry failures.
	BootstrapError

	// The query itself is at fault.
	UserError

	// The server returned a valid RDAP response of the wrong type.
	WrongResponseType
)

// Sentinel errors returned for invalid user input.
var (
	ErrInvalidQueryValue  = errors.New("invalid query value")
	ErrAmbiguousQueryType = errors.New("ambiguous query type")
	ErrDomainName         = errors.New("invalid domain name")
	ErrLinkTargetNotFound = errors.New("link target not found")
)

// Sentinel errors returned for bootstrap failures, re-exported from the
// bootstrap package.
var (
	// No network access and no cached registry available.
	ErrBootstrapUnavailable = bootstrap.ErrUnavailable

	// No key in any bootstrap registry matches the query.
	ErrBootstrapNotFound = bootstrap.ErrNotFound

	// The registry document is malformed.
	ErrInvalidBootstrap = bootstrap.ErrMalformed
)

// A ClientError is an error returned by the Client.
//
// HTTP holds the response metadata when the error occurred after a response
// was received (e.g. a protocol status error), otherwise nil.
type ClientError struct {
	Type ClientErrorType
	Text string

	HTTP *cache.HTTPData
	Err  error
}

func (c *ClientError) Error() string {
	if c.Err != nil && c.Text == "" {
		return c.Err.Error()
	}

	return c.Text
}

func (c *ClientError) Unwrap() error {
	return c.Err
}

func clientErrorf(errType ClientErrorType, format string, args ...interface{}) *ClientError {
	return &ClientError{
		Type: errType,
		Text: fmt.Sprintf(format, args...),
	}
}

// ExitCode maps an error to the CLI exit code space:
//
//	0       success
//	10-19   internal errors
//	40-49   I/O errors
//	60-69   protocol errors
//	70-79   bootstrap errors
//	100-199 RDAP/JSON errors
//	200-249 user errors
//	250     internal consistency error
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch {
	case errors.Is(err, ErrInvalidQueryValue),
		errors.Is(err, ErrAmbiguousQueryType),
		errors.Is(err, ErrDomainName),
		errors.Is(err, ErrLinkTargetNotFound):
		return 200
	case errors.Is(err, ErrBootstrapUnavailable):
		return 70
	case errors.Is(err, ErrBootstrapNotFound):
		return 71
	case errors.Is(err, ErrInvalidBootstrap):
		return 72
	}

	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		switch clientErr.Type {
		case IOError:
			return 40
		case TransportError:
			return 60
		case ProtocolStatusError:
			return 61
		case RateLimitError:
			return 62
		case BootstrapError:
			return 70
		case ParsingError:
			return 100
		case WrongResponseType:
			return 101
		case UserError:
			return 200
		case InternalError:
			return 250
		}
	}

	return 10
}
