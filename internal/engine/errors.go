package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrorClass tells the retry layer what to do with a failure.
type ErrorClass int

const (
	// Fatal errors propagate immediately.
	Fatal ErrorClass = iota
	// Retryable errors are retried with exponential backoff.
	Retryable
	// Reauth errors mean the credential is no longer accepted. The caller
	// refreshes the session once and repeats the operation.
	Reauth
)

func (c ErrorClass) String() string {
	switch c {
	case Retryable:
		return "retryable"
	case Reauth:
		return "reauth"
	default:
		return "fatal"
	}
}

var (
	ErrSessionExpired  = errors.New("session expired")
	ErrReauthExhausted = errors.New("session expired again after re-authentication")
	ErrLoginFailed     = errors.New("login failed")
	ErrMalformedPage   = errors.New("malformed page payload")
	ErrNoPlans         = errors.New("no usable search plans")
	ErrConfig          = errors.New("invalid configuration")
)

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http %d: %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// SessionExpiredError carries the domain-specific code that signalled expiry
// (HTTP 401, WeChat ret=200003, ...).
type SessionExpiredError struct {
	Code int
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired (code %d)", e.Code)
}

func (e *SessionExpiredError) Unwrap() error { return ErrSessionExpired }

// RemoteError is an application-level error reported inside a 200 response.
type RemoteError struct {
	Code      int
	Msg       string
	Transient bool
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote error %d: %s", e.Code, e.Msg)
}

// ValidationError reports a record or setting that can never succeed.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// transientSignatures are lowercase substrings of error messages produced by
// network stacks and SDKs that wrap them as plain strings.
var transientSignatures = []string{
	"econnreset",
	"etimedout",
	"enotfound",
	"econnrefused",
	"connection reset",
	"timeout",
	"network",
}

// Classify maps an error onto the retry taxonomy. Unknown errors are fatal.
func Classify(err error) ErrorClass {
	if err == nil {
		return Fatal
	}
	if errors.Is(err, context.Canceled) {
		return Fatal
	}
	if errors.Is(err, ErrReauthExhausted) || errors.Is(err, ErrLoginFailed) || errors.Is(err, ErrConfig) {
		return Fatal
	}
	if errors.Is(err, ErrSessionExpired) {
		return Reauth
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		return Fatal
	}

	var se *StatusError
	if errors.As(err, &se) {
		if IsRetryableStatus(se.Code) {
			return Retryable
		}
		return Fatal
	}

	var re *RemoteError
	if errors.As(err, &re) {
		if re.Transient {
			return Retryable
		}
		return Fatal
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Retryable
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return Retryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Retryable
	}

	msg := strings.ToLower(err.Error())
	for _, sig := range transientSignatures {
		if strings.Contains(msg, sig) {
			return Retryable
		}
	}
	return Fatal
}

// IsRetryableStatus returns true for HTTP status codes worth retrying.
func IsRetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
