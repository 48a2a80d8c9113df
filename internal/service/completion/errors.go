package completion

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a completion failure.
type Kind string

const (
	KindUnauthorized Kind = "unauthorized"
	KindRateLimited  Kind = "rate_limited"
	KindServerError  Kind = "server_error"
	KindHTTPStatus   Kind = "http_status"
	KindDecode       Kind = "decode"
	KindConnectivity Kind = "connectivity"
	KindTimeout      Kind = "timeout"
	KindUnknown      Kind = "unknown"
)

// Error is returned by every Client on failure.
type Error struct {
	Kind       Kind
	StatusCode int // set for HTTP status failures
	Err        error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("completion %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("completion %s (status %d)", e.Kind, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("completion %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("completion %s", e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// FromStatus maps a non-2xx HTTP status to an Error.
func FromStatus(code int, err error) *Error {
	kind := KindHTTPStatus
	switch {
	case code == http.StatusUnauthorized:
		kind = KindUnauthorized
	case code == http.StatusTooManyRequests:
		kind = KindRateLimited
	case code >= 500 && code <= 599:
		kind = KindServerError
	}
	return &Error{Kind: kind, StatusCode: code, Err: err}
}

// Classify turns an arbitrary transport or decode error into an *Error.
// Errors that already are *Error pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr
	}

	return &Error{Kind: kindOf(err), Err: err}
}

// KindOf reports the kind of err, or "" for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return Classify(err).Kind
}

func kindOf(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var (
		syntaxErr    *json.SyntaxError
		typeErr      *json.UnmarshalTypeError
		dnsErr       *net.DNSError
		opErr        *net.OpError
		certErr      *tls.CertificateVerificationError
		authorityErr x509.UnknownAuthorityError
		hostErr      x509.HostnameError
		invalidErr   x509.CertificateInvalidError
		recordErr    tls.RecordHeaderError
	)
	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr), errors.Is(err, io.ErrUnexpectedEOF):
		return KindDecode
	case errors.As(err, &dnsErr), errors.As(err, &opErr),
		errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return KindConnectivity
	case errors.As(err, &certErr), errors.As(err, &authorityErr), errors.As(err, &hostErr),
		errors.As(err, &invalidErr), errors.As(err, &recordErr):
		return KindConnectivity
	}
	return KindUnknown
}
