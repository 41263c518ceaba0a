package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

var (
	ErrTransient        = errors.New("transient fetch error")
	ErrPermanent        = errors.New("permanent fetch error")
	ErrNotFound         = errors.New("not found")
	ErrAmbiguousMatch   = errors.New("ambiguous match")
	ErrNoMatch          = errors.New("no matching candidate")
	ErrInsufficientData = errors.New("insufficient data")
	ErrConfiguration    = errors.New("configuration error")
)

// FetchError is a classified provider failure. Kind is ErrTransient or
// ErrPermanent and decides whether the orchestrator retries.
type FetchError struct {
	Provider   string
	Kind       error
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Kind.Error())
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, ": http %d", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Transient tags err as retryable.
func Transient(provider string, err error) error {
	return &FetchError{Provider: provider, Kind: ErrTransient, Err: err}
}

// Permanent tags err as not retryable.
func Permanent(provider string, err error) error {
	return &FetchError{Provider: provider, Kind: ErrPermanent, Err: err}
}

// NotFound reports that the provider has no entry for the query.
func NotFound(provider, detail string) error {
	return &FetchError{Provider: provider, Kind: ErrPermanent, Err: fmt.Errorf("%w: %s", ErrNotFound, detail)}
}

// StatusError classifies an unexpected HTTP status. 408, 425, 429 and 5xx are
// transient; everything else is permanent.
func StatusError(provider string, code int, retryAfter time.Duration) error {
	kind := ErrPermanent
	switch {
	case code == http.StatusRequestTimeout, code == http.StatusTooEarly, code == http.StatusTooManyRequests:
		kind = ErrTransient
	case code >= 500:
		kind = ErrTransient
	}
	var cause error
	if code == http.StatusNotFound || code == http.StatusGone {
		cause = ErrNotFound
	}
	return &FetchError{Provider: provider, Kind: kind, StatusCode: code, RetryAfter: retryAfter, Err: cause}
}

// ClassifyError wraps a transport-level error. Timeouts and connection
// failures are transient; a cancelled context is returned unchanged.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient(provider, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient(provider, err)
	}
	msg := strings.ToLower(err.Error())
	for _, token := range []string{"connection reset", "connection refused", "eof", "timeout", "temporary failure"} {
		if strings.Contains(msg, token) {
			return Transient(provider, err)
		}
	}
	return Permanent(provider, err)
}

// IsTransient reports whether err should be retried.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// ParseError reports a payload the provider returned but that could not be
// understood, typically a scraped page whose layout changed.
type ParseError struct {
	Provider string
	Detail   string
	Err      error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("%s: parse response: %s", e.Provider, e.Detail)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrPermanent}
	}
	return []error{ErrPermanent, e.Err}
}

// FailureReason renders err for storage on a failed record.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline exceeded: " + err.Error()
	case errors.Is(err, context.Canceled):
		return "cancelled: " + err.Error()
	default:
		return err.Error()
	}
}
