package plugin

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a source failure for the orchestrator's tallying.
type ErrorKind string

const (
	// KindUnavailable covers transport and auth failures — retryable.
	KindUnavailable ErrorKind = "source_unavailable"
	// KindQuota means the provider signaled throttling back; the plugin
	// backs off locally, independent of the admission-control limiters.
	KindQuota ErrorKind = "source_quota_exceeded"
	// KindMalformed means the response could not be decoded. Fatal for
	// this fetch only.
	KindMalformed ErrorKind = "malformed_response"
)

// SourceError is a plugin-level failure. It is always confined to the one
// fetch that raised it; the run continues with the other plugins.
type SourceError struct {
	Source string
	Kind   ErrorKind
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the fetch that produced this error is worth
// another attempt. It feeds the resilience package's transient check, so
// retry policy sees the taxonomy without a custom predicate at every call
// site.
func (e *SourceError) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindQuota
}

// NewUnavailable wraps err as a retryable transport/auth failure.
func NewUnavailable(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindUnavailable, Err: err}
}

// NewQuotaExceeded wraps err as provider-side throttling.
func NewQuotaExceeded(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindQuota, Err: err}
}

// NewMalformed wraps err as an undecodable response.
func NewMalformed(source string, err error) *SourceError {
	return &SourceError{Source: source, Kind: KindMalformed, Err: err}
}

func kindOf(err error) (ErrorKind, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return "", false
}

// IsUnavailable reports whether err is a transport/auth source failure.
func IsUnavailable(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindUnavailable
}

// IsQuotaExceeded reports whether err is provider-side throttling.
func IsQuotaExceeded(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindQuota
}

// IsMalformed reports whether err is an undecodable-response failure.
func IsMalformed(err error) bool {
	kind, ok := kindOf(err)
	return ok && kind == KindMalformed
}

// IsRetryable reports whether the fetch that produced err is worth another
// attempt after a backoff.
func IsRetryable(err error) bool {
	kind, ok := kindOf(err)
	return ok && (kind == KindUnavailable || kind == KindQuota)
}
