package models

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind labels a failure for retry decisions and statistics.
type ErrorKind string

const (
	ErrorNetwork             ErrorKind = "network"
	ErrorTimeout             ErrorKind = "timeout"
	ErrorBlocked             ErrorKind = "blocked"
	ErrorCookieWall          ErrorKind = "cookie_wall"
	ErrorExtractionEmpty     ErrorKind = "extraction_empty"
	ErrorUnsupportedPlatform ErrorKind = "unsupported_platform"
	ErrorMalformedURL        ErrorKind = "malformed_url"
	ErrorNotFound            ErrorKind = "not_found"
	ErrorCancelled           ErrorKind = "cancelled"
	ErrorUnknown             ErrorKind = "unknown"
)

var (
	// ErrExtractionEmpty means the page lacks the expected repeating container.
	ErrExtractionEmpty = errors.New("extraction empty")
	// ErrUnsupportedPlatform is returned for platforms without an extractor.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrMalformedURL is returned when a URL is not absolute or cannot be parsed.
	ErrMalformedURL = errors.New("malformed url")
	// ErrNotFound indicates the target resource does not exist (HTTP 404/410).
	ErrNotFound = errors.New("not found")
)

// NetworkError indicates a connectivity failure or server-side error.
type NetworkError struct {
	Err error
}

func (e NetworkError) Error() string {
	return fmt.Errorf("network: %w", e.Err).Error()
}

func (e NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError indicates the fetch did not complete in time.
type TimeoutError struct {
	Err error
}

func (e TimeoutError) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e TimeoutError) Unwrap() error {
	return e.Err
}

// BlockedError indicates the site served an anti-bot challenge.
type BlockedError struct {
	Reason string
}

func (e BlockedError) Error() string {
	return "blocked: " + e.Reason
}

// KindOf maps an error onto the failure taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorUnknown
	}
	var timeout TimeoutError
	if errors.As(err, &timeout) {
		return ErrorTimeout
	}
	var blocked BlockedError
	if errors.As(err, &blocked) {
		return ErrorBlocked
	}
	var network NetworkError
	if errors.As(err, &network) {
		return ErrorNetwork
	}
	switch {
	case errors.Is(err, ErrExtractionEmpty):
		return ErrorExtractionEmpty
	case errors.Is(err, ErrUnsupportedPlatform):
		return ErrorUnsupportedPlatform
	case errors.Is(err, ErrMalformedURL):
		return ErrorMalformedURL
	case errors.Is(err, ErrNotFound):
		return ErrorNotFound
	case errors.Is(err, context.Canceled):
		return ErrorCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	}
	return ErrorUnknown
}

// Transient reports whether a failure of this kind may be retried.
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrorNetwork, ErrorTimeout, ErrorBlocked, ErrorUnknown:
		return true
	default:
		return false
	}
}
