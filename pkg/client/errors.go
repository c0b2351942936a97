package client

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrMissingCredential is returned before any request is made when no
	// usable API key was supplied.
	ErrMissingCredential = errors.New("missing API credential")

	// ErrInvalidCredential is returned when Teamtailor rejects the API key (401).
	ErrInvalidCredential = errors.New("invalid API credential")

	// ErrAccessDenied is returned when the API key lacks permission (403).
	ErrAccessDenied = errors.New("access denied")

	// ErrRateLimitExceeded is returned when every retry was answered with 429.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrContextCancelled is returned when the context is cancelled during a backoff wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassAuth represents 401 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassForbidden represents 403 responses.
	ErrorClassForbidden ErrorClass = "forbidden"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassClient represents any other 4xx response.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents transport failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents unparseable response bodies.
	ErrorClassDecode ErrorClass = "decode"
)

// UpstreamError is a non-success response from the Teamtailor API.
type UpstreamError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("teamtailor %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("teamtailor %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps a non-success HTTP status to an ErrorClass.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized:
		return ErrorClassAuth
	case status == http.StatusForbidden:
		return ErrorClassForbidden
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 500:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// newStatusError builds the error for a non-success response.
// 401 and 403 wrap their sentinel so callers can use errors.Is.
func newStatusError(status int, message string) *UpstreamError {
	class := ClassifyStatus(status)
	err := &UpstreamError{
		StatusCode: status,
		ErrorClass: class,
		Message:    message,
	}
	switch class {
	case ErrorClassAuth:
		err.Err = ErrInvalidCredential
	case ErrorClassForbidden:
		err.Err = ErrAccessDenied
	}
	return err
}

// shouldRetry determines if an error class is retried. Only rate limiting is
// transient; every other failure is returned to the caller immediately.
func shouldRetry(errorClass ErrorClass) bool {
	return errorClass == ErrorClassRateLimit
}

// classOf returns the ErrorClass carried by err, if any.
func classOf(err error) ErrorClass {
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return upstream.ErrorClass
	}
	return ""
}
