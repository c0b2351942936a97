package client

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected ErrorClass
	}{
		{http.StatusUnauthorized, ErrorClassAuth},
		{http.StatusForbidden, ErrorClassForbidden},
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusUnprocessableEntity, ErrorClassClient},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusServiceUnavailable, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyStatus(tt.status))
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		errorClass ErrorClass
		expected   bool
	}{
		{ErrorClassRateLimit, true},
		{ErrorClassAuth, false},
		{ErrorClassForbidden, false},
		{ErrorClassClient, false},
		{ErrorClassServer, false},
		{ErrorClassNetwork, false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, shouldRetry(tt.errorClass), "shouldRetry(%q)", tt.errorClass)
	}
}

func TestNewStatusError(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		sentinel error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidCredential},
		{"forbidden", http.StatusForbidden, ErrAccessDenied},
		{"server error", http.StatusBadGateway, nil},
		{"not found", http.StatusNotFound, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newStatusError(tt.status, "status line")

			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, ClassifyStatus(tt.status), err.ErrorClass)
			if tt.sentinel != nil {
				assert.ErrorIs(t, err, tt.sentinel)
			} else {
				assert.NoError(t, err.Unwrap())
			}
		})
	}
}

func TestUpstreamError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *UpstreamError
		expected string
	}{
		{
			name: "with wrapped error",
			err: &UpstreamError{
				StatusCode: 401,
				ErrorClass: ErrorClassAuth,
				Message:    "401 Unauthorized",
				Err:        ErrInvalidCredential,
			},
			expected: "teamtailor auth error (status 401): 401 Unauthorized: invalid API credential",
		},
		{
			name: "without wrapped error",
			err: &UpstreamError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "500 Internal Server Error",
			},
			expected: "teamtailor server error (status 500): 500 Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUpstreamError_As(t *testing.T) {
	wrapped := fmt.Errorf("fetch: %w", newStatusError(http.StatusBadGateway, "502 Bad Gateway"))

	var upstream *UpstreamError
	assert.True(t, errors.As(wrapped, &upstream))
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, ErrorClassServer, classOf(wrapped))
	assert.Equal(t, ErrorClass(""), classOf(errors.New("plain")))
}
