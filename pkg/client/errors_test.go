package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		code int
		want ErrorClass
	}{
		{http.StatusOK, ""},
		{http.StatusBadRequest, ErrorClassClient},
		{http.StatusNotFound, ErrorClassClient},
		{http.StatusTooManyRequests, ErrorClassRateLimit},
		{http.StatusInternalServerError, ErrorClassServer},
		{http.StatusBadGateway, ErrorClassServer},
		{http.StatusServiceUnavailable, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.code), func(t *testing.T) {
			if got := classifyStatus(tt.code); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{ErrorClassClient, false},
		{"", false},
	}

	for _, tt := range tests {
		if got := shouldRetry(tt.class); got != tt.want {
			t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
		}
	}
}

func TestAPIError(t *testing.T) {
	base := errors.New("connection refused")
	err := &APIError{
		Endpoint:   endpointProfile,
		ErrorClass: ErrorClassNetwork,
		Message:    "request failed",
		Err:        base,
	}

	if !errors.Is(err, base) {
		t.Error("APIError should unwrap to the underlying error")
	}
	if msg := err.Error(); !strings.Contains(msg, "network") || !strings.Contains(msg, "connection refused") {
		t.Errorf("Error() = %q", msg)
	}

	wrapped := fmt.Errorf("loading store: %w", &APIError{StatusCode: http.StatusNotFound, ErrorClass: ErrorClassClient})
	if !IsNotFound(wrapped) {
		t.Error("IsNotFound should see a wrapped 404")
	}
	if IsNotFound(err) || IsNotFound(nil) {
		t.Error("IsNotFound should be false for non-404 errors")
	}
	if got := classOf(wrapped); got != ErrorClassClient {
		t.Errorf("classOf() = %q, want client", got)
	}
	if got := classOf(base); got != "" {
		t.Errorf("classOf(plain error) = %q, want empty", got)
	}
}
