package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestIndexLoadErrorMatchesSentinel(t *testing.T) {
	err := NewIndexLoadError("it", "/it/search.json", "status 404", nil)
	wrapped := fmt.Errorf("searching: %w", err)

	if !errors.Is(wrapped, ErrIndexLoad) {
		t.Fatal("expected wrapped IndexLoadError to match ErrIndexLoad")
	}
	var target *IndexLoadError
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to find IndexLoadError")
	}
	if target.Lang != "it" {
		t.Errorf("expected lang it, got %q", target.Lang)
	}
}

func TestIndexLoadErrorUnwrapsCause(t *testing.T) {
	err := NewIndexLoadError("en", "/en/search.json", "network error", io.ErrUnexpectedEOF)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected cause to be reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "network error") {
		t.Errorf("expected reason in message, got %q", err.Error())
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"invalid input", fmt.Errorf("q: %w", ErrInvalidInput), http.StatusBadRequest},
		{"unknown language", ErrUnknownLanguage, http.StatusBadRequest},
		{"rate limited", ErrRateLimited, http.StatusTooManyRequests},
		{"index load", NewIndexLoadError("it", "x", "y", nil), http.StatusBadGateway},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"other", io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HTTPStatusCode(tt.err); got != tt.want {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}
