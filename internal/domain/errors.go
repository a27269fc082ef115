package domain

import (
	"fmt"
	"strings"
)

// ConfigurationError is returned when required settings are missing or
// invalid. It is fatal and reported before any work starts.
type ConfigurationError struct {
	Missing []string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	var parts []string
	if len(e.Missing) > 0 {
		parts = append(parts, fmt.Sprintf("missing required settings: %s", strings.Join(e.Missing, ", ")))
	}
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if len(parts) == 0 {
		return "invalid configuration"
	}
	return strings.Join(parts, "; ")
}

// TransportError means a remote service could not be reached or the
// exchange did not complete.
type TransportError struct {
	Service string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// APIError is a non-success response from the image generation service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini api error: %d - %s", e.StatusCode, e.Body)
}

// UploadError is a non-success response from the object store.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed: %d - %s", e.StatusCode, e.Body)
}

// NoImageDataError means the generation service answered successfully but
// no response part carried inline image data. Text holds whatever text
// the model returned instead.
type NoImageDataError struct {
	Text string
}

func (e *NoImageDataError) Error() string {
	if e.Text == "" {
		return "no image data in gemini response"
	}
	return fmt.Sprintf("no image data in gemini response (model replied with text: %q)", truncate(e.Text, 120))
}

// TextOnly reports whether the model returned text instead of an image.
func (e *NoImageDataError) TextOnly() bool {
	return strings.TrimSpace(e.Text) != ""
}

// UnknownIdentifierError is returned when an identifier is not in the catalog.
type UnknownIdentifierError struct {
	ID string
}

func (e *UnknownIdentifierError) Error() string {
	return fmt.Sprintf("unknown identifier: %s", e.ID)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
