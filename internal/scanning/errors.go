package scanning

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the extraction pipeline. Match them with errors.Is.
var (
	ErrConfiguration       = errors.New("scanner is not configured")
	ErrEmptyInput          = errors.New("image data is empty")
	ErrTransport           = errors.New("transport failure")
	ErrUpstream            = errors.New("upstream returned an error status")
	ErrEmptyUpstreamResult = errors.New("upstream returned no usable text")
	ErrMalformedExtraction = errors.New("extracted text is not a JSON object")
)

// ConfigError reports missing or invalid scanner configuration.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s is required", ErrConfiguration, e.Field)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError wraps network, timeout and cancellation failures.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", ErrTransport, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// UpstreamError carries a non-2xx response from the inference service.
// Body is for diagnostics only and must not be shown to end users.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s (status %d): %s", ErrUpstream, e.StatusCode, e.Body)
}

func (e *UpstreamError) Is(target error) bool {
	return target == ErrUpstream
}

// MalformedExtractionError is returned when the text embedded in the
// envelope cannot be decoded as the structured receipt object.
type MalformedExtractionError struct {
	Fragment string
	Err      error
}

func (e *MalformedExtractionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrMalformedExtraction, e.Err)
}

func (e *MalformedExtractionError) Unwrap() error {
	return e.Err
}

func (e *MalformedExtractionError) Is(target error) bool {
	return target == ErrMalformedExtraction
}
