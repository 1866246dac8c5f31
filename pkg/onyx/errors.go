package onyx

import (
	"errors"
	"fmt"
)

// ConfigError indicates the client was constructed with bad or missing
// credentials (domain, token). Never retried.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("onyx: config: %s", e.Reason)
}

// ClientError indicates a malformed call on the caller's side, such as a
// missing project or analysis identifier. Never retried.
type ClientError struct {
	Reason string
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("onyx: client: %s", e.Reason)
}

// HTTPError is an error response reported by the Onyx service. Body holds
// the decoded error document when the service returned one.
type HTTPError struct {
	StatusCode int
	Body       map[string]any
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("onyx: http %d: %v", e.StatusCode, e.Body)
}

// ConnectionError wraps a transport-level failure reaching the service.
// This is the only error kind the retry policy treats as transient.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("onyx: connection: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Transient marks connection failures as safe to retry; the default retry
// classifier picks this up without any Onyx-specific wiring.
func (e *ConnectionError) Transient() bool {
	return true
}

// IsConnectionError reports whether err (or anything in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var ce *ConnectionError
	return errors.As(err, &ce)
}
