package llm

import (
	"errors"
	"fmt"
)

// ConnectionError is a transport-level failure reaching the backend.
// It is the only error class the gateway retries.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("backend connection failed during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// StatusError is an application error reported by the backend
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// RetriesExhaustedError wraps the last error after every attempt failed
type RetriesExhaustedError struct {
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("backend unreachable after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a connection-class failure
func IsRetryable(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}
