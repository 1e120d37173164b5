package backend

import (
	"errors"
	"fmt"
)

// The client distinguishes failure classes so the UI can show the right
// notification: a timeout suggests retrying with a smaller image, a
// connection error suggests checking the backend, and a logical error
// carries the server's own text.

// ErrTimeout is returned when the client-side deadline elapses before
// the backend answers.
var ErrTimeout = errors.New("request timed out, try a smaller image or different settings")

// ConnectionError wraps a network-level failure reaching the backend.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("could not reach processing server: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SubmissionError is a non-2xx HTTP response from a submission call.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("processing server returned status %d", e.StatusCode)
}

// LogicalError is an HTTP 200 response whose payload reports failure.
// It must be treated exactly like a SubmissionError, never as success.
type LogicalError struct {
	Message string
}

func (e *LogicalError) Error() string {
	if e.Message == "" {
		return "processing failed"
	}
	return e.Message
}

// DownloadError is a failure fetching or storing the processed binary.
type DownloadError struct {
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DownloadError) Unwrap() error { return e.Err }
