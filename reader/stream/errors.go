package stream

import (
	"fmt"
)

// TransportError reports a failed connection attempt or a stream that ended.
// All transport errors are retried by the supervisor.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("stream returned HTTP %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("stream transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// CloseReason tells the supervisor what to do after a session ends.
type CloseReason int

const (
	// ReasonRetryable means the connection may be attempted again after a backoff.
	ReasonRetryable CloseReason = iota
	// ReasonFatal means retrying cannot help; the error goes back to the caller.
	ReasonFatal
	// ReasonStopped means the caller asked the session to end.
	ReasonStopped
)

func (r CloseReason) String() string {
	switch r {
	case ReasonRetryable:
		return "retryable"
	case ReasonFatal:
		return "fatal"
	case ReasonStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Result describes how one session ended.
type Result struct {
	Reason          CloseReason
	Err             error
	FramesProcessed int
	RecordsApplied  int
}
