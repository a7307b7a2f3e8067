package types

import (
	"errors"
	"fmt"
)

// ErrRetriable marks transient failures (rate limits, timeouts) whose
// retry budget has been exhausted. Callers may safely retry the whole
// request later.
var ErrRetriable = errors.New("retriable failure")

// ErrDimensionMismatch indicates a corpus-consistency bug: an embedding
// whose length does not match the configured vector dimension. Fatal,
// never retried.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// EmbeddingError wraps a failure to obtain embeddings from the
// provider after the retry budget is spent.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding provider: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// SynthesisError is a permanent validation failure: the completion
// provider produced output that could not be parsed into a usable
// response even after a corrective retry.
type SynthesisError struct {
	Reason string
	Err    error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("synthesis: %s", e.Reason)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Retriable reports whether err represents a transient failure that a
// caller may retry.
func Retriable(err error) bool {
	return errors.Is(err, ErrRetriable)
}
