package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned when the user text is blank after trimming.
	// Nothing is written and no network call is made.
	ErrEmptyInput = errors.New("message text is empty")

	// ErrBusy is returned when a send is already in flight for the session.
	ErrBusy = errors.New("a send is already in progress for this session")
)

// SessionCreationError means lazy session creation failed before any turn was
// written.
type SessionCreationError struct {
	Err error
}

func (e *SessionCreationError) Error() string {
	return fmt.Sprintf("could not create session: %v", e.Err)
}

func (e *SessionCreationError) Unwrap() error { return e.Err }

// PersistenceError means a store write failed mid-operation. The optimistic
// in-memory entry survives; the operation does not proceed past it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RemoteCallError is a non-2xx response from the advisor model endpoint, with
// the body captured for logging. The body is never shown in the transcript.
type RemoteCallError struct {
	Status int
	Body   string
}

func (e *RemoteCallError) Error() string {
	return fmt.Sprintf("advisor endpoint returned status %d: %s", e.Status, e.Body)
}

// StreamError is an error reported inside the response stream or analyze
// body by the model itself.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("advisor stream reported error: %s", e.Message)
}
