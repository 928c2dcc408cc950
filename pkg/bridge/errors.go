package bridge

import "fmt"

// DuplicateSessionError rejects a second connection for a call id that
// already holds a live connection. The first connection is unaffected.
type DuplicateSessionError struct {
	CallID string
}

// Error implements the error interface.
func (e *DuplicateSessionError) Error() string {
	return fmt.Sprintf("bridge: session already live for call %s", e.CallID)
}

// SessionNotFoundError reports an event for an unknown or expired call
// id. The event is dropped and logged, never fatal.
type SessionNotFoundError struct {
	CallID string
}

// Error implements the error interface.
func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("bridge: no session for call %s", e.CallID)
}
