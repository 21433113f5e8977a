// pkg/tenantdb/errors.go
package tenantdb

import "fmt"

// ConnectionError reports that a school's store stayed unreachable through
// the full retry sequence. Callers must surface it, never fall back to
// another school's store.
type ConnectionError struct {
	SchoolID string
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("school %s: store unreachable after %d attempts: %v", e.SchoolID, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// RegistrationError reports that entity binding failed on a fresh connection.
// The pool discards the handle; it is never cached partially registered.
type RegistrationError struct {
	SchoolID string
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("school %s: entity registration failed: %v", e.SchoolID, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }
