// pkg/resolve/errors.go
package resolve

import "fmt"

// ResolutionError means no tenant and no identity could be determined at all.
// The request layer surfaces it as an authentication failure.
type ResolutionError struct {
	Subject string
	Email   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("identity not found anywhere (sub=%q email=%q)", e.Subject, e.Email)
}

// TenantInactiveError means a school was resolved but is deactivated.
// Distinct from "not found"; surfaced as an authorization failure.
type TenantInactiveError struct {
	SchoolID string
}

func (e *TenantInactiveError) Error() string {
	return fmt.Sprintf("school %s is inactive", e.SchoolID)
}
