package auth

import "fmt"

// AuthenticationError means the caller presented a missing or invalid
// credential. Surfaced to the transport layer as 401.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return "authentication failed: " + e.Reason
}

// AuthorizationError means an authenticated caller's role lacks a required
// permission. Surfaced to the transport layer as 403.
type AuthorizationError struct {
	Role    Role
	Missing Permission
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q lacks permission %q", e.Role, e.Missing)
}
