package auth

import "errors"

var (
	// ErrAuthenticationFailed is returned when a credential pair does not
	// match a stored principal. Unknown identifier and wrong secret are
	// deliberately indistinguishable to the caller.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrUserNotFound is returned by principal stores when no record matches
	// the identifier.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned when creating a principal whose identifier
	// is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrInvalidRole is returned for a role name outside the closed role set.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidRegistration is returned for a registration request with a
	// missing identifier or secret.
	ErrInvalidRegistration = errors.New("invalid registration request")
	// ErrUnauthenticated is the request-level failure for a protected route
	// with no valid principal.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden is the request-level failure for a principal that lacks a
	// required role. Distinct from ErrUnauthenticated on purpose: 403, not 401.
	ErrForbidden = errors.New("forbidden")
	// ErrServiceNotReady is returned when the Service is used before all
	// required dependencies were supplied to the Builder.
	ErrServiceNotReady = errors.New("auth service not initialized")
)
