package auth

import (
	"context"
	"time"
)

// UserRecord is the stored representation of a principal: a stable user ID,
// the login identifier (email or phone number), the argon2id hash of the
// secret, and the assigned role set.
type UserRecord struct {
	UserID     string `json:"user_id"`
	Identifier string `json:"identifier"`
	SecretHash string `json:"secret_hash"`
	Roles      []Role `json:"roles"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	CreatedAt  int64  `json:"created_at"`
}

// CreateUserInput is the input for [PrincipalStore.Create]. UserID may be
// left empty; stores assign one.
type CreateUserInput struct {
	Identifier string
	SecretHash string
	Roles      []Role
	FirstName  string
	LastName   string
}

// PrincipalStore is the interface callers implement to connect the auth
// layer to their user database. GetByIdentifier returns [ErrUserNotFound]
// when no record matches; Create returns [ErrAccountExists] when the
// identifier is already taken.
type PrincipalStore interface {
	GetByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)
	Create(ctx context.Context, input CreateUserInput) (*UserRecord, error)
}

// AuthResult is returned by [Service.Authenticate] and [Service.Register].
// ExpiresAt is the token's true expiry; callers caching the token must apply
// their own refresh margin (see auth/credential).
type AuthResult struct {
	UserID     string    `json:"id"`
	Identifier string    `json:"username"`
	Token      string    `json:"token"`
	ExpiresAt  time.Time `json:"expiry"`
	Roles      []Role    `json:"roles"`
}

// RegisterRequest is the input for [Service.Register].
type RegisterRequest struct {
	Identifier string
	Secret     string
	Role       string
	FirstName  string
	LastName   string
}
