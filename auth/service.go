package auth

import (
	"context"
	"errors"
	"time"

	"github.com/EvansOtieno/Auto-Repair/auth/token"
)

// Service is the token issuer: it authenticates credential pairs against the
// principal store and mints signed session tokens. It serves both human
// logins and machine-to-machine logins; the machine account itself is
// provisioned through [Service.EnsureServiceAccount].
type Service struct {
	tokens *token.Manager
	hasher passwordHasher
	store  PrincipalStore
	audit  AuditSink
}

// passwordHasher is the subset of auth/password used by the Service; tests
// substitute cheaper implementations.
type passwordHasher interface {
	Hash(secret string) (string, error)
	Verify(secret, encodedHash string) (bool, error)
}

// Tokens exposes the token manager so gates and handlers can verify tokens
// with the same key and TTL configuration the issuer signs with.
func (s *Service) Tokens() *token.Manager {
	if s == nil {
		return nil
	}
	return s.tokens
}

// Authenticate checks the identifier+secret pair against the principal store
// and mints a token on success. Unknown identifier and wrong secret both
// surface as [ErrAuthenticationFailed]; a store outage is reported as-is so
// callers can distinguish "bad credentials" from "cannot tell right now".
func (s *Service) Authenticate(ctx context.Context, identifier, secret string) (*AuthResult, error) {
	if s == nil || s.store == nil {
		return nil, ErrServiceNotReady
	}
	if identifier == "" || secret == "" {
		s.emit(ctx, EventLoginFailure, identifier, "", ErrAuthenticationFailed)
		return nil, ErrAuthenticationFailed
	}

	user, err := s.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.emit(ctx, EventLoginFailure, identifier, "", ErrAuthenticationFailed)
			return nil, ErrAuthenticationFailed
		}
		return nil, err
	}

	ok, err := s.hasher.Verify(secret, user.SecretHash)
	if err != nil || !ok {
		s.emit(ctx, EventLoginFailure, identifier, user.UserID, ErrAuthenticationFailed)
		return nil, ErrAuthenticationFailed
	}

	result, err := s.issueFor(user)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventLoginSuccess, identifier, user.UserID, nil)
	return result, nil
}

// Register creates a new principal with a single validated role and
// immediately issues a token for it, so registration doubles as first login.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*AuthResult, error) {
	if s == nil || s.store == nil {
		return nil, ErrServiceNotReady
	}
	if req.Identifier == "" || req.Secret == "" {
		return nil, ErrInvalidRegistration
	}

	role, err := ParseRole(req.Role)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(req.Secret)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Create(ctx, CreateUserInput{
		Identifier: req.Identifier,
		SecretHash: hash,
		Roles:      []Role{role},
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	})
	if err != nil {
		return nil, err
	}

	result, err := s.issueFor(user)
	if err != nil {
		return nil, err
	}
	s.emit(ctx, EventRegistered, user.Identifier, user.UserID, nil)
	return result, nil
}

// EnsureServiceAccount provisions the machine account peer services log in
// as. It is a one-time idempotent check at process start of the
// identity-owning service: when the account already exists nothing is
// touched, in particular the stored secret is never rewritten.
func (s *Service) EnsureServiceAccount(ctx context.Context, identifier, secret string) error {
	if s == nil || s.store == nil {
		return ErrServiceNotReady
	}
	if identifier == "" || secret == "" {
		return errors.New("service account identifier and secret required")
	}

	_, err := s.store.GetByIdentifier(ctx, identifier)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return err
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		return err
	}

	_, err = s.store.Create(ctx, CreateUserInput{
		Identifier: identifier,
		SecretHash: hash,
		Roles:      []Role{RoleServices},
		FirstName:  "SERVICE",
		LastName:   "SYSTEM_ACCOUNT",
	})
	if errors.Is(err, ErrAccountExists) {
		// Another instance won the bootstrap race; that is fine.
		return nil
	}
	if err != nil {
		return err
	}

	s.emit(ctx, EventServiceBootstrap, identifier, "", nil)
	return nil
}

func (s *Service) issueFor(user *UserRecord) (*AuthResult, error) {
	signed, expiresAt, err := s.tokens.Issue(user.Identifier, user.UserID, RoleNames(user.Roles))
	if err != nil {
		return nil, err
	}
	return &AuthResult{
		UserID:     user.UserID,
		Identifier: user.Identifier,
		Token:      signed,
		ExpiresAt:  expiresAt,
		Roles:      append([]Role(nil), user.Roles...),
	}, nil
}

func (s *Service) emit(ctx context.Context, eventType, identifier, userID string, cause error) {
	if s.audit == nil {
		return
	}
	event := AuditEvent{
		Timestamp:  time.Now(),
		EventType:  eventType,
		Identifier: identifier,
		UserID:     userID,
		Success:    cause == nil,
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	s.audit.Emit(ctx, event)
}
