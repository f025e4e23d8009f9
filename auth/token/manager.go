package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure kinds. Each inbound failure maps to exactly one of
// these so callers can distinguish "no token at all" from "token that claims
// to be valid and is not".
var (
	// ErrEmptyToken is returned for an empty or whitespace-only token string,
	// before any cryptographic work is attempted.
	ErrEmptyToken = errors.New("token is empty")
	// ErrMalformedToken is returned for a structurally invalid token: wrong
	// segment count or corrupt encoding.
	ErrMalformedToken = errors.New("malformed token")
	// ErrUnsupportedToken is returned when the token's algorithm or structure
	// is one this verifier does not handle.
	ErrUnsupportedToken = errors.New("unsupported token type")
	// ErrExpiredToken is returned for a signature-valid token whose expiry is
	// in the past. The claims are still recoverable via [Manager.ParseExpired].
	ErrExpiredToken = errors.New("token expired")
	// ErrInvalidSignature is returned when the signature does not match the
	// shared key.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrInvalidToken covers any other verification failure.
	ErrInvalidToken = errors.New("invalid token")
)

// MinKeyBytes is the minimum accepted symmetric key size (256 bits).
const MinKeyBytes = 32

// Claims is the claim set carried inside a signed token. UserID travels as a
// string on the wire for compatibility with the other platform services;
// roles are plain role-name strings.
type Claims struct {
	UserID string   `json:"userId,omitempty"`
	Roles  []string `json:"roles"`
	jwt.RegisteredClaims
}

// Config configures a [Manager]. Key must be at least [MinKeyBytes] long and
// is the secret shared by every service instance; TTL is the fixed token
// lifetime applied at issuance.
type Config struct {
	Key    []byte
	TTL    time.Duration
	Issuer string
	Leeway time.Duration
}

// Manager signs and verifies platform tokens with a single shared HS256 key.
// A Manager is immutable after construction and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates the configuration and returns a ready [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Key) < MinKeyBytes {
		return nil, fmt.Errorf("signing key must be at least %d bytes", MinKeyBytes)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	if cfg.Leeway < 0 {
		return nil, errors.New("leeway must not be negative")
	}
	return &Manager{config: cfg}, nil
}

// Issue signs a new token for subject with the given user ID and role names.
// It returns the compact token string and its absolute expiry. Only the
// identity service's issuer calls this; verifying services never mint.
func (m *Manager) Issue(subject, userID string, roles []string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.config.TTL)

	claims := &Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenStr and decodes its claim set. An expired token is a
// failure here; use [Manager.ParseExpired] when the claims of an expired
// token are still wanted.
func (m *Manager) Parse(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseExpired verifies tokenStr like [Manager.Parse] but keeps the claims
// of a signature-valid, expired token: in that case it returns both the
// claims and an error matching [ErrExpiredToken]. Any other failure returns
// nil claims.
func (m *Manager) ParseExpired(tokenStr string) (*Claims, error) {
	claims, err := m.parse(tokenStr)
	if err != nil && !errors.Is(err, ErrExpiredToken) {
		return nil, err
	}
	return claims, err
}

func (m *Manager) parse(tokenStr string) (*Claims, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrEmptyToken
	}

	options := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("%w: alg %q", ErrUnsupportedToken, t.Method.Alg())
		}
		return m.config.Key, nil
	}, options...)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedToken):
			return nil, fmt.Errorf("%w: alg rejected", ErrUnsupportedToken)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		case errors.Is(err, jwt.ErrTokenExpired):
			// Signature already verified; keep the claims for the
			// expired-aware path.
			return claims, fmt.Errorf("%w: exp %v", ErrExpiredToken, claims.ExpiresAt)
		default:
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}
