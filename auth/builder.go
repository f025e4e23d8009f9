package auth

import (
	"errors"
	"time"

	"github.com/EvansOtieno/Auto-Repair/auth/password"
	"github.com/EvansOtieno/Auto-Repair/auth/token"
)

// Builder assembles a [Service]. Configure it with the shared signing key,
// the token TTL, and a [PrincipalStore], then call [Builder.Build] once.
type Builder struct {
	signingKey []byte
	tokenTTL   time.Duration
	issuerName string
	leeway     time.Duration
	passwords  password.Config
	store      PrincipalStore
	audit      AuditSink

	built bool
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{}
}

// WithSigningKey sets the shared symmetric signing key. The key must be
// distributed out-of-band to every verifying service; it is never generated
// here.
func (b *Builder) WithSigningKey(key []byte) *Builder {
	b.signingKey = append([]byte(nil), key...)
	return b
}

// WithTokenTTL sets the fixed lifetime applied to every issued token.
func (b *Builder) WithTokenTTL(ttl time.Duration) *Builder {
	b.tokenTTL = ttl
	return b
}

// WithIssuerName sets the optional iss claim stamped on issued tokens.
func (b *Builder) WithIssuerName(name string) *Builder {
	b.issuerName = name
	return b
}

// WithVerifyLeeway sets the clock skew tolerance applied when verifying
// tokens. Zero means strict expiry.
func (b *Builder) WithVerifyLeeway(leeway time.Duration) *Builder {
	b.leeway = leeway
	return b
}

// WithPasswordConfig overrides the argon2id cost parameters.
func (b *Builder) WithPasswordConfig(cfg password.Config) *Builder {
	b.passwords = cfg
	return b
}

// WithStore sets the principal store backing authentication and registration.
func (b *Builder) WithStore(store PrincipalStore) *Builder {
	b.store = store
	return b
}

// WithAuditSink sets the sink receiving authentication audit events.
// Defaults to [NoOpSink].
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.audit = sink
	return b
}

// Build validates the configuration and returns a ready [Service].
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("principal store required")
	}

	tokens, err := token.NewManager(token.Config{
		Key:    b.signingKey,
		TTL:    b.tokenTTL,
		Issuer: b.issuerName,
		Leeway: b.leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(b.passwords)
	if err != nil {
		return nil, err
	}

	audit := b.audit
	if audit == nil {
		audit = NoOpSink{}
	}

	b.built = true
	return &Service{
		tokens: tokens,
		hasher: hasher,
		store:  b.store,
		audit:  audit,
	}, nil
}
