package auth

import "context"

// Principal is the authenticated identity attached to a single request after
// token verification. It is never persisted; its lifetime is the request.
type Principal struct {
	Subject string
	Roles   []Role
}

// HasRole reports whether the principal holds the given role.
func (p *Principal) HasRole(role Role) bool {
	if p == nil {
		return false
	}
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the principal holds at least one of the roles.
// An empty slice matches nothing.
func (p *Principal) HasAnyRole(roles ...Role) bool {
	for _, r := range roles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

// HasAllRoles reports whether the principal holds every one of the roles.
func (p *Principal) HasAllRoles(roles ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range roles {
		if !p.HasRole(r) {
			return false
		}
	}
	return true
}

type principalContextKey struct{}

// WithPrincipal attaches a verified principal to ctx. Only the inbound
// authentication gate should call this; handlers read it back with
// [PrincipalFromContext].
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the principal attached by the authentication
// gate, or false when the request is anonymous.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	if ctx == nil {
		return nil, false
	}
	p, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || p == nil {
		return nil, false
	}
	return p, true
}
