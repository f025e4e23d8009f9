package middleware

import (
	"net/http"
	"strings"

	"github.com/EvansOtieno/Auto-Repair/auth"
)

// MatchPolicy selects how a rule's role list is evaluated against the
// principal's roles.
type MatchPolicy int

const (
	// MatchAny grants access when the principal holds at least one of the
	// rule's roles.
	MatchAny MatchPolicy = iota
	// MatchAll requires the principal to hold every role in the rule.
	MatchAll
)

// Rule protects a path prefix. An empty Roles list means any authenticated
// principal may pass.
type Rule struct {
	PathPrefix string
	Roles      []auth.Role
	Policy     MatchPolicy
}

// Authorize enforces the gate's rule table. The most specific matching rule
// wins (longest prefix). A path with no matching rule still requires an
// authenticated principal: anonymous gets 401, a principal lacking the
// required roles gets 403.
func (g *Gate) Authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.bypass(r) {
			next.ServeHTTP(w, r)
			return
		}

		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			g.onError(w, r, http.StatusUnauthorized, auth.ErrUnauthenticated.Error())
			return
		}

		rule, found := g.matchRule(r.URL.Path)
		if !found || len(rule.Roles) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed := principal.HasAnyRole(rule.Roles...)
		if rule.Policy == MatchAll {
			allowed = principal.HasAllRoles(rule.Roles...)
		}
		if !allowed {
			g.onError(w, r, http.StatusForbidden, auth.ErrForbidden.Error())
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (g *Gate) matchRule(path string) (Rule, bool) {
	var best Rule
	bestLen := -1
	for _, rule := range g.rules {
		if strings.HasPrefix(path, rule.PathPrefix) && len(rule.PathPrefix) > bestLen {
			best = rule
			bestLen = len(rule.PathPrefix)
		}
	}
	return best, bestLen >= 0
}
