package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/EvansOtieno/Auto-Repair/auth"
	"github.com/EvansOtieno/Auto-Repair/auth/token"
)

const bearerPrefix = "Bearer "

// Gate holds the verification dependencies shared by the authentication and
// authorization middleware.
type Gate struct {
	tokens  *token.Manager
	exempt  []string
	rules   []Rule
	onError func(w http.ResponseWriter, r *http.Request, status int, message string)
}

// GateConfig configures a [Gate].
type GateConfig struct {
	// Tokens verifies inbound bearer tokens. Required.
	Tokens *token.Manager
	// ExemptPrefixes lists path prefixes that bypass both gates entirely,
	// such as the login endpoints and health checks.
	ExemptPrefixes []string
	// Rules is the route protection table consulted by [Gate.Authorize].
	Rules []Rule
	// ErrorWriter overrides how gate rejections are written. The default
	// writes the message as text/plain.
	ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, message string)
}

// NewGate validates cfg and returns a ready Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("token manager required")
	}
	g := &Gate{
		tokens:  cfg.Tokens,
		exempt:  append([]string(nil), cfg.ExemptPrefixes...),
		rules:   append([]Rule(nil), cfg.Rules...),
		onError: cfg.ErrorWriter,
	}
	if g.onError == nil {
		g.onError = writePlainError
	}
	return g, nil
}

// Authenticate resolves the Authorization header into a request principal.
//
// A request with no bearer token passes through anonymously so that public
// routes keep working; it is Authorize's job to reject anonymous requests on
// protected routes. A bearer token that is present but fails verification is
// rejected immediately with 401, before any handler runs.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.bypass(r) {
			next.ServeHTTP(w, r)
			return
		}

		raw, present := bearerToken(r)
		if !present {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := g.tokens.Parse(raw)
		if err != nil {
			g.onError(w, r, http.StatusUnauthorized, "Authentication failed: "+err.Error())
			return
		}

		roles, err := auth.ParseRoles(claims.Roles)
		if err != nil {
			g.onError(w, r, http.StatusUnauthorized, "Authentication failed: "+token.ErrInvalidToken.Error())
			return
		}

		principal := &auth.Principal{
			Subject: claims.Subject,
			Roles:   roles,
		}
		next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), principal)))
	})
}

// bypass reports whether the request skips both gates: CORS preflight and
// the configured exempt prefixes.
func (g *Gate) bypass(r *http.Request) bool {
	if r.Method == http.MethodOptions {
		return true
	}
	for _, prefix := range g.exempt {
		if strings.HasPrefix(r.URL.Path, prefix) {
			return true
		}
	}
	return false
}

// bearerToken extracts the token from the Authorization header. present is
// false only when the header is absent or does not use the Bearer scheme;
// an empty token after the prefix counts as present so it fails verification
// rather than passing through anonymously.
func bearerToken(r *http.Request) (raw string, present bool) {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(bearerPrefix):]), true
}

func writePlainError(w http.ResponseWriter, r *http.Request, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintln(w, message)
}
