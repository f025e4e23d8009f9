// Package server wires the auth service into the identity HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/EvansOtieno/Auto-Repair/auth"
	"github.com/EvansOtieno/Auto-Repair/auth/middleware"
	"github.com/EvansOtieno/Auto-Repair/internal/userstore"
)

// ExemptPrefixes lists the routes every gate skips: login and registration
// must work without a token, and health probes carry none.
var ExemptPrefixes = []string{
	"/api/auth/",
	"/healthz",
}

// DefaultRules is the route protection table for the identity API. Lookup
// of arbitrary users is reserved for peer services.
var DefaultRules = []middleware.Rule{
	{PathPrefix: "/api/users/", Roles: []auth.Role{auth.RoleServices}, Policy: middleware.MatchAny},
	{PathPrefix: "/api/admin/", Roles: []auth.Role{auth.RoleServices, auth.RoleAdmin}, Policy: middleware.MatchAny},
	{PathPrefix: "/api/car-owner/", Roles: []auth.Role{auth.RoleCarOwner}, Policy: middleware.MatchAny},
	{PathPrefix: "/api/dealer/", Roles: []auth.Role{auth.RolePartsDealer}, Policy: middleware.MatchAny},
}

// Server serves the identity HTTP API.
type Server struct {
	service *auth.Service
	store   *userstore.RedisStore
	log     *slog.Logger
	handler http.Handler
}

// New assembles the routed and gated handler.
func New(service *auth.Service, store *userstore.RedisStore, log *slog.Logger) (*Server, error) {
	if service == nil {
		return nil, errors.New("auth service required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Server{service: service, store: store, log: log}

	gate, err := middleware.NewGate(middleware.GateConfig{
		Tokens:         service.Tokens(),
		ExemptPrefixes: ExemptPrefixes,
		Rules:          DefaultRules,
		ErrorWriter:    s.writeGateError,
	})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("GET /api/users/{identifier}", s.handleGetUser)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.handler = s.logRequests(gate.Authenticate(gate.Authorize(mux)))
	return s, nil
}

// Handler returns the fully assembled handler chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

type credentialsRequest struct {
	Identifier string `json:"username"`
	Secret     string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.Authenticate(r.Context(), req.Identifier, req.Secret)
	if err != nil {
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			s.writeError(w, http.StatusUnauthorized, "Authentication failed: invalid credentials")
			return
		}
		s.log.Error("login failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "authentication temporarily unavailable")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

type registerRequest struct {
	Identifier string `json:"username"`
	Secret     string `json:"password"`
	Role       string `json:"role"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.service.Register(r.Context(), auth.RegisterRequest{
		Identifier: req.Identifier,
		Secret:     req.Secret,
		Role:       req.Role,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
	})
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, result)
	case errors.Is(err, auth.ErrAccountExists):
		s.writeError(w, http.StatusConflict, "account already exists")
	case errors.Is(err, auth.ErrInvalidRole), errors.Is(err, auth.ErrInvalidRegistration):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("registration failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "registration temporarily unavailable")
	}
}

// userView is the record shape exposed to peer services; the secret hash
// never leaves this process.
type userView struct {
	UserID     string      `json:"id"`
	Identifier string      `json:"username"`
	Roles      []auth.Role `json:"roles"`
	FirstName  string      `json:"firstName,omitempty"`
	LastName   string      `json:"lastName,omitempty"`
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	identifier := r.PathValue("identifier")

	user, err := s.store.GetByIdentifier(r.Context(), identifier)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, userView{
			UserID:     user.UserID,
			Identifier: user.Identifier,
			Roles:      user.Roles,
			FirstName:  user.FirstName,
			LastName:   user.LastName,
		})
	case errors.Is(err, auth.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, "user not found")
	default:
		s.log.Error("user lookup failed", "error", err)
		s.writeError(w, http.StatusServiceUnavailable, "user store unavailable")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, map[string]string{"status": status})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeGateError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeError(w, status, message)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, errorResponse{Error: message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Warn("write response", "error", err)
	}
}
