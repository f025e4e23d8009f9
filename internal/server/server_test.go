package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/EvansOtieno/Auto-Repair/auth"
	"github.com/EvansOtieno/Auto-Repair/auth/password"
	"github.com/EvansOtieno/Auto-Repair/internal/userstore"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store, err := userstore.NewRedisStore(client, "test")
	if err != nil {
		t.Fatalf("NewRedisStore: %v", err)
	}

	service, err := auth.New().
		WithSigningKey([]byte("0123456789abcdef0123456789abcdef")).
		WithTokenTTL(time.Hour).
		WithPasswordConfig(password.Config{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1}).
		WithStore(store).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	srv, err := New(service, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeAuthResult(t *testing.T, resp *http.Response) auth.AuthResult {
	t.Helper()
	var result auth.AuthResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return result
}

func register(t *testing.T, ts *httptest.Server, username, pw, role string) auth.AuthResult {
	t.Helper()
	resp := postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": username,
		"password": pw,
		"role":     role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: status %d", username, resp.StatusCode)
	}
	return decodeAuthResult(t, resp)
}

func TestRegisterThenLogin(t *testing.T) {
	ts := newTestServer(t)

	created := register(t, ts, "alice@example.com", "s3cret", "CAR_OWNER")
	if created.Token == "" || created.UserID == "" {
		t.Fatalf("register result = %+v", created)
	}

	resp := postJSON(t, ts.URL+"/api/auth/login", map[string]string{
		"username": "alice@example.com",
		"password": "s3cret",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	result := decodeAuthResult(t, resp)
	if result.Token == "" || result.Identifier != "alice@example.com" {
		t.Fatalf("login result = %+v", result)
	}
	if len(result.Roles) != 1 || result.Roles[0] != auth.RoleCarOwner {
		t.Errorf("roles = %v", result.Roles)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice@example.com", "s3cret", "CAR_OWNER")

	for name, creds := range map[string]map[string]string{
		"wrong password": {"username": "alice@example.com", "password": "nope"},
		"unknown user":   {"username": "nobody@example.com", "password": "s3cret"},
	} {
		resp := postJSON(t, ts.URL+"/api/auth/login", creds)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s: status %d, want 401", name, resp.StatusCode)
		}
	}
}

func TestRegisterRejections(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice@example.com", "s3cret", "CAR_OWNER")

	resp := postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": "alice@example.com",
		"password": "other",
		"role":     "MECHANIC",
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate: status %d, want 409", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/api/auth/register", map[string]string{
		"username": "bob@example.com",
		"password": "x",
		"role":     "SUPERUSER",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad role: status %d, want 400", resp.StatusCode)
	}
}

func TestUserLookupRequiresServiceRole(t *testing.T) {
	ts := newTestServer(t)
	owner := register(t, ts, "alice@example.com", "s3cret", "CAR_OWNER")

	// Anonymous.
	resp, err := http.Get(ts.URL + "/api/users/alice@example.com")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("anonymous lookup: status %d, want 401", resp.StatusCode)
	}

	// Authenticated but not SERVICES.
	if got := getWithToken(t, ts, "/api/users/alice@example.com", owner.Token); got != http.StatusForbidden {
		t.Errorf("CAR_OWNER lookup: status %d, want 403", got)
	}

	// SERVICES principal.
	svc := register(t, ts, "svc-parts", "machine-secret", "SERVICES")
	if got := getWithToken(t, ts, "/api/users/alice@example.com", svc.Token); got != http.StatusOK {
		t.Errorf("SERVICES lookup: status %d, want 200", got)
	}
	if got := getWithToken(t, ts, "/api/users/ghost@example.com", svc.Token); got != http.StatusNotFound {
		t.Errorf("unknown user lookup: status %d, want 404", got)
	}
}

func getWithToken(t *testing.T, ts *httptest.Server, path, token string) int {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode
}

func TestUserLookupNeverLeaksSecretHash(t *testing.T) {
	ts := newTestServer(t)
	register(t, ts, "alice@example.com", "s3cret", "CAR_OWNER")
	svc := register(t, ts, "svc-parts", "machine-secret", "SERVICES")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/users/alice@example.com", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+svc.Token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if bytes.Contains(body, []byte("argon2")) || bytes.Contains(body, []byte("secret_hash")) {
		t.Fatalf("lookup response leaks hash material: %s", body)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestGateErrorsAreJSON(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/users/alice", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("gate error not JSON: %v", err)
	}
	if payload["error"] == "" {
		t.Fatalf("payload = %v", payload)
	}
}
