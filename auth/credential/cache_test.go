package credential

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// newLoginServer serves the login endpoint, counting hits and checking the
// submitted credentials.
func newLoginServer(t *testing.T, hits *atomic.Int64, ttl time.Duration) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != loginPath || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Identifier != "svc-parts" || req.Secret != "machine-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := hits.Add(1)
		json.NewEncoder(w).Encode(loginResponse{
			Token:     "token-" + string(rune('a'+n-1)),
			ExpiresAt: time.Now().Add(ttl),
		})
	}))
}

func newTestCache(t *testing.T, baseURL string, margin time.Duration) *Cache {
	t.Helper()
	c, err := NewCache(Config{
		BaseURL:    baseURL,
		Identifier: "svc-parts",
		Secret:     "machine-secret",
		Margin:     margin,
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}
	return c
}

func TestTokenCachedUntilMargin(t *testing.T) {
	var hits atomic.Int64
	srv := newLoginServer(t, &hits, time.Hour)
	defer srv.Close()

	cache := newTestCache(t, srv.URL, time.Minute)
	ctx := context.Background()

	first, err := cache.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	second, err := cache.Token(ctx)
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if first != second {
		t.Errorf("tokens differ: %q vs %q", first, second)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("login hits = %d, want 1", got)
	}
}

func TestTokenRefreshedInsideMargin(t *testing.T) {
	var hits atomic.Int64
	// Expiry 30s out with a 60s margin: the cached deadline is already in
	// the past, so every call refreshes.
	srv := newLoginServer(t, &hits, 30*time.Second)
	defer srv.Close()

	cache := newTestCache(t, srv.URL, time.Minute)
	ctx := context.Background()

	if _, err := cache.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if _, err := cache.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("login hits = %d, want 2", got)
	}
}

func TestConcurrentCallersSingleLogin(t *testing.T) {
	var hits atomic.Int64
	srv := newLoginServer(t, &hits, time.Hour)
	defer srv.Close()

	cache := newTestCache(t, srv.URL, time.Minute)

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := cache.Token(context.Background())
			if err != nil {
				t.Errorf("Token: %v", err)
				return
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("login hits = %d, want 1", got)
	}
	for i := 1; i < callers; i++ {
		if tokens[i] != tokens[0] {
			t.Fatalf("caller %d got %q, caller 0 got %q", i, tokens[i], tokens[0])
		}
	}
}

func TestFailedLoginNotCached(t *testing.T) {
	var fails atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fails.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cache := newTestCache(t, srv.URL, time.Minute)
	ctx := context.Background()

	if _, err := cache.Token(ctx); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
	// The failure is not cached: the next caller retries.
	if _, err := cache.Token(ctx); !errors.Is(err, ErrLoginFailed) {
		t.Fatalf("err = %v, want ErrLoginFailed", err)
	}
	if got := fails.Load(); got != 2 {
		t.Errorf("login attempts = %d, want 2", got)
	}
}

func TestInvalidateForcesRelogin(t *testing.T) {
	var hits atomic.Int64
	srv := newLoginServer(t, &hits, time.Hour)
	defer srv.Close()

	cache := newTestCache(t, srv.URL, time.Minute)
	ctx := context.Background()

	if _, err := cache.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	cache.Invalidate()
	if _, err := cache.Token(ctx); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("login hits = %d, want 2", got)
	}
}

func TestAuthorizationHeader(t *testing.T) {
	var hits atomic.Int64
	srv := newLoginServer(t, &hits, time.Hour)
	defer srv.Close()

	cache := newTestCache(t, srv.URL, time.Minute)
	header, err := cache.AuthorizationHeader(context.Background())
	if err != nil {
		t.Fatalf("AuthorizationHeader: %v", err)
	}
	if header != "Bearer token-a" {
		t.Errorf("header = %q", header)
	}
}

func TestTransportAttachesHeader(t *testing.T) {
	var hits atomic.Int64
	identity := newLoginServer(t, &hits, time.Hour)
	defer identity.Close()

	var seen string
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer peer.Close()

	cache := newTestCache(t, identity.URL, time.Minute)
	client := &http.Client{Transport: NewTransport(cache, nil)}

	resp, err := client.Get(peer.URL + "/api/users/alice")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if seen != "Bearer token-a" {
		t.Errorf("peer saw Authorization = %q", seen)
	}
}

func TestRetryPolicyGetsAnotherAttempt(t *testing.T) {
	var hits atomic.Int64
	// First attempt fails, second succeeds.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(loginResponse{
			Token:     "token-retry",
			ExpiresAt: time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	cache, err := NewCache(Config{
		BaseURL:    srv.URL,
		Identifier: "svc-parts",
		Secret:     "machine-secret",
		Retry:      func(attempt int, _ error) bool { return attempt < 2 },
	})
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	token, err := cache.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "token-retry" {
		t.Errorf("token = %q", token)
	}
	if got := hits.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestNewCacheValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing base URL", Config{Identifier: "a", Secret: "b"}},
		{"missing credentials", Config{BaseURL: "http://x"}},
		{"negative margin", Config{BaseURL: "http://x", Identifier: "a", Secret: "b", Margin: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewCache(tt.cfg); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
