package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const (
	defaultMargin  = 60 * time.Second
	defaultTimeout = 10 * time.Second
	loginPath      = "/api/auth/login"
)

// ErrLoginFailed is returned when the identity service rejects the
// service-account credentials or answers with a non-200 status.
var ErrLoginFailed = errors.New("service login failed")

// Config configures a [Cache].
type Config struct {
	// BaseURL is the identity service root, e.g. "http://identity:8080".
	BaseURL string
	// Identifier and Secret are the service-account login credentials.
	Identifier string
	Secret     string
	// Margin is subtracted from the token's true expiry when computing the
	// cached deadline, so the token is refreshed before peers would see it
	// expire in flight. Defaults to 60s.
	Margin time.Duration
	// Timeout bounds each login request. Defaults to 10s.
	Timeout time.Duration
	// Retry decides whether a failed login is attempted again within the
	// same call. It receives the 1-based attempt number and the failure.
	// Nil means fail fast with no retry.
	Retry RetryPolicy
	// HTTPClient overrides the client used for login requests.
	HTTPClient *http.Client
}

// RetryPolicy reports whether another login attempt should follow a failure.
// Implementations sleep themselves if they want backoff.
type RetryPolicy func(attempt int, err error) bool

// Cache holds one service token and refreshes it on demand.
// Safe for concurrent use.
type Cache struct {
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewCache validates cfg and returns a ready Cache. No login happens until
// the first call to [Cache.Token] or [Cache.AuthorizationHeader].
func NewCache(cfg Config) (*Cache, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL required")
	}
	if cfg.Identifier == "" || cfg.Secret == "" {
		return nil, errors.New("service credentials required")
	}
	if cfg.Margin == 0 {
		cfg.Margin = defaultMargin
	}
	if cfg.Margin < 0 {
		return nil, errors.New("margin must not be negative")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Cache{cfg: cfg, client: client, now: time.Now}, nil
}

// Token returns a currently valid service token, logging in first if the
// cached one is missing or inside the refresh margin. A failed login leaves
// the cache empty so the next caller retries instead of reusing a stale
// token.
func (c *Cache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, nil
	}

	token, expiry, err := c.login(ctx)
	for attempt := 1; err != nil && c.cfg.Retry != nil && c.cfg.Retry(attempt, err); attempt++ {
		token, expiry, err = c.login(ctx)
	}
	if err != nil {
		c.token = ""
		c.expiresAt = time.Time{}
		return "", err
	}

	c.token = token
	c.expiresAt = expiry.Add(-c.cfg.Margin)
	return c.token, nil
}

// AuthorizationHeader returns the ready-to-send header value for the cached
// token, refreshing it first when needed.
func (c *Cache) AuthorizationHeader(ctx context.Context) (string, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return "", err
	}
	return "Bearer " + token, nil
}

// Invalidate drops the cached token so the next call logs in again. Use it
// after a peer answers 401 despite a fresh-looking token, e.g. after a
// signing key rotation.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}

type loginRequest struct {
	Identifier string `json:"username"`
	Secret     string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiry"`
}

func (c *Cache) login(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(loginRequest{Identifier: c.cfg.Identifier, Secret: c.cfg.Secret})
	if err != nil {
		return "", time.Time{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+loginPath, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", time.Time{}, fmt.Errorf("%w: status %d", ErrLoginFailed, resp.StatusCode)
	}

	var decoded loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}
	if decoded.Token == "" || decoded.ExpiresAt.IsZero() {
		return "", time.Time{}, fmt.Errorf("%w: incomplete login response", ErrLoginFailed)
	}
	return decoded.Token, decoded.ExpiresAt, nil
}
