// Package config loads the identity server configuration with priority
// Env > File > Default. Environment variables use the AUTOREPAIR_ prefix
// with double underscores separating sections, so single underscores inside
// key names survive: AUTOREPAIR_SERVER__ADDR sets server.addr and
// AUTOREPAIR_AUTH__SIGNING_KEY sets auth.signing_key.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the environment variable prefix.
const EnvPrefix = "AUTOREPAIR_"

// Default configuration values.
const (
	DefaultAddr            = "127.0.0.1:8080"
	DefaultShutdownTimeout = 10 * time.Second

	DefaultTokenTTL = 10 * time.Hour
	DefaultIssuer   = "auto-repair"

	DefaultRedisAddr   = "127.0.0.1:6379"
	DefaultRedisPrefix = "autorepair"

	DefaultPeerMargin  = 60 * time.Second
	DefaultPeerTimeout = 10 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// Config is the root configuration for the identity server.
type Config struct {
	Server         ServerSection         `koanf:"server"`
	Auth           AuthSection           `koanf:"auth"`
	Redis          RedisSection          `koanf:"redis"`
	ServiceAccount ServiceAccountSection `koanf:"service_account"`
	Peer           PeerSection           `koanf:"peer"`
	Log            LogSection            `koanf:"log"`
}

// ServerSection configures the HTTP listener.
type ServerSection struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// AuthSection configures token issuance and verification.
type AuthSection struct {
	// SigningKey is the shared HMAC key, at least 32 bytes. Distributed
	// out-of-band to every service that verifies tokens.
	SigningKey string `koanf:"signing_key"`
	// TokenTTL is the fixed lifetime of every issued token.
	TokenTTL time.Duration `koanf:"token_ttl"`
	// Issuer is the iss claim stamped on issued tokens.
	Issuer string `koanf:"issuer"`
	// Leeway is the clock skew tolerance applied during verification.
	Leeway time.Duration `koanf:"leeway"`
}

// RedisSection configures the principal store.
type RedisSection struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
	Prefix   string `koanf:"prefix"`
}

// ServiceAccountSection configures the machine account bootstrapped at
// startup for service-to-service calls.
type ServiceAccountSection struct {
	Identifier string `koanf:"identifier"`
	Secret     string `koanf:"secret"`
}

// PeerSection configures outbound service-token caching when this process
// calls other services.
type PeerSection struct {
	IdentityURL string        `koanf:"identity_url"`
	Margin      time.Duration `koanf:"margin"`
	Timeout     time.Duration `koanf:"timeout"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the default configuration. The signing key and service
// account have no defaults and must be supplied.
func Default() *Config {
	return &Config{
		Server: ServerSection{
			Addr:            DefaultAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
		},
		Auth: AuthSection{
			TokenTTL: DefaultTokenTTL,
			Issuer:   DefaultIssuer,
		},
		Redis: RedisSection{
			Addr:   DefaultRedisAddr,
			Prefix: DefaultRedisPrefix,
		},
		Peer: PeerSection{
			Margin:  DefaultPeerMargin,
			Timeout: DefaultPeerTimeout,
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Load reads configuration with priority Env > File > Default. path may be
// empty to skip the file source.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	envTransformer := func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformer), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the invariants the rest of the system relies on.
func (c *Config) Validate() error {
	if len(c.Auth.SigningKey) < 32 {
		return errors.New("auth.signing_key must be at least 32 bytes")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl must be positive")
	}
	if c.Auth.Leeway < 0 {
		return errors.New("auth.leeway must not be negative")
	}
	if c.Server.Addr == "" {
		return errors.New("server.addr required")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis.addr required")
	}
	if (c.ServiceAccount.Identifier == "") != (c.ServiceAccount.Secret == "") {
		return errors.New("service_account.identifier and service_account.secret must be set together")
	}
	return nil
}
