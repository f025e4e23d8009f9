// Package userstore implements the auth principal store on Redis.
//
// Layout: each user lives under <prefix>:user:<id> as a JSON document, with
// <prefix>:ident:<identifier> holding the id for login lookups. The identifier
// index is claimed with SETNX so two concurrent registrations of the same
// identifier cannot both succeed.
package userstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/EvansOtieno/Auto-Repair/auth"
)

// ErrRedisUnavailable wraps Redis transport failures so callers can tell an
// outage apart from a clean miss.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisStore implements [auth.PrincipalStore] on a Redis client.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisStore returns a store writing under the given key prefix.
// An empty prefix defaults to "autorepair".
func NewRedisStore(client redis.UniversalClient, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if prefix == "" {
		prefix = "autorepair"
	}
	return &RedisStore{client: client, prefix: prefix, now: time.Now}, nil
}

func (s *RedisStore) userKey(id string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, id)
}

func (s *RedisStore) identKey(identifier string) string {
	return fmt.Sprintf("%s:ident:%s", s.prefix, identifier)
}

// GetByIdentifier resolves the identifier index, then loads the user record.
func (s *RedisStore) GetByIdentifier(ctx context.Context, identifier string) (*auth.UserRecord, error) {
	id, err := s.client.Get(ctx, s.identKey(identifier)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	raw, err := s.client.Get(ctx, s.userKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		// Dangling index entry; treat as absent.
		return nil, auth.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	var user auth.UserRecord
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &user, nil
}

// Create claims the identifier with SETNX and writes the record. Returns
// [auth.ErrAccountExists] when the identifier is already taken.
func (s *RedisStore) Create(ctx context.Context, input auth.CreateUserInput) (*auth.UserRecord, error) {
	if input.Identifier == "" {
		return nil, errors.New("identifier required")
	}

	user := auth.UserRecord{
		UserID:     uuid.NewString(),
		Identifier: input.Identifier,
		SecretHash: input.SecretHash,
		Roles:      append([]auth.Role(nil), input.Roles...),
		FirstName:  input.FirstName,
		LastName:   input.LastName,
		CreatedAt:  s.now().Unix(),
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	claimed, err := s.client.SetNX(ctx, s.identKey(user.Identifier), user.UserID, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if !claimed {
		return nil, auth.ErrAccountExists
	}

	if err := s.client.Set(ctx, s.userKey(user.UserID), raw, 0).Err(); err != nil {
		// Release the index claim so a retry is possible.
		s.client.Del(ctx, s.identKey(user.Identifier))
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return &user, nil
}

// Ping verifies connectivity for health checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}
