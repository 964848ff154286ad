package delegation

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"formflow/internal/platform/redis"
	id "formflow/pkg/domain"
	"formflow/pkg/platform/sentinel"
)

const keyPrefix = "delegation:"

// claimedMarker replaces the hash once a token is redeemed, so a second
// claim is distinguishable from an expired one. bcrypt hashes always start
// with "$2", so the marker can never collide with a live hash.
const claimedMarker = "claimed"

// RedisStore keeps token hashes in Redis with a TTL, so unclaimed
// delegations expire on their own.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

var _ TokenStore = (*RedisStore)(nil)

// NewRedisStore constructs a Redis-backed token store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Issue(ctx context.Context, appID id.ApplicationID) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash delegation token: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+appID.String(), hash, s.ttl).Err(); err != nil {
		return "", fmt.Errorf("store delegation token: %w", err)
	}
	return token, nil
}

func (s *RedisStore) Claim(ctx context.Context, appID id.ApplicationID, token string) error {
	key := keyPrefix + appID.String()
	hash, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return sentinel.ErrExpired
	}
	if err != nil {
		return fmt.Errorf("load delegation token: %w", err)
	}
	if string(hash) == claimedMarker {
		return sentinel.ErrAlreadyUsed
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(token)) != nil {
		return sentinel.ErrNotFound
	}
	if err := s.client.Set(ctx, key, claimedMarker, goredis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("consume delegation token: %w", err)
	}
	return nil
}
