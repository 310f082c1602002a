package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const denyPrefix = "jwt:deny:"

// TokenDenylist remembers revoked token IDs until the token would have
// expired anyway.
type TokenDenylist struct {
	rdb *redis.Client
}

func NewTokenDenylist(rdb *redis.Client) *TokenDenylist { return &TokenDenylist{rdb: rdb} }

func (d *TokenDenylist) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil // already expired
	}
	return d.rdb.Set(ctx, denyPrefix+jti, "1", ttl).Err()
}

func (d *TokenDenylist) Revoked(ctx context.Context, jti string) (bool, error) {
	err := d.rdb.Get(ctx, denyPrefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
