// internal/pkg/session/blacklist.go
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Blacklist tracks revoked token ids. The auth service writes entries on
// logout; this service only reads them.
type Blacklist struct {
	client *redis.Client
}

func NewBlacklist(client *redis.Client) *Blacklist {
	return &Blacklist{client: client}
}

// IsTokenBlacklisted checks if a token is blacklisted
func (b *Blacklist) IsTokenBlacklisted(ctx context.Context, jti string) (bool, error) {
	exists, err := b.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return exists > 0, nil
}

// BlacklistToken adds a token to the blacklist
func (b *Blacklist) BlacklistToken(ctx context.Context, jti string, ttl time.Duration) error {
	return b.client.Set(ctx, blacklistKey(jti), "1", ttl).Err()
}

func blacklistKey(jti string) string {
	return fmt.Sprintf("blacklist:%s", jti)
}
