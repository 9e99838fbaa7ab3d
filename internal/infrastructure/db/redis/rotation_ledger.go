package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RotationLedger remembers the ids of refresh tokens that were rotated or
// logged out, until the token itself would have expired.
// Key format: rotated:<jti>
type RotationLedger struct {
	client redis.Cmdable
}

// NewRotationLedger creates a RotationLedger wrapping the given Redis client.
func NewRotationLedger(client redis.Cmdable) *RotationLedger {
	return &RotationLedger{client: client}
}

// WasRotated reports whether tokenID has been marked.
func (l *RotationLedger) WasRotated(ctx context.Context, tokenID string) (bool, error) {
	n, err := l.client.Exists(ctx, l.key(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("rotation ledger check: %w", err)
	}
	return n > 0, nil
}

// MarkRotated records tokenID for ttl.
func (l *RotationLedger) MarkRotated(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, l.key(tokenID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("rotation ledger mark: %w", err)
	}
	return nil
}

func (l *RotationLedger) key(tokenID string) string {
	return "rotated:" + tokenID
}
