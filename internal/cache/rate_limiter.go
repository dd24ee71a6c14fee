package cache

import (
	"context"
	"fmt"
	"time"

	redisv9 "github.com/redis/go-redis/v9"
)

// ChatRateLimiter is a fixed-window per-user counter: INCR plus EXPIRE on
// first hit. Good enough for an hourly chat quota.
type ChatRateLimiter struct {
	client *redisv9.Client
	max    int
	window time.Duration
}

func NewChatRateLimiter(client *redisv9.Client, max int, window time.Duration) *ChatRateLimiter {
	if max <= 0 {
		max = 60
	}
	if window <= 0 {
		window = time.Hour
	}
	return &ChatRateLimiter{client: client, max: max, window: window}
}

func (l *ChatRateLimiter) Allow(ctx context.Context, userID uint) (bool, error) {
	key := fmt.Sprintf("chat:rate:%d", userID)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr rate counter failed: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("redis expire rate counter failed: %w", err)
		}
	}
	return count <= int64(l.max), nil
}
