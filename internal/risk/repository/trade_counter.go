package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisTradeCounter counts approved trades per user per UTC day.
type RedisTradeCounter struct {
	client *redis.Client
}

func NewRedisTradeCounter(client *redis.Client) *RedisTradeCounter {
	return &RedisTradeCounter{client: client}
}

func tradeCountKey(userID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("risk:trades:%s:%s", userID, day.UTC().Format("2006-01-02"))
}

func (c *RedisTradeCounter) TradesToday(ctx context.Context, userID uuid.UUID) (int, error) {
	count, err := c.client.Get(ctx, tradeCountKey(userID, time.Now())).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (c *RedisTradeCounter) RecordTrade(ctx context.Context, userID uuid.UUID) error {
	key := tradeCountKey(userID, time.Now())
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, key)
	// Keyed by day, so a generous expiry just bounds storage.
	pipe.Expire(ctx, key, 48*time.Hour)
	_, err := pipe.Exec(ctx)
	return err
}
