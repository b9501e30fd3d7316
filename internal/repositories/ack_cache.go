package repositories

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const ackKeyPrefix = "billing:ack:"

// AckCache suppresses duplicate logical acknowledgements across event
// redeliveries. Marks are written only for acks the platform confirmed. A
// cache outage degrades to acknowledging: the platform treats duplicate
// acks as no-ops, so availability wins here.
type AckCache struct {
	RDB *redis.Client
	TTL time.Duration
}

func NewAckCache(rdb *redis.Client, ttl time.Duration) *AckCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AckCache{RDB: rdb, TTL: ttl}
}

// IsAcknowledged reports whether a confirmed acknowledgement is already
// recorded for the transaction id.
func (c *AckCache) IsAcknowledged(ctx context.Context, transactionID string) (bool, error) {
	n, err := c.RDB.Exists(ctx, ackKeyPrefix+transactionID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkAcknowledged records a confirmed acknowledgement and reports whether
// it was the first one seen for the transaction id.
func (c *AckCache) MarkAcknowledged(ctx context.Context, transactionID string) (bool, error) {
	first, err := c.RDB.SetNX(ctx, ackKeyPrefix+transactionID, 1, c.TTL).Result()
	if err != nil {
		return true, err
	}
	return first, nil
}
