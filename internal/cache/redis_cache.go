package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func key(messageID string) string {
	return "msg:" + messageID
}

func (c *RedisCache) StoreSent(ctx context.Context, messageID, remoteMessageID string, attempts int, sentAt time.Time) error {
	return c.store(ctx, messageID, Entry{
		Status:          StatusSent,
		RemoteMessageID: remoteMessageID,
		Attempts:        attempts,
		At:              sentAt.UTC(),
	})
}

func (c *RedisCache) StoreFailed(ctx context.Context, messageID, reason string, attempts int, failedAt time.Time) error {
	return c.store(ctx, messageID, Entry{
		Status:   StatusFailed,
		Error:    reason,
		Attempts: attempts,
		At:       failedAt.UTC(),
	})
}

func (c *RedisCache) Lookup(ctx context.Context, messageID string) (Entry, bool, error) {
	raw, err := c.rdb.Get(ctx, key(messageID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

func (c *RedisCache) store(ctx context.Context, messageID string, e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(messageID), b, c.ttl).Err()
}
