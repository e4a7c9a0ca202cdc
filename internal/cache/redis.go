package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const defaultTTL = 15 * time.Minute

// Redis keeps marshaled aggregation responses shared across service
// instances. Failures are logged and treated as cache misses, a broken
// redis never breaks a request.
type Redis struct {
	rdb       *redis.Client
	keyPrefix string
	ttl       time.Duration
}

func NewRedis(rdb *redis.Client, keyPrefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{
		rdb:       rdb,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.rdb.Get(ctx, c.keyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Errorf("cache get [%s]: %s", key, err)
		}
		return nil, false
	}
	return data, true
}

func (c *Redis) Set(ctx context.Context, key string, data []byte) {
	if err := c.rdb.Set(ctx, c.keyPrefix+key, data, c.ttl).Err(); err != nil {
		log.Errorf("cache set [%s]: %s", key, err)
	}
}

// InvalidateAll drops every cached entry under the prefix, used after a
// dataset refresh.
func (c *Redis) InvalidateAll(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, c.keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}
