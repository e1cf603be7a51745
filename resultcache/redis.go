package resultcache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/config"
)

// Redis is the redis backend.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedis(cfg config.ResultCache) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Database,
	})
	return &Redis{
		client: client,
		ttl:    time.Duration(cfg.TTLSeconds) * time.Second,
	}
}

func redisKey(scanID string) string {
	return "audit:result:" + scanID
}

func (r *Redis) Put(ctx context.Context, result *audit.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return r.client.WithContext(ctx).Set(redisKey(result.ScanID), data, r.ttl).Err()
}

func (r *Redis) Get(ctx context.Context, scanID string) (*audit.Result, error) {
	data, err := r.client.WithContext(ctx).Get(redisKey(scanID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeResult(data)
}

func (r *Redis) Close() error {
	return r.client.Close()
}
