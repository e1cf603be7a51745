package resultcache

import (
	"context"
	"fmt"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/config"
)

// Memcache is the memcached backend.
type Memcache struct {
	client     *memcache.Client
	ttlSeconds int32
}

func NewMemcache(cfg config.ResultCache) *Memcache {
	return &Memcache{
		client:     memcache.New(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		ttlSeconds: int32(cfg.TTLSeconds),
	}
}

func (m *Memcache) Put(ctx context.Context, result *audit.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return m.client.Set(&memcache.Item{
		Key:        result.ScanID,
		Value:      data,
		Expiration: m.ttlSeconds,
	})
}

func (m *Memcache) Get(ctx context.Context, scanID string) (*audit.Result, error) {
	item, err := m.client.Get(scanID)
	if err != nil {
		if err == memcache.ErrCacheMiss {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeResult(item.Value)
}

func (m *Memcache) Close() error {
	return nil
}
