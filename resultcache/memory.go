package resultcache

import (
	"context"

	"github.com/coocood/freecache"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/config"
)

const defaultMemorySize = 64 * 1024 * 1024

// Memory is the in-process backend. Suitable for single-node deployments
// and for tests.
type Memory struct {
	cache      *freecache.Cache
	ttlSeconds int
}

func NewMemory(cfg config.ResultCache) *Memory {
	size := cfg.SizeBytes
	if size <= 0 {
		size = defaultMemorySize
	}
	return &Memory{
		cache:      freecache.NewCache(size),
		ttlSeconds: cfg.TTLSeconds,
	}
}

func (m *Memory) Put(ctx context.Context, result *audit.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return m.cache.Set([]byte(result.ScanID), data, m.ttlSeconds)
}

func (m *Memory) Get(ctx context.Context, scanID string) (*audit.Result, error) {
	data, err := m.cache.Get([]byte(scanID))
	if err != nil {
		return nil, ErrNotFound
	}
	return decodeResult(data)
}

func (m *Memory) Close() error {
	m.cache.Clear()
	return nil
}
