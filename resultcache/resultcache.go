package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang/snappy"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/config"
)

// ErrNotFound is returned when no result is cached for the scan id.
var ErrNotFound = errors.New("result not cached")

// Client caches finished audit results keyed by scan id, so report reads
// don't replay the pipeline or hit the datastore.
type Client interface {
	Put(ctx context.Context, result *audit.Result) error
	Get(ctx context.Context, scanID string) (*audit.Result, error)
	Close() error
}

// New builds the backend named by cfg.Type.
func New(cfg config.ResultCache) (Client, error) {
	switch cfg.Type {
	case "memory":
		return NewMemory(cfg), nil
	case "redis":
		return NewRedis(cfg), nil
	case "memcache":
		return NewMemcache(cfg), nil
	case "aerospike":
		return NewAerospike(cfg)
	case "cassandra":
		return NewCassandra(cfg)
	}
	return nil, fmt.Errorf("Unknown resultcache.type: %s", cfg.Type)
}

// Results travel as snappy-compressed JSON in every backend.
func encodeResult(result *audit.Result) ([]byte, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return snappy.Encode(nil, raw), nil
}

func decodeResult(compressed []byte) (*audit.Result, error) {
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, err
	}
	var result audit.Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
