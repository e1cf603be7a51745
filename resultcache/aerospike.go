package resultcache

import (
	"context"

	"github.com/aerospike/aerospike-client-go"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/config"
)

const aerospikeSet = "audit_results"
const aerospikeBin = "result"

// Aerospike is the aerospike backend.
type Aerospike struct {
	client *aerospike.Client
	ns     string
	ttl    int
}

func NewAerospike(cfg config.ResultCache) (*Aerospike, error) {
	port := cfg.Port
	if port == 0 {
		port = 3000
	}
	client, err := aerospike.NewClient(cfg.Host, port)
	if err != nil {
		return nil, err
	}
	return &Aerospike{
		client: client,
		ns:     cfg.Namespace,
		ttl:    cfg.TTLSeconds,
	}, nil
}

func (a *Aerospike) writePolicy() *aerospike.WritePolicy {
	return aerospike.NewWritePolicy(0, uint32(a.ttl))
}

func (a *Aerospike) Put(ctx context.Context, result *audit.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	key, err := aerospike.NewKey(a.ns, aerospikeSet, result.ScanID)
	if err != nil {
		return err
	}
	return a.client.Put(a.writePolicy(), key, aerospike.BinMap{aerospikeBin: data})
}

func (a *Aerospike) Get(ctx context.Context, scanID string) (*audit.Result, error) {
	key, err := aerospike.NewKey(a.ns, aerospikeSet, scanID)
	if err != nil {
		return nil, err
	}
	rec, err := a.client.Get(nil, key, aerospikeBin)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	data, ok := rec.Bins[aerospikeBin].([]byte)
	if !ok {
		return nil, ErrNotFound
	}
	return decodeResult(data)
}

func (a *Aerospike) Close() error {
	a.client.Close()
	return nil
}
