package resultcache

import (
	"context"
	"time"

	"github.com/gocql/gocql"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/config"
)

// Cassandra is the cassandra backend. The audit_results table is expected to
// exist in the configured keyspace with (scan_id text PRIMARY KEY,
// result blob).
type Cassandra struct {
	session *gocql.Session
	ttl     int
}

func NewCassandra(cfg config.ResultCache) (*Cassandra, error) {
	cluster := gocql.NewCluster(cfg.Host)
	cluster.Keyspace = cfg.Keyspace
	cluster.Consistency = gocql.LocalOne
	cluster.Timeout = 2 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}
	return &Cassandra{
		session: session,
		ttl:     cfg.TTLSeconds,
	}, nil
}

func (c *Cassandra) Put(ctx context.Context, result *audit.Result) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	return c.session.Query(
		"INSERT INTO audit_results (scan_id, result) VALUES (?, ?) USING TTL ?",
		result.ScanID, data, c.ttl).WithContext(ctx).Exec()
}

func (c *Cassandra) Get(ctx context.Context, scanID string) (*audit.Result, error) {
	var data []byte
	err := c.session.Query(
		"SELECT result FROM audit_results WHERE scan_id = ?",
		scanID).WithContext(ctx).Scan(&data)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decodeResult(data)
}

func (c *Cassandra) Close() error {
	c.session.Close()
	return nil
}
