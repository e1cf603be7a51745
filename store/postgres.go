package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coocood/freecache"
	jsonpatch "github.com/evanphx/json-patch"
	"github.com/golang/glog"
	_ "github.com/lib/pq"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/errortypes"
	"github.com/adverify/adverify-server/verdict"
)

type PostgresConfig struct {
	Host     string
	Port     int
	Dbname   string
	User     string
	Password string
	TTL      int
	Size     int
}

func (c PostgresConfig) uri() string {
	uri := ""
	if c.Host != "" {
		uri += fmt.Sprintf("host=%s ", c.Host)
	}

	if c.Port > 0 {
		uri += fmt.Sprintf("port=%d ", c.Port)
	}

	if c.User != "" {
		uri += fmt.Sprintf("user=%s ", c.User)
	}

	if c.Password != "" {
		uri += fmt.Sprintf("password=%s ", c.Password)
	}

	if c.Dbname != "" {
		uri += fmt.Sprintf("dbname=%s ", c.Dbname)
	}

	return uri
}

// shared configuration that gets used by all of the services
type shared struct {
	db         *sql.DB
	lru        *freecache.Cache
	ttlSeconds int
	defaults   verdict.Config
	metrics    auditmetrics.MetricsEngine
}

func newShared(conf PostgresConfig, defaults verdict.Config, metrics auditmetrics.MetricsEngine) (*shared, error) {
	db, err := sql.Open("postgres", conf.uri()+" sslmode=disable")
	if err != nil {
		return nil, err
	}

	if metrics == nil {
		metrics = &auditmetrics.DummyMetricsEngine{}
	}
	s := &shared{
		db:         db,
		lru:        freecache.NewCache(conf.Size),
		ttlSeconds: conf.TTL,
		defaults:   defaults,
		metrics:    metrics,
	}

	if err := s.db.Ping(); err != nil {
		/* This is for information only; we'll still operate w/o db */
		glog.Errorf("failed to connect to db store: %v", err)
	}

	return s, nil
}

// storeErr records the failure and classifies it for callers that branch on
// the error code. A deadline that expired mid-operation reports as a timeout.
func (s *shared) storeErr(ctx context.Context, op string, err error) error {
	s.metrics.RecordStoreResult(auditmetrics.StoreError, 1)
	if ctx.Err() == context.DeadlineExceeded {
		return &errortypes.Timeout{Message: fmt.Sprintf("%s: %v", op, err)}
	}
	return &errortypes.StoreError{Message: fmt.Sprintf("%s: %v", op, err)}
}

// Postgres is the postgres-backed Store.
type Postgres struct {
	shared *shared

	publishers *publisherService
	reports    *reportService
}

// NewPostgres creates a new postgres Store.
func NewPostgres(cfg PostgresConfig, defaults verdict.Config, metrics auditmetrics.MetricsEngine) (*Postgres, error) {
	shared, err := newShared(cfg, defaults, metrics)
	if err != nil {
		return nil, err
	}
	return &Postgres{
		shared:     shared,
		publishers: &publisherService{shared: shared},
		reports:    &reportService{shared: shared},
	}, nil
}

func (p *Postgres) Publishers() PublisherService {
	return p.publishers
}

func (p *Postgres) Reports() ReportService {
	return p.reports
}

func (p *Postgres) Close() error {
	return p.shared.db.Close()
}

// publisherService handles the publisher profile information
type publisherService struct {
	shared *shared
}

func (s *publisherService) Get(ctx context.Context, id string) (*PublisherProfile, error) {
	b, err := s.shared.lru.Get([]byte(id))
	if err == nil {
		s.shared.metrics.RecordStoreResult(auditmetrics.StoreHit, 1)
		return decodeProfile(b), nil
	}

	var name string
	var benignVendors sql.NullString
	var overrides []byte
	row := s.shared.db.QueryRowContext(ctx,
		"SELECT name, benign_vendors, verdict_overrides FROM publishers WHERE publisher_id = $1 LIMIT 1", id)
	if err := row.Scan(&name, &benignVendors, &overrides); err != nil {
		if err == sql.ErrNoRows {
			// An unknown publisher is a miss, not a store failure.
			s.shared.metrics.RecordStoreResult(auditmetrics.StoreMiss, 1)
			return nil, err
		}
		return nil, s.shared.storeErr(ctx, "load publisher "+id, err)
	}
	s.shared.metrics.RecordStoreResult(auditmetrics.StoreMiss, 1)

	profile := &PublisherProfile{
		ID:      id,
		Name:    name,
		Verdict: s.shared.defaults,
	}
	if benignVendors.Valid && benignVendors.String != "" {
		profile.BenignVendors = strings.Split(benignVendors.String, ",")
	}
	if len(overrides) > 0 {
		merged, err := mergeVerdictConfig(s.shared.defaults, overrides)
		if err != nil {
			glog.Errorf("Malformed verdict overrides for publisher %s: %v", id, err)
		} else {
			profile.Verdict = merged
		}
	}

	buf := bytes.Buffer{}
	if err := gob.NewEncoder(&buf).Encode(profile); err != nil {
		panic(err)
	}

	s.shared.lru.Set([]byte(id), buf.Bytes(), s.shared.ttlSeconds)
	return profile, nil
}

func decodeProfile(b []byte) *PublisherProfile {
	var profile PublisherProfile
	buf := bytes.NewReader(b)
	if err := gob.NewDecoder(buf).Decode(&profile); err != nil {
		panic(err)
	}
	return &profile
}

// mergeVerdictConfig applies a publisher's JSON merge patch on top of the
// server defaults. Fields absent from the patch keep their default values.
func mergeVerdictConfig(defaults verdict.Config, overrides []byte) (verdict.Config, error) {
	base, err := json.Marshal(defaults)
	if err != nil {
		return defaults, err
	}
	merged, err := jsonpatch.MergePatch(base, overrides)
	if err != nil {
		return defaults, err
	}
	var out verdict.Config
	if err := json.Unmarshal(merged, &out); err != nil {
		return defaults, err
	}
	return out, nil
}

// reportService persists audit results
type reportService struct {
	shared *shared
}

// SaveResult writes the verdict row and the vendor aggregate rows for one
// scan. Rerunning an audit replaces the previous rows, so saves are
// idempotent per (scan, publisher).
func (s *reportService) SaveResult(ctx context.Context, result *audit.Result) error {
	tx, err := s.shared.db.BeginTx(ctx, nil)
	if err != nil {
		return s.shared.storeErr(ctx, "begin save for scan "+result.ScanID, err)
	}

	if err := saveVerdict(ctx, tx, result); err != nil {
		tx.Rollback()
		return s.shared.storeErr(ctx, "save verdict for scan "+result.ScanID, err)
	}
	if err := saveAggregates(ctx, tx, result); err != nil {
		tx.Rollback()
		return s.shared.storeErr(ctx, "save aggregates for scan "+result.ScanID, err)
	}
	if err := tx.Commit(); err != nil {
		return s.shared.storeErr(ctx, "commit save for scan "+result.ScanID, err)
	}
	return nil
}

func saveVerdict(ctx context.Context, tx *sql.Tx, result *audit.Result) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM verdicts WHERE scan_id = $1 AND publisher_id = $2",
		result.ScanID, result.PublisherID); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO verdicts (scan_id, publisher_id, report_id, verdict, score, confidence, classification, generated_at_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.ScanID, result.PublisherID, result.ReportID,
		result.Verdict.Verdict, result.Verdict.Score, result.Verdict.Confidence,
		result.Verdict.Classification.Primary, result.GeneratedAtMs)
	return err
}

func saveAggregates(ctx context.Context, tx *sql.Tx, result *audit.Result) error {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM vendor_aggregates WHERE scan_id = $1 AND publisher_id = $2",
		result.ScanID, result.PublisherID); err != nil {
		return err
	}
	for _, agg := range result.Aggregates {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vendor_aggregates (scan_id, publisher_id, vendor_host, ad_slot_id, impressions,
			   unique_fingerprints, duplicate_count, duplication_rate, max_per_second, burst_events_1s,
			   median_inter_event_ms, first_seen, last_seen, stacking_suspected)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			agg.ScanID, agg.PublisherID, agg.VendorHost, agg.AdSlotID, agg.Impressions,
			agg.UniqueFingerprints, agg.DuplicateCount, agg.DuplicationRate, agg.MaxPerSecond,
			agg.BurstEvents1s, agg.MedianInterEventMs, agg.FirstSeen, agg.LastSeen,
			agg.StackingSuspected); err != nil {
			return err
		}
	}
	return nil
}
