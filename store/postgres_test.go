package store

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/coocood/freecache"
	"github.com/stretchr/testify/assert"

	"github.com/adverify/adverify-server/aggregate"
	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/errortypes"
	"github.com/adverify/adverify-server/verdict"
)

const publisherQuery = "SELECT name, benign_vendors, verdict_overrides FROM publishers WHERE publisher_id = $1 LIMIT 1"

func newTestShared(t *testing.T, metrics auditmetrics.MetricsEngine) (*shared, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Unexpected error stubbing DB: %v", err)
	}
	if metrics == nil {
		metrics = &auditmetrics.DummyMetricsEngine{}
	}
	return &shared{
		db:         db,
		lru:        freecache.NewCache(256 * 1024),
		ttlSeconds: 60,
		defaults:   verdict.DefaultConfig(),
		metrics:    metrics,
	}, mock
}

func TestPublisherGetUsesLRUOnRepeat(t *testing.T) {
	metrics := &auditmetrics.MetricsEngineMock{}
	metrics.On("RecordStoreResult", auditmetrics.StoreMiss, 1).Once()
	metrics.On("RecordStoreResult", auditmetrics.StoreHit, 1).Once()

	s, mock := newTestShared(t, metrics)
	defer s.db.Close()
	svc := &publisherService{shared: s}

	rows := sqlmock.NewRows([]string{"name", "benign_vendors", "verdict_overrides"}).
		AddRow("La Patilla", "cmp.lapatilla.example", []byte(`{"failThreshold":80}`))
	mock.ExpectQuery(regexp.QuoteMeta(publisherQuery)).WithArgs("pub-1").WillReturnRows(rows)

	first, err := svc.Get(context.Background(), "pub-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	assert.Equal(t, "La Patilla", first.Name)
	assert.Equal(t, []string{"cmp.lapatilla.example"}, first.BenignVendors)
	assert.Equal(t, 80, first.Verdict.FailThreshold)
	assert.Equal(t, 45, first.Verdict.MonetizedWeight, "fields absent from the patch keep defaults")

	// Second lookup must come from the LRU; no second query is expected.
	second, err := svc.Get(context.Background(), "pub-1")
	if err != nil {
		t.Fatalf("Cached get returned error: %v", err)
	}
	assert.Equal(t, first, second)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("DB expectations not met: %v", err)
	}
	metrics.AssertExpectations(t)
}

func TestPublisherNotFound(t *testing.T) {
	s, mock := newTestShared(t, nil)
	defer s.db.Close()
	svc := &publisherService{shared: s}

	mock.ExpectQuery(regexp.QuoteMeta(publisherQuery)).WithArgs("pub-missing").WillReturnError(sql.ErrNoRows)

	profile, err := svc.Get(context.Background(), "pub-missing")
	assert.Nil(t, profile)
	assert.Equal(t, sql.ErrNoRows, err)
}

func TestMalformedOverridesKeepDefaults(t *testing.T) {
	s, mock := newTestShared(t, nil)
	defer s.db.Close()
	svc := &publisherService{shared: s}

	rows := sqlmock.NewRows([]string{"name", "benign_vendors", "verdict_overrides"}).
		AddRow("Broken", nil, []byte(`{not json`))
	mock.ExpectQuery(regexp.QuoteMeta(publisherQuery)).WithArgs("pub-2").WillReturnRows(rows)

	profile, err := svc.Get(context.Background(), "pub-2")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	assert.Equal(t, verdict.DefaultConfig(), profile.Verdict)
	assert.Empty(t, profile.BenignVendors)
}

func TestMergeVerdictConfig(t *testing.T) {
	merged, err := mergeVerdictConfig(verdict.DefaultConfig(), []byte(`{"warnThreshold":25,"telemetryWeight":20}`))
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}
	assert.Equal(t, 25, merged.WarnThreshold)
	assert.Equal(t, 20, merged.TelemetryWeight)
	assert.Equal(t, 70, merged.FailThreshold)
}

func TestSaveResultReplacesRows(t *testing.T) {
	s, mock := newTestShared(t, nil)
	defer s.db.Close()
	svc := &reportService{shared: s}

	result := &audit.Result{
		ScanID:        "scan-1",
		PublisherID:   "pub-1",
		ReportID:      "report-1",
		GeneratedAtMs: 1700000000000,
		Verdict: verdict.Result{
			Verdict:        verdict.VerdictFail,
			Score:          90,
			Confidence:     80,
			Classification: verdict.Classification{Primary: verdict.ClassMonetizedInflation},
		},
		Aggregates: []aggregate.VendorAggregate{
			{ScanID: "scan-1", PublisherID: "pub-1", VendorHost: "ads.example.com", AdSlotID: "s1", Impressions: 13},
			{ScanID: "scan-1", PublisherID: "pub-1", VendorHost: "track.example.net", AdSlotID: "s2", Impressions: 2},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM verdicts").WithArgs("scan-1", "pub-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO verdicts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM vendor_aggregates").WithArgs("scan-1", "pub-1").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO vendor_aggregates").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO vendor_aggregates").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := svc.SaveResult(context.Background(), result); err != nil {
		t.Fatalf("SaveResult returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("DB expectations not met: %v", err)
	}
}

func TestSaveResultRollsBackOnError(t *testing.T) {
	s, mock := newTestShared(t, nil)
	defer s.db.Close()
	svc := &reportService{shared: s}

	result := &audit.Result{ScanID: "scan-1", PublisherID: "pub-1"}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM verdicts").WithArgs("scan-1", "pub-1").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := svc.SaveResult(context.Background(), result)
	if err == nil {
		t.Fatal("SaveResult should have returned an error")
	}
	assert.Equal(t, errortypes.StoreErrorCode, errortypes.ReadCode(err))
	assert.Contains(t, err.Error(), sql.ErrConnDone.Error())
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("DB expectations not met: %v", err)
	}
}

func TestSaveResultClassifiesExpiredDeadline(t *testing.T) {
	s, _ := newTestShared(t, nil)
	defer s.db.Close()
	svc := &reportService{shared: s}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	err := svc.SaveResult(ctx, &audit.Result{ScanID: "scan-1", PublisherID: "pub-1"})
	if err == nil {
		t.Fatal("SaveResult should have returned an error")
	}
	assert.Equal(t, errortypes.TimeoutErrorCode, errortypes.ReadCode(err))
}

func TestSaveResultFailureRecordsStoreError(t *testing.T) {
	metrics := &auditmetrics.MetricsEngineMock{}
	metrics.On("RecordStoreResult", auditmetrics.StoreError, 1).Once()

	s, mock := newTestShared(t, metrics)
	defer s.db.Close()
	svc := &reportService{shared: s}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM verdicts").WithArgs("scan-1", "pub-1").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	svc.SaveResult(context.Background(), &audit.Result{ScanID: "scan-1", PublisherID: "pub-1"})
	metrics.AssertExpectations(t)
}
