package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/adverify/adverify-server/analytics"
	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/auditmetrics"
	"github.com/adverify/adverify-server/config"
	"github.com/adverify/adverify-server/resultcache"
	"github.com/adverify/adverify-server/store"
	"github.com/adverify/adverify-server/verdict"
)

const safariUA = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.1 Safari/605.1.15"

type fakeStore struct {
	profile    *store.PublisherProfile
	profileErr error
	saved      []*audit.Result
	saveErr    error
}

func (s *fakeStore) Publishers() store.PublisherService { return s }
func (s *fakeStore) Reports() store.ReportService       { return s }
func (s *fakeStore) Close() error                       { return nil }

func (s *fakeStore) Get(ctx context.Context, id string) (*store.PublisherProfile, error) {
	if s.profileErr != nil {
		return nil, s.profileErr
	}
	return s.profile, nil
}

func (s *fakeStore) SaveResult(ctx context.Context, result *audit.Result) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, result)
	return nil
}

type capturingLogger struct {
	auditObjects    []*analytics.AuditObject
	validateObjects []*analytics.ValidateObject
}

func (l *capturingLogger) LogAuditObject(ao *analytics.AuditObject) {
	l.auditObjects = append(l.auditObjects, ao)
}

func (l *capturingLogger) LogValidateObject(vo *analytics.ValidateObject) {
	l.validateObjects = append(l.validateObjects, vo)
}

func fixtureBody(t *testing.T) []byte {
	t.Helper()
	body, err := ioutil.ReadFile("../audit/testdata/lapatilla_scan.json")
	if err != nil {
		t.Fatalf("Failed to read scan fixture: %v", err)
	}
	return body
}

func newMemoryCache(t *testing.T) resultcache.Client {
	t.Helper()
	client, err := resultcache.New(config.ResultCache{Type: "memory", TTLSeconds: 60})
	if err != nil {
		t.Fatalf("Failed to build memory result cache: %v", err)
	}
	return client
}

func doAudit(deps *AuditDeps, body []byte, ua string) *httptest.ResponseRecorder {
	router := httprouter.New()
	router.POST("/audit", deps.Audit)
	req := httptest.NewRequest("POST", "/audit", bytes.NewReader(body))
	if ua != "" {
		req.Header.Set("User-Agent", ua)
	}
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)
	return recorder
}

func TestAuditEndpoint(t *testing.T) {
	st := &fakeStore{}
	cache := newMemoryCache(t)
	logger := &capturingLogger{}
	deps := &AuditDeps{
		VerdictDefaults: verdict.DefaultConfig(),
		Store:           st,
		Cache:           cache,
		Analytics:       logger,
		Metrics:         &auditmetrics.DummyMetricsEngine{},
	}

	recorder := doAudit(deps, fixtureBody(t), safariUA)

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Equal(t, "application/json", recorder.Header().Get("Content-Type"))

	var result audit.Result
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("Response is not a valid audit result: %v", err)
	}
	assert.Equal(t, "scan-lapatilla-001", result.ScanID)
	assert.Equal(t, verdict.VerdictFail, result.Verdict.Verdict)

	if assert.Len(t, st.saved, 1) {
		assert.Equal(t, "scan-lapatilla-001", st.saved[0].ScanID)
	}

	cached, err := cache.Get(context.Background(), "scan-lapatilla-001")
	assert.NoError(t, err)
	assert.Equal(t, result.ReportID, cached.ReportID)

	if assert.Len(t, logger.auditObjects, 1) {
		assert.Equal(t, http.StatusOK, logger.auditObjects[0].Status)
		assert.Equal(t, "pub-lapatilla", logger.auditObjects[0].PublisherID)
		assert.NotNil(t, logger.auditObjects[0].Result)
	}
}

func TestAuditEndpointRecordsMetrics(t *testing.T) {
	metrics := &auditmetrics.MetricsEngineMock{}
	metrics.On("RecordRequest", auditmetrics.Labels{
		RType:         auditmetrics.ReqTypeAudit,
		PubID:         "pub-lapatilla",
		Browser:       auditmetrics.BrowserSafari,
		RequestStatus: auditmetrics.RequestStatusOK,
	}).Once()
	metrics.On("RecordRequestTime", mock.Anything, mock.Anything).Once()
	metrics.On("RecordScanEvents", mock.Anything, 16).Once()
	metrics.On("RecordAuditTime", mock.Anything, mock.Anything).Once()
	metrics.On("RecordVerdict", auditmetrics.ScanLabels{
		PubID:          "pub-lapatilla",
		Verdict:        auditmetrics.VerdictLabelFail,
		Classification: verdict.ClassMonetizedInflation,
	}).Once()
	metrics.On("RecordVerdictScore", mock.Anything, 90).Once()
	metrics.On("RecordDuplicates", mock.Anything, 12).Once()
	metrics.On("RecordStackedPairs", mock.Anything, 10).Once()

	deps := &AuditDeps{
		VerdictDefaults: verdict.DefaultConfig(),
		Metrics:         metrics,
	}

	recorder := doAudit(deps, fixtureBody(t), safariUA)

	assert.Equal(t, http.StatusOK, recorder.Code)
	metrics.AssertExpectations(t)
}

func TestAuditEndpointBadPayload(t *testing.T) {
	logger := &capturingLogger{}
	deps := &AuditDeps{
		VerdictDefaults: verdict.DefaultConfig(),
		Analytics:       logger,
		Metrics:         &auditmetrics.DummyMetricsEngine{},
	}

	recorder := doAudit(deps, []byte(`{"publisherId":"pub-1"}`), "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "scanId")

	if assert.Len(t, logger.auditObjects, 1) {
		assert.Equal(t, http.StatusBadRequest, logger.auditObjects[0].Status)
		assert.NotEmpty(t, logger.auditObjects[0].Errors)
	}
}

func TestAuditEndpointEmptyBody(t *testing.T) {
	deps := &AuditDeps{
		VerdictDefaults: verdict.DefaultConfig(),
		Metrics:         &auditmetrics.DummyMetricsEngine{},
	}

	recorder := doAudit(deps, nil, "")

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAuditEndpointPublisherOverrides(t *testing.T) {
	overridden := verdict.DefaultConfig()
	overridden.FailThreshold = 95
	st := &fakeStore{
		profile: &store.PublisherProfile{
			ID:      "pub-lapatilla",
			Verdict: overridden,
		},
	}
	deps := &AuditDeps{
		VerdictDefaults: verdict.DefaultConfig(),
		Store:           st,
		Metrics:         &auditmetrics.DummyMetricsEngine{},
	}

	recorder := doAudit(deps, fixtureBody(t), "")

	assert.Equal(t, http.StatusOK, recorder.Code)
	var result audit.Result
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("Response is not a valid audit result: %v", err)
	}
	assert.Equal(t, verdict.VerdictWarn, result.Verdict.Verdict)
}

func TestAuditEndpointSurvivesStoreFailure(t *testing.T) {
	st := &fakeStore{
		profileErr: context.DeadlineExceeded,
		saveErr:    context.DeadlineExceeded,
	}
	deps := &AuditDeps{
		VerdictDefaults: verdict.DefaultConfig(),
		Store:           st,
		Metrics:         &auditmetrics.DummyMetricsEngine{},
	}

	recorder := doAudit(deps, fixtureBody(t), "")

	assert.Equal(t, http.StatusOK, recorder.Code)
}

func TestBrowserOf(t *testing.T) {
	req := httptest.NewRequest("POST", "/audit", nil)
	req.Header.Set("User-Agent", safariUA)
	assert.Equal(t, auditmetrics.BrowserSafari, browserOf(req))

	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/108.0.0.0 Safari/537.36")
	assert.Equal(t, auditmetrics.BrowserOther, browserOf(req))
}

func TestVerdictLabel(t *testing.T) {
	assert.Equal(t, auditmetrics.VerdictLabelPass, verdictLabel(verdict.VerdictPass))
	assert.Equal(t, auditmetrics.VerdictLabelWarn, verdictLabel(verdict.VerdictWarn))
	assert.Equal(t, auditmetrics.VerdictLabelFail, verdictLabel(verdict.VerdictFail))
	assert.Equal(t, auditmetrics.VerdictLabelInsufficient, verdictLabel(verdict.VerdictInsufficientEvidence))
}
