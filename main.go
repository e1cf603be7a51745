package main

import (
	"flag"
	"fmt"
	"io/ioutil"
	"math/rand"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/didip/tollbooth"
	"github.com/didip/tollbooth/limiter"
	"github.com/golang/glog"
	"github.com/julienschmidt/httprouter"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/rs/cors"
	"github.com/spf13/viper"
	"github.com/xeipuuv/gojsonschema"

	"github.com/adverify/adverify-server/analytics"
	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/auditmetrics"
	prometheusmetrics "github.com/adverify/adverify-server/auditmetrics/prometheus"
	"github.com/adverify/adverify-server/config"
	"github.com/adverify/adverify-server/endpoints"
	"github.com/adverify/adverify-server/resultcache"
	"github.com/adverify/adverify-server/server"
	"github.com/adverify/adverify-server/store"
	"github.com/adverify/adverify-server/verdict"
)

// Rev and Version are injected at build time via ldflags for the /version endpoint.
var (
	Rev     string
	Version string
)

func init() {
	rand.Seed(time.Now().UnixNano())
	viper.SetConfigName("adverify")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/config")

	viper.SetDefault("external_url", "http://localhost:8000")
	viper.SetDefault("port", 8000)
	viper.SetDefault("admin_port", 6060)
	viper.SetDefault("default_timeout_ms", 250)
	viper.SetDefault("rate_limit_per_second", 100)
	viper.SetDefault("datastore.type", "none")
	viper.SetDefault("resultcache.type", "memory")
	viper.SetDefault("resultcache.ttl_seconds", 3600)
	viper.SetDefault("audit.dedup_ttl_ms", 15000)
	viper.SetDefault("audit.correlation_window_ms", 5000)
	viper.SetDefault("audit.click_window_ms", 1500)
	viper.SetDefault("audit.viewability_discrepancy_pct", 10.0)
	viper.SetDefault("prometheus.namespace", "adverify")
	viper.SetDefault("prometheus.subsystem", "server")
	// no metrics configured by default (metrics{host|database|username|password})
	viper.ReadInConfig()

	flag.Parse() // read glog settings from cmd line
}

func main() {
	cfg, err := config.New()
	if err != nil {
		glog.Errorf("Viper was unable to read configurations: %v", err)
	}
	if err := serve(cfg); err != nil {
		glog.Fatalf("AdVerify Server encountered an error: %v", err)
	}
}

func serve(cfg *config.Configuration) error {
	metricsRegistry := metrics.NewPrefixedRegistry("adverify.")
	goMetrics := auditmetrics.NewMetrics(metricsRegistry)
	if cfg.Metrics.Host != "" {
		go goMetrics.Export(cfg.Metrics)
	}

	engineList := auditmetrics.MultiMetricsEngine{goMetrics}
	var proMetrics *prometheusmetrics.Metrics
	if cfg.Prometheus.Port != 0 {
		proMetrics = prometheusmetrics.NewMetrics(cfg.Prometheus)
		engineList = append(engineList, proMetrics)
	}
	var metricsEngine auditmetrics.MetricsEngine = &engineList

	defaults := verdictDefaults(cfg.Verdict)

	dataStore, err := loadDataStore(cfg, defaults, metricsEngine)
	if err != nil {
		return fmt.Errorf("AdVerify Server could not load data store: %v", err)
	}

	cache, err := resultcache.New(cfg.ResultCache)
	if err != nil {
		return fmt.Errorf("AdVerify Server could not load result cache: %v", err)
	}

	var auditLogger analytics.AuditLogger
	if cfg.Analytics.File.Filename != "" {
		auditLogger, err = analytics.NewFileLogger(cfg.Analytics.File.Filename)
		if err != nil {
			glog.Errorf("Unable to open analytics file log: %v", err)
		}
	}

	defaultTimeout := time.Duration(cfg.DefaultTimeout) * time.Millisecond

	auditDeps := &endpoints.AuditDeps{
		AuditCfg: audit.Config{
			DedupTTLMs:                cfg.Audit.DedupTTLMs,
			CorrelationWindowMs:       cfg.Audit.CorrelationWindowMs,
			ClickWindowMs:             cfg.Audit.ClickWindowMs,
			ViewabilityDiscrepancyPct: cfg.Audit.ViewabilityDiscrepancyPct,
		},
		VerdictDefaults:     defaults,
		MinCollectorVersion: cfg.MinCollectorVersion,
		DefaultTimeout:      defaultTimeout,
		Store:               dataStore,
		Cache:               cache,
		Analytics:           auditLogger,
		Metrics:             metricsEngine,
	}
	validateDeps := &endpoints.ValidateDeps{
		Schema:    loadSchema(),
		Analytics: auditLogger,
		Metrics:   metricsEngine,
	}
	reportDeps := &endpoints.ReportDeps{
		Cache:          cache,
		DefaultTimeout: defaultTimeout,
		Metrics:        metricsEngine,
	}

	router := httprouter.New()
	router.POST("/audit", auditDeps.Audit)
	router.POST("/validate", validateDeps.Validate)
	router.GET("/audit/:scanId", reportDeps.Report)
	router.GET("/status", endpoints.Status)
	router.GET("/version", endpoints.NewVersionEndpoint(Version, Rev))
	router.GET("/", endpoints.ServeIndex)
	router.ServeFiles("/static/*filepath", http.Dir("static"))

	// Add CORS middleware
	c := cors.New(cors.Options{AllowCredentials: true})
	corsRouter := c.Handler(router)

	var handler http.Handler = corsRouter
	if cfg.RateLimitPerSecond > 0 {
		limit := tollbooth.NewLimiter(cfg.RateLimitPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: time.Hour})
		handler = limitHandler(handler, limit)
	}

	// Add no cache headers
	noCacheHandler := NoCache{handler}

	server.Listen(cfg, noCacheHandler, http.DefaultServeMux, metricsEngine, proMetrics)
	return nil
}

// verdictDefaults overlays the configured thresholds and weights on the
// built-in defaults, so that unset fields keep their documented values.
func verdictDefaults(cfg config.Verdict) verdict.Config {
	def := verdict.DefaultConfig()
	if cfg.FailThreshold > 0 {
		def.FailThreshold = cfg.FailThreshold
	}
	if cfg.WarnThreshold > 0 {
		def.WarnThreshold = cfg.WarnThreshold
	}
	if cfg.MonetizedWeight > 0 {
		def.MonetizedWeight = cfg.MonetizedWeight
	}
	if cfg.StructuralWeight > 0 {
		def.StructuralWeight = cfg.StructuralWeight
	}
	if cfg.TelemetryWeight > 0 {
		def.TelemetryWeight = cfg.TelemetryWeight
	}
	if cfg.AmplifierWeight > 0 {
		def.AmplifierWeight = cfg.AmplifierWeight
	}
	return def
}

func loadDataStore(cfg *config.Configuration, defaults verdict.Config, metricsEngine auditmetrics.MetricsEngine) (store.Store, error) {
	switch cfg.DataStore.Type {
	case "", "none":
		return nil, nil

	case "postgres":
		return store.NewPostgres(store.PostgresConfig{
			Dbname:   cfg.DataStore.Database,
			Host:     cfg.DataStore.Host,
			User:     cfg.DataStore.Username,
			Password: cfg.DataStore.Password,
			Size:     cfg.DataStore.CacheSize,
			TTL:      cfg.DataStore.TTLSeconds,
		}, defaults, metricsEngine)

	default:
		return nil, fmt.Errorf("Unknown datastore.type: %s", cfg.DataStore.Type)
	}
}

func loadSchema() *gojsonschema.Schema {
	b, err := ioutil.ReadFile("static/scan_request.json")
	if err != nil {
		glog.Errorf("Unable to open scan_request.json: %v", err)
		return nil
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(string(b)))
	if err != nil {
		glog.Errorf("Unable to load scan request schema: %v", err)
		return nil
	}
	return schema
}

func limitHandler(h http.Handler, lmt *limiter.Limiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpError := tollbooth.LimitByRequest(lmt, w, r); httpError != nil {
			w.Header().Add("Content-Type", lmt.GetMessageContentType())
			w.WriteHeader(httpError.StatusCode)
			w.Write([]byte(httpError.Message))
			return
		}
		h.ServeHTTP(w, r)
	})
}

type NoCache struct {
	handler http.Handler
}

func (m NoCache) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Add("Pragma", "no-cache")
	w.Header().Add("Expires", "0")
	m.handler.ServeHTTP(w, r)
}
