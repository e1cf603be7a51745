package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Configuration
type Configuration struct {
	ExternalURL         string  `mapstructure:"external_url"`
	Host                string  `mapstructure:"host"`
	Port                int     `mapstructure:"port"`
	AdminPort           int     `mapstructure:"admin_port"`
	DefaultTimeout      uint64  `mapstructure:"default_timeout_ms"`
	MinCollectorVersion string  `mapstructure:"min_collector_version"`
	RateLimitPerSecond  float64 `mapstructure:"rate_limit_per_second"`
	EnableGzip          bool    `mapstructure:"enable_gzip"`

	Audit       Audit       `mapstructure:"audit"`
	Verdict     Verdict     `mapstructure:"verdict"`
	Metrics     Metrics     `mapstructure:"metrics"`
	Prometheus  Prometheus  `mapstructure:"prometheus"`
	DataStore   DataStore   `mapstructure:"datastore"`
	ResultCache ResultCache `mapstructure:"resultcache"`
	Analytics   Analytics   `mapstructure:"analytics"`
}

// Audit carries the pipeline tunables. Zero values defer to the package
// defaults.
type Audit struct {
	DedupTTLMs                int64   `mapstructure:"dedup_ttl_ms"`
	CorrelationWindowMs       int64   `mapstructure:"correlation_window_ms"`
	ClickWindowMs             int64   `mapstructure:"click_window_ms"`
	ViewabilityDiscrepancyPct float64 `mapstructure:"viewability_discrepancy_pct"`
}

// Verdict carries the rule-engine thresholds and feature weights. Publishers
// may override these per account through the datastore.
type Verdict struct {
	FailThreshold    int `mapstructure:"fail_threshold"`
	WarnThreshold    int `mapstructure:"warn_threshold"`
	MonetizedWeight  int `mapstructure:"monetized_weight"`
	StructuralWeight int `mapstructure:"structural_weight"`
	TelemetryWeight  int `mapstructure:"telemetry_weight"`
	AmplifierWeight  int `mapstructure:"amplifier_weight"`
}

// Metrics is the InfluxDB exporter target. An empty host disables the
// exporter.
type Metrics struct {
	Host     string `mapstructure:"host"`
	Database string `mapstructure:"database"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Prometheus configures the pull endpoint. Port 0 disables it.
type Prometheus struct {
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Subsystem string `mapstructure:"subsystem"`
}

// DataStore is the publisher-configuration backend.
type DataStore struct {
	Type       string `mapstructure:"type"`
	Host       string `mapstructure:"host"`
	Database   string `mapstructure:"dbname"`
	Username   string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	CacheSize  int    `mapstructure:"cache_size"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// ResultCache is the audit-result cache backend.
type ResultCache struct {
	Type       string `mapstructure:"type"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Database   int    `mapstructure:"database"`
	Keyspace   string `mapstructure:"keyspace"`
	Namespace  string `mapstructure:"namespace"`
	Password   string `mapstructure:"password"`
	SizeBytes  int    `mapstructure:"size_bytes"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type Analytics struct {
	File FileLogs `mapstructure:"file"`
}

// FileLogs enables the file-based audit log when Filename is non-empty.
type FileLogs struct {
	Filename string `mapstructure:"filename"`
}

// New uses viper to get our server configurations
func New() (*Configuration, error) {
	var c Configuration
	if err := viper.Unmarshal(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ReportEndpoint builds the externally visible URL of one audit report.
func (cfg *Configuration) ReportEndpoint(scanID string) string {
	return fmt.Sprintf("%s/audit/%s", strings.TrimSuffix(cfg.ExternalURL, "/"), scanID)
}
