package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestNewReadsViperValues(t *testing.T) {
	viper.Reset()
	viper.Set("external_url", "https://audit.example.org")
	viper.Set("port", 8000)
	viper.Set("audit.dedup_ttl_ms", 20000)
	viper.Set("verdict.fail_threshold", 80)
	viper.Set("datastore.type", "postgres")
	viper.Set("resultcache.type", "redis")
	defer viper.Reset()

	cfg, err := New()
	if err != nil {
		t.Fatalf("Viper was unable to read configurations: %v", err)
	}
	assert.Equal(t, "https://audit.example.org", cfg.ExternalURL)
	assert.Equal(t, 8000, cfg.Port)
	assert.Equal(t, int64(20000), cfg.Audit.DedupTTLMs)
	assert.Equal(t, 80, cfg.Verdict.FailThreshold)
	assert.Equal(t, "postgres", cfg.DataStore.Type)
	assert.Equal(t, "redis", cfg.ResultCache.Type)
}

func TestReportEndpoint(t *testing.T) {
	cfg := &Configuration{ExternalURL: "https://audit.example.org/"}
	assert.Equal(t, "https://audit.example.org/audit/scan-1", cfg.ReportEndpoint("scan-1"))
}
