package analytics

import (
	"io/ioutil"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/verdict"
)

func TestAuditObjectToJson(t *testing.T) {
	ao := &AuditObject{
		Status:      200,
		ScanID:      "scan-1",
		PublisherID: "pub-1",
		Result: &audit.Result{
			ScanID:  "scan-1",
			Verdict: verdict.Result{Verdict: verdict.VerdictWarn, Score: 45},
		},
	}
	out := ao.ToJson()
	assert.Contains(t, out, `"scanId":"scan-1"`)
	assert.Contains(t, out, `"verdict":"WARN"`)
	assert.NotContains(t, out, `"errors"`)
}

func TestValidateObjectToJson(t *testing.T) {
	vo := &ValidateObject{Status: 400, Valid: false, Errors: []string{"missing scanId"}}
	out := vo.ToJson()
	assert.Contains(t, out, `"valid":false`)
	assert.Contains(t, out, `"missing scanId"`)
}

func TestFileLoggerWrites(t *testing.T) {
	dir, err := ioutil.TempDir("", "analytics")
	if err != nil {
		t.Fatalf("Unable to create temp dir: %v", err)
	}
	defer os.RemoveAll(dir)

	logger, err := NewFileLogger(dir + "/audit.log")
	if err != nil {
		t.Fatalf("Unable to create file logger: %v", err)
	}

	logger.LogAuditObject(&AuditObject{Status: 200, ScanID: "scan-1", PublisherID: "pub-1"})
	logger.LogValidateObject(&ValidateObject{Status: 200, Valid: true})

	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatalf("Unable to read temp dir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("Expected the file logger to create a log file")
	}

	var contents strings.Builder
	for _, entry := range entries {
		b, err := ioutil.ReadFile(dir + "/" + entry.Name())
		if err != nil {
			t.Fatalf("Unable to read log file: %v", err)
		}
		contents.Write(b)
	}
	assert.Contains(t, contents.String(), "scan-1")
}
