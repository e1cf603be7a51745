package store

import (
	"context"

	"github.com/adverify/adverify-server/audit"
	"github.com/adverify/adverify-server/verdict"
)

// PublisherProfile is the per-publisher configuration kept in the datastore.
type PublisherProfile struct {
	ID   string
	Name string
	// BenignVendors lists extra hostnames this publisher wants treated as
	// benign infrastructure, on top of the built-in list.
	BenignVendors []string
	// Verdict is the effective rule-engine configuration: the server
	// defaults with the publisher's overrides merged in.
	Verdict verdict.Config
}

// PublisherService looks up publisher profiles.
type PublisherService interface {
	Get(ctx context.Context, id string) (*PublisherProfile, error)
}

// ReportService persists finished audit results.
type ReportService interface {
	SaveResult(ctx context.Context, result *audit.Result) error
}

// Store bundles the datastore services behind one connection.
type Store interface {
	Publishers() PublisherService
	Reports() ReportService
	Close() error
}
