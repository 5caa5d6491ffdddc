package core

import (
	"context"
	"time"
)

// AnalysisClient defines the interface for submitting a message file to the
// analysis service.
type AnalysisClient interface {
	// Analyze posts the file and returns the raw JSON response body. The
	// payload shape is not guaranteed; callers hand it to a ReportNormalizer.
	Analyze(ctx context.Context, file *SelectedFile) ([]byte, error)

	// Health probes the service availability endpoint.
	Health(ctx context.Context) error
}

// ReportNormalizer reconciles an arbitrary service payload into the
// canonical RiskReport. It never fails; unexpected shapes degrade to
// placeholder fields.
type ReportNormalizer interface {
	Normalize(raw []byte) *RiskReport
}

// CacheRepository defines the interface for caching analysis results within
// a session.
type CacheRepository interface {
	// Get retrieves a cached report by file digest.
	Get(ctx context.Context, digest string) (*CacheEntry, error)

	// Set stores a cache entry.
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry.
	Delete(ctx context.Context, digest string) error

	// Cleanup removes expired entries.
	Cleanup(ctx context.Context) error
}

// PipelineMetrics receives submission lifecycle events. A nil-safe no-op
// implementation exists for surfaces that do not export metrics.
type PipelineMetrics interface {
	SubmissionStarted()
	SubmissionCompleted(d time.Duration)
	SubmissionFailed()
	SubmissionTimedOut()
	RetryIssued()
	StaleResponseDiscarded()
	CacheHit()
}
