package core

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// AuthStatus is the normalized verdict for an email authentication check
// (SPF, DKIM or DMARC). Besides the enumerated values, a raw string from the
// service may be passed through as a display label.
type AuthStatus string

const (
	StatusPass    AuthStatus = "Pass"
	StatusFail    AuthStatus = "Fail"
	StatusNeutral AuthStatus = "Neutral"
	StatusUnknown AuthStatus = "Unknown"
)

// RiskLevel is the coarse risk classification of an analyzed message.
type RiskLevel string

const (
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
	RiskUnknown RiskLevel = "Unknown"
)

// Placeholder values rendered when the service omits a field.
const (
	PlaceholderUnknown  = "Unknown"
	PlaceholderNotFound = "Not found"
	PlaceholderDash     = "—"
)

// DeriveRiskLevel maps an overall score to a risk level. Used when the
// service returns a score without a level.
func DeriveRiskLevel(score int) RiskLevel {
	switch {
	case score < 35:
		return RiskLow
	case score < 70:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// SelectedFile represents a user-picked message file awaiting submission.
type SelectedFile struct {
	Name        string
	Size        int64
	ContentType string
	Data        []byte
}

// Digest returns a stable content digest of the file, used as the cache key
// for analysis results within a session.
func (f *SelectedFile) Digest() string {
	sum := sha256.Sum256(f.Data)
	return hex.EncodeToString(sum[:])
}

// RiskReport is the canonical normalized result of one analysis. A report
// with a non-empty ErrorMessage carries no other meaningful fields.
type RiskReport struct {
	OverallScore    int
	RiskLevel       RiskLevel
	AuthResults     map[string]AuthStatus
	FromAddress     string
	ToAddress       string
	OriginatingIP   string
	ComponentScores map[string]float64
	Details         map[string]string
	ErrorMessage    string
	AnalyzedAt      time.Time
}

// IsError reports whether the service answered with an error payload rather
// than an analysis.
func (r *RiskReport) IsError() bool {
	return r.ErrorMessage != ""
}

// CacheEntry is a cached analysis result for a previously submitted file.
type CacheEntry struct {
	FileDigest string
	FileName   string
	Report     *RiskReport
	LastSeen   time.Time
	ExpiresAt  time.Time
}
