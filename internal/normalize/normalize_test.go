package normalize

import (
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/core"
	"github.com/mailscope/mailscope/internal/utils"
)

func newTestNormalizer() *Normalizer {
	logger := zap.NewNop()
	return New(logger, utils.NewTextProcessor(logger))
}

func TestNormalizeScalesLowScoresByTen(t *testing.T) {
	n := newTestNormalizer()

	cases := []struct {
		raw  float64
		want int
	}{
		{0, 0},
		{0.4, 4},
		{3.5, 35},
		{8.7, 87},
		{9.96, 100},
		{10, 100},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("overall_score=%v", tc.raw), func(t *testing.T) {
			report := n.Normalize([]byte(fmt.Sprintf(`{"overall_score": %v}`, tc.raw)))
			if report.OverallScore != tc.want {
				t.Fatalf("expected score %d, got %d", tc.want, report.OverallScore)
			}
		})
	}
}

func TestNormalizeKeepsPercentScoresUnchanged(t *testing.T) {
	n := newTestNormalizer()

	cases := []struct {
		raw  float64
		want int
	}{
		{11, 11},
		{35, 35},
		{87, 87},
		{100, 100},
		{250, 100},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("overall_score=%v", tc.raw), func(t *testing.T) {
			report := n.Normalize([]byte(fmt.Sprintf(`{"overall_score": %v}`, tc.raw)))
			if report.OverallScore != tc.want {
				t.Fatalf("expected score %d, got %d", tc.want, report.OverallScore)
			}
		})
	}
}

func TestNormalizeErrorShapeShortCircuits(t *testing.T) {
	n := newTestNormalizer()

	report := n.Normalize([]byte(`{"error": "boom"}`))
	if report.ErrorMessage != "boom" {
		t.Fatalf("expected errorMessage=boom, got %q", report.ErrorMessage)
	}
	if report.OverallScore != 0 || report.FromAddress != "" || len(report.AuthResults) != 0 {
		t.Fatalf("error report must carry no other fields: %+v", report)
	}
}

func TestNormalizeUnwrapsDataWrapper(t *testing.T) {
	n := newTestNormalizer()

	// The wrapped shape the service emits: score is 0-100, auth checks sit
	// under an authentication object and the IP under origin.ip.
	raw := []byte(`{
		"status": "success",
		"data": {
			"score": 72,
			"verdict": "Phishing suspected",
			"risk_level": "HIGH",
			"authentication": {"spf": "fail", "dkim": true, "dmarc": null},
			"origin": {"ip": "203.0.113.9"},
			"analysis": {"domain_suspicious": true, "url_suspicious": false}
		}
	}`)
	report := n.Normalize(raw)

	if report.OverallScore != 72 {
		t.Fatalf("expected score 72, got %d", report.OverallScore)
	}
	if report.RiskLevel != core.RiskHigh {
		t.Fatalf("expected High, got %s", report.RiskLevel)
	}
	if report.AuthResults["spf"] != core.StatusFail ||
		report.AuthResults["dkim"] != core.StatusPass ||
		report.AuthResults["dmarc"] != core.StatusUnknown {
		t.Fatalf("unexpected auth results: %+v", report.AuthResults)
	}
	if report.OriginatingIP != "203.0.113.9" {
		t.Fatalf("expected origin ip, got %q", report.OriginatingIP)
	}
	if report.Details["verdict"] != "Phishing suspected" {
		t.Fatalf("expected verdict in details, got %+v", report.Details)
	}
	if report.Details["domain_suspicious"] != "true" {
		t.Fatalf("expected analysis flags in details, got %+v", report.Details)
	}
}

func TestNormalizeLegacyFlatShape(t *testing.T) {
	n := newTestNormalizer()

	raw := []byte(`{
		"risk_score": 42,
		"spf_status": "pass",
		"dkim_status": "fail",
		"category": "Medium"
	}`)
	report := n.Normalize(raw)

	if report.OverallScore != 42 {
		t.Fatalf("expected score 42, got %d", report.OverallScore)
	}
	if report.RiskLevel != core.RiskMedium {
		t.Fatalf("expected Medium, got %s", report.RiskLevel)
	}
	if report.AuthResults["spf"] != core.StatusPass || report.AuthResults["dkim"] != core.StatusFail {
		t.Fatalf("unexpected auth results: %+v", report.AuthResults)
	}
	if report.AuthResults["dmarc"] != core.StatusUnknown {
		t.Fatalf("missing dmarc must default to Unknown, got %s", report.AuthResults["dmarc"])
	}
}

func TestNormalizeDerivesRiskLevelFromScore(t *testing.T) {
	n := newTestNormalizer()

	cases := []struct {
		payload string
		want    core.RiskLevel
	}{
		{`{"overall_score": 20}`, core.RiskLow},
		{`{"overall_score": 35}`, core.RiskMedium},
		{`{"overall_score": 69}`, core.RiskMedium},
		{`{"overall_score": 70}`, core.RiskHigh},
		{`{"risk_score": 90}`, core.RiskHigh},
		{`{"overall_score": 40, "risk_level": "LOW"}`, core.RiskLow},
		{`{"overall_score": 40, "risk_level": "CRITICAL"}`, core.RiskHigh},
		{`{"overall_score": 12, "risk_level": "MINIMAL"}`, core.RiskLow},
	}
	for _, tc := range cases {
		t.Run(tc.payload, func(t *testing.T) {
			report := n.Normalize([]byte(tc.payload))
			if report.RiskLevel != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, report.RiskLevel)
			}
		})
	}
}

func TestNormalizePhishScenario(t *testing.T) {
	n := newTestNormalizer()

	raw := []byte(`{"overall_score": 8.7, "risk_level": "High", "spf": "fail", "dkim": "fail", "dmarc": null}`)
	report := n.Normalize(raw)

	if report.OverallScore != 87 {
		t.Fatalf("expected score 87, got %d", report.OverallScore)
	}
	if report.RiskLevel != core.RiskHigh {
		t.Fatalf("expected High, got %s", report.RiskLevel)
	}
	if report.AuthResults["spf"] != core.StatusFail ||
		report.AuthResults["dkim"] != core.StatusFail ||
		report.AuthResults["dmarc"] != core.StatusUnknown {
		t.Fatalf("unexpected auth results: %+v", report.AuthResults)
	}
}

func TestNormalizeMissingFieldsRenderPlaceholders(t *testing.T) {
	n := newTestNormalizer()

	report := n.Normalize([]byte(`{"overall_score": 50}`))
	if report.FromAddress != core.PlaceholderUnknown {
		t.Fatalf("expected from placeholder, got %q", report.FromAddress)
	}
	if report.ToAddress != core.PlaceholderUnknown {
		t.Fatalf("expected to placeholder, got %q", report.ToAddress)
	}
	if report.OriginatingIP != core.PlaceholderNotFound {
		t.Fatalf("expected ip placeholder, got %q", report.OriginatingIP)
	}
	if len(report.ComponentScores) != 0 || len(report.Details) != 0 {
		t.Fatalf("expected empty maps, got %+v / %+v", report.ComponentScores, report.Details)
	}
}

func TestNormalizeMalformedPayloadDegrades(t *testing.T) {
	n := newTestNormalizer()

	for _, payload := range []string{"not json at all", `[1,2,3]`, `"just a string"`, `42`} {
		t.Run(payload, func(t *testing.T) {
			report := n.Normalize([]byte(payload))
			if report.ErrorMessage != "" {
				t.Fatalf("malformed payloads must not become service errors")
			}
			if report.RiskLevel != core.RiskUnknown {
				t.Fatalf("expected Unknown risk level, got %s", report.RiskLevel)
			}
			if report.FromAddress != core.PlaceholderUnknown {
				t.Fatalf("expected placeholders, got %+v", report)
			}
		})
	}
}

func TestNormalizeComponentScoresShapes(t *testing.T) {
	n := newTestNormalizer()

	report := n.Normalize([]byte(`{"component_scores": {"url_score": 7.5, "header_score": 3, "note": "n/a"}}`))
	if len(report.ComponentScores) != 2 {
		t.Fatalf("expected the two numeric entries, got %+v", report.ComponentScores)
	}
	if report.ComponentScores["url_score"] != 7.5 || report.ComponentScores["header_score"] != 3 {
		t.Fatalf("unexpected component scores: %+v", report.ComponentScores)
	}

	// Non-mapping shapes are treated as absent.
	for _, payload := range []string{
		`{"component_scores": [1, 2, 3]}`,
		`{"component_scores": 9}`,
		`{"component_scores": "high"}`,
	} {
		report := n.Normalize([]byte(payload))
		if len(report.ComponentScores) != 0 {
			t.Fatalf("expected %s to yield no component scores, got %+v", payload, report.ComponentScores)
		}
	}
}

func TestNormalizeReadsAddresses(t *testing.T) {
	n := newTestNormalizer()

	raw := []byte(`{"overall_score": 30, "from_address": "a@evil.test", "to_address": "victim@corp.test", "originating_ip": "198.51.100.7"}`)
	report := n.Normalize(raw)

	if report.FromAddress != "a@evil.test" || report.ToAddress != "victim@corp.test" {
		t.Fatalf("unexpected addresses: %q / %q", report.FromAddress, report.ToAddress)
	}
	if report.OriginatingIP != "198.51.100.7" {
		t.Fatalf("unexpected ip: %q", report.OriginatingIP)
	}
}

func TestExtractStatus(t *testing.T) {
	cases := []struct {
		name  string
		value any
		want  core.AuthStatus
	}{
		{"bool true", true, core.StatusPass},
		{"bool false", false, core.StatusFail},
		{"nil", nil, core.StatusUnknown},
		{"pass upper", "PASS", core.StatusPass},
		{"true string", "true", core.StatusPass},
		{"fail", "fail", core.StatusFail},
		{"false string", "FALSE", core.StatusFail},
		{"neutral", "Neutral", core.StatusNeutral},
		{"empty string", "", core.StatusUnknown},
		{"unknown label passes through", "softfail", core.AuthStatus("softfail")},
		{"nested status", map[string]any{"status": "fail"}, core.StatusFail},
		{"nested result", map[string]any{"result": true}, core.StatusPass},
		{"nested verdict", map[string]any{"verdict": "pass"}, core.StatusPass},
		{"nested message", map[string]any{"message": "quarantine"}, core.AuthStatus("quarantine")},
		{"doubly nested", map[string]any{"status": map[string]any{"result": "pass"}}, core.StatusPass},
		{"number stringified", 0.5, core.AuthStatus("0.5")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractStatus(tc.value); got != tc.want {
				t.Fatalf("extractStatus(%v) = %q, want %q", tc.value, got, tc.want)
			}
		})
	}
}
