// Package normalize reconciles the analysis service's inconsistent JSON
// payload shapes into the canonical RiskReport. The service has no fixed
// contract: depending on its version it answers with an error object, a
// wrapper around the real payload, a flat object scored 0-10 or 0-100, or a
// legacy flat object with separate status fields. Shapes are resolved
// through an ordered detector chain (error, wrapped, flat-v2, flat-v1) and
// anything missing degrades to documented placeholders instead of failing.
package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/core"
	"github.com/mailscope/mailscope/internal/utils"
)

// Normalizer maps an arbitrary JSON payload into a canonical RiskReport.
type Normalizer struct {
	logger    *zap.Logger
	sanitizer *utils.TextProcessor
}

// New creates a new normalizer.
func New(logger *zap.Logger, sanitizer *utils.TextProcessor) *Normalizer {
	return &Normalizer{
		logger:    logger,
		sanitizer: sanitizer,
	}
}

// Normalize converts the raw response body into a RiskReport. It never
// fails: undecodable or unexpected payloads produce a report with
// placeholder fields.
func (n *Normalizer) Normalize(raw []byte) *core.RiskReport {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		n.logger.Warn("Analysis response is not valid JSON", zap.Error(err))
		return placeholderReport()
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		n.logger.Warn("Analysis response is not a JSON object")
		return placeholderReport()
	}

	// Error shape short-circuits: the report carries only the message.
	if errVal, ok := obj["error"]; ok && errVal != nil {
		return &core.RiskReport{ErrorMessage: stringify(errVal)}
	}

	// Wrapper shape: the real payload sits under a "data" key.
	if data, ok := obj["data"].(map[string]any); ok {
		obj = data
	}

	return n.normalizeFlat(obj)
}

// normalizeFlat handles the flat variants: v2 keyed by overall_score on an
// ambiguous 0-10/0-100 scale, the wrapped payload's inner keys, and the
// legacy v1 keyed by risk_score with separate *_status fields.
func (n *Normalizer) normalizeFlat(obj map[string]any) *core.RiskReport {
	report := placeholderReport()

	score, haveScore := n.extractScore(obj)
	if haveScore {
		report.OverallScore = score
	}

	report.RiskLevel = n.extractRiskLevel(obj, score, haveScore)

	authSource := obj
	if auth, ok := obj["authentication"].(map[string]any); ok {
		authSource = auth
	}
	for _, check := range []string{"spf", "dkim", "dmarc"} {
		value, present := authSource[check]
		if !present {
			// Legacy variant exposes spf_status / dkim_status fields.
			value, present = obj[check+"_status"]
		}
		if !present {
			// Missing check defaults to Unknown rather than fail-closed.
			report.AuthResults[check] = core.StatusUnknown
			continue
		}
		report.AuthResults[check] = ExtractStatus(value)
	}

	report.FromAddress = n.displayString(obj, []string{"from_address", "from", "sender"}, core.PlaceholderUnknown)
	report.ToAddress = n.displayString(obj, []string{"to_address", "to", "recipient"}, core.PlaceholderUnknown)
	report.OriginatingIP = n.extractOriginatingIP(obj)
	report.ComponentScores = extractComponentScores(obj)
	report.Details = n.extractDetails(obj)

	return report
}

// extractScore resolves the overall score from whichever key the shape
// carries. overall_score values at or below 10 are read as a 0-10 scale and
// multiplied by 10; everything is clamped to [0,100].
func (n *Normalizer) extractScore(obj map[string]any) (int, bool) {
	if v, ok := numberField(obj, "overall_score"); ok {
		if v <= 10 {
			if v == 10 {
				// 10 could mean 10/10 or 10%; the 0-10 reading wins here.
				n.logger.Debug("overall_score of exactly 10 is ambiguous between scales, reading as 0-10")
			}
			return clampScore(int(math.Round(v * 10))), true
		}
		return clampScore(int(math.Round(v))), true
	}
	// Legacy variant scores 0-100 directly.
	if v, ok := numberField(obj, "risk_score"); ok {
		return clampScore(int(math.Round(v))), true
	}
	// The wrapped variant's inner payload uses a bare "score" key, 0-100.
	if v, ok := numberField(obj, "score"); ok {
		return clampScore(int(math.Round(v))), true
	}
	return 0, false
}

func (n *Normalizer) extractRiskLevel(obj map[string]any, score int, haveScore bool) core.RiskLevel {
	for _, key := range []string{"risk_level", "category"} {
		if s, ok := obj[key].(string); ok {
			if level, ok := parseRiskLevel(s); ok {
				return level
			}
			n.logger.Debug("Unrecognized risk level label", zap.String("label", s))
		}
	}
	if haveScore {
		return core.DeriveRiskLevel(score)
	}
	return core.RiskUnknown
}

func (n *Normalizer) extractOriginatingIP(obj map[string]any) string {
	if s, ok := obj["originating_ip"].(string); ok && s != "" {
		return n.sanitizer.SanitizeUTF8(s)
	}
	// Wrapped variant nests the address under origin.ip.
	if origin, ok := obj["origin"].(map[string]any); ok {
		if s, ok := origin["ip"].(string); ok && s != "" {
			return n.sanitizer.SanitizeUTF8(s)
		}
	}
	if s, ok := obj["ip"].(string); ok && s != "" {
		return n.sanitizer.SanitizeUTF8(s)
	}
	return core.PlaceholderNotFound
}

func (n *Normalizer) displayString(obj map[string]any, keys []string, placeholder string) string {
	for _, key := range keys {
		if s, ok := obj[key].(string); ok && s != "" {
			return n.sanitizer.SanitizeUTF8(s)
		}
	}
	return placeholder
}

// ExtractStatus maps a raw authentication field of any shape to an
// AuthStatus. Booleans mean pass/fail, nil means the check was not
// performed, known string labels are canonicalized, objects are resolved
// through their status-bearing key, and anything else is stringified into a
// display label.
func ExtractStatus(value any) core.AuthStatus {
	switch v := value.(type) {
	case nil:
		return core.StatusUnknown
	case bool:
		if v {
			return core.StatusPass
		}
		return core.StatusFail
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "pass", "true":
			return core.StatusPass
		case "fail", "false":
			return core.StatusFail
		case "neutral":
			return core.StatusNeutral
		case "":
			return core.StatusUnknown
		default:
			// Unrecognized labels pass through for display.
			return core.AuthStatus(v)
		}
	case map[string]any:
		for _, key := range []string{"status", "result", "verdict", "message"} {
			if inner, ok := v[key]; ok {
				return ExtractStatus(inner)
			}
		}
		return core.AuthStatus(stringify(v))
	default:
		return core.AuthStatus(stringify(v))
	}
}

// extractComponentScores accepts component_scores only as a key-to-number
// mapping; any other shape is treated as absent.
func extractComponentScores(obj map[string]any) map[string]float64 {
	scores := map[string]float64{}
	raw, ok := obj["component_scores"].(map[string]any)
	if !ok {
		return scores
	}
	for name, value := range raw {
		if f, ok := value.(float64); ok {
			scores[name] = f
		}
	}
	return scores
}

// maxDetailSize bounds the length of a single detail value; the service's
// analysis fields can carry whole message excerpts.
const maxDetailSize = 500

// extractDetails flattens the details (or the wrapped variant's analysis)
// mapping into display strings. The verdict label joins it when present.
func (n *Normalizer) extractDetails(obj map[string]any) map[string]string {
	details := map[string]string{}
	raw, ok := obj["details"].(map[string]any)
	if !ok {
		raw, ok = obj["analysis"].(map[string]any)
	}
	if ok {
		for name, value := range raw {
			details[name] = n.sanitizer.TruncatePreview(n.sanitizer.SanitizeUTF8(stringify(value)), maxDetailSize)
		}
	}
	if verdict, ok := obj["verdict"].(string); ok && verdict != "" {
		details["verdict"] = n.sanitizer.SanitizeUTF8(verdict)
	}
	return details
}

func parseRiskLevel(label string) (core.RiskLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low", "minimal":
		return core.RiskLow, true
	case "medium", "moderate":
		return core.RiskMedium, true
	case "high", "critical":
		return core.RiskHigh, true
	default:
		return core.RiskUnknown, false
	}
}

func numberField(obj map[string]any, key string) (float64, bool) {
	v, ok := obj[key].(float64)
	return v, ok
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return core.PlaceholderDash
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func placeholderReport() *core.RiskReport {
	return &core.RiskReport{
		RiskLevel: core.RiskUnknown,
		AuthResults: map[string]core.AuthStatus{
			"spf":   core.StatusUnknown,
			"dkim":  core.StatusUnknown,
			"dmarc": core.StatusUnknown,
		},
		FromAddress:     core.PlaceholderUnknown,
		ToAddress:       core.PlaceholderUnknown,
		OriginatingIP:   core.PlaceholderNotFound,
		ComponentScores: map[string]float64{},
		Details:         map[string]string{},
	}
}
