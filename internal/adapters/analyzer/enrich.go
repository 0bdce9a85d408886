package analyzer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
)

const (
	// DefaultPreparedBy is stamped on reports that do not name an author.
	DefaultPreparedBy = "Rhône Risk Advisory"
	// Version is recorded in analysis metadata.
	Version = "2.0"

	analysisDateLayout = "January 02, 2006"
	minSections        = 10
	minScoredItems     = 10
)

// MaturityLevel maps an overall maturity score to its named level.
func MaturityLevel(score float64) string {
	switch {
	case score >= 8.5:
		return "Optimized"
	case score >= 7.0:
		return "Managed"
	case score >= 5.5:
		return "Defined"
	case score >= 3.5:
		return "Developing"
	default:
		return "Initial"
	}
}

type enrichInput struct {
	ClientName     string
	ClientIndustry string
	Renewal        bool
	Now            time.Time
	TokenUsage     map[string]any
}

// enrich fills header defaults, derives the overall maturity score from the
// weighted maturity dimensions when the model omitted it, and stamps metadata.
func enrich(data map[string]any, in enrichInput) {
	setDefault(data, "client_company", in.ClientName)
	setDefault(data, "client_industry", in.ClientIndustry)
	setDefault(data, "analysis_date", in.Now.Format(analysisDateLayout))
	policyType := "new"
	if in.Renewal {
		policyType = "renewal"
	}
	setDefault(data, "policy_type", policyType)
	setDefault(data, "prepared_by", DefaultPreparedBy)

	if score, ok := weightedMaturity(mapAt(data, "maturity_dimensions")); ok {
		summary := ensureMap(data, "executive_summary")
		metrics := ensureMap(summary, "key_metrics")
		if !truthy(metrics["overall_maturity_score"]) {
			metrics["overall_maturity_score"] = score
			metrics["maturity_level"] = MaturityLevel(score)
		}
	}

	meta := map[string]any{
		"processed_at":     in.Now.UTC().Format(time.RFC3339),
		"analyzer_version": Version,
	}
	if len(in.TokenUsage) > 0 {
		meta["token_usage"] = in.TokenUsage
	}
	data["_metadata"] = meta
}

func weightedMaturity(dims map[string]any) (float64, bool) {
	var total, weights float64
	for _, raw := range dims {
		dim, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		score, ok := toFloat(dim["score"])
		if !ok {
			continue
		}
		weight := 1.0
		if w, ok := dim["weight"]; ok {
			if weight, ok = toFloat(w); !ok {
				continue
			}
		}
		total += score * weight
		weights += weight
	}
	if weights <= 0 {
		return 0, false
	}
	return math.Round(total/weights*10) / 10, true
}

// validate reports missing or thin sections of an analysis document.
func validate(data map[string]any) []string {
	if truthy(data["parse_error"]) {
		return []string{"Output could not be parsed"}
	}

	var warnings []string
	for _, field := range []string{"client_company", "executive_summary", "sections", "policy_summary"} {
		if _, ok := data[field]; !ok {
			warnings = append(warnings, "Missing required field: "+field)
		}
	}

	summary := mapAt(data, "executive_summary")
	if !truthy(summary["recommendation"]) {
		warnings = append(warnings, "Missing binding recommendation")
	}
	if !truthy(summary["overview"]) {
		warnings = append(warnings, "Missing executive summary overview")
	}
	if !truthy(mapAt(summary, "key_metrics")["overall_maturity_score"]) {
		warnings = append(warnings, "Missing overall maturity score")
	}

	sections, _ := data["sections"].([]any)
	if len(sections) < minSections {
		warnings = append(warnings, fmt.Sprintf("Only %d coverage sections found (expected 14+)", len(sections)))
	}
	scored := 0
	for _, s := range sections {
		section, _ := s.(map[string]any)
		items, _ := section["items"].([]any)
		for _, it := range items {
			item, _ := it.(map[string]any)
			for _, cv := range mapAt(item, "carrier_values") {
				if values, ok := cv.(map[string]any); ok {
					if _, ok := values["maturity_score"]; ok {
						scored++
					}
				}
			}
		}
	}
	if scored < minScoredItems {
		warnings = append(warnings, fmt.Sprintf("Only %d items have maturity scores (expected 30+)", scored))
	}

	for _, check := range []struct{ field, msg string }{
		{"maturity_dimensions", "Missing maturity dimensions assessment"},
		{"red_flags", "Missing red flags section"},
		{"recommendations", "Missing recommendations section"},
	} {
		if _, ok := data[check.field]; !ok {
			warnings = append(warnings, check.msg)
		}
	}
	return warnings
}

// selector lifts a value out of analysis data with a JMESPath expression.
type selector struct {
	expr string
}

func newSelector(expr string) (selector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return selector{}, nil
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return selector{}, fmt.Errorf("invalid JMESPath %q: %w", expr, err)
	}
	return selector{expr: expr}, nil
}

func (s selector) search(data map[string]any) any {
	if s.expr == "" {
		return nil
	}
	v, err := jmespath.Search(s.expr, data)
	if err != nil {
		return nil
	}
	return v
}

func (s selector) number(data map[string]any) *float64 {
	f, ok := toFloat(s.search(data))
	if !ok {
		return nil
	}
	return &f
}

func (s selector) text(data map[string]any) string {
	switch v := s.search(data).(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	return true
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func mapAt(m map[string]any, key string) map[string]any {
	out, _ := m[key].(map[string]any)
	return out
}

func ensureMap(m map[string]any, key string) map[string]any {
	if out, ok := m[key].(map[string]any); ok {
		return out
	}
	out := map[string]any{}
	m[key] = out
	return out
}
