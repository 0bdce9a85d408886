package analyzer

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// RecommendationManualReview is the recommendation attached to unparseable output.
const RecommendationManualReview = "MANUAL REVIEW REQUIRED"

var (
	yamlBlockRe = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)```")
	jsonBlockRe = regexp.MustCompile("(?s)```json\\s*\\n(.*?)```")
	braceRe     = regexp.MustCompile(`(?s)\{.*\}`)
)

// parseOutput decodes model output as YAML, falling back to JSON, fenced
// blocks and finally the outermost brace-delimited object. The second return
// is false when nothing parsed, in which case a placeholder document is
// returned that preserves the raw output.
func parseOutput(raw string) (map[string]any, bool) {
	cleaned := stripFences(raw)

	if m, ok := decodeYAML(cleaned); ok {
		return m, true
	}
	if m, ok := decodeJSON(cleaned); ok {
		return m, true
	}
	if match := yamlBlockRe.FindStringSubmatch(raw); match != nil {
		if m, ok := decodeYAML(match[1]); ok {
			return m, true
		}
	}
	if match := jsonBlockRe.FindStringSubmatch(raw); match != nil {
		if m, ok := decodeJSON(match[1]); ok {
			return m, true
		}
	}
	if match := braceRe.FindString(raw); match != "" {
		if m, ok := decodeJSON(match); ok {
			return m, true
		}
	}

	return map[string]any{
		"parse_error":    true,
		"raw_output":     raw,
		"client_company": "Parse Error",
		"executive_summary": map[string]any{
			"overview":       "The analysis output could not be parsed. Raw output preserved for manual review.",
			"recommendation": RecommendationManualReview,
		},
	}, false
}

func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = ""
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func decodeYAML(s string) (map[string]any, bool) {
	var m map[string]any
	if err := yaml.Unmarshal([]byte(s), &m); err != nil || len(m) == 0 {
		return nil, false
	}
	out, _ := normalize(m).(map[string]any)
	return out, out != nil
}

// normalize rewrites non-string-keyed mappings so the document can be
// marshalled as JSON and queried with JMESPath.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	}
	return v
}

func decodeJSON(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}
