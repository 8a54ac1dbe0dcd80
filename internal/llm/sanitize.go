package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
)

// NormalizeJSON is the single repair step applied to model output before it is
// decoded: markdown code fences are removed and whitespace trimmed.
func NormalizeJSON(content string) string {
	s := strings.ReplaceAll(content, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// SanitizeReportJSON coerces a decoded model object onto the report shape.
// - Arrays of strings are joined with ";" (models like to list life advice)
// - Numbers and booleans become strings
// - Nulls and unknown keys are dropped
// It returns the cleaned document and a list of what was touched.
func SanitizeReportJSON(raw []byte, logger *slog.Logger) ([]byte, []string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	allowed := make(map[string]struct{}, len(ReportFields))
	for _, f := range ReportFields {
		allowed[f] = struct{}{}
	}

	changed := make([]string, 0, 4)
	for k := range maps.Clone(m) {
		if _, ok := allowed[k]; !ok {
			delete(m, k)
			changed = append(changed, k+"(unknown)")
		}
	}

	for _, k := range ReportFields {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			m[k] = strings.TrimSpace(t)
		case nil:
			delete(m, k)
			changed = append(changed, k+"(null)")
		case float64:
			m[k] = strconv.FormatFloat(t, 'f', -1, 64)
			changed = append(changed, k+"(number)")
		case bool:
			m[k] = strconv.FormatBool(t)
			changed = append(changed, k+"(bool)")
		case []any:
			m[k] = joinItems(t)
			changed = append(changed, k+"(array)")
		case map[string]any:
			b, _ := json.Marshal(t)
			m[k] = string(b)
			changed = append(changed, k+"(object)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(changed) > 0 {
		logger.Warn("llm.report.sanitize_applied", "changed", changed)
	}
	return out, changed, nil
}

func joinItems(items []any) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		switch t := it.(type) {
		case string:
			s = t
		case nil:
			continue
		default:
			s = fmt.Sprint(t)
		}
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ";")
}
