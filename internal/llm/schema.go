package llm

// ReportFields lists the keys a structured report must carry.
var ReportFields = []string{"title", "core_conclusion", "abnormal_analysis", "life_advice"}

// BuildReportJSONSchema returns the JSON-Schema used to validate model output locally.
func BuildReportJSONSchema() map[string]any {
	props := make(map[string]any, len(ReportFields))
	for _, f := range ReportFields {
		props[f] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"minProperties":        1,
	}
}
