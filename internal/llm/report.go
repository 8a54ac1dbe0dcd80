package llm

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// ParseError reports model content that could not be turned into a report.
type ParseError struct {
	Stage string
	Err   error
}

func (e *ParseError) Error() string { return "parse report: " + e.Stage + ": " + e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// ParseReport decodes model content into a StructuredReport:
// normalize, sanitize, validate against the schema, decode, fill defaults.
func ParseReport(content string, logger *slog.Logger) (entity.StructuredReport, error) {
	doc := NormalizeJSON(content)
	if doc == "" {
		return entity.StructuredReport{}, &ParseError{Stage: "normalize", Err: fmt.Errorf("empty content")}
	}
	cleaned, _, err := SanitizeReportJSON([]byte(doc), logger)
	if err != nil {
		return entity.StructuredReport{}, &ParseError{Stage: "sanitize", Err: err}
	}
	if err := ValidateReportJSON(cleaned); err != nil {
		return entity.StructuredReport{}, &ParseError{Stage: "validate", Err: err}
	}
	var out entity.StructuredReport
	if err := json.Unmarshal(cleaned, &out); err != nil {
		return entity.StructuredReport{}, &ParseError{Stage: "decode", Err: err}
	}
	return out.WithDefaults(), nil
}

// Placeholder texts for a response that could not be used.
const (
	PlaceholderTitle      = "解析错误"
	PlaceholderConclusion = "AI 响应解析失败"
	PlaceholderAdvice     = "请重试"
)

// PlaceholderReport is returned by structurers when the provider's answer is unusable.
// The diagnostic goes into abnormal_analysis.
func PlaceholderReport(diagnostic error) entity.StructuredReport {
	msg := "unknown error"
	if diagnostic != nil {
		msg = diagnostic.Error()
	}
	return entity.StructuredReport{
		Title:            PlaceholderTitle,
		CoreConclusion:   PlaceholderConclusion,
		AbnormalAnalysis: msg,
		LifeAdvice:       PlaceholderAdvice,
	}
}

// DegradedSummaryRunes is how much raw text a degraded report shows.
const DegradedSummaryRunes = 200

// DegradedReport is built when no chat provider is configured: the OCR text
// is shown as-is and the user is told which setting is missing. The summary
// is trimmed after the cut, so it may be shorter than DegradedSummaryRunes.
func DegradedReport(rawText string) entity.StructuredReport {
	summary := TruncateRunes(strings.TrimSpace(rawText), DegradedSummaryRunes)
	return entity.StructuredReport{
		Title:            "识别结果（未解读）",
		CoreConclusion:   strings.TrimSpace(summary),
		AbnormalAnalysis: "未配置 AI 解读服务，以上为化验单识别文本",
		LifeAdvice:       "请在设置中配置 DeepSeek API Key 以获取完整解读",
	}.WithDefaults()
}
