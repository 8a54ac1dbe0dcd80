package llm

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

func TestNormalizeJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}```":       `{"a":1}`,
		"  {\"a\":1}  ":           `{"a":1}`,
		"":                       "",
	}
	for in, want := range cases {
		if got := NormalizeJSON(in); got != want {
			t.Fatalf("NormalizeJSON(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseReportFull(t *testing.T) {
	got, err := ParseReport(`{"title":"血常规","core_conclusion":"轻度贫血","abnormal_analysis":"血红蛋白偏低","life_advice":"建议复查;多休息;清淡饮食"}`, nil)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	want := entity.StructuredReport{Title: "血常规", CoreConclusion: "轻度贫血", AbnormalAnalysis: "血红蛋白偏低", LifeAdvice: "建议复查;多休息;清淡饮食"}
	if got != want {
		t.Fatalf("ParseReport() = %+v, want %+v", got, want)
	}
}

func TestParseReportIgnoresCodeFence(t *testing.T) {
	fenced, err := ParseReport("```json\n{\"core_conclusion\":\"x\"}\n```", nil)
	if err != nil {
		t.Fatalf("ParseReport(fenced) error = %v", err)
	}
	bare, err := ParseReport(`{"core_conclusion":"x"}`, nil)
	if err != nil {
		t.Fatalf("ParseReport(bare) error = %v", err)
	}
	if fenced != bare {
		t.Fatalf("ParseReport(fenced) = %+v, want %+v", fenced, bare)
	}
	if bare.CoreConclusion != "x" {
		t.Fatalf("CoreConclusion = %q, want x", bare.CoreConclusion)
	}
}

func TestParseReportCoercesArraysAndDropsUnknown(t *testing.T) {
	got, err := ParseReport("```json\n{\"title\":\"肝功能\",\"core_conclusion\":\"正常\",\"life_advice\":[\"少饮酒\",\"规律作息\",\"定期体检\"],\"extra\":42}\n```", nil)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	if got.LifeAdvice != "少饮酒;规律作息;定期体检" {
		t.Fatalf("LifeAdvice = %q", got.LifeAdvice)
	}
	if got.AbnormalAnalysis != entity.PlaceholderNoData {
		t.Fatalf("AbnormalAnalysis = %q, want placeholder", got.AbnormalAnalysis)
	}
}

func TestParseReportNumbersBecomeStrings(t *testing.T) {
	got, err := ParseReport(`{"title":"血糖","core_conclusion":5.6}`, nil)
	if err != nil {
		t.Fatalf("ParseReport() error = %v", err)
	}
	if got.CoreConclusion != "5.6" {
		t.Fatalf("CoreConclusion = %q, want 5.6", got.CoreConclusion)
	}
}

func TestParseReportFailures(t *testing.T) {
	for _, in := range []string{"", "not json", `["a"]`, `{"unrelated":"x"}`} {
		_, err := ParseReport(in, nil)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("ParseReport(%q) error = %v, want *ParseError", in, err)
		}
	}
}

func TestPlaceholderReportCarriesDiagnostic(t *testing.T) {
	r := PlaceholderReport(errors.New("boom"))
	if r.Title != PlaceholderTitle || r.AbnormalAnalysis != "boom" || r.LifeAdvice != PlaceholderAdvice {
		t.Fatalf("PlaceholderReport() = %+v", r)
	}
}

func TestDegradedReport(t *testing.T) {
	raw := "  " + strings.Repeat("白细胞 ", 100) + "  "
	r := DegradedReport(raw)
	if n := utf8.RuneCountInString(r.CoreConclusion); n > DegradedSummaryRunes {
		t.Fatalf("CoreConclusion has %d runes, want at most %d", n, DegradedSummaryRunes)
	}
	want := strings.TrimSpace(TruncateRunes(strings.TrimSpace(raw), DegradedSummaryRunes))
	if r.CoreConclusion != want {
		t.Fatalf("CoreConclusion = %q, want %q", r.CoreConclusion, want)
	}
	if strings.TrimSpace(r.CoreConclusion) != r.CoreConclusion {
		t.Fatalf("CoreConclusion = %q has surrounding whitespace", r.CoreConclusion)
	}
	if r.Title != "识别结果（未解读）" {
		t.Fatalf("Title = %q", r.Title)
	}
	if !strings.Contains(r.LifeAdvice, "配置") {
		t.Fatalf("LifeAdvice = %q, want missing-configuration hint", r.LifeAdvice)
	}
}

func TestBuildReportPromptTruncatesByRune(t *testing.T) {
	p := BuildReportPrompt(strings.Repeat("§", 4000), 0)
	if n := strings.Count(p, "§"); n != DefaultMaxPromptChars {
		t.Fatalf("prompt has %d OCR chars, want %d", n, DefaultMaxPromptChars)
	}
	for _, f := range ReportFields {
		if !strings.Contains(p, f) {
			t.Fatalf("prompt does not mention %q", f)
		}
	}
}
