package llm

import (
	"strings"
	"unicode/utf8"
)

// DefaultMaxPromptChars bounds how much OCR text is sent to the model.
const DefaultMaxPromptChars = 3000

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// BuildReportPrompt renders the interpretation prompt for one report.
func BuildReportPrompt(ocrText string, maxChars int) string {
	if maxChars <= 0 {
		maxChars = DefaultMaxPromptChars
	}
	var b strings.Builder
	b.WriteString("你是一位经验丰富的全科医生。请根据以下化验单识别文本，用通俗易懂的语言为患者解读。\n")
	b.WriteString("只返回一个 JSON 对象，包含以下字段：\n")
	b.WriteString(`- "title": 报告名称（例如“血常规”）` + "\n")
	b.WriteString(`- "core_conclusion": 一句话核心结论` + "\n")
	b.WriteString(`- "abnormal_analysis": 异常指标及其可能含义，没有异常时说明各项正常` + "\n")
	b.WriteString(`- "life_advice": 3条具体生活建议，用分号分隔` + "\n")
	b.WriteString("不要输出 JSON 以外的任何内容。\n\n")
	b.WriteString("化验单文本：\n")
	b.WriteString(TruncateRunes(ocrText, maxChars))
	return b.String()
}
