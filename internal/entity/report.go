package entity

import "strings"

// PlaceholderNoData fills report fields the model left empty.
const PlaceholderNoData = "暂无数据"

// StructuredReport is the four-field reading produced for one lab report.
type StructuredReport struct {
	Title            string `json:"title"`
	CoreConclusion   string `json:"core_conclusion"`
	AbnormalAnalysis string `json:"abnormal_analysis"`
	LifeAdvice       string `json:"life_advice"`
}

// WithDefaults returns a copy where every blank field holds PlaceholderNoData.
func (r StructuredReport) WithDefaults() StructuredReport {
	fill := func(s string) string {
		s = strings.TrimSpace(s)
		if s == "" {
			return PlaceholderNoData
		}
		return s
	}
	r.Title = fill(r.Title)
	r.CoreConclusion = fill(r.CoreConclusion)
	r.AbnormalAnalysis = fill(r.AbnormalAnalysis)
	r.LifeAdvice = fill(r.LifeAdvice)
	return r
}

// AnalysisRequest is the input of one pipeline run.
type AnalysisRequest struct {
	ImagePath   string
	Credentials Credentials
}
