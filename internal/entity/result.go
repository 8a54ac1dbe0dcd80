package entity

import "github.com/joseph-ayodele/labreport/constants"

// Failure describes why a run produced no report.
type Failure struct {
	Kind    constants.FailureKind `json:"kind"`
	Message string                `json:"message"`
}

// PipelineResult is the terminal outcome of a run. Exactly one of Report and
// Failure is set.
type PipelineResult struct {
	Code     constants.ResultCode `json:"code"`
	Report   *StructuredReport    `json:"report,omitempty"`
	Failure  *Failure             `json:"failure,omitempty"`
	Degraded bool                 `json:"degraded,omitempty"`

	// RecordID is the history row written for this run, 0 when nothing was stored.
	RecordID int64 `json:"record_id,omitempty"`
}

// Success wraps a report.
func Success(report StructuredReport, degraded bool) PipelineResult {
	return PipelineResult{Code: constants.CodeOK, Report: &report, Degraded: degraded}
}

// Failed wraps a failure of the given kind.
func Failed(kind constants.FailureKind, message string) PipelineResult {
	return PipelineResult{Code: kind.Code(), Failure: &Failure{Kind: kind, Message: message}}
}

// OK reports whether the run produced a report.
func (r PipelineResult) OK() bool { return r.Report != nil }
