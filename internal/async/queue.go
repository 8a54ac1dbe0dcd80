package async

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// Job is one queued analysis. The result channel is buffered and receives
// exactly one value.
type Job struct {
	ID          uuid.UUID
	Request     entity.AnalysisRequest
	SubmittedAt time.Time
	TraceID     string

	ctx    context.Context
	result chan entity.PipelineResult
}

// Analyzer runs one pipeline to completion.
type Analyzer interface {
	Analyze(ctx context.Context, req entity.AnalysisRequest) entity.PipelineResult
}

// Queue accepts analyses for background execution. The returned channel always
// resolves, with a Cancelled result when the caller or the queue gives up.
type Queue interface {
	Submit(ctx context.Context, req entity.AnalysisRequest) <-chan entity.PipelineResult
	Shutdown(ctx context.Context)
}
