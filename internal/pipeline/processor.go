// Package pipeline runs one lab report from image to stored interpretation.
package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/llm"
	"github.com/joseph-ayodele/labreport/internal/ocr"
)

// Recorder is the part of the result store the pipeline writes to.
type Recorder interface {
	Append(ctx context.Context, report entity.StructuredReport) (int64, error)
}

// Processor coordinates text extraction, structuring and persistence.
type Processor struct {
	Logger *slog.Logger

	Vision ocr.TextExtractor
	Legacy ocr.TextExtractor
	// Local is an optional last image fallback that needs no credentials.
	Local ocr.TextExtractor
	// PDF handles .pdf inputs when set.
	PDF ocr.TextExtractor

	Chat     llm.Structurer
	Fallback llm.Structurer

	History  Recorder
	Notifier Notifier

	// Parallel starts vision and legacy OCR together. Vision still wins when it succeeds.
	Parallel bool
}

type Option func(*Processor)

func WithLocalOCR(x ocr.TextExtractor) Option { return func(p *Processor) { p.Local = x } }

func WithPDFExtractor(x ocr.TextExtractor) Option { return func(p *Processor) { p.PDF = x } }

func WithFallbackStructurer(s llm.Structurer) Option { return func(p *Processor) { p.Fallback = s } }

func WithNotifier(n Notifier) Option {
	return func(p *Processor) {
		if n != nil {
			p.Notifier = n
		}
	}
}

func WithParallelExtraction(on bool) Option { return func(p *Processor) { p.Parallel = on } }

func NewProcessor(logger *slog.Logger, vision, legacy ocr.TextExtractor, chat llm.Structurer, history Recorder, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		Logger:   logger,
		Vision:   vision,
		Legacy:   legacy,
		Chat:     chat,
		History:  history,
		Notifier: LogNotifier{Logger: logger},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Analyze runs the whole pipeline and always returns a terminal result.
// Provider failures never escape as errors; the credentials in req are used
// as given for the whole run.
func (p *Processor) Analyze(ctx context.Context, req entity.AnalysisRequest) entity.PipelineResult {
	ctx, rid := common.EnsureRequestID(ctx)
	log := p.Logger.With("req_id", rid)
	start := time.Now()

	log.Info("pipeline.start", "path", req.ImagePath)
	res := p.run(ctx, log, req.ImagePath, req.Credentials)

	if res.OK() {
		log.Info("pipeline.done",
			"code", res.Code,
			"degraded", res.Degraded,
			"record_id", res.RecordID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	} else {
		log.Warn("pipeline.failed",
			"code", res.Code,
			"kind", res.Failure.Kind,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	}
	p.announce(res)
	return res
}

// AnalyzeFrom asks src for an image first, then runs Analyze on it.
func (p *Processor) AnalyzeFrom(ctx context.Context, src ImageSource, creds entity.Credentials) entity.PipelineResult {
	path, err := src.AcquireImage(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return cancelled()
		}
		p.Logger.Warn("pipeline.acquire.failed", "error", err)
		res := entity.Failed(constants.FailureInvalidInput, err.Error())
		p.announce(res)
		return res
	}
	return p.Analyze(ctx, entity.AnalysisRequest{ImagePath: path, Credentials: creds})
}

func (p *Processor) run(ctx context.Context, log *slog.Logger, path string, creds entity.Credentials) entity.PipelineResult {
	// 1) credentials
	if !creds.CanExtract() {
		log.Warn("pipeline.credentials.missing")
		return entity.Failed(constants.FailureConfigurationMissing, constants.MsgConfigurationMissing)
	}
	if ctx.Err() != nil {
		return cancelled()
	}

	// 2) text extraction
	var (
		text   string
		source string
		ok     bool
	)
	if constants.MapExtToFormat(filepath.Ext(path)) == constants.PDF && p.PDF != nil {
		text, source, ok = p.extractWith(ctx, log, []ocr.TextExtractor{p.PDF}, path, creds)
	} else {
		text, source, ok = p.extractText(ctx, log, path, creds)
	}
	if ctx.Err() != nil {
		return cancelled()
	}
	if !ok {
		return entity.Failed(constants.FailureExtractionFailed, constants.MsgExtractionFailed)
	}
	log.Info("pipeline.extract.ok", "provider", source, "chars", len([]rune(text)))

	// 3) structuring
	report, degraded := p.structure(ctx, log, text, creds)
	if ctx.Err() != nil {
		return cancelled()
	}

	// 4) persistence; a store failure does not fail the run
	res := entity.Success(report, degraded)
	if p.History != nil {
		id, err := p.History.Append(ctx, report)
		if err != nil {
			log.Error("pipeline.persist.failed", "error", err)
		} else {
			res.RecordID = id
		}
	}
	return res
}

func cancelled() entity.PipelineResult {
	return entity.Failed(constants.FailureCancelled, constants.MsgCancelled)
}
