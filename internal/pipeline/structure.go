package pipeline

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/llm"
)

// structure returns the report and whether it is degraded.
func (p *Processor) structure(ctx context.Context, log *slog.Logger, text string, creds entity.Credentials) (entity.StructuredReport, bool) {
	if !creds.HasChat() || p.Chat == nil {
		log.Warn("pipeline.structure.degraded", "reason", "chat key not configured")
		return llm.DegradedReport(text), true
	}

	report, ok := p.Chat.Structure(ctx, text, creds)
	if ok {
		return report, false
	}
	log.Warn("pipeline.structure.provider_failed", "provider", p.Chat.Name())

	if p.Fallback != nil && ctx.Err() == nil {
		if fb, ok := p.Fallback.Structure(ctx, text, creds); ok {
			log.Info("pipeline.structure.fallback_ok", "provider", p.Fallback.Name())
			return fb, false
		}
		log.Warn("pipeline.structure.provider_failed", "provider", p.Fallback.Name())
	}
	// keep the primary provider's diagnostic
	return report, true
}
