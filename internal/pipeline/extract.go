package pipeline

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/ocr"
)

// imageChain lists the configured image extractors in preference order.
func (p *Processor) imageChain(creds entity.Credentials) []ocr.TextExtractor {
	chain := make([]ocr.TextExtractor, 0, 3)
	for _, x := range []ocr.TextExtractor{p.Vision, p.Legacy, p.Local} {
		if x != nil && x.Configured(creds) {
			chain = append(chain, x)
		}
	}
	return chain
}

func (p *Processor) extractText(ctx context.Context, log *slog.Logger, path string, creds entity.Credentials) (string, string, bool) {
	if p.Parallel {
		return p.extractParallel(ctx, log, path, creds)
	}
	return p.extractWith(ctx, log, p.imageChain(creds), path, creds)
}

// extractWith tries each extractor once, in order, and stops at the first text.
func (p *Processor) extractWith(ctx context.Context, log *slog.Logger, chain []ocr.TextExtractor, path string, creds entity.Credentials) (string, string, bool) {
	for _, x := range chain {
		if ctx.Err() != nil {
			return "", "", false
		}
		text, ok := x.Extract(ctx, path, creds)
		if ok && strings.TrimSpace(text) != "" {
			return text, x.Name(), true
		}
		log.Warn("pipeline.extract.provider_failed", "provider", x.Name())
	}
	return "", "", false
}

// extractParallel races vision and legacy OCR. A vision success cancels the
// legacy call; the legacy result is used only when vision fails.
func (p *Processor) extractParallel(ctx context.Context, log *slog.Logger, path string, creds entity.Credentials) (string, string, bool) {
	vision := p.Vision != nil && p.Vision.Configured(creds)
	legacy := p.Legacy != nil && p.Legacy.Configured(creds)

	var (
		vText, lText string
		vOK, lOK     bool
	)
	g, gctx := errgroup.WithContext(ctx)
	lctx, cancelLegacy := context.WithCancel(gctx)
	defer cancelLegacy()

	if vision {
		g.Go(func() error {
			vText, vOK = p.Vision.Extract(gctx, path, creds)
			vOK = vOK && strings.TrimSpace(vText) != ""
			if vOK {
				cancelLegacy()
			}
			return nil
		})
	}
	if legacy {
		g.Go(func() error {
			lText, lOK = p.Legacy.Extract(lctx, path, creds)
			lOK = lOK && strings.TrimSpace(lText) != ""
			return nil
		})
	}
	_ = g.Wait()

	switch {
	case vOK:
		return vText, p.Vision.Name(), true
	case lOK:
		return lText, p.Legacy.Name(), true
	}
	log.Warn("pipeline.extract.parallel_failed", "vision", vision, "legacy", legacy)

	if p.Local != nil && p.Local.Configured(creds) {
		return p.extractWith(ctx, log, []ocr.TextExtractor{p.Local}, path, creds)
	}
	return "", "", false
}
