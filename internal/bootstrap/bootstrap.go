// Package bootstrap wires configuration into the pipeline for the binaries.
package bootstrap

import (
	"io"
	"log/slog"
	"strings"

	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/llm/dashscope"
	"github.com/joseph-ayodele/labreport/internal/llm/openai"
	"github.com/joseph-ayodele/labreport/internal/ocr"
	"github.com/joseph-ayodele/labreport/internal/ocr/aliyun"
	"github.com/joseph-ayodele/labreport/internal/ocr/vision"
	"github.com/joseph-ayodele/labreport/internal/pipeline"
)

// NewLogger builds the process logger. Daemons log JSON, CLIs log text.
func NewLogger(w io.Writer, level string, json bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h)
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewProcessor builds the provider clients named by cfg and the orchestrator
// over them.
func NewProcessor(cfg *common.Config, history pipeline.Recorder, logger *slog.Logger) *pipeline.Processor {
	p := cfg.Providers

	visionClient := vision.NewClient(vision.Config{
		URL:     p.Vision.BaseURL,
		Model:   p.Vision.Model,
		Timeout: p.Vision.Timeout,
	}, logger)
	legacyClient := aliyun.NewClient(aliyun.Config{
		Endpoint: p.LegacyOCR.BaseURL,
		Timeout:  p.LegacyOCR.Timeout,
	}, logger)
	chatClient := openai.NewClient(openai.Config{
		BaseURL:        p.Chat.BaseURL,
		Model:          p.Chat.Model,
		Timeout:        p.Chat.Timeout,
		MaxPromptChars: cfg.Pipeline.MaxPromptChars,
	}, logger)

	opts := []pipeline.Option{
		pipeline.WithPDFExtractor(ocr.NewPDFText(0, logger)),
		pipeline.WithParallelExtraction(cfg.Pipeline.ParallelExtraction),
	}
	if p.TextFallback.Enabled {
		opts = append(opts, pipeline.WithFallbackStructurer(dashscope.NewClient(dashscope.Config{
			URL:            p.TextFallback.BaseURL,
			Model:          p.TextFallback.Model,
			Timeout:        p.TextFallback.Timeout,
			MaxPromptChars: cfg.Pipeline.MaxPromptChars,
		}, logger)))
	}
	if p.Tesseract.Enabled {
		opts = append(opts, pipeline.WithLocalOCR(ocr.NewTesseract(ocr.TesseractConfig{
			Binary:      p.Tesseract.Binary,
			Lang:        p.Tesseract.Lang,
			TessdataDir: p.Tesseract.TessdataDir,
		}, nil, logger)))
	}

	logger.Info("pipeline configured",
		"parallel", cfg.Pipeline.ParallelExtraction,
		"text_fallback", p.TextFallback.Enabled,
		"tesseract", p.Tesseract.Enabled,
	)
	return pipeline.NewProcessor(logger, visionClient, legacyClient, chatClient, history, opts...)
}
