package bootstrap

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":        slog.LevelInfo,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, "info", true).Info("pipeline.start", "path", "x.jpg")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"msg":"pipeline.start"`) {
		t.Fatalf("log line = %q", buf.String())
	}
}

func TestNewProcessorWithoutCredentials(t *testing.T) {
	cfg := &common.Config{}
	cfg.Providers.TextFallback.Enabled = true
	cfg.Providers.Tesseract.Enabled = true
	p := NewProcessor(cfg, nil, slog.Default())
	if p.Fallback == nil || p.Local == nil || p.PDF == nil {
		t.Fatalf("optional providers not wired: %+v", p)
	}

	res := p.Analyze(context.Background(), entity.AnalysisRequest{ImagePath: "r.jpg"})
	if res.Code != constants.CodeConfigurationMissing {
		t.Fatalf("Code = %d, want %d", res.Code, constants.CodeConfigurationMissing)
	}
}
