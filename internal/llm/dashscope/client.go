// Package dashscope structures reports with DashScope's text-generation API.
// It is the secondary structurer, tried only after the chat provider failed.
package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/llm"
	"github.com/joseph-ayodele/labreport/internal/transport"
)

const DefaultURL = "https://dashscope.aliyuncs.com/api/v1/services/aigc/text-generation/generation"

type Config struct {
	URL            string
	Model          string
	Timeout        time.Duration
	MaxPromptChars int
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ llm.Structurer = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = "qwen-turbo"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = llm.DefaultMaxPromptChars
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Name() string { return "text-fallback" }

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

// Structure uses the vision key, which is the DashScope account key.
func (c *Client) Structure(ctx context.Context, rawText string, creds entity.Credentials) (entity.StructuredReport, bool) {
	_, rid := common.EnsureRequestID(ctx)
	start := time.Now()
	if !creds.HasVision() {
		return llm.PlaceholderReport(errors.New("dashscope api key not configured")), false
	}

	body := map[string]any{
		"model": c.cfg.Model,
		"input": map[string]any{
			"messages": []map[string]any{
				{"role": "user", "content": llm.BuildReportPrompt(rawText, c.cfg.MaxPromptChars)},
			},
		},
		"parameters": map[string]any{"result_format": "message"},
	}
	raw, _, err := transport.SendJSON(ctx, c.http, c.cfg.URL, body,
		map[string]string{"Authorization": "Bearer " + creds.VisionKey}, c.logger)
	if err != nil {
		c.logger.Error("llm.fallback.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.PlaceholderReport(fmt.Errorf("text generation: %w", err)), false
	}

	var gr generationResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		c.logger.Error("llm.fallback.decode_error", "req_id", rid, "error", err)
		return llm.PlaceholderReport(fmt.Errorf("decode text generation response: %w", err)), false
	}
	if len(gr.Output.Choices) == 0 {
		c.logger.Error("llm.fallback.no_choices", "req_id", rid)
		return llm.PlaceholderReport(errors.New("no choices in text generation response")), false
	}

	report, err := llm.ParseReport(gr.Output.Choices[0].Message.Content, c.logger)
	if err != nil {
		c.logger.Error("llm.fallback.parse_failed", "req_id", rid, "error", err)
		return llm.PlaceholderReport(err), false
	}
	c.logger.Info("llm.fallback.ok", "req_id", rid, "title", report.Title, "elapsed_ms", time.Since(start).Milliseconds())
	return report, true
}
