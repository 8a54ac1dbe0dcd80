package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/llm"
)

var _ llm.Structurer = (*Client)(nil)

func (c *Client) Name() string { return "chat" }

// Structure sends the OCR text to the chat model and parses the JSON answer.
// Any failure yields llm.PlaceholderReport and ok=false.
func (c *Client) Structure(ctx context.Context, rawText string, creds entity.Credentials) (entity.StructuredReport, bool) {
	_, rid := common.EnsureRequestID(ctx)
	start := time.Now()

	if !creds.HasChat() {
		c.logger.Warn("llm.structure.no_key", "req_id", rid)
		return llm.PlaceholderReport(errors.New("chat api key not configured")), false
	}

	c.logger.Info("llm.structure.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"text_len", len([]rune(rawText)),
	)

	oc := goopenai.DefaultConfig(creds.ChatKey)
	oc.BaseURL = strings.TrimRight(c.cfg.BaseURL, "/")
	oc.HTTPClient = c.http
	client := goopenai.NewClientWithConfig(oc)

	req := goopenai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: c.cfg.Temperature,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: llm.BuildReportPrompt(rawText, c.cfg.MaxPromptChars)},
		},
	}

	resp, err := client.CreateChatCompletion(ctx, req)
	if err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			c.logger.Error("llm.structure.api_error",
				"req_id", rid, "status", apiErr.HTTPStatusCode, "error", apiErr.Message,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		} else {
			c.logger.Error("llm.structure.http_error",
				"req_id", rid, "error", err,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		}
		return llm.PlaceholderReport(fmt.Errorf("chat completion: %w", err)), false
	}
	if len(resp.Choices) == 0 {
		c.logger.Error("llm.structure.no_choices", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return llm.PlaceholderReport(errors.New("no choices in chat response")), false
	}

	report, err := llm.ParseReport(resp.Choices[0].Message.Content, c.logger)
	if err != nil {
		c.logger.Error("llm.structure.parse_failed",
			"req_id", rid, "error", err,
			"content", llm.TruncateRunes(resp.Choices[0].Message.Content, 500),
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return llm.PlaceholderReport(err), false
	}

	c.logger.Info("llm.structure.ok",
		"req_id", rid,
		"title", report.Title,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return report, true
}
