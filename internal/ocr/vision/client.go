// Package vision reads report images with DashScope's multimodal generation API.
package vision

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/ocr"
	"github.com/joseph-ayodele/labreport/internal/transport"
)

const (
	DefaultURL   = "https://dashscope.aliyuncs.com/api/v1/services/aigc/multimodal-generation/generation"
	DefaultModel = "qwen-vl-max"

	// DefaultInstruction asks for a verbatim transcription only.
	DefaultInstruction = "请完整识别这张化验单中的所有文字，按原有行顺序逐行输出项目名称、结果、单位和参考范围，不要添加任何解释。"
)

type Config struct {
	URL         string
	Model       string
	Instruction string
	Timeout     time.Duration
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ ocr.TextExtractor = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Instruction == "" {
		cfg.Instruction = DefaultInstruction
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 35 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Name() string { return "vision" }

func (c *Client) Configured(creds entity.Credentials) bool { return creds.HasVision() }

type generationResponse struct {
	Output struct {
		Choices []struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	} `json:"output"`
}

// ImageDataURI encodes image bytes the way the multimodal endpoint expects.
func ImageDataURI(b []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(b)
}

func (c *Client) Extract(ctx context.Context, path string, creds entity.Credentials) (string, bool) {
	start := time.Now()
	text, err := c.extract(ctx, path, creds)
	if err != nil {
		c.logger.Error("ocr.vision.failed", "path", path, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", false
	}
	c.logger.Info("ocr.vision.ok", "chars", len([]rune(text)), "elapsed_ms", time.Since(start).Milliseconds())
	return text, true
}

func (c *Client) extract(ctx context.Context, path string, creds entity.Credentials) (string, error) {
	if !creds.HasVision() {
		return "", errors.New("vision api key not configured")
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	body := map[string]any{
		"model": c.cfg.Model,
		"input": map[string]any{
			"messages": []map[string]any{{
				"role": "user",
				"content": []map[string]string{
					{"image": ImageDataURI(img)},
					{"text": c.cfg.Instruction},
				},
			}},
		},
	}
	raw, _, err := transport.SendJSON(ctx, c.http, c.cfg.URL, body,
		map[string]string{"Authorization": "Bearer " + creds.VisionKey}, c.logger)
	if err != nil {
		return "", err
	}

	var gr generationResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(gr.Output.Choices) == 0 || len(gr.Output.Choices[0].Message.Content) == 0 {
		return "", errors.New("response has no content")
	}
	text := ocr.Normalize(gr.Output.Choices[0].Message.Content[0].Text)
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty transcription")
	}
	return text, nil
}
