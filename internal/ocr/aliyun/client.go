// Package aliyun calls the Alibaba Cloud RecognizeAdvanced OCR action with
// hand-signed RPC requests.
package aliyun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/ocr"
	"github.com/joseph-ayodele/labreport/internal/signer"
	"github.com/joseph-ayodele/labreport/internal/transport"
)

const (
	DefaultEndpoint = "https://ocr-api.cn-hangzhou.aliyuncs.com"
	Action          = "RecognizeAdvanced"
	APIVersion      = "2021-07-07"
)

type Config struct {
	Endpoint string
	Timeout  time.Duration
	// Nonce and Now are injectable for reproducible signatures.
	Nonce func() string
	Now   func() time.Time
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ ocr.TextExtractor = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Nonce == nil {
		cfg.Nonce = func() string { return uuid.New().String() }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Name() string { return "legacy-ocr" }

func (c *Client) Configured(creds entity.Credentials) bool { return creds.HasLegacyOCR() }

type recognizeResponse struct {
	RequestID string `json:"RequestId"`
	Data      string `json:"Data"`
	Code      string `json:"Code"`
	Message   string `json:"Message"`
}

type recognizeData struct {
	Content string `json:"content"`
}

// SignedQuery returns the signed query string for one call. The image body is not signed.
func (c *Client) SignedQuery(creds entity.Credentials) string {
	params := signer.RPCParams(Action, APIVersion, creds.LegacyAccessKeyID, c.cfg.Nonce(), c.cfg.Now())
	params["NeedRotate"] = "true"
	params["NeedSortPage"] = "true"
	params["OutputCharInfo"] = "false"
	return signer.EncodeQuery(signer.SignParams(http.MethodPost, params, creds.LegacyAccessKeySecret))
}

func (c *Client) Extract(ctx context.Context, path string, creds entity.Credentials) (string, bool) {
	start := time.Now()
	text, err := c.extract(ctx, path, creds)
	if err != nil {
		c.logger.Error("ocr.legacy.failed", "path", path, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", false
	}
	c.logger.Info("ocr.legacy.ok", "chars", len([]rune(text)), "elapsed_ms", time.Since(start).Milliseconds())
	return text, true
}

func (c *Client) extract(ctx context.Context, path string, creds entity.Credentials) (string, error) {
	if !creds.HasLegacyOCR() {
		return "", errors.New("legacy ocr key pair not configured")
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}

	url := strings.TrimRight(c.cfg.Endpoint, "/") + "/?" + c.SignedQuery(creds)
	raw, _, err := transport.Send(ctx, c.http, http.MethodPost, url, img,
		map[string]string{"Content-Type": "application/octet-stream"}, c.logger)
	if err != nil {
		var se *transport.StatusError
		if errors.As(err, &se) {
			var rr recognizeResponse
			if json.Unmarshal(se.Body, &rr) == nil && rr.Code != "" {
				return "", fmt.Errorf("%s: %s: %w", rr.Code, rr.Message, err)
			}
		}
		return "", err
	}

	var rr recognizeResponse
	if err := json.Unmarshal(raw, &rr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if rr.Data == "" {
		return "", fmt.Errorf("response has no Data (request %s)", rr.RequestID)
	}
	var data recognizeData
	if err := json.Unmarshal([]byte(rr.Data), &data); err != nil {
		return "", fmt.Errorf("decode Data: %w", err)
	}
	text := ocr.Normalize(data.Content)
	if text == "" {
		return "", errors.New("empty content")
	}
	return text, nil
}
