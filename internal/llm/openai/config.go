package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL points at DeepSeek's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.deepseek.com/v1"

// Config for the chat structuring client. The API key is not part of the
// config; it comes with each run's credentials.
type Config struct {
	BaseURL        string        // default https://api.deepseek.com/v1
	Model          string        // default deepseek-chat
	Temperature    float32       // 0..2
	Timeout        time.Duration // http client timeout
	MaxPromptChars int           // OCR text cap, default 3000
}

// Client implements llm.Structurer over the chat completions API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "deepseek-chat"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 3000
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
