package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/joseph-ayodele/labreport/internal/common"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 8 << 20

// StatusError is returned for non-200 responses. Body holds the raw payload.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status: %d", e.StatusCode)
}

// SendJSON sends a JSON request to a full URL with optional headers and returns the raw response body.
// It does not assume any provider. Callers decide the URL and headers.
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("http.encode_error", "url", url, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return Send(ctx, client, http.MethodPost, url, bs, h, logger)
}

// Send performs one request with a raw body. Every call is logged with a
// request id and elapsed time. Non-200 responses return *StatusError.
func Send(ctx context.Context, client *http.Client, method, url string, body []byte, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	_, reqID := common.EnsureRequestID(ctx)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		logger.Error("http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("http.request",
		"req_id", reqID,
		"method", method,
		"host", req.URL.Host,
		"path", req.URL.Path,
		"content_length", len(body),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn("http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		logger.Error("http.read_error", "req_id", reqID, "error", err)
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	logger.Info("http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode != http.StatusOK {
		return raw, resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: raw}
	}
	return raw, resp.StatusCode, nil
}
