package ocr

import (
	"context"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// TextExtractor turns a report image into plain text.
//
// Extract never returns an error: every failure is logged and reported as
// ok=false so the orchestrator can move on to the next provider.
type TextExtractor interface {
	Name() string
	// Configured reports whether creds carry what this extractor needs.
	Configured(creds entity.Credentials) bool
	Extract(ctx context.Context, path string, creds entity.Credentials) (text string, ok bool)
}
