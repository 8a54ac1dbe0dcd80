package llm

import (
	"context"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// Structurer turns OCR text into a StructuredReport.
//
// Implementations never return errors. ok is false when the returned report
// is a placeholder (provider unreachable, bad status, unparsable content).
type Structurer interface {
	Name() string
	Structure(ctx context.Context, rawText string, creds entity.Credentials) (report entity.StructuredReport, ok bool)
}
