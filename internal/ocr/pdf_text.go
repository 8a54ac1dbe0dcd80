package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// PDFText reads the embedded text layer of a PDF report. Scanned PDFs without
// a text layer yield ok=false.
type PDFText struct {
	maxPages int
	logger   *slog.Logger
}

var _ TextExtractor = (*PDFText)(nil)

func NewPDFText(maxPages int, logger *slog.Logger) *PDFText {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPages <= 0 {
		maxPages = 20
	}
	return &PDFText{maxPages: maxPages, logger: logger}
}

func (p *PDFText) Name() string { return "pdf-text" }

func (p *PDFText) Configured(entity.Credentials) bool { return true }

func (p *PDFText) Extract(ctx context.Context, path string, _ entity.Credentials) (string, bool) {
	text, pages, err := p.read(ctx, path)
	if err != nil {
		p.logger.Error("ocr.pdf.failed", "path", path, "error", err)
		return "", false
	}
	text = Normalize(text)
	if text == "" {
		p.logger.Warn("ocr.pdf.no_text_layer", "path", path, "pages", pages)
		return "", false
	}
	p.logger.Info("ocr.pdf.ok", "pages", pages, "chars", len([]rune(text)))
	return text, true
}

func (p *PDFText) read(ctx context.Context, path string) (text string, pages int, err error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	defer func() {
		// the pdf reader panics on some malformed streams
		if rec := recover(); rec != nil {
			err = fmt.Errorf("read pdf: %v", rec)
		}
	}()

	var b strings.Builder
	n := r.NumPage()
	for i := 1; i <= n && i <= p.maxPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", pages, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", pages, fmt.Errorf("page %d: %w", i, err)
		}
		pages++
		b.WriteString(pageText)
		b.WriteString("\n")
	}
	return b.String(), pages, nil
}
