package ocr

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// TesseractConfig configures the local OCR fallback.
type TesseractConfig struct {
	Binary      string // default "tesseract"
	Lang        string // default "chi_sim+eng"
	TessdataDir string
	PSM         int // page segmentation mode, 0 = tesseract default
	MaxOutput   int // stdout cap in bytes, default DefaultMaxCommandOutput
}

// Tesseract runs a local tesseract binary. It needs no credentials and is
// only wired in when explicitly enabled.
type Tesseract struct {
	cfg    TesseractConfig
	runner CommandRunner
	logger *slog.Logger
}

var _ TextExtractor = (*Tesseract)(nil)

// NewTesseract builds the extractor. A nil runner executes the real binary.
func NewTesseract(cfg TesseractConfig, runner CommandRunner, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Binary == "" {
		cfg.Binary = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "chi_sim+eng"
	}
	if runner == nil {
		runner = newHostRunner(cfg.MaxOutput, logger)
	}
	return &Tesseract{cfg: cfg, runner: runner, logger: logger}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Configured(entity.Credentials) bool { return true }

// command renders `tesseract <file> stdout -l <lang> [--psm n] [--tessdata-dir d]`.
func (t *Tesseract) command(path string) Command {
	c := Command{
		Binary: t.cfg.Binary,
		Args:   []string{path, "stdout", "-l", t.cfg.Lang},
		// one OpenMP thread per run; the queue already runs several in parallel
		Env: []string{"OMP_THREAD_LIMIT=1"},
	}
	if t.cfg.PSM > 0 {
		c.Args = append(c.Args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	if t.cfg.TessdataDir != "" {
		c.Args = append(c.Args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	return c
}

func (t *Tesseract) Extract(ctx context.Context, path string, _ entity.Credentials) (string, bool) {
	start := time.Now()
	out, err := t.runner.Run(ctx, t.command(path))
	if err != nil {
		t.logger.Error("ocr.tesseract.failed", "path", path, "error", err)
		return "", false
	}
	txt := Normalize(string(out))
	if txt == "" {
		t.logger.Warn("ocr.tesseract.empty", "path", path)
		return "", false
	}
	t.logger.Info("ocr.tesseract.ok", "chars", len([]rune(txt)), "elapsed_ms", time.Since(start).Milliseconds())
	return txt, true
}

