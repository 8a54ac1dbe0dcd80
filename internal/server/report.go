package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/labreport/constants"
	"github.com/joseph-ayodele/labreport/internal/async"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/repository"
)

// Exporter renders the stored history as a workbook.
type Exporter interface {
	ExportHistoryXLSX(ctx context.Context) ([]byte, error)
}

// ReportService is the transport-neutral core shared by the gRPC and HTTP
// front ends.
type ReportService struct {
	queue    async.Queue
	history  repository.HistoryRepository
	exporter Exporter
	// defaults fill credential fields a request leaves empty
	defaults entity.Credentials
	// imageRoot bounds the paths a caller may name; empty disables path input
	imageRoot string
	logger    *slog.Logger
}

// ServiceOption configures a ReportService.
type ServiceOption func(*ReportService)

// WithImageRoot allows image_path requests for files under dir.
func WithImageRoot(dir string) ServiceOption {
	return func(s *ReportService) { s.imageRoot = dir }
}

func NewReportService(queue async.Queue, history repository.HistoryRepository, exporter Exporter, defaults entity.Credentials, logger *slog.Logger, opts ...ServiceOption) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ReportService{queue: queue, history: history, exporter: exporter, defaults: defaults, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AnalyzeInput is the body of a StartAnalysis call.
type AnalyzeInput struct {
	ImagePath   string             `json:"image_path"`
	Credentials entity.Credentials `json:"credentials"`
}

// HistoryEntry is a stored record with its report decoded.
type HistoryEntry struct {
	entity.HistoryRecord
	Report *entity.StructuredReport `json:"report,omitempty"`
}

// Analyze validates the input, queues the run and waits for its result.
// The named file must resolve to a regular file under the image root.
func (s *ReportService) Analyze(ctx context.Context, in AnalyzeInput) (entity.PipelineResult, error) {
	path := strings.TrimSpace(in.ImagePath)
	if path == "" {
		return entity.PipelineResult{}, fmt.Errorf("image_path is required: %w", common.ErrInvalidInput)
	}
	resolved, err := s.resolveImagePath(path)
	if err != nil {
		s.logger.Warn("analysis.path.rejected", "req_id", common.RequestIDFromContext(ctx), "path", path, "error", err)
		return entity.PipelineResult{}, err
	}
	return s.analyzeFile(ctx, resolved, in.Credentials)
}

// resolveImagePath follows symlinks and rejects anything outside imageRoot.
func (s *ReportService) resolveImagePath(path string) (string, error) {
	if s.imageRoot == "" {
		return "", fmt.Errorf("image_path input is disabled: %w", common.ErrInvalidInput)
	}
	root, err := filepath.Abs(s.imageRoot)
	if err != nil {
		return "", fmt.Errorf("image root: %w", err)
	}
	if root, err = filepath.EvalSymlinks(root); err != nil {
		return "", fmt.Errorf("image root: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("image path: %w", common.ErrInvalidInput)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("image not found: %w", common.ErrInvalidInput)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("image_path is outside the image root: %w", common.ErrInvalidInput)
	}
	return resolved, nil
}

// analyzeFile queues a file the server already trusts, such as an upload.
func (s *ReportService) analyzeFile(ctx context.Context, path string, creds entity.Credentials) (entity.PipelineResult, error) {
	if constants.MapExtToFormat(filepath.Ext(path)) == "" {
		return entity.PipelineResult{}, fmt.Errorf("unsupported file type %q: %w", filepath.Ext(path), common.ErrInvalidInput)
	}
	if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
		return entity.PipelineResult{}, fmt.Errorf("image not found: %w", common.ErrInvalidInput)
	}

	req := entity.AnalysisRequest{
		ImagePath:   path,
		Credentials: creds.Merge(s.defaults),
	}
	s.logger.Info("analysis.submit", "req_id", common.RequestIDFromContext(ctx), "path", path)
	return <-s.queue.Submit(ctx, req), nil
}

func (s *ReportService) History(ctx context.Context) ([]HistoryEntry, error) {
	recs, err := s.history.ListAll(ctx)
	if err != nil {
		s.logger.Error("history.list.failed", "error", err)
		return nil, err
	}
	out := make([]HistoryEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, toEntry(r))
	}
	return out, nil
}

func (s *ReportService) Record(ctx context.Context, id int64) (HistoryEntry, error) {
	if id <= 0 {
		return HistoryEntry{}, fmt.Errorf("id must be positive: %w", common.ErrInvalidInput)
	}
	rec, err := s.history.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.logger.Error("history.get.failed", "id", id, "error", err)
		}
		return HistoryEntry{}, err
	}
	return toEntry(*rec), nil
}

func (s *ReportService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("id must be positive: %w", common.ErrInvalidInput)
	}
	if err := s.history.Delete(ctx, id); err != nil {
		s.logger.Error("history.delete.failed", "id", id, "error", err)
		return err
	}
	s.logger.Info("history.delete.ok", "id", id)
	return nil
}

func (s *ReportService) Export(ctx context.Context) ([]byte, error) {
	if s.exporter == nil {
		return nil, errors.New("export not configured")
	}
	data, err := s.exporter.ExportHistoryXLSX(ctx)
	if err != nil {
		s.logger.Error("export.xlsx.failed", "error", err)
		return nil, err
	}
	return data, nil
}

func toEntry(r entity.HistoryRecord) HistoryEntry {
	e := HistoryEntry{HistoryRecord: r}
	var rep entity.StructuredReport
	if err := json.Unmarshal([]byte(r.FullPayload), &rep); err == nil {
		e.Report = &rep
	}
	return e
}
