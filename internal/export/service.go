package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/labreport/internal/entity"
)

// SheetName is the worksheet holding exported history rows.
const SheetName = "History"

// HistoryLister is the read side of the result store.
type HistoryLister interface {
	ListAll(ctx context.Context) ([]entity.HistoryRecord, error)
}

// Service produces XLSX bytes from the stored history.
type Service struct {
	history HistoryLister
	loc     *time.Location
	logger  *slog.Logger
}

func NewService(history HistoryLister, loc *time.Location, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Service{history: history, loc: loc, logger: logger}
}

// ExportHistoryXLSX returns a workbook with one row per record, newest first.
func (s *Service) ExportHistoryXLSX(ctx context.Context) ([]byte, error) {
	start := time.Now()

	recs, err := s.history.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return nil, err
	}

	headers := []string{
		"ID",
		"Analyzed At",
		"Title",
		"Core Conclusion",
		"Abnormal Analysis",
		"Life Advice",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(SheetName, cell, h)
	}

	row := 2
	for _, r := range recs {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(SheetName, cell, v)
		}

		report := decodePayload(r)
		write(1, r.ID)
		write(2, r.CreatedAt.In(s.loc).Format("2006-01-02 15:04"))
		write(3, r.Title)
		write(4, r.Summary)
		write(5, report.AbnormalAnalysis)
		write(6, report.LifeAdvice)
		row++
	}

	_ = f.SetColWidth(SheetName, "A", "A", 8)
	_ = f.SetColWidth(SheetName, "B", "B", 18)
	_ = f.SetColWidth(SheetName, "C", "C", 24)
	_ = f.SetColWidth(SheetName, "D", "F", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(recs),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// decodePayload recovers the full report of a record. Rows whose payload
// cannot be decoded still export their title and summary.
func decodePayload(r entity.HistoryRecord) entity.StructuredReport {
	var rep entity.StructuredReport
	if err := json.Unmarshal([]byte(r.FullPayload), &rep); err != nil {
		rep = entity.StructuredReport{Title: r.Title, CoreConclusion: r.Summary}
	}
	return rep.WithDefaults()
}
