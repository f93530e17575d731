package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/nsyy/eye-pacs/constants"
	"github.com/nsyy/eye-pacs/internal/archive"
	"github.com/nsyy/eye-pacs/internal/entity"
	"github.com/nsyy/eye-pacs/internal/repository"
)

const sheet = "Reports"

// Service produces XLSX workbooks of parsed reports.
type Service struct {
	repo   repository.ReportRepository
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo repository.ReportRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, now: time.Now, logger: logger}
}

// Window resolves an optional date range to [from, to) in local time.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
func (s *Service) Window(from, to *time.Time) (time.Time, time.Time) {
	start := time.Time{}
	if from != nil {
		start = startOfDay(*from)
	}
	end := startOfDay(s.now()).AddDate(0, 0, 1)
	if to != nil {
		end = startOfDay(*to).AddDate(0, 0, 1)
	}
	return start, end
}

func startOfDay(t time.Time) time.Time {
	t = t.In(time.Local)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.Local)
}

var fixedHeaders = []string{
	"Report Time",
	"Report Name",
	"Machine",
	"Register ID",
	"Patient ID",
	"File Path",
}

// ExportReportsXLSX writes one row per parsed report. Extracted fields get
// one column each, ordered by key.
func (s *Service) ExportReportsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()
	lo, hi := s.Window(from, to)

	reports, err := s.repo.ListParsed(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query reports: %w", err)
	}

	fields := make([]map[string]any, len(reports))
	keySet := map[string]struct{}{}
	for i := range reports {
		m, err := reports[i].Fields()
		if err != nil {
			s.logger.Warn("skipping unreadable report_value", "report_id", reports[i].ID, "error", err)
			continue
		}
		fields[i] = m
		for k := range m {
			keySet[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(keySet))
	for k := range keySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range append(append([]string(nil), fixedHeaders...), keys...) {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for i, r := range reports {
		writeRow(f, i+2, r, keys, fields[i])
	}

	_ = f.SetColWidth(sheet, "A", "A", 20) // time
	_ = f.SetColWidth(sheet, "B", "B", 48) // name
	_ = f.SetColWidth(sheet, "C", "C", 22) // machine
	_ = f.SetColWidth(sheet, "D", "E", 14) // ids
	_ = f.SetColWidth(sheet, "F", "F", 60) // path

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(reports),
		"columns", len(fixedHeaders)+len(keys),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, row int, r entity.Report, keys []string, fields map[string]any) {
	write := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	write(1, r.Time.Format(constants.ReportTimeLayout))
	write(2, r.Name)
	write(3, r.Machine)
	write(4, deref(r.RegisterID))
	write(5, deref(r.PatientID))
	write(6, archive.DecodePath(r.Addr))
	for i, k := range keys {
		if v, ok := fields[k]; ok {
			write(len(fixedHeaders)+i+1, v)
		}
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
