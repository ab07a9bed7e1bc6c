package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/juju/clock"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/certificate-verifier/internal/repository"
	"github.com/joseph-ayodele/certificate-verifier/internal/verdict"
)

// ResultRow is one verified (or failed) file in a batch report.
type ResultRow struct {
	File   string
	Result *verdict.Result
	Error  string
}

var resultHeaders = []string{
	"File",
	"Status",
	"Confidence",
	"Student Name",
	"Roll Number",
	"Course",
	"Institution",
	"Year",
	"Grade",
	"Certificate Number",
	"Format Validation",
	"Seal Authenticity",
	"Database Match",
	"Tampering",
	"Verified At",
	"Error",
}

// WriteResultsXLSX renders batch verification rows as an XLSX workbook.
func WriteResultsXLSX(rows []ResultRow) ([]byte, error) {
	const sheet = "Verifications"
	f, err := newWorkbook(sheet, resultHeaders)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, r.File)
		if r.Result == nil {
			write(2, "failed")
			write(16, r.Error)
			continue
		}
		res := r.Result
		write(2, string(res.Status))
		write(3, res.Confidence)
		for j, v := range res.ExtractedData.Values() {
			write(4+j, v)
		}
		write(11, res.Checks.FormatValidation)
		write(12, res.Checks.SealAuthenticity)
		write(13, res.Checks.DatabaseMatch)
		write(14, res.Checks.Tampering)
		write(15, res.Timestamp.UTC().Format(verdict.TimestampLayout))
	}

	_ = f.SetColWidth(sheet, "A", "A", 40) // file
	_ = f.SetColWidth(sheet, "B", "C", 12)
	_ = f.SetColWidth(sheet, "D", "J", 24) // fields
	_ = f.SetColWidth(sheet, "K", "N", 10) // checks
	_ = f.SetColWidth(sheet, "O", "O", 26)
	_ = f.SetColWidth(sheet, "P", "P", 60) // error

	return writeBuffer(f)
}

func newWorkbook(sheet string, headers []string) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	return f, nil
}

func writeBuffer(f *excelize.File) ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// Service is a tiny façade over the attempt journal that produces XLSX bytes for exports.
type Service struct {
	attempts repository.AttemptRepository
	clock    clock.Clock
	logger   *slog.Logger
}

func NewService(attempts repository.AttemptRepository, clk clock.Clock, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &Service{attempts: attempts, clock: clk, logger: logger}
}

var attemptHeaders = []string{
	"Attempt ID",
	"File",
	"Media Kind",
	"Content SHA-256",
	"Status",
	"Verdict",
	"Confidence",
	"Pages",
	"Started At",
	"Finished At",
	"Error",
}

// ExportAttemptsXLSX returns an XLSX workbook (as bytes) of journaled attempts.
// Dates are whole UTC days and to is inclusive.
// If only from is provided -> from..today.
// If only to is provided   -> beginning..to.
// If neither is provided   -> all attempts.
func (s *Service) ExportAttemptsXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := s.clock.Now()

	lo := time.Unix(0, 0).UTC()
	if from != nil {
		lo = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	}
	today := start.UTC()
	hi := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if to != nil {
		hi = time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	} else if from == nil {
		hi = hi.AddDate(100, 0, 0)
	}

	rows, err := s.attempts.List(ctx, lo, hi)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}

	const sheet = "Attempts"
	f, err := newWorkbook(sheet, attemptHeaders)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	for i, a := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, a.ID.String())
		write(2, a.Filename)
		write(3, string(a.MediaKind))
		write(4, a.ContentHash)
		write(5, string(a.Status))
		write(6, a.Verdict)
		if a.Confidence != nil {
			write(7, *a.Confidence)
		}
		if a.Pages > 0 {
			write(8, strconv.Itoa(a.Pages))
		}
		write(9, a.StartedAt.Format(time.RFC3339))
		if a.FinishedAt != nil {
			write(10, a.FinishedAt.Format(time.RFC3339))
		}
		write(11, truncate(a.ErrorMessage, 200))
	}

	_ = f.SetColWidth(sheet, "A", "A", 38)
	_ = f.SetColWidth(sheet, "B", "B", 32)
	_ = f.SetColWidth(sheet, "D", "D", 66)
	_ = f.SetColWidth(sheet, "I", "J", 22)
	_ = f.SetColWidth(sheet, "K", "K", 60)

	out, err := writeBuffer(f)
	if err != nil {
		return nil, err
	}
	s.logger.Info("attempts exported",
		"rows", len(rows),
		"elapsed_ms", s.clock.Now().Sub(start).Milliseconds(),
	)
	return out, nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
