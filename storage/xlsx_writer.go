package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jobs-scraper/models"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Jobs"

// XLSXWriter saves listings to a single sheet workbook.
type XLSXWriter struct {
	path string
}

func NewXLSXWriter(dir string, date time.Time) *XLSXWriter {
	return &XLSXWriter{path: ArtifactPath(dir, date, "xlsx")}
}

func (w *XLSXWriter) Name() string { return "xlsx" }

func (w *XLSXWriter) Path() string { return w.path }

func (w *XLSXWriter) Write(_ context.Context, listings []models.Listing) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	last, _ := excelize.ColumnNumberToName(len(columns))
	if err := f.SetCellStyle(sheetName, "A1", last+"1", bold); err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}
	if err := f.SetColWidth(sheetName, "A", last, 32); err != nil {
		return fmt.Errorf("xlsx width: %w", err)
	}

	for i, l := range listings {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(l)
		cells := make([]any, len(values))
		for j, v := range values {
			cells[j] = v
		}
		if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	if err := ensureDir(w.path); err != nil {
		return err
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("xlsx save: %w", err)
	}

	slog.Info("saved listings", "sink", w.Name(), "count", len(listings), "path", w.path)
	return nil
}
