package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"time"

	"jobs-scraper/models"
)

// Columns shared by the tabular sinks.
var columns = []string{"title", "organization", "location", "link", "description"}

func row(l models.Listing) []string {
	return []string{l.Title, l.Organization, l.Location, l.Link, l.Description}
}

// CSVWriter saves listings to a CSV file.
//
// CSV columns: title, organization, location, link, description
type CSVWriter struct {
	path string
}

func NewCSVWriter(dir string, date time.Time) *CSVWriter {
	return &CSVWriter{path: ArtifactPath(dir, date, "csv")}
}

func (w *CSVWriter) Name() string { return "csv" }

func (w *CSVWriter) Path() string { return w.path }

func (w *CSVWriter) Write(_ context.Context, listings []models.Listing) error {
	err := writeArtifact(w.path, func(out io.Writer) error {
		// csv.Writer handles quoting, commas inside fields and line endings
		writer := csv.NewWriter(out)

		if err := writer.Write(columns); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
		for _, l := range listings {
			if err := writer.Write(row(l)); err != nil {
				return fmt.Errorf("csv write error: %w", err)
			}
		}

		// must flush or data stays in buffer
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("csv write error: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("saved listings", "sink", w.Name(), "count", len(listings), "path", w.path)
	return nil
}
