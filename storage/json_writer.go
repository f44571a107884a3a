package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"jobs-scraper/models"
)

// JSONWriter saves listings as an indented JSON array.
type JSONWriter struct {
	path string
}

func NewJSONWriter(dir string, date time.Time) *JSONWriter {
	return &JSONWriter{path: ArtifactPath(dir, date, "json")}
}

func (w *JSONWriter) Name() string { return "json" }

func (w *JSONWriter) Path() string { return w.path }

func (w *JSONWriter) Write(_ context.Context, listings []models.Listing) error {
	// an empty run still gets a valid array, not null
	if listings == nil {
		listings = []models.Listing{}
	}

	err := writeArtifact(w.path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(listings); err != nil {
			return fmt.Errorf("json write error: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("saved listings", "sink", w.Name(), "count", len(listings), "path", w.path)
	return nil
}
