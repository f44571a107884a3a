package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"jobs-scraper/models"
)

// Sink persists one finished result set.
type Sink interface {
	Name() string
	Write(ctx context.Context, listings []models.Listing) error
}

// ArtifactPath names an export file after the run date: jobs_2026-01-31.csv.
// The date is taken in UTC so runs on different machines agree on it.
func ArtifactPath(dir string, date time.Time, ext string) string {
	return filepath.Join(dir, fmt.Sprintf("jobs_%s.%s", date.UTC().Format(time.DateOnly), ext))
}

func ensureDir(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create output dir: %w", err)
	}
	return nil
}

// writeArtifact creates path and fills it with write.
func writeArtifact(path string, write func(io.Writer) error) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create file: %w", err)
	}
	return writeAndClose(file, write)
}

// writeAndClose runs write against f and closes it. A failed close means
// the data may not have reached the disk, so it fails the write as well.
func writeAndClose(f io.WriteCloser, write func(io.Writer) error) error {
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("could not close file: %w", err)
	}
	return nil
}

type ExportReport struct {
	Attempted int
	Succeeded int
	Failures  map[string]error
}

func (r ExportReport) Err() error {
	errs := make([]error, 0, len(r.Failures))
	for name, err := range r.Failures {
		errs = append(errs, fmt.Errorf("%s: %w", name, err))
	}
	return errors.Join(errs...)
}

// ExportAll hands the same listings to every sink. A failing sink is
// recorded and the remaining sinks are still written.
func ExportAll(ctx context.Context, sinks []Sink, listings []models.Listing) ExportReport {
	report := ExportReport{Failures: make(map[string]error)}

	for _, sink := range sinks {
		report.Attempted++
		if err := sink.Write(ctx, listings); err != nil {
			slog.Warn("sink failed", "sink", sink.Name(), "err", err)
			report.Failures[sink.Name()] = err
			continue
		}
		report.Succeeded++
	}

	return report
}
