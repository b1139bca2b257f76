package saver

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

// FileFormat selects the on-disk encoding of a file saver.
type FileFormat string

const (
	FormatJSON FileFormat = "json"
	FormatCSV  FileFormat = "csv"
)

// FileSaver writes one file per record into a directory, named by
// measurement and timestamp.
type FileSaver struct {
	dir    string
	format FileFormat
	log    *zap.Logger
}

// NewFileSaver creates a file saver, creating the directory if needed.
func NewFileSaver(dir string, format FileFormat, log *zap.Logger) (*FileSaver, error) {
	switch format {
	case FormatJSON, FormatCSV:
	default:
		return nil, fmt.Errorf("saver: unsupported file format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("saver: create directory %s: %w", dir, err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileSaver{dir: dir, format: format, log: log}, nil
}

// Save writes the record to a new file. The timestamped name keeps repeated
// runs of the same measurement from clobbering each other.
func (s *FileSaver) Save(_ context.Context, rec Record) error {
	name := fmt.Sprintf("%s_%s.%s",
		rec.Measurement, rec.TakenAt.Format("2006-01-02T15-04-05"), s.format)
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("saver: create %s: %w", path, err)
	}
	defer f.Close()

	switch s.format {
	case FormatJSON:
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		err = enc.Encode(rec)
	case FormatCSV:
		err = writeCSV(f, rec)
	}
	if err != nil {
		return fmt.Errorf("saver: write %s: %w", path, err)
	}

	s.log.Info("measurement result saved",
		zap.String("measurement", rec.Measurement),
		zap.String("path", path),
		zap.Int("rows", len(rec.Rows)))
	return nil
}

// Close implements Saver; file savers hold no long-lived resources.
func (s *FileSaver) Close() error { return nil }

func writeCSV(f *os.File, rec Record) error {
	w := csv.NewWriter(f)
	if err := w.Write(rec.Columns); err != nil {
		return err
	}
	row := make([]string, len(rec.Columns))
	for _, values := range rec.Rows {
		if len(values) != len(rec.Columns) {
			return fmt.Errorf("row has %d values, want %d", len(values), len(rec.Columns))
		}
		for i, v := range values {
			row[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
