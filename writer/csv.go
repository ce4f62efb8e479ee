package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"oddsflow/logger"
	"oddsflow/models"
)

// WriteRawCSV writes rows with a header made of the sorted union of their
// keys. Missing cells are empty.
func WriteRawCSV(w io.Writer, rows []models.RawRecord) error {
	header := rawHeader(rows)

	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	line := make([]string, len(header))
	for _, row := range rows {
		for i, key := range header {
			line[i] = models.Stringify(row[key])
		}
		if err := cw.Write(line); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func rawHeader(rows []models.RawRecord) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	header := make([]string, 0, len(seen))
	for k := range seen {
		header = append(header, k)
	}
	sort.Strings(header)
	return header
}

// WriteCSVFile writes rows to path through a temporary file so readers never
// see a half-written export.
func WriteCSVFile(path string, rows []models.RawRecord) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".oddsflow-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			os.Remove(tmp.Name())
		}
	}()

	if err = WriteRawCSV(tmp, rows); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write csv: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CSVSink rewrites one delimited file with the raw fields of every record in
// the snapshot.
type CSVSink struct {
	mu   sync.Mutex
	path string
	log  *logger.Log
}

func NewCSVSink(path string, log *logger.Log) *CSVSink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &CSVSink{path: path, log: log}
}

func (s *CSVSink) Name() string { return "csv" }

func (s *CSVSink) Export(ctx context.Context, snap models.Snapshot) error {
	rows := make([]models.RawRecord, 0, len(snap.Records))
	for _, rec := range snap.Records {
		rows = append(rows, rec.Raw)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := WriteCSVFile(s.path, rows); err != nil {
		return err
	}
	logger.IncrementExportWrite("csv", len(rows))
	s.log.WithComponent("csv_sink").WithFields(logger.Fields{
		"path": s.path,
		"rows": len(rows),
	}).Debug("snapshot written to csv")
	return nil
}
