/*
PURPOSE:
  Writes run results to a CSV file.
  Ensures data integrity by flushing writes immediately.

REQUIREMENTS:
  User-specified:
  - Output to CSV for spreadsheet review of every iteration.

  Implementation-discovered:
  - The file is overwritten at the start of each run (results are not
    kept across runs).

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (as a Recorder)
  - Consumes: internal/model.RunResult

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() after every write (critical for crash resilience).

USAGE:
  w, err := output.NewCSVWriter("results.csv")
  w.Write(result)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - If CSV format changes, update header and record conversion.

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/csv"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/daryltucker/consistency-runner/internal/model"
)

var csvHeader = []string{
	"index", "timestamp", "status", "latency_ms", "error_kind", "text", "error",
}

// CSVWriter handles writing results to a CSV file.
type CSVWriter struct {
	closer io.Closer
	writer *csv.Writer
	mu     sync.Mutex
}

// NewCSVWriter creates a new CSVWriter.
// It overwrites the file if it exists.
func NewCSVWriter(path string) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	cw, err := newCSVWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return cw, nil
}

func newCSVWriter(w io.WriteCloser) (*CSVWriter, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return &CSVWriter{closer: w, writer: cw}, nil
}

// Write writes a single result to the CSV file.
// It is thread-safe.
func (cw *CSVWriter) Write(r model.RunResult) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	status := "ok"
	if !r.OK {
		status = "error"
	}
	latency := ""
	if r.LatencyMs != nil {
		latency = strconv.FormatInt(*r.LatencyMs, 10)
	}

	record := []string{
		strconv.Itoa(r.Index),
		r.Timestamp.Format(time.RFC3339),
		status,
		latency,
		string(r.ErrorKind),
		r.Text,
		r.Error,
	}

	if err := cw.writer.Write(record); err != nil {
		return err
	}
	cw.writer.Flush()
	return cw.writer.Error()
}

// Close closes the underlying file.
func (cw *CSVWriter) Close() error {
	cw.writer.Flush()
	return cw.closer.Close()
}
