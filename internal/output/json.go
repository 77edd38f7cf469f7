/*
PURPOSE:
  Writes run results to a JSON Lines file (NDJSON), one line per iteration,
  as soon as each iteration is committed.

REQUIREMENTS:
  Implementation-discovered:
  - JSON Lines is append-friendly, so a crashed or cancelled run still
    leaves every finished iteration on disk.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (as a Recorder)
  - Consumes: internal/model.RunResult

ERROR HANDLING:
  - Returns error on file creation or write failure.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("results.jsonl")
  w.Write(result)
  w.Close()

RELATED FILES:
  - internal/model/types.go
*/

package output

import (
	"encoding/json"
	"io"
	"os"
	"sync"

	"github.com/daryltucker/consistency-runner/internal/model"
)

// JSONWriter handles writing results to a JSON Lines file.
type JSONWriter struct {
	closer  io.Closer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter, truncating any existing file.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return newJSONWriter(f), nil
}

func newJSONWriter(w io.WriteCloser) *JSONWriter {
	return &JSONWriter{
		closer:  w,
		encoder: json.NewEncoder(w),
	}
}

// Write writes a single result as a JSON line.
func (jw *JSONWriter) Write(r model.RunResult) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	return jw.encoder.Encode(r)
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.closer.Close()
}
