package output

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/daryltucker/consistency-runner/internal/model"
)

// DefaultExportFile is used when --export is given without a path.
const DefaultExportFile = "gemini-consistency-results.json"

// ExportMeta describes the run an export belongs to.
type ExportMeta struct {
	Session   string    `json:"session"`
	Model     string    `json:"model"`
	Runs      int       `json:"runs"`
	Timestamp time.Time `json:"timestamp"`
	Cancelled bool      `json:"cancelled,omitempty"`
}

// Export is the downloadable snapshot of a session's last run.
type Export struct {
	Meta    ExportMeta               `json:"meta"`
	Prompt  string                   `json:"prompt"`
	Metrics model.ConsistencyMetrics `json:"metrics"`
	Results []model.RunResult        `json:"results"`
}

// WriteExport writes e as indented JSON to path.
func WriteExport(path string, e Export) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write export %s: %w", path, err)
	}
	return nil
}
