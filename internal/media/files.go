/*
PURPOSE:
  Turns user-selected files into inline media parts for a run.

REQUIREMENTS:
  User-specified:
  - Attach up to 16 files (images, PDFs, text) to the prompt.
  - Each file becomes base64 data plus a MIME type.

  Implementation-discovered:
  - MIME type comes from the extension first, then content sniffing,
    then application/octet-stream.
  - Files are read once per run, before any call is made.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine/runner.go (as engine.MediaSource)
  - Built by: internal/cli/run.go from --file flags

ERROR HANDLING:
  - Any unreadable file fails the whole set; the run then aborts.

IMPLEMENTATION RULES:
  - No resizing or rasterising here.

USAGE:
  src, err := media.NewFileSource([]string{"chart.png"})
  parts, err := src.Parts(ctx)

RELATED FILES:
  - internal/model/types.go
*/

package media

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/daryltucker/consistency-runner/internal/model"
	"github.com/daryltucker/consistency-runner/internal/output"
)

// MaxFiles is the most attachments a run accepts.
const MaxFiles = 16

// ErrTooManyFiles is returned when more than MaxFiles paths are given.
var ErrTooManyFiles = fmt.Errorf("at most %d files can be attached", MaxFiles)

// FileSource reads a fixed list of paths into inline parts.
type FileSource struct {
	Paths []string
}

// NewFileSource validates the path list.
func NewFileSource(paths []string) (*FileSource, error) {
	if len(paths) > MaxFiles {
		return nil, ErrTooManyFiles
	}
	cleaned := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		cleaned = append(cleaned, p)
	}
	return &FileSource{Paths: cleaned}, nil
}

// Parts reads every file and encodes it.
func (s *FileSource) Parts(ctx context.Context) ([]model.MediaPart, error) {
	if len(s.Paths) > MaxFiles {
		return nil, ErrTooManyFiles
	}
	parts := make([]model.MediaPart, 0, len(s.Paths))
	for _, path := range s.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("read %s: %w", path, errEmptyFile)
		}
		mimeType := DetectMIME(path, data)
		output.Logger.Debug("Attached file", "path", path, "mime", mimeType, "bytes", len(data))
		parts = append(parts, model.InlinePart(mimeType, base64.StdEncoding.EncodeToString(data)))
	}
	return parts, nil
}

var errEmptyFile = errors.New("file is empty")

// DetectMIME picks a MIME type by extension, falling back to sniffing.
func DetectMIME(path string, data []byte) string {
	if ext := strings.ToLower(filepath.Ext(path)); ext != "" {
		if t := mime.TypeByExtension(ext); t != "" {
			return stripParams(t)
		}
	}
	if len(data) > 0 {
		if t := http.DetectContentType(data); t != "application/octet-stream" {
			return stripParams(t)
		}
	}
	return "application/octet-stream"
}

func stripParams(t string) string {
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return t
}
