/*
PURPOSE:
  Text normalization for consistency comparison.

REQUIREMENTS:
  User-specified:
  - Case-insensitive, whitespace-insensitive comparison of outputs.

  Implementation-discovered:
  - Lower-casing must be Unicode-aware, so golang.org/x/text/cases is used.
  - Must be idempotent; the analyzer normalizes once and compares many times.

ARCHITECTURE INTEGRATION:
  - Called by: internal/analysis/analyzer.go

ERROR HANDLING:
  - None (total function).

RELATED FILES:
  - internal/analysis/similarity.go
  - internal/analysis/majority.go
*/

// Package analysis measures how consistent a batch of generated texts is.
//
// Everything here is pure: the same inputs always produce the same metrics.
package analysis

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalize lower-cases s, collapses every run of whitespace to a single
// space and trims the ends. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	lower := cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(lower), " ")
}
