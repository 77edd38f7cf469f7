/*
PURPOSE:
  Terminal rendering of a live run: status line, per-iteration rows,
  progress and the final summary.

REQUIREMENTS:
  User-specified:
  - Show each result as it arrives, with latency or the error.
  - Show retry notices and restore the previous status afterwards.
  - Print agreement, similarity and the majority answer at the end.

  Implementation-discovered:
  - Rates print "-" when there is no successful output to back them.
  - Long responses are flattened to one line and cut at 220 runes.

ARCHITECTURE INTEGRATION:
  - Implements: internal/engine.Reporter
  - Called by: internal/cli/run.go

ERROR HANDLING:
  - Write errors to the terminal are ignored.

IMPLEMENTATION RULES:
  - Colours via fatih/color; --no-color or a non-terminal disables them.

RELATED FILES:
  - internal/cli/run.go
*/

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/daryltucker/consistency-runner/internal/engine"
)

// previewLimit is how many runes of a response are shown per row.
const previewLimit = 220

// console renders live run progress to a terminal. It implements
// engine.Reporter.
type console struct {
	out io.Writer

	mu     sync.Mutex
	status string

	ok    *color.Color
	bad   *color.Color
	muted *color.Color
	bold  *color.Color
}

func newConsole(out io.Writer, noColor bool) *console {
	c := &console{
		out:   out,
		ok:    color.New(color.FgGreen, color.Bold),
		bad:   color.New(color.FgRed, color.Bold),
		muted: color.New(color.FgYellow),
		bold:  color.New(color.Bold),
	}
	if noColor || color.NoColor {
		for _, col := range []*color.Color{c.ok, c.bad, c.muted, c.bold} {
			col.DisableColor()
		}
	}
	return c
}

func (c *console) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

func (c *console) SetStatus(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if msg == c.status {
		return
	}
	c.status = msg
	if msg != "" {
		c.muted.Fprintln(c.out, msg)
	}
}

func (c *console) Row(row engine.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch row.Status {
	case engine.RowOK:
		latency := "-"
		if row.LatencyMs != nil {
			latency = fmt.Sprintf("%d ms", *row.LatencyMs)
		}
		fmt.Fprintf(c.out, "#%d  %s  %s  %s\n", row.Index, c.ok.Sprint("OK"), latency, truncate(row.Text, previewLimit))
	case engine.RowError:
		fmt.Fprintf(c.out, "#%d  %s  %s\n", row.Index, c.bad.Sprint("ERROR"), truncate(row.Text, previewLimit))
	case engine.RowCancelled:
		fmt.Fprintf(c.out, "#%d  %s\n", row.Index, c.muted.Sprint("CANCELLED"))
	}
}

func (c *console) Progress(done, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pct := 0
	if total > 0 {
		pct = (done*100 + total/2) / total
	}
	fmt.Fprintf(c.out, "Progress: %d/%d (%d%%)\n", done, total, pct)
}

// Summary prints the consistency metrics of a finished run.
func (c *console) Summary(report *engine.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := report.Metrics
	fmt.Fprintln(c.out)
	fmt.Fprintf(c.out, "%s %s\n", c.bold.Sprint("Exact agreement:"), percent(m.ExactAgreementRate, m.SuccessCount))
	fmt.Fprintf(c.out, "%s %s\n", c.bold.Sprint("Average similarity:"), percent(m.AverageSimilarity, m.SuccessCount))
	majority := m.MajorityNormalizedText
	if majority == "" {
		majority = "(none)"
	}
	fmt.Fprintf(c.out, "%s %s\n", c.bold.Sprint("Majority answer:"), truncate(majority, previewLimit))
	if report.Cancelled {
		fmt.Fprintf(c.out, "%s\n", c.muted.Sprintf("Cancelled before run %d.", report.CancelledAt))
	}
	fmt.Fprintf(c.out, "Done. Success %d/%d.\n", m.SuccessCount, m.TotalCount)
}

// percent formats a rate, or "-" when no successful output backs it.
func percent(rate float64, successes int) string {
	if successes == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", rate*100)
}

// truncate shortens s to n runes on a single line, marking the cut.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
