package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/kbforge/internal/loader"
	"github.com/leapstack-labs/kbforge/internal/state"
)

// renderReport prints the per-table load summary and the run outcome.
func renderReport(w io.Writer, rep *loader.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Sources", "Attempted", "Written", "Rejected", "Notes"})

	for i := range rep.Tables {
		tr := &rep.Tables[i]
		if tr.Skipped {
			t.AppendRow(table.Row{tr.Table, 0, "-", "-", "-", "no sources"})
			continue
		}
		t.AppendRow(table.Row{
			tr.Table, tr.Sources, tr.Attempted, tr.Written, tr.Rejected, tableNotes(tr),
		})
	}
	t.Render()

	_, _ = fmt.Fprintf(w, "Run %s: %s (%d written, %d rejected)\n",
		rep.RunID, rep.Outcome(), rep.TotalWritten(), rep.TotalRejected())
	if rep.Error != "" {
		_, _ = fmt.Fprintf(w, "Error: %s\n", rep.Error)
	}
}

// tableNotes summarizes rejection reasons and source failures for one
// table, most frequent reason first.
func tableNotes(tr *loader.TableReport) string {
	var notes []string

	reasons := make([]string, 0, len(tr.Reasons))
	for r := range tr.Reasons {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if tr.Reasons[reasons[i]] != tr.Reasons[reasons[j]] {
			return tr.Reasons[reasons[i]] > tr.Reasons[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})
	for _, r := range reasons {
		notes = append(notes, fmt.Sprintf("%s: %d", r, tr.Reasons[r]))
	}
	for _, sf := range tr.SourceFailures {
		notes = append(notes, fmt.Sprintf("source %s failed", sf.Source))
	}
	return strings.Join(notes, ", ")
}

// renderRuns prints run history rows, most recent first.
func renderRuns(w io.Writer, runs []state.RunSummary) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "(no recorded runs)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Project", "Outcome", "Started", "Duration", "Written", "Rejected"})

	for _, r := range runs {
		dur := "-"
		if !r.CompletedAt.IsZero() {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(10 * time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			shortID(r.ID), r.Project, r.Outcome,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), dur,
			r.Written, r.Rejected,
		})
	}
	t.Render()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
