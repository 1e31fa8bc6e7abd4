// Package report renders pipeline results for humans (markdown) and for
// machines (JSON). Rendering is presentation only: the drift verdict is
// fixed by the pipeline before a report is built.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"mcpdrift/internal/diff"
	"mcpdrift/internal/pipeline"
)

// Meta describes the run a report covers
type Meta struct {
	RunID         string    `json:"runId"`
	Version       string    `json:"version"`
	CurrentRef    string    `json:"currentRef"`
	ComparisonRef string    `json:"comparisonRef"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// Summary counts results by outcome
type Summary struct {
	Clean int `json:"clean"`
	Drift int `json:"drift"`
	Error int `json:"error"`
}

// Document is the machine-readable report
type Document struct {
	Meta    Meta              `json:"meta"`
	Summary Summary           `json:"summary"`
	Results []pipeline.Result `json:"results"`
	Drifted bool              `json:"drifted"`
}

// Summarize tallies outcomes
func Summarize(results []pipeline.Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Outcome {
		case pipeline.OutcomeClean:
			s.Clean++
		case pipeline.OutcomeDrift:
			s.Drift++
		default:
			s.Error++
		}
	}
	return s
}

// Drifted reports whether the run should fail CI: any drift or any test
// that could not be probed.
func Drifted(results []pipeline.Result) bool {
	for _, r := range results {
		if r.Outcome != pipeline.OutcomeClean {
			return true
		}
	}
	return false
}

// Collapse merges a removed+added pair at the same path into one changed
// entry. The engine reports value replacements as two entries; a single
// changed row with before and after reads better in a report.
func Collapse(entries []diff.Entry) []diff.Entry {
	out := make([]diff.Entry, 0, len(entries))
	for i := 0; i < len(entries); i++ {
		e := entries[i]
		if e.Kind == diff.Removed && i+1 < len(entries) {
			next := entries[i+1]
			if next.Kind == diff.Added && next.Path == e.Path {
				out = append(out, diff.Entry{
					Path:     e.Path,
					Kind:     diff.Changed,
					OldValue: e.OldValue,
					NewValue: next.NewValue,
				})
				i++
				continue
			}
		}
		out = append(out, e)
	}
	return out
}

// RenderJSON produces the machine-readable report document.
func RenderJSON(results []pipeline.Result, meta Meta) ([]byte, error) {
	collapsed := make([]pipeline.Result, len(results))
	for i, r := range results {
		collapsed[i] = r
		collapsed[i].Entries = Collapse(r.Entries)
	}
	doc := Document{
		Meta:    meta,
		Summary: Summarize(results),
		Results: collapsed,
		Drifted: Drifted(results),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// RenderMarkdown produces the human report.
func RenderMarkdown(results []pipeline.Result, meta Meta) string {
	var b strings.Builder

	b.WriteString("# MCP Interface Drift Report\n\n")
	fmt.Fprintf(&b, "- Current: `%s`\n", meta.CurrentRef)
	fmt.Fprintf(&b, "- Comparison: `%s`\n", meta.ComparisonRef)
	fmt.Fprintf(&b, "- Generated: %s\n", meta.GeneratedAt.UTC().Format(time.RFC3339))
	if meta.RunID != "" {
		fmt.Fprintf(&b, "- Run: %s\n", meta.RunID)
	}
	b.WriteString("\n")

	s := Summarize(results)
	fmt.Fprintf(&b, "**%d test(s): %d clean, %d drifted, %d errored**\n\n",
		len(results), s.Clean, s.Drift, s.Error)

	for _, r := range results {
		fmt.Fprintf(&b, "## %s %s\n\n", outcomeIcon(r.Outcome), r.Name)

		switch r.Outcome {
		case pipeline.OutcomeClean:
			b.WriteString("No interface changes.\n\n")
		case pipeline.OutcomeError:
			fmt.Fprintf(&b, "Probe failed: %s\n\n", r.Err)
		default:
			b.WriteString("| Path | Change | Before | After |\n")
			b.WriteString("|------|--------|--------|-------|\n")
			for _, e := range Collapse(r.Entries) {
				fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n",
					e.Path, e.Kind, cell(e.OldValue), cell(e.NewValue))
			}
			b.WriteString("\n")
		}

		fmt.Fprintf(&b, "_Probe durations: current %dms, comparison %dms_\n\n",
			r.CurrentMs, r.ComparisonMs)
	}

	return b.String()
}

func outcomeIcon(outcome string) string {
	switch outcome {
	case pipeline.OutcomeClean:
		return "✅"
	case pipeline.OutcomeDrift:
		return "⚠️"
	default:
		return "❌"
	}
}

// cell escapes a rendered value for a markdown table cell.
func cell(v string) string {
	if v == "" {
		return ""
	}
	v = strings.ReplaceAll(v, "|", "\\|")
	v = strings.ReplaceAll(v, "\n", " ")
	return "`" + v + "`"
}
