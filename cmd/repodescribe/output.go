package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/repodescribe/internal/pipeline"
)

// maxListedFailures caps the failure lines printed under a report.
const maxListedFailures = 10

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	paragraphStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1).
			Width(78)
)

func renderReport(r *pipeline.Report, sinkKind string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(r.Repository))
	b.WriteString("\n\n")

	if r.Summary != nil {
		b.WriteString(paragraphStyle.Render(r.Summary.Paragraph))
		b.WriteString("\n")
		field(&b, "url", r.Summary.Metadata.URL)
		field(&b, "author", r.Summary.Metadata.Author)
	}

	s := r.Stats
	field(&b, "walked", fmt.Sprintf("%d dirs, %d files, %d filtered", s.Directories, s.Files, s.Filtered))
	field(&b, "chunks", fmt.Sprintf("%d annotated of %d", s.Annotated, s.Chunks))

	switch {
	case r.Stored:
		field(&b, "stored", okStyle.Render("✓ ")+fmt.Sprintf("%s/%s", sinkKind, r.Namespace))
	case r.Summary != nil:
		field(&b, "stored", warnStyle.Render("✗ not stored"))
	}
	field(&b, "run", dimStyle.Render(fmt.Sprintf("%s in %dms", r.RunID, r.DurationMS)))

	if len(r.Failures) > 0 {
		b.WriteString("\n")
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d skipped", len(r.Failures))))
		b.WriteString("\n")
		for i, f := range r.Failures {
			if i == maxListedFailures {
				b.WriteString(dimStyle.Render(fmt.Sprintf("  … %d more", len(r.Failures)-maxListedFailures)))
				b.WriteString("\n")
				break
			}
			b.WriteString(dimStyle.Render("  " + f.String()))
			b.WriteString("\n")
		}
	}
	return b.String()
}

func field(b *strings.Builder, label, value string) {
	b.WriteString(labelStyle.Render(fmt.Sprintf("%-7s", label)))
	b.WriteString(" ")
	b.WriteString(value)
	b.WriteString("\n")
}
