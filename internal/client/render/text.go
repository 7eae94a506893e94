package render

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 20

// WriteText prints r as a plain-text report.
func WriteText(w io.Writer, r *Report, at time.Time) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Report Date: %s\n\n", at.Format(time.RFC1123))
	fmt.Fprintf(&b, "%s\n\n", r.Summary)
	if r.SpecimenType != "" {
		fmt.Fprintf(&b, "Specimen: %s\n", r.SpecimenType)
	}
	fmt.Fprintf(&b, "Visual Evidence (Avg Confidence: %d%%)\n", r.ConfidencePct)
	for _, m := range r.Markers {
		filled := m.Percent * barWidth / 100
		fmt.Fprintf(&b, "  %-24s [%s%s] %3d%% %s\n", m.Feature,
			strings.Repeat("#", filled), strings.Repeat(".", barWidth-filled), m.Percent, m.Certainty)
		if m.Observation != "" {
			fmt.Fprintf(&b, "    %s\n", m.Observation)
		}
	}
	if len(r.Glossary) > 0 {
		b.WriteString("\nTerminology Bridge\n")
		for _, g := range r.Glossary {
			fmt.Fprintf(&b, "  %s: %s\n", g.Term, g.PlainExplanation)
		}
	}
	if r.Disclaimer != "" {
		fmt.Fprintf(&b, "\n%s\n", r.Disclaimer)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
