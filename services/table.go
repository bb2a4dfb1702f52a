package services

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/intelsk/reid/models"
)

// FormatResultsTable formats a results view as a human-readable table, one
// block per (video, target) pair.
func FormatResultsTable(results models.ResultsResponse) string {
	if len(results.Results) == 0 {
		return "No results found."
	}

	var b strings.Builder
	for _, pr := range results.Results {
		name := pr.TargetName
		if name == "" {
			name = "(deleted target)"
		}
		fmt.Fprintf(&b, "Video %s / Target %s [%s] - %s\n",
			pr.VideoID, name, pr.TargetID, pluralMatches(len(pr.Matches)))
		if len(pr.Matches) == 0 {
			b.WriteString("\n")
			continue
		}
		fmt.Fprintf(&b, "%-6s %-8s %-12s %s\n", "Rank", "Match", "Frame", "Frame URL")
		fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 100))
		for i, m := range pr.Matches {
			fmt.Fprintf(&b, "%-6d %-8s %-12d %s\n",
				i+1, fmt.Sprintf("%.1f%%", m.Similarity*100), m.FrameIdx, m.FrameURL)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func pluralMatches(n int) string {
	if n == 1 {
		return "1 match"
	}
	return humanize.Comma(int64(n)) + " matches"
}
