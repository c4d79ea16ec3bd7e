package agent

import (
	"fmt"
	"strings"

	"github.com/tablepilot/tablepilot/internal/dbexec"
)

// resultSummary is a deterministic template; no second model call is
// made for summarization.
func resultSummary(rowCount int, columns []string) string {
	if rowCount == 0 {
		return "No records found matching your query."
	}
	if rowCount >= dbexec.MaxFetchRows {
		return "Found 10,000+ records (display capped). Consider adding filters to narrow results."
	}
	preview := strings.Join(columns[:min(len(columns), 4)], ", ")
	suffix := ""
	if len(columns) > 4 {
		suffix = fmt.Sprintf(" and %d more columns", len(columns)-4)
	}
	plural := "s"
	if rowCount == 1 {
		plural = ""
	}
	return fmt.Sprintf("Found %d record%s with columns: %s%s.", rowCount, plural, preview, suffix)
}
