package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func parseOutputFormat(raw, fallback string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(raw))
	if format == "" {
		format = strings.ToLower(strings.TrimSpace(fallback))
	}
	if format != outputFormatTable && format != outputFormatJSON {
		return "", fmt.Errorf("--format must be %s or %s", outputFormatTable, outputFormatJSON)
	}
	return format, nil
}

// truncateForTable shortens value to at most maxLen runes, marking the cut
// with an ellipsis.
func truncateForTable(value string, maxLen int) string {
	trimmed := strings.TrimSpace(value)
	if maxLen <= 0 || utf8.RuneCountInString(trimmed) <= maxLen {
		return trimmed
	}
	runes := []rune(trimmed)
	if maxLen == 1 {
		return string(runes[:1])
	}
	return string(runes[:maxLen-1]) + "…"
}

func formatUTCTimestamp(value time.Time) string {
	if value.IsZero() {
		return "-"
	}
	return value.UTC().Format(time.RFC3339)
}

func printJSON(value any) error {
	return writeJSON(os.Stdout, value)
}

func writeJSON(w io.Writer, value any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(value)
}

// writeTable renders rows as aligned columns with a rule under the header.
// Empty cells print as "-" so columns stay readable with awk.
func writeTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", max(3, utf8.RuneCountInString(h)))
	}
	lines := append([][]string{headers, rule}, rows...)
	for _, line := range lines {
		cells := make([]string, len(line))
		for i, cell := range line {
			if cell = strings.TrimSpace(cell); cell == "" {
				cell = "-"
			}
			cells[i] = cell
		}
		if _, err := fmt.Fprintln(tw, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}
