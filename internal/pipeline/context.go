package pipeline

import (
	"fmt"
	"strings"

	"satei/internal/store"
)

// BuildContext renders retrieved entries as the references block of the
// pricing prompt, preserving retrieval order.
func BuildContext(entries []store.QueryResult) string {
	if len(entries) == 0 {
		return "(no references found)"
	}

	blocks := make([]string, len(entries))
	for i, result := range entries {
		entry := result.Entry
		blocks[i] = fmt.Sprintf("- %s | price_jpy: %d | source: %s\n  %s",
			entry.Title, entry.PriceJPY, entry.Source, entry.Content)
	}
	return strings.Join(blocks, "\n")
}
