package pipeline

import (
	"strings"

	"satei/internal/types"
)

// BuildQuery renders a description as labeled lines for retrieval and for
// the pricing prompt. Field order is fixed; empty fields are omitted
// entirely rather than rendered blank.
func BuildQuery(desc types.InstrumentDescription) string {
	fields := []struct {
		label string
		value string
	}{
		{"category", desc.Category},
		{"brand", desc.Brand},
		{"model", desc.Model},
		{"year", desc.Year},
		{"condition", desc.Condition},
		{"materials", strings.Join(desc.Materials, ", ")},
		{"features", strings.Join(desc.Features, ", ")},
		{"notes", desc.Notes},
	}

	var lines []string
	for _, f := range fields {
		if f.value != "" {
			lines = append(lines, f.label+": "+f.value)
		}
	}
	return strings.Join(lines, "\n")
}
