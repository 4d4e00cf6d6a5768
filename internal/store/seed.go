package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"satei/internal/types"
)

// LoadSeedFile reads reference records from a JSONL file, one record per
// line. Blank lines are skipped; a malformed line is an error, not a skip,
// so a corrupt corpus never seeds partially.
func LoadSeedFile(path string) ([]types.RetrievalEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	var entries []types.RetrievalEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}

		var entry types.RetrievalEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("seed file %s line %d: %w", path, line, err)
		}
		if entry.Title == "" || entry.Content == "" {
			return nil, fmt.Errorf("seed file %s line %d: record must have title and text", path, line)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}

	return entries, nil
}
