package llm

import (
	"encoding/json"
	"strings"

	"satei/internal/apperr"
)

// ExtractJSONObject locates the single JSON object embedded in model output
// text. Models are not guaranteed well-formed emitters even in JSON mode:
// they sometimes wrap the object in prose or formatting, so a strict parse
// is tried first and a depth-tracked brace scan second.
func ExtractJSONObject(text string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, apperr.Parse("empty response")
	}

	if obj := json.RawMessage(trimmed); isJSONObject(obj) {
		return obj, nil
	}

	span, ok := findObjectSpan(trimmed)
	if !ok {
		return nil, apperr.Parse("no JSON object found in response")
	}
	if !isJSONObject(span) {
		return nil, apperr.Parse("located JSON span is not a valid object")
	}
	return span, nil
}

func isJSONObject(raw json.RawMessage) bool {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	// Unmarshal accepts "null" and leaves the map nil; only a real object
	// allocates it.
	return probe != nil
}

// findObjectSpan returns the substring from the first '{' to its matching
// '}'. Characters inside double-quoted spans are non-structural, including
// backslash-escaped quotes, so a '}' inside a string value never closes the
// object early.
func findObjectSpan(text string) (json.RawMessage, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return nil, false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return json.RawMessage(text[start : i+1]), true
			}
		}
	}

	return nil, false
}
