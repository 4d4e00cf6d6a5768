package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satei/internal/apperr"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare object",
			input: `{"price_jpy": 12000}`,
			want:  `{"price_jpy": 12000}`,
		},
		{
			name:  "object with surrounding whitespace",
			input: "\n  {\"a\": 1}\t\n",
			want:  `{"a": 1}`,
		},
		{
			name:  "object wrapped in prose",
			input: "Here is the result:\n{\"price_jpy\": 120000}\nHope that helps!",
			want:  `{"price_jpy": 120000}`,
		},
		{
			name:  "markdown fence",
			input: "```json\n{\"brand\": \"Fender\"}\n```",
			want:  `{"brand": "Fender"}`,
		},
		{
			name:  "closing brace inside string value",
			input: `foo {"a":"}","b":1} bar`,
			want:  `{"a":"}","b":1}`,
		},
		{
			name:  "escaped quote inside string value",
			input: `x {"a":"say \"}\" twice","b":2} y`,
			want:  `{"a":"say \"}\" twice","b":2}`,
		},
		{
			name:  "nested objects",
			input: `prefix {"outer":{"inner":{"deep":true}}} suffix`,
			want:  `{"outer":{"inner":{"deep":true}}}`,
		},
		{
			name:    "empty input",
			input:   "",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			input:   "   \n\t ",
			wantErr: true,
		},
		{
			name:    "no braces at all",
			input:   "the model refused to answer",
			wantErr: true,
		},
		{
			name:    "unbalanced open brace",
			input:   `{"a": 1`,
			wantErr: true,
		},
		{
			name:    "array is not an object",
			input:   `[1, 2, 3]`,
			wantErr: true,
		},
		{
			name:    "whole-text null is not an object",
			input:   `null`,
			wantErr: true,
		},
		{
			name:  "null followed by object",
			input: `null {"a": 1}`,
			want:  `{"a": 1}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSONObject(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.IsKind(err, apperr.KindParse))
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(got))
		})
	}
}

func TestExtractJSONObjectRoundTrips(t *testing.T) {
	raw, err := ExtractJSONObject("noise before {\"model\": \"ST62\", \"year\": null} noise after")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "ST62", decoded["model"])
}
