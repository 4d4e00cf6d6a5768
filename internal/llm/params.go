package llm

import (
	"strings"

	"satei/internal/apperr"
)

// Options holds the process-wide generation settings. They are read once at
// startup and turned into per-model request parameters by
// BuildRequestParams; individual requests never mutate them.
type Options struct {
	MaxOutputTokens  int
	Temperature      *float64
	ReasoningEffort  string
	ReasoningSummary string
	TextVerbosity    string
	ForceJSONMode    bool
}

// Models whose identifiers start with one of these prefixes accept
// reasoning controls and reject a sampling temperature.
var reasoningModelPrefixes = []string{"gpt-5", "o"}

var (
	allowedReasoningEffort = map[string]bool{
		"none": true, "minimal": true, "low": true, "medium": true, "high": true, "xhigh": true,
	}
	allowedReasoningSummary = map[string]bool{
		"auto": true, "concise": true, "detailed": true,
	}
	allowedTextVerbosity = map[string]bool{
		"low": true, "medium": true, "high": true,
	}
)

// ReasoningParams carries the reasoning controls for reasoning-family models.
type ReasoningParams struct {
	Effort  string `json:"effort,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// TextFormat constrains generated text to a JSON object when set.
type TextFormat struct {
	Type string `json:"type"`
}

// TextParams carries text-output controls.
type TextParams struct {
	Verbosity string      `json:"verbosity,omitempty"`
	Format    *TextFormat `json:"format,omitempty"`
}

// RequestParams is the capability-gated parameter set attached to one
// provider call. Fields are flattened into the request body.
type RequestParams struct {
	MaxOutputTokens int              `json:"max_output_tokens,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	Reasoning       *ReasoningParams `json:"reasoning,omitempty"`
	Text            *TextParams      `json:"text,omitempty"`
}

// SupportsReasoning reports whether model belongs to the reasoning-capable
// family by prefix match.
func SupportsReasoning(model string) bool {
	normalized := strings.ToLower(strings.TrimSpace(model))
	for _, prefix := range reasoningModelPrefixes {
		if strings.HasPrefix(normalized, prefix) {
			return true
		}
	}
	return false
}

// normalizeEnum strips a trailing inline-comment suffix ("low # fast" ->
// "low") and casefolds. Config files grow comments; the provider does not
// tolerate them.
func normalizeEnum(value string) string {
	if i := strings.IndexByte(value, '#'); i >= 0 {
		value = value[:i]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

// BuildRequestParams turns Options into the parameter set for one model.
// Temperature is sent only to non-reasoning models; reasoning controls only
// to reasoning models. Enumerated options outside their allow-list fail
// with a config error so misconfiguration surfaces at startup, not
// mid-request. Pure function of its inputs.
func BuildRequestParams(model string, opts Options) (RequestParams, error) {
	var params RequestParams

	if opts.MaxOutputTokens > 0 {
		params.MaxOutputTokens = opts.MaxOutputTokens
	}

	reasoning := SupportsReasoning(model)

	if opts.Temperature != nil && !reasoning {
		temp := *opts.Temperature
		params.Temperature = &temp
	}

	if reasoning {
		var rp ReasoningParams
		if opts.ReasoningEffort != "" {
			effort := normalizeEnum(opts.ReasoningEffort)
			if !allowedReasoningEffort[effort] {
				return RequestParams{}, apperr.Config("reasoning effort %q is not one of none, minimal, low, medium, high, xhigh", effort)
			}
			rp.Effort = effort
		}
		if opts.ReasoningSummary != "" {
			summary := normalizeEnum(opts.ReasoningSummary)
			if !allowedReasoningSummary[summary] {
				return RequestParams{}, apperr.Config("reasoning summary %q is not one of auto, concise, detailed", summary)
			}
			rp.Summary = summary
		}
		if rp != (ReasoningParams{}) {
			params.Reasoning = &rp
		}
	}

	var tp TextParams
	if opts.TextVerbosity != "" {
		verbosity := normalizeEnum(opts.TextVerbosity)
		if !allowedTextVerbosity[verbosity] {
			return RequestParams{}, apperr.Config("text verbosity %q is not one of low, medium, high", verbosity)
		}
		tp.Verbosity = verbosity
	}
	if opts.ForceJSONMode {
		tp.Format = &TextFormat{Type: "json_object"}
	}
	if tp.Verbosity != "" || tp.Format != nil {
		params.Text = &tp
	}

	return params, nil
}
