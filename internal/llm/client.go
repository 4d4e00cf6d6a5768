// Package llm is the boundary to the hosted generation provider. It builds
// capability-gated request parameters, issues vision and text generation
// calls over the Responses API, and digs the text output plus optional
// usage/reasoning metadata out of the provider's semi-structured responses.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"satei/internal/apperr"
)

const defaultBaseURL = "https://api.openai.com/v1"

// ClientConfig configures the provider client.
type ClientConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// DefaultClientConfig returns sensible defaults. Generation calls on large
// inputs can run long, so the timeout is generous. There is no retry
// wrapping; a single failure aborts the request's pipeline.
func DefaultClientConfig(apiKey string) ClientConfig {
	return ClientConfig{
		APIKey:  apiKey,
		BaseURL: defaultBaseURL,
		Timeout: 2 * time.Minute,
	}
}

// Client issues generation calls against the provider.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a provider client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, apperr.Config("provider API key is not set")
	}
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:  config.APIKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Usage holds the token counters a response may report.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Output is the typed adapter over one provider response: the concatenated
// text output plus whatever optional metadata the response carried.
// Extracting these once here keeps downstream code free of ad hoc presence
// checks against the raw wire shape.
type Output struct {
	Text             string
	Usage            *Usage
	ReasoningSummary []string
}

// Wire types for the Responses API.

type contentPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

type inputMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type responsesRequest struct {
	Model string         `json:"model"`
	Input []inputMessage `json:"input"`
	RequestParams
}

type summaryPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outputContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type outputItem struct {
	Type    string          `json:"type"`
	Content []outputContent `json:"content,omitempty"`
	Summary []summaryPart   `json:"summary,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type responsesResponse struct {
	Output []outputItem `json:"output"`
	Usage  *Usage       `json:"usage"`
	Error  *apiError    `json:"error"`
}

// GenerateVision issues one multimodal generation call carrying the
// instruction and an image data URL.
func (c *Client) GenerateVision(ctx context.Context, model string, params RequestParams, instruction, imageURL string) (*Output, error) {
	req := responsesRequest{
		Model: model,
		Input: []inputMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "input_text", Text: instruction},
					{Type: "input_image", ImageURL: imageURL, Detail: "auto"},
				},
			},
		},
		RequestParams: params,
	}
	return c.generate(ctx, req)
}

// GenerateText issues one text generation call carrying the instruction
// followed by the request body text.
func (c *Client) GenerateText(ctx context.Context, model string, params RequestParams, instruction, body string) (*Output, error) {
	req := responsesRequest{
		Model: model,
		Input: []inputMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "input_text", Text: instruction},
					{Type: "input_text", Text: body},
				},
			},
		},
		RequestParams: params,
	}
	return c.generate(ctx, req)
}

func (c *Client) generate(ctx context.Context, reqBody responsesRequest) (*Output, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to marshal request")
	}

	url := c.baseURL + "/responses"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, apperr.Upstream(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Upstream(err, "provider request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to read provider response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Upstream(
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 512)),
			"provider returned non-OK status")
	}

	var parsed responsesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperr.Upstream(err, "failed to parse provider response")
	}
	if parsed.Error != nil {
		return nil, apperr.Upstream(fmt.Errorf("%s: %s", parsed.Error.Type, parsed.Error.Message), "provider error")
	}

	return adaptResponse(&parsed), nil
}

// adaptResponse flattens the response's output items into an Output.
// Message items contribute text; reasoning items contribute summary lines.
func adaptResponse(resp *responsesResponse) *Output {
	out := &Output{Usage: resp.Usage}

	var text strings.Builder
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, part := range item.Content {
				if part.Type == "output_text" {
					text.WriteString(part.Text)
				}
			}
		case "reasoning":
			for _, summary := range item.Summary {
				for _, raw := range strings.Split(summary.Text, "\n") {
					if line := strings.TrimSpace(raw); line != "" {
						out.ReasoningSummary = append(out.ReasoningSummary, line)
					}
				}
			}
		}
	}
	out.Text = strings.TrimSpace(text.String())
	return out
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
