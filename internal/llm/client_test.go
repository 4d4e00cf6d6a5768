package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"satei/internal/apperr"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindConfig))
}

func TestGenerateTextAdaptsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-5-mini", req["model"])
		input := req["input"].([]any)
		require.Len(t, input, 1)

		resp := map[string]any{
			"output": []any{
				map[string]any{
					"type": "reasoning",
					"summary": []any{
						map[string]any{"type": "summary_text", "text": "compared prices\n\nchecked condition"},
					},
				},
				map[string]any{
					"type": "message",
					"content": []any{
						map[string]any{"type": "output_text", "text": `{"price_jpy": `},
						map[string]any{"type": "output_text", "text": `120000}`},
					},
				},
			},
			"usage": map[string]any{"input_tokens": 900, "output_tokens": 120, "total_tokens": 1020},
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.GenerateText(context.Background(), "gpt-5-mini", RequestParams{}, "instruction", "body")
	require.NoError(t, err)
	assert.Equal(t, `{"price_jpy": 120000}`, out.Text)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 1020, out.Usage.TotalTokens)
	assert.Equal(t, []string{"compared prices", "checked condition"}, out.ReasoningSummary)
}

func TestGenerateVisionSendsImagePart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		input := req["input"].([]any)
		content := input[0].(map[string]any)["content"].([]any)
		require.Len(t, content, 2)
		image := content[1].(map[string]any)
		assert.Equal(t, "input_image", image["type"])
		assert.Equal(t, "data:image/png;base64,AAAA", image["image_url"])
		assert.Equal(t, "auto", image["detail"])

		json.NewEncoder(w).Encode(map[string]any{
			"output": []any{
				map[string]any{
					"type": "message",
					"content": []any{
						map[string]any{"type": "output_text", "text": `{"brand": "Fender"}`},
					},
				},
			},
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	out, err := client.GenerateVision(context.Background(), "gpt-5-mini", RequestParams{}, "describe", "data:image/png;base64,AAAA")
	require.NoError(t, err)
	assert.Equal(t, `{"brand": "Fender"}`, out.Text)
	assert.Nil(t, out.Usage)
}

func TestGenerateNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.GenerateText(context.Background(), "gpt-5-mini", RequestParams{}, "i", "b")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
	// Detail is preserved for server-side logs but never for callers.
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, "provider returned non-OK status", apperr.CallerMessage(err, "provider returned non-OK status"))
}

func TestGenerateEmbeddedError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"type": "invalid_request_error", "message": "unknown model"},
		})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = client.GenerateText(context.Background(), "gpt-5-mini", RequestParams{}, "i", "b")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindUpstream))
}

func TestRequestParamsSerialization(t *testing.T) {
	temp := 0.3
	params := RequestParams{
		MaxOutputTokens: 2048,
		Temperature:     &temp,
		Text:            &TextParams{Format: &TextFormat{Type: "json_object"}},
	}

	var captured map[string]json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{"output": []any{}})
	}))
	defer srv.Close()

	client, err := NewClient(ClientConfig{APIKey: "test-key", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = client.GenerateText(context.Background(), "gpt-4o", params, "i", "b")
	require.NoError(t, err)

	assert.JSONEq(t, `2048`, string(captured["max_output_tokens"]))
	assert.JSONEq(t, `0.3`, string(captured["temperature"]))
	assert.JSONEq(t, `{"format": {"type": "json_object"}}`, string(captured["text"]))
	_, hasReasoning := captured["reasoning"]
	assert.False(t, hasReasoning)
}
