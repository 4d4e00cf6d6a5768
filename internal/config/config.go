// Package config loads service configuration from a YAML file with
// environment variable overrides. Validation is fail-fast: a bad
// configuration stops startup instead of surfacing on the first request.
package config

import (
	"time"

	"satei/internal/apperr"
)

// Config is the root application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Provider   ProviderConfig   `mapstructure:"provider"`
	Generation GenerationConfig `mapstructure:"generation"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Retrieval  RetrievalConfig  `mapstructure:"retrieval"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	CORSOrigin string `mapstructure:"cors_origin"`
}

// ProviderConfig holds settings for the generation provider.
type ProviderConfig struct {
	APIKey      string `mapstructure:"api_key"`
	BaseURL     string `mapstructure:"base_url"`
	VisionModel string `mapstructure:"vision_model"`
	RAGModel    string `mapstructure:"rag_model"`
	Timeout     int    `mapstructure:"timeout"` // seconds
}

// RequestTimeout returns the per-request provider timeout.
func (p ProviderConfig) RequestTimeout() time.Duration {
	return time.Duration(p.Timeout) * time.Second
}

// GenerationConfig holds the model-shared generation options.
// Temperature below zero means unset.
type GenerationConfig struct {
	MaxOutputTokens  int     `mapstructure:"max_output_tokens"`
	Temperature      float64 `mapstructure:"temperature"`
	ReasoningEffort  string  `mapstructure:"reasoning_effort"`
	ReasoningSummary string  `mapstructure:"reasoning_summary"`
	TextVerbosity    string  `mapstructure:"text_verbosity"`
}

// EmbeddingConfig selects and configures the embedding backend. The openai
// backend reuses the provider API key and base URL.
type EmbeddingConfig struct {
	Provider       string `mapstructure:"provider"`
	OpenAIModel    string `mapstructure:"openai_model"`
	OllamaEndpoint string `mapstructure:"ollama_endpoint"`
	OllamaModel    string `mapstructure:"ollama_model"`
	GenAIAPIKey    string `mapstructure:"genai_api_key"`
	GenAIModel     string `mapstructure:"genai_model"`
}

// RetrievalConfig holds the similarity index settings.
type RetrievalConfig struct {
	TopK      int    `mapstructure:"top_k"`
	StorePath string `mapstructure:"store_path"`
	SeedPath  string `mapstructure:"seed_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func validate(cfg *Config) error {
	if cfg.Provider.APIKey == "" {
		return apperr.Config("provider.api_key is required (or set OPENAI_API_KEY)")
	}
	if cfg.Provider.Timeout < 0 {
		return apperr.Config("provider.timeout must not be negative")
	}
	if cfg.Retrieval.TopK < 1 {
		return apperr.Config("retrieval.top_k must be at least 1")
	}
	switch cfg.Embedding.Provider {
	case "openai", "ollama", "genai":
	default:
		return apperr.Config("embedding.provider must be one of openai, ollama, genai")
	}
	if cfg.Embedding.Provider == "genai" && cfg.Embedding.GenAIAPIKey == "" {
		return apperr.Config("embedding.genai_api_key is required for the genai provider")
	}
	return nil
}
