package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml (if present), applies SATEI_* environment
// overrides, fills defaults and validates. A missing config file is fine;
// everything can come from the environment.
func Load() (*Config, error) {
	// Best effort; system environment wins when no .env exists.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.SetEnvPrefix("SATEI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return finish(v)
}

// LoadFromFile reads configuration from an explicit path.
func LoadFromFile(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SATEI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

// setDefaults registers every known key with its default. AutomaticEnv only
// resolves keys viper already knows about, so registration doubles as the
// binding that lets SATEI_* variables work without any config file.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.cors_origin", "http://localhost:5173")

	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.base_url", "https://api.openai.com/v1")
	v.SetDefault("provider.vision_model", "gpt-5-mini")
	v.SetDefault("provider.rag_model", "gpt-5-mini")
	v.SetDefault("provider.timeout", 120)

	v.SetDefault("generation.max_output_tokens", 4096)
	// Unset temperature must stay distinguishable from zero.
	v.SetDefault("generation.temperature", -1.0)
	v.SetDefault("generation.reasoning_effort", "")
	v.SetDefault("generation.reasoning_summary", "")
	v.SetDefault("generation.text_verbosity", "")

	v.SetDefault("embedding.provider", "openai")
	v.SetDefault("embedding.openai_model", "text-embedding-3-small")
	v.SetDefault("embedding.ollama_endpoint", "http://localhost:11434")
	v.SetDefault("embedding.ollama_model", "embeddinggemma")
	v.SetDefault("embedding.genai_api_key", "")
	v.SetDefault("embedding.genai_model", "gemini-embedding-001")

	v.SetDefault("retrieval.top_k", 4)
	v.SetDefault("retrieval.store_path", "data/index.db")
	v.SetDefault("retrieval.seed_path", "data/seed.jsonl")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func finish(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Provider.APIKey == "" {
		cfg.Provider.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.Embedding.GenAIAPIKey == "" {
		cfg.Embedding.GenAIAPIKey = os.Getenv("GENAI_API_KEY")
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
