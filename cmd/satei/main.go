package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"satei/internal/config"
	"satei/internal/embedding"
	"satei/internal/llm"
	"satei/internal/pipeline"
	"satei/internal/server"
	"satei/internal/store"
)

var (
	// Global flags
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "satei",
	Short: "Used instrument valuation service",
	Long: `satei estimates the market price of used musical instruments.

A vision model turns an instrument photo into a structured description,
then a retrieval-augmented pricing model turns the description into a
JPY estimate grounded in reference sale records.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFromFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}

		level, err := zapcore.ParseLevel(cfg.Logging.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.Logging.Level, err)
		}
		if verbose {
			level = zapcore.DebugLevel
		}

		zapCfg := zap.NewProductionConfig()
		if cfg.Logging.Format == "console" {
			zapCfg = zap.NewDevelopmentConfig()
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)

		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Seed the retrieval store and serve the HTTP API",
	RunE:  runServe,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the reference corpus into the retrieval store and exit",
	RunE:  runSeed,
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd, seedCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	st, err := openSeededStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	client, err := llm.NewClient(llm.ClientConfig{
		APIKey:  cfg.Provider.APIKey,
		BaseURL: cfg.Provider.BaseURL,
		Timeout: cfg.Provider.RequestTimeout(),
	})
	if err != nil {
		return err
	}

	opts := llm.Options{
		MaxOutputTokens:  cfg.Generation.MaxOutputTokens,
		ReasoningEffort:  cfg.Generation.ReasoningEffort,
		ReasoningSummary: cfg.Generation.ReasoningSummary,
		TextVerbosity:    cfg.Generation.TextVerbosity,
	}
	if cfg.Generation.Temperature >= 0 {
		t := cfg.Generation.Temperature
		opts.Temperature = &t
	}

	pipe, err := pipeline.New(client, st, pipeline.Config{
		VisionModel: cfg.Provider.VisionModel,
		RAGModel:    cfg.Provider.RAGModel,
		Options:     opts,
		TopK:        cfg.Retrieval.TopK,
	}, logger)
	if err != nil {
		return err
	}

	srv := server.New(pipe, cfg.Server.CORSOrigin, logger)
	return srv.Run(cfg.Server.Addr)
}

func runSeed(cmd *cobra.Command, args []string) error {
	st, err := openSeededStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	count, err := st.Count()
	if err != nil {
		return err
	}
	logger.Info("seed complete", zap.Int("entries", count))
	return nil
}

// openSeededStore opens the index, loads the seed corpus and embeds any
// missing records. Serving never starts on a partially seeded store.
func openSeededStore(ctx context.Context) (*store.Store, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OpenAIAPIKey:   cfg.Provider.APIKey,
		OpenAIBaseURL:  cfg.Provider.BaseURL,
		OpenAIModel:    cfg.Embedding.OpenAIModel,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
	})
	if err != nil {
		return nil, err
	}

	entries, err := store.LoadSeedFile(cfg.Retrieval.SeedPath)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Retrieval.StorePath, engine, logger)
	if err != nil {
		return nil, err
	}

	seedCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if _, err := st.Seed(seedCtx, entries); err != nil {
		st.Close()
		return nil, err
	}
	return st, nil
}
