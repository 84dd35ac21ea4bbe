// Package cli provides the cobra command-line interface for Parley.
package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	configfile "github.com/quorum-labs/parley-cli/internal/adapters/driven/config/file"
	embedollama "github.com/quorum-labs/parley-cli/internal/adapters/driven/embedding/ollama"
	embedopenai "github.com/quorum-labs/parley-cli/internal/adapters/driven/embedding/openai"
	llmollama "github.com/quorum-labs/parley-cli/internal/adapters/driven/llm/ollama"
	"github.com/quorum-labs/parley-cli/internal/adapters/driven/storage/sqlite"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driven"
	"github.com/quorum-labs/parley-cli/internal/core/ports/driving"
	"github.com/quorum-labs/parley-cli/internal/core/services"
	"github.com/quorum-labs/parley-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	verbose   bool
	configDir string
)

// Services wired by initServices and shared across commands.
var (
	chatService      driving.ChatService
	retrievalService driving.RetrievalService
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "On-device retrieval-augmented chat assistant",
	Long: `Parley is a local-first conversational assistant. It augments a local
language model with context retrieved from your pre-ingested documents and
streams answers token by token.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default ~/.parley)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// initServices wires the retrieval and chat services from configuration.
// Called by commands that need the full pipeline, not at startup, so that
// version and help work without a document database present.
func initServices() error {
	if chatService != nil && retrievalService != nil {
		return nil
	}

	cfg, err := configfile.NewConfigStore(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Debug("Config loaded from %s", cfg.Path())

	store, err := sqlite.NewStore(cfg.GetString("data_dir"))
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	logger.Debug("Document store: %s", store.Path())

	embedding, err := buildEmbeddingBackend(cfg)
	if err != nil {
		return err
	}
	logger.Debug("Embedding backend: %s", embedding.ModelName())

	retrievalService = services.NewRetrievalService(store.DocumentReader(), embedding)

	backend := llmollama.NewGenerationBackend(llmollama.Config{
		BaseURL: cfg.GetString("ollama_base_url"),
		Model:   cfg.GetString("llm_model"),
	})
	logger.Debug("Generation backend: %s", backend.ModelName())

	chatCfg := services.ChatConfig{
		TopK:             cfg.GetInt("retrieval_top_k"),
		Threshold:        cfg.GetFloat("retrieval_threshold"),
		Collection:       cfg.GetString("retrieval_collection"),
		MaxContextLength: cfg.GetInt("max_context_length"),
		MaxTokens:        cfg.GetInt("generation_max_tokens"),
		Temperature:      cfg.GetFloat("generation_temperature"),
		Timeout:          time.Duration(cfg.GetInt("generation_timeout_seconds")) * time.Second,
	}

	svc := services.NewChatService(retrievalService, backend, chatCfg)

	prompts, err := configfile.NewPromptStore(cfg.GetString("prompt_dir"))
	if err != nil {
		logger.Warn("Prompt store unavailable, using built-in prompts: %v", err)
	} else {
		svc.SetPromptStore(prompts)
	}

	chatService = svc
	return nil
}

// buildEmbeddingBackend selects the embedding provider from configuration.
func buildEmbeddingBackend(cfg driven.ConfigStore) (driven.EmbeddingBackend, error) {
	switch provider := cfg.GetString("embedding_provider"); provider {
	case "", "ollama":
		return embedollama.NewEmbeddingBackend(embedollama.Config{
			BaseURL:    cfg.GetString("ollama_base_url"),
			Model:      cfg.GetString("embedding_model"),
			Dimensions: cfg.GetInt("embedding_dimensions"),
		}), nil

	case "openai":
		backend, err := embedopenai.NewEmbeddingBackend(embedopenai.Config{
			APIKey:     cfg.GetString("openai_api_key"),
			BaseURL:    cfg.GetString("openai_base_url"),
			Model:      cfg.GetString("openai_embedding_model"),
			Dimensions: cfg.GetInt("embedding_dimensions"),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedding backend: %w", err)
		}
		return backend, nil

	default:
		return nil, errors.New("unknown embedding_provider: " + provider)
	}
}
