package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/agenthands/kgfuse/internal/config"
	"github.com/agenthands/kgfuse/internal/logger"
)

func NewEmbedder(ctx context.Context, cfg config.EmbeddingConfig, log *logger.Logger) (EmbedderClient, error) {
	if log == nil {
		log = logger.Nop()
	}
	provider := strings.ToLower(cfg.Provider)

	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL), nil

	case "gemini":
		return NewGeminiClient(ctx, cfg.APIKey, cfg.Model)

	case "ollama":
		// Ollama serves an OpenAI-compatible API under /v1.
		baseURL := cfg.BaseURL
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL = fmt.Sprintf("%s/v1", strings.TrimRight(baseURL, "/"))
		}
		log.Info("initializing ollama embedder via openai-compatible api", "base_url", baseURL, "model", cfg.Model)

		// Ollama ignores the key but the client requires one.
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAIClient(apiKey, cfg.Model, baseURL), nil

	case "claude":
		return nil, fmt.Errorf("llm provider %s does not provide embeddings", provider)

	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", provider)
	}
}
