package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/llm/anthropic"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/reasoning"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

// newEnhancer returns nil when no reasoning provider is configured.
func newEnhancer(cfg config.Config, types []domain.DocumentType, observer *metrics.PipelineMetrics, logger *slog.Logger) (ports.DocumentEnhancer, error) {
	service, err := newReasoningService(cfg)
	if err != nil || service == nil {
		return nil, err
	}

	cache := reasoning.NewCache[domain.Enhancement](cfg.ReasoningCacheSize, cfg.ReasoningCacheTTL)
	limiter := reasoning.NewSlidingWindowLimiter(cfg.ReasoningMaxPerMinute, cfg.ReasoningMaxPerHour)
	client := reasoning.NewClient(cfg.ReasoningProvider, cache, limiter, reasoning.Options{
		MaxRetries:     cfg.ReasoningMaxRetries,
		InitialBackoff: cfg.ReasoningInitialBackoff,
		MaxBackoff:     cfg.ReasoningMaxBackoff,
		BackoffFactor:  cfg.ReasoningBackoffFactor,
		CallTimeout:    cfg.ReasoningTimeout,
		BreakerEnabled: cfg.BreakerEnabled,
	}, observer, logger)

	enhancer, err := reasoning.NewEnhancer(service, client, types)
	if err != nil {
		return nil, fmt.Errorf("init enhancer: %w", err)
	}
	return enhancer.WithUsageObserver(observer), nil
}

func newReasoningService(cfg config.Config) (ports.ReasoningService, error) {
	switch cfg.ReasoningProvider {
	case "", "none":
		return nil, nil
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("reasoning provider anthropic requires ANTHROPIC_API_KEY")
		}
		return anthropic.New(anthropic.Config{
			APIKey:  cfg.AnthropicAPIKey,
			Model:   cfg.AnthropicModel,
			BaseURL: cfg.AnthropicBaseURL,
		}), nil
	case "ollama":
		return ollama.New(cfg.OllamaURL, cfg.OllamaGenModel), nil
	default:
		return nil, fmt.Errorf("unknown reasoning provider %q", cfg.ReasoningProvider)
	}
}
