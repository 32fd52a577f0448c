package bootstrap

import (
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/document-pipeline/internal/config"
	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/observability/metrics"
)

func TestNewEnhancerProviders(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pipeline := metrics.NewPipelineMetrics("test", prometheus.NewRegistry())
	types := []domain.DocumentType{domain.TypeInvoice}

	cases := []struct {
		name     string
		cfg      config.Config
		wantNil  bool
		wantFail bool
	}{
		{name: "disabled", cfg: config.Config{ReasoningProvider: "none"}, wantNil: true},
		{name: "anthropic without key", cfg: config.Config{ReasoningProvider: "anthropic"}, wantFail: true},
		{name: "anthropic", cfg: config.Config{ReasoningProvider: "anthropic", AnthropicAPIKey: "k", AnthropicModel: "m"}},
		{name: "ollama", cfg: config.Config{ReasoningProvider: "ollama", OllamaURL: "http://localhost:11434", OllamaGenModel: "m"}},
		{name: "unknown", cfg: config.Config{ReasoningProvider: "oracle"}, wantFail: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enh, err := newEnhancer(tc.cfg, types, pipeline, logger)
			if tc.wantFail {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("newEnhancer() error = %v", err)
			}
			if (enh == nil) != tc.wantNil {
				t.Fatalf("enhancer nil = %v, want %v", enh == nil, tc.wantNil)
			}
		})
	}
}
