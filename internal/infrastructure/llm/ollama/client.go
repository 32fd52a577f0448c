package ollama

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Client implements ports.ReasoningService on Ollama's /api/generate.
type Client struct {
	baseURL    string
	genModel   string
	httpClient *http.Client
	now        func() time.Time
}

func New(baseURL, genModel string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		now:        time.Now,
	}
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	System string   `json:"system,omitempty"`
	Images []string `json:"images,omitempty"`
	Stream bool     `json:"stream"`
	Format string   `json:"format"`
}

type generateResponse struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (c *Client) Complete(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	body := generateRequest{
		Model:  c.genModel,
		Prompt: req.UserPrompt,
		System: req.SystemPrompt,
		Format: "json",
	}
	if len(req.Image) > 0 {
		body.Images = []string{base64.StdEncoding.EncodeToString(req.Image)}
	}

	resp, err := post[generateResponse](ctx, c, "/api/generate", body)
	if err != nil {
		return domain.ReasoningResponse{}, err
	}
	return domain.ReasoningResponse{
		Content:      strings.TrimSpace(resp.Response),
		Model:        resp.Model,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}
