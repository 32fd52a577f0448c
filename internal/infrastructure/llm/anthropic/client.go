package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const defaultMaxTokens = 1024

type messageFunc func(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)

// Client implements ports.ReasoningService on the Anthropic Messages API.
// Retries are left to the reasoning client, so the SDK's own retries are off.
type Client struct {
	model     string
	maxTokens int64
	newMsg    messageFunc
	now       func() time.Time
}

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
}

func New(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	client := sdk.NewClient(opts...)
	return &Client{
		model:     cfg.Model,
		maxTokens: int64(maxTokens),
		newMsg:    client.Messages.New,
		now:       time.Now,
	}
}

func (c *Client) Complete(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error) {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(req.UserPrompt)}
	if len(req.Image) > 0 && req.ImageMIME != "" {
		blocks = append(blocks, sdk.NewImageBlockBase64(req.ImageMIME, base64.StdEncoding.EncodeToString(req.Image)))
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: c.maxTokens,
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{
			{Text: req.SystemPrompt},
		}
	}

	resp, err := c.newMsg(ctx, params)
	if err != nil {
		return domain.ReasoningResponse{}, c.upstreamError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return domain.ReasoningResponse{}, fmt.Errorf("anthropic: empty response")
	}

	return domain.ReasoningResponse{
		Content:      strings.TrimSpace(text.String()),
		Model:        string(resp.Model),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// upstreamError turns an API status error into a domain.UpstreamError so the
// reasoning client can classify it. Transport errors pass through unchanged.
func (c *Client) upstreamError(err error) error {
	var apiErr *sdk.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	out := &domain.UpstreamError{Service: "anthropic", StatusCode: apiErr.StatusCode}
	if apiErr.Response != nil {
		out.RetryAfter = domain.ParseRetryAfter(apiErr.Response.Header.Get("Retry-After"), c.now())
	}
	return fmt.Errorf("%w: %w", out, err)
}
