package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

const maxErrorBody = 2048

func post[Resp any](ctx context.Context, c *Client, path string, payload any) (Resp, error) {
	var out Resp
	body, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("ollama %s: marshal request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return out, fmt.Errorf("ollama %s: build request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return out, c.upstreamError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("ollama %s: decode response: %w", path, err)
	}
	return out, nil
}

// upstreamError prefers the "error" field Ollama puts in JSON error bodies.
func (c *Client) upstreamError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(raw))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &domain.UpstreamError{
		Service:    "ollama",
		StatusCode: resp.StatusCode,
		RetryAfter: domain.ParseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
		Body:       msg,
	}
}
