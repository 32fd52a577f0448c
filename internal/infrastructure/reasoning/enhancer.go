package reasoning

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

const maxPromptSnippet = 4000

const enhanceSystemPrompt = `You are a document analysis assistant.
Personal data in the text has been replaced with placeholders such as [EMAIL] or [ID]; keep them as they are.
Return a strict JSON object with keys:
type (one of: %s), confidence (number from 0 to 1),
fields (object with optional keys issue_date, expiry_date as YYYY-MM-DD, amounts as array of {value, currency, raw},
identifiers, emails, phones as arrays of strings, custom as object of strings).
No markdown, no extra keys.`

// UsageObserver receives token usage of completed calls.
type UsageObserver interface {
	ObserveTokens(model string, input, output int)
}

// Enhancer asks a reasoning service to classify and extract fields from a
// document whose local result was not confident enough.
type Enhancer struct {
	service ports.ReasoningService
	client  *Client[domain.Enhancement]
	schema  *jsonschema.Schema
	types   []domain.DocumentType
	usage   UsageObserver
}

func NewEnhancer(service ports.ReasoningService, client *Client[domain.Enhancement], types []domain.DocumentType) (*Enhancer, error) {
	schema, err := compileSchema(enhancementSchema)
	if err != nil {
		return nil, err
	}
	return &Enhancer{service: service, client: client, schema: schema, types: types}, nil
}

func (e *Enhancer) WithUsageObserver(o UsageObserver) *Enhancer {
	e.usage = o
	return e
}

func (e *Enhancer) Enhance(ctx context.Context, text string, image []byte, imageMIME string) (domain.Enhancement, error) {
	snippet := truncateUTF8(text, maxPromptSnippet)
	req := domain.ReasoningRequest{
		SystemPrompt: fmt.Sprintf(enhanceSystemPrompt, e.typeList()),
		UserPrompt:   "Document:\n" + snippet,
	}
	if len(image) > 0 {
		req.Image = image
		req.ImageMIME = imageMIME
	}

	result, err := e.client.Execute(ctx, cacheKey(req), func(callCtx context.Context) (domain.Enhancement, error) {
		resp, err := e.service.Complete(callCtx, req)
		if err != nil {
			return domain.Enhancement{}, err
		}
		if e.usage != nil {
			e.usage.ObserveTokens(resp.Model, resp.InputTokens, resp.OutputTokens)
		}
		return e.parse(resp.Content)
	})
	if err != nil {
		return domain.Enhancement{}, err
	}
	out := result.Value
	out.FromCache = result.FromCache
	return out, nil
}

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (e *Enhancer) parse(content string) (domain.Enhancement, error) {
	raw := []byte(extractJSONObject(content))
	if err := validateJSON(e.schema, raw); err != nil {
		return domain.Enhancement{}, domain.NewError(domain.CodeProcessingFailed, "reasoning.parse", "invalid enhancement", err)
	}
	var out domain.Enhancement
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.Enhancement{}, domain.NewError(domain.CodeProcessingFailed, "reasoning.parse", "invalid enhancement", err)
	}
	if !e.knownType(out.Type) {
		out.Type = domain.TypeUnknown
	}
	return out, nil
}

func (e *Enhancer) typeList() string {
	names := make([]string, 0, len(e.types)+1)
	for _, t := range e.types {
		names = append(names, string(t))
	}
	names = append(names, string(domain.TypeUnknown))
	return strings.Join(names, ", ")
}

func (e *Enhancer) knownType(t domain.DocumentType) bool {
	if t == domain.TypeUnknown {
		return true
	}
	for _, known := range e.types {
		if known == t {
			return true
		}
	}
	return false
}

// cacheKey hashes the full request so identical documents share one call.
func cacheKey(req domain.ReasoningRequest) string {
	h := sha256.New()
	h.Write([]byte(req.SystemPrompt))
	h.Write([]byte{0})
	h.Write([]byte(req.UserPrompt))
	h.Write([]byte{0})
	h.Write([]byte(req.ImageMIME))
	h.Write(req.Image)
	return hex.EncodeToString(h.Sum(nil))
}

func extractJSONObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
