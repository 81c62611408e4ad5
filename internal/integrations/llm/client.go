package llm

import (
	"context"
	"fmt"
	"strings"

	"newsradar/internal/domain"
)

// Client runs classification and narrative requests against a Provider.
type Client struct {
	provider       Provider
	taxonomyPrompt string
	maxTokens      int64
}

func NewClient(provider Provider, taxonomyPrompt string, maxTokens int) *Client {
	if maxTokens < 1 {
		maxTokens = 4000
	}
	return &Client{
		provider:       provider,
		taxonomyPrompt: taxonomyPrompt,
		maxTokens:      int64(maxTokens),
	}
}

// ClassifyChunk classifies one chunk. The returned map holds only the items
// the model answered for; callers detect dropped items by id.
func (c *Client) ClassifyChunk(ctx context.Context, items []domain.NewsItem, marketContext string) (map[string]domain.Classification, LLMUsage, error) {
	if len(items) == 0 {
		return map[string]domain.Classification{}, LLMUsage{}, nil
	}
	system, user, err := buildClassifyPrompts(c.taxonomyPrompt, marketContext, items)
	if err != nil {
		return nil, LLMUsage{}, fmt.Errorf("%w: %v", domain.ErrClassifyCallFailed, err)
	}

	text, usage, err := c.provider.Complete(ctx, Request{
		Label:       fmt.Sprintf("classify items=%d", len(items)),
		System:      system,
		User:        user,
		Temperature: classifyTemperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, usage, fmt.Errorf("%w: %w", domain.ErrClassifyCallFailed, err)
	}

	parsed, err := ParseClassifications(text)
	if err != nil {
		return nil, usage, err
	}
	return parsed, usage, nil
}

// Narrate asks the model for the strategy brief. The reply is returned
// verbatim apart from surrounding whitespace.
func (c *Client) Narrate(ctx context.Context, in NarrativeInput) (string, LLMUsage, error) {
	text, usage, err := c.provider.Complete(ctx, Request{
		Label:       "narrate",
		System:      narrateSystemPrompt,
		User:        buildNarrativePrompt(in),
		Temperature: narrateTemperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", usage, fmt.Errorf("narrative call: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", usage, fmt.Errorf("narrative call returned empty text")
	}
	return text, usage, nil
}
