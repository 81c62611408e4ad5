package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaioption "github.com/openai/openai-go/option"

	"newsradar/internal/config"
)

type LLMUsage struct {
	InputTokens              int64
	OutputTokens             int64
	CacheCreationInputTokens int64
	CacheReadInputTokens     int64
}

func (u LLMUsage) TotalTokens() int64 {
	return u.InputTokens + u.OutputTokens
}

func (u *LLMUsage) Add(other LLMUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheCreationInputTokens += other.CacheCreationInputTokens
	u.CacheReadInputTokens += other.CacheReadInputTokens
}

// Request is one system+user exchange with a chat model.
type Request struct {
	Label       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// Provider sends a single request and returns the raw text reply.
type Provider interface {
	Complete(ctx context.Context, req Request) (string, LLMUsage, error)
	Name() string
}

// NewProvider builds the provider selected by llm_provider.
func NewProvider(cfg config.Config, httpClient *http.Client) (Provider, error) {
	switch cfg.LLMProvider {
	case "anthropic":
		return NewAnthropicProvider(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL, httpClient), nil
	case "openai":
		return NewOpenAIProvider(cfg.LLMAPIKey, cfg.LLMModel, cfg.LLMBaseURL, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.LLMProvider)
	}
}

type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

func NewAnthropicProvider(apiKey, model, baseURL string, httpClient *http.Client) *AnthropicProvider {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, anthropicoption.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(httpClient))
	}
	client := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &client, model: model}
}

func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, LLMUsage, error) {
	log.Printf("llm %s provider=anthropic model=%s", req.Label, p.model)
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   req.MaxTokens,
		Temperature: anthropic.Float(req.Temperature),
		System: []anthropic.TextBlockParam{
			{Text: req.System, CacheControl: anthropic.NewCacheControlEphemeralParam()},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
	})
	if err != nil {
		log.Printf("llm anthropic error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("Anthropic API error: %w", err)
	}
	usage := LLMUsage{
		InputTokens:              message.Usage.InputTokens,
		OutputTokens:             message.Usage.OutputTokens,
		CacheCreationInputTokens: message.Usage.CacheCreationInputTokens,
		CacheReadInputTokens:     message.Usage.CacheReadInputTokens,
	}

	for _, block := range message.Content {
		if block.Type == "text" {
			log.Printf("llm anthropic response size=%d tokens_in=%d tokens_out=%d cache_create=%d cache_read=%d", len(block.Text), usage.InputTokens, usage.OutputTokens, usage.CacheCreationInputTokens, usage.CacheReadInputTokens)
			return block.Text, usage, nil
		}
	}
	return "", usage, fmt.Errorf("no text content in Anthropic response")
}

// OpenAIProvider talks to any OpenAI-compatible chat endpoint, DeepSeek
// included, selected by base URL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

func NewOpenAIProvider(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIProvider {
	opts := []openaioption.RequestOption{openaioption.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, openaioption.WithBaseURL(baseURL))
	}
	if httpClient != nil {
		opts = append(opts, openaioption.WithHTTPClient(httpClient))
	}
	client := openai.NewClient(opts...)
	return &OpenAIProvider{client: &client, model: model}
}

func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, LLMUsage, error) {
	log.Printf("llm %s provider=openai model=%s", req.Label, p.model)
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(req.MaxTokens),
	})
	if err != nil {
		log.Printf("llm openai error: %v", err)
		return "", LLMUsage{}, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", LLMUsage{}, fmt.Errorf("no choices in OpenAI response")
	}
	usage := LLMUsage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}

	content := resp.Choices[0].Message.Content
	log.Printf("llm openai response size=%d tokens_in=%d tokens_out=%d", len(content), usage.InputTokens, usage.OutputTokens)
	return content, usage, nil
}
