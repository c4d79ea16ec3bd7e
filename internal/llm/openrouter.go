package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const openRouterDefaultModel = "qwen/qwen-2.5-coder-32b-instruct"

// OpenRouterProvider is the primary backend: a unified gateway with an
// OpenAI-compatible chat endpoint.
type OpenRouterProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxTurns    int
	client      *http.Client
}

func NewOpenRouterProvider(lookup CredentialLookup, opts Options) (*OpenRouterProvider, error) {
	opts = opts.withDefaults()
	apiKey, ok := lookup("OPENROUTER_API_KEY")
	if !ok || strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY is not set")
	}
	model := openRouterDefaultModel
	if raw, ok := lookup("OPENROUTER_MODEL"); ok && strings.TrimSpace(raw) != "" {
		model = strings.TrimSpace(raw)
	}
	baseURL := "https://openrouter.ai/api/v1"
	if raw, ok := lookup("OPENROUTER_BASE_URL"); ok && strings.TrimSpace(raw) != "" {
		baseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	return &OpenRouterProvider{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxTurns:    opts.MaxHistoryTurns,
		client:      &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (p *OpenRouterProvider) Name() string {
	return "openrouter/" + p.model
}

func (p *OpenRouterProvider) GenerateSQL(ctx context.Context, req Request) (string, error) {
	content, err := chatCompletion(ctx, p.client, p.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		map[string]any{
			"model":       p.model,
			"messages":    buildMessages(req, p.maxTurns),
			"max_tokens":  p.maxTokens,
			"temperature": p.temperature,
		})
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	return CleanOutput(content), nil
}
