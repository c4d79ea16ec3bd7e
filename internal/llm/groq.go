package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const groqDefaultModel = "qwen-2.5-coder-32b"

// GroqProvider is the secondary backend: LPU-accelerated inference
// behind an OpenAI-compatible endpoint.
type GroqProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxTurns    int
	client      *http.Client
}

func NewGroqProvider(lookup CredentialLookup, opts Options) (*GroqProvider, error) {
	opts = opts.withDefaults()
	apiKey, ok := lookup("GROQ_API_KEY")
	if !ok || strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GROQ_API_KEY is not set")
	}
	model := groqDefaultModel
	if raw, ok := lookup("GROQ_MODEL"); ok && strings.TrimSpace(raw) != "" {
		model = strings.TrimSpace(raw)
	}
	baseURL := "https://api.groq.com/openai/v1"
	if raw, ok := lookup("GROQ_BASE_URL"); ok && strings.TrimSpace(raw) != "" {
		baseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	return &GroqProvider{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxTurns:    opts.MaxHistoryTurns,
		client:      &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (p *GroqProvider) Name() string {
	return "groq/" + p.model
}

func (p *GroqProvider) GenerateSQL(ctx context.Context, req Request) (string, error) {
	content, err := chatCompletion(ctx, p.client, p.baseURL+"/chat/completions",
		map[string]string{"Authorization": "Bearer " + p.apiKey},
		map[string]any{
			"model":       p.model,
			"messages":    buildMessages(req, p.maxTurns),
			"max_tokens":  p.maxTokens,
			"temperature": p.temperature,
		})
	if err != nil {
		return "", fmt.Errorf("groq: %w", err)
	}
	return CleanOutput(content), nil
}
