package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const ollamaDefaultModel = "qwen2.5-coder:7b"

// OllamaProvider runs a local model; no credential needed, only a
// reachable daemon. The timeout is deliberately long since local CPU
// inference is slow.
type OllamaProvider struct {
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	maxTurns    int
	client      *http.Client
}

func NewOllamaProvider(lookup CredentialLookup, opts Options) (*OllamaProvider, error) {
	opts = opts.withDefaults()
	baseURL := "http://localhost:11434"
	if raw, ok := lookup("OLLAMA_BASE_URL"); ok && strings.TrimSpace(raw) != "" {
		baseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	model := ollamaDefaultModel
	if raw, ok := lookup("OLLAMA_MODEL"); ok && strings.TrimSpace(raw) != "" {
		model = strings.TrimSpace(raw)
	}
	return &OllamaProvider{
		baseURL:     baseURL,
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxTurns:    opts.MaxHistoryTurns,
		client:      &http.Client{Timeout: opts.OllamaTimeout},
	}, nil
}

func (p *OllamaProvider) Name() string {
	return "ollama/" + p.model
}

func (p *OllamaProvider) GenerateSQL(ctx context.Context, req Request) (string, error) {
	payload := map[string]any{
		"model":    p.model,
		"messages": buildMessages(req, p.maxTurns),
		"stream":   false,
		"options": map[string]any{
			"temperature": p.temperature,
			"num_predict": p.maxTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("ollama: marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ollama: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("ollama: request chat: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ollama: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("ollama: chat failed status=%d body=%s", resp.StatusCode, bodyExcerpt(rawBody))
	}

	var parsed struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("ollama: decode response: %w", err)
	}
	if strings.TrimSpace(parsed.Message.Content) == "" {
		return "", fmt.Errorf("ollama: empty response")
	}
	return CleanOutput(parsed.Message.Content), nil
}
