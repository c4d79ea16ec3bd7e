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

const geminiDefaultModel = "gemini-1.5-flash"

// GeminiProvider is the tertiary backend. Gemini uses its own REST
// shape: system text travels in systemInstruction and history roles are
// user/model rather than user/assistant.
type GeminiProvider struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxTurns    int
	client      *http.Client
}

func NewGeminiProvider(lookup CredentialLookup, opts Options) (*GeminiProvider, error) {
	opts = opts.withDefaults()
	apiKey, ok := lookup("GEMINI_API_KEY")
	if !ok || strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	model := geminiDefaultModel
	if raw, ok := lookup("GEMINI_MODEL"); ok && strings.TrimSpace(raw) != "" {
		model = strings.TrimSpace(raw)
	}
	baseURL := "https://generativelanguage.googleapis.com/v1beta"
	if raw, ok := lookup("GEMINI_BASE_URL"); ok && strings.TrimSpace(raw) != "" {
		baseURL = strings.TrimRight(strings.TrimSpace(raw), "/")
	}
	return &GeminiProvider{
		baseURL:     baseURL,
		apiKey:      strings.TrimSpace(apiKey),
		model:       model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		maxTurns:    opts.MaxHistoryTurns,
		client:      &http.Client{Timeout: opts.Timeout},
	}, nil
}

func (p *GeminiProvider) Name() string {
	return "gemini/" + p.model
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

func (p *GeminiProvider) GenerateSQL(ctx context.Context, req Request) (string, error) {
	contents := make([]geminiContent, 0, len(req.History)+1)
	for _, turn := range trimHistory(req.History, p.maxTurns) {
		role := "user"
		if turn.Role == "assistant" {
			role = "model"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: turn.Content}}})
	}
	contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: req.UserMessage}}})

	payload := map[string]any{
		"contents": contents,
		"generationConfig": map[string]any{
			"temperature":     p.temperature,
			"maxOutputTokens": p.maxTokens,
		},
		"systemInstruction": geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("gemini: marshal payload: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, p.model, p.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("gemini: request generation: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("gemini: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("gemini: generation failed status=%d body=%s", resp.StatusCode, bodyExcerpt(rawBody))
	}

	var parsed struct {
		Candidates []struct {
			Content struct {
				Parts []geminiPart `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(rawBody, &parsed); err != nil {
		return "", fmt.Errorf("gemini: decode response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini: empty candidates")
	}
	return CleanOutput(parsed.Candidates[0].Content.Parts[0].Text), nil
}
