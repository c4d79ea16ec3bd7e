// Package llm abstracts the interchangeable text-generation backends
// used to turn natural language into SQL. Backends are selected through
// a priority-ordered fallback chain; see factory.go.
package llm

import (
	"context"
	"strings"
	"time"
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Request struct {
	SystemPrompt string
	UserMessage  string
	History      []Turn
}

type Provider interface {
	// GenerateSQL returns raw model output: either SQL text or a
	// CLARIFY:/WRITE_OP: directive. Directives are preserved verbatim.
	GenerateSQL(ctx context.Context, req Request) (string, error)
	Name() string
}

// CredentialLookup resolves backend credentials and overrides,
// environment-style. os.LookupEnv satisfies it.
type CredentialLookup func(string) (string, bool)

type Options struct {
	MaxHistoryTurns int
	Timeout         time.Duration
	OllamaTimeout   time.Duration
	Temperature     float64
	MaxTokens       int
}

func (o Options) withDefaults() Options {
	if o.MaxHistoryTurns <= 0 {
		o.MaxHistoryTurns = 6
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.OllamaTimeout <= 0 {
		o.OllamaTimeout = 120 * time.Second
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = 1024
	}
	return o
}

// CleanOutput strips Markdown code-fence wrapping from model output.
// Directive prefixes pass through untouched.
func CleanOutput(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) == 1 {
		return strings.TrimSpace(strings.Trim(trimmed, "`"))
	}
	inner := lines[1:]
	if strings.TrimSpace(inner[len(inner)-1]) == "```" {
		inner = inner[:len(inner)-1]
	}
	return strings.TrimSpace(strings.Join(inner, "\n"))
}

// trimHistory keeps the most recent maxTurns user/assistant pairs and
// drops malformed entries.
func trimHistory(history []Turn, maxTurns int) []Turn {
	kept := make([]Turn, 0, len(history))
	for _, turn := range history {
		if turn.Content == "" {
			continue
		}
		if turn.Role != "user" && turn.Role != "assistant" {
			continue
		}
		kept = append(kept, turn)
	}
	limit := maxTurns * 2
	if len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	return kept
}

// buildMessages assembles an OpenAI-compatible message list:
// system prompt, trimmed history, then the current user message.
func buildMessages(req Request, maxTurns int) []Turn {
	messages := make([]Turn, 0, len(req.History)+2)
	messages = append(messages, Turn{Role: "system", Content: req.SystemPrompt})
	messages = append(messages, trimHistory(req.History, maxTurns)...)
	messages = append(messages, Turn{Role: "user", Content: req.UserMessage})
	return messages
}
