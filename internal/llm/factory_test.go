package llm

import (
	"strings"
	"testing"
)

func credLookup(values map[string]string) CredentialLookup {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func TestSelectPrefersOpenRouterWhenConfigured(t *testing.T) {
	lookup := credLookup(map[string]string{
		"OPENROUTER_API_KEY": "or-key",
		"GROQ_API_KEY":       "groq-key",
	})
	provider, err := Select("", lookup, Options{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "openrouter/") {
		t.Fatalf("Name() = %q, want openrouter/*", provider.Name())
	}
}

func TestSelectFallsBackDownTheChain(t *testing.T) {
	lookup := credLookup(map[string]string{"GEMINI_API_KEY": "g-key"})
	provider, err := Select("", lookup, Options{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "gemini/") {
		t.Fatalf("Name() = %q, want gemini/*", provider.Name())
	}
}

func TestSelectHonorsPreference(t *testing.T) {
	lookup := credLookup(map[string]string{
		"OPENROUTER_API_KEY": "or-key",
		"GROQ_API_KEY":       "groq-key",
	})
	provider, err := Select("groq", lookup, Options{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "groq/") {
		t.Fatalf("Name() = %q, want groq/*", provider.Name())
	}
}

func TestSelectPreferenceFallsBackWhenUnavailable(t *testing.T) {
	lookup := credLookup(map[string]string{"OPENROUTER_API_KEY": "or-key"})
	provider, err := Select("groq", lookup, Options{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "openrouter/") {
		t.Fatalf("Name() = %q, want openrouter/*", provider.Name())
	}
}

func TestSelectFallsBackToOllama(t *testing.T) {
	provider, err := Select("", credLookup(map[string]string{}), Options{})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if !strings.HasPrefix(provider.Name(), "ollama/") {
		t.Fatalf("Name() = %q, want ollama/*", provider.Name())
	}
}
