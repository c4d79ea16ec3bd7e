package llm

import (
	"fmt"
	"strings"
)

type constructor func(CredentialLookup, Options) (Provider, error)

// Fallback priority when no preference is configured.
var providerPriority = []string{"openrouter", "groq", "gemini", "ollama"}

var providerConstructors = map[string]constructor{
	"openrouter": func(lookup CredentialLookup, opts Options) (Provider, error) {
		return NewOpenRouterProvider(lookup, opts)
	},
	"groq": func(lookup CredentialLookup, opts Options) (Provider, error) {
		return NewGroqProvider(lookup, opts)
	},
	"gemini": func(lookup CredentialLookup, opts Options) (Provider, error) {
		return NewGeminiProvider(lookup, opts)
	},
	"ollama": func(lookup CredentialLookup, opts Options) (Provider, error) {
		return NewOllamaProvider(lookup, opts)
	},
}

// Select walks the provider chain and returns the first backend that
// can be constructed. A configured preference is tried first, then the
// remaining candidates in priority order. Construction fails fast on a
// missing credential, so exhaustion means no backend is usable.
func Select(preference string, lookup CredentialLookup, opts Options) (Provider, error) {
	preference = strings.ToLower(strings.TrimSpace(preference))

	order := providerPriority
	if _, ok := providerConstructors[preference]; ok {
		order = make([]string, 0, len(providerPriority))
		order = append(order, preference)
		for _, key := range providerPriority {
			if key != preference {
				order = append(order, key)
			}
		}
	}

	var lastErr error
	for _, key := range order {
		provider, err := providerConstructors[key](lookup, opts)
		if err != nil {
			lastErr = err
			continue
		}
		return provider, nil
	}
	return nil, fmt.Errorf("no model backend available: set at least one of OPENROUTER_API_KEY, GROQ_API_KEY, GEMINI_API_KEY or OLLAMA_BASE_URL (last error: %w)", lastErr)
}
