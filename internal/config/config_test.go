package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaultsForDevProfile(t *testing.T) {
	lookup := mapLookup(map[string]string{})
	cfg, err := Load("tablepilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileDev {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileDev)
	}
	if cfg.HTTP.Address != ":8080" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.Observability.LogLevel != slog.LevelDebug {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if cfg.Auth.Required {
		t.Fatal("Auth.Required should default to false in dev")
	}
	if cfg.Catalog.MaxOpenConns != 20 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.LLM.MaxHistoryTurns != 6 {
		t.Fatalf("LLM.MaxHistoryTurns = %d", cfg.LLM.MaxHistoryTurns)
	}
	if cfg.LLM.Timeout != 30*time.Second {
		t.Fatalf("LLM.Timeout = %s", cfg.LLM.Timeout)
	}
	if cfg.LLM.OllamaTimeout != 120*time.Second {
		t.Fatalf("LLM.OllamaTimeout = %s", cfg.LLM.OllamaTimeout)
	}
	if cfg.LLM.Temperature != 0.1 {
		t.Fatalf("LLM.Temperature = %f", cfg.LLM.Temperature)
	}
	if cfg.LLM.Preference != "" {
		t.Fatalf("LLM.Preference = %q, want empty", cfg.LLM.Preference)
	}
	if cfg.Agent.ExecTimeout != 30*time.Second {
		t.Fatalf("Agent.ExecTimeout = %s", cfg.Agent.ExecTimeout)
	}
}

func TestLoadProdProfileDefaults(t *testing.T) {
	lookup := mapLookup(map[string]string{"TABLEPILOT_PROFILE": "prod"})
	cfg, err := Load("tablepilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Profile != ProfileProd {
		t.Fatalf("Profile = %q, want %q", cfg.Profile, ProfileProd)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required should default to true in prod")
	}
	if cfg.Observability.LogLevel != slog.LevelInfo {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	lookup := mapLookup(map[string]string{
		"TABLEPILOT_PROFILE":                "test",
		"TABLEPILOT_SERVICE_NAME":           "tablepilot-custom",
		"TABLEPILOT_HTTP_ADDR":              ":9999",
		"TABLEPILOT_HTTP_READ_TIMEOUT":      "2s",
		"TABLEPILOT_HTTP_WRITE_TIMEOUT":     "3s",
		"TABLEPILOT_LOG_LEVEL":              "error",
		"TABLEPILOT_AUTH_REQUIRED":          "true",
		"TABLEPILOT_AUTH_STATIC_KEYS":       "k1:user-1:admin",
		"TABLEPILOT_CATALOG_DSN":            "postgres://example",
		"TABLEPILOT_CATALOG_MAX_OPEN_CONNS": "42",
		"TABLEPILOT_CATALOG_MAX_IDLE_CONNS": "17",
		"TABLEPILOT_LLM_PROVIDER":           "groq",
		"TABLEPILOT_LLM_MAX_HISTORY_TURNS":  "4",
		"TABLEPILOT_LLM_TIMEOUT":            "21s",
		"TABLEPILOT_LLM_OLLAMA_TIMEOUT":     "90s",
		"TABLEPILOT_LLM_TEMPERATURE":        "0.3",
		"TABLEPILOT_LLM_MAX_TOKENS":         "2048",
		"TABLEPILOT_AGENT_EXEC_TIMEOUT":     "45s",
		"TABLEPILOT_AGENT_WRITE_TIMEOUT":    "15s",
	})
	cfg, err := Load("tablepilot-api", lookup)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Service.Name != "tablepilot-custom" {
		t.Fatalf("Service.Name = %q", cfg.Service.Name)
	}
	if cfg.HTTP.Address != ":9999" {
		t.Fatalf("HTTP.Address = %q", cfg.HTTP.Address)
	}
	if cfg.HTTP.ReadTimeout != 2*time.Second {
		t.Fatalf("HTTP.ReadTimeout = %s", cfg.HTTP.ReadTimeout)
	}
	if cfg.HTTP.WriteTimeout != 3*time.Second {
		t.Fatalf("HTTP.WriteTimeout = %s", cfg.HTTP.WriteTimeout)
	}
	if cfg.Observability.LogLevel != slog.LevelError {
		t.Fatalf("LogLevel = %v", cfg.Observability.LogLevel)
	}
	if !cfg.Auth.Required {
		t.Fatal("Auth.Required = false, want true")
	}
	if cfg.Auth.StaticKeys != "k1:user-1:admin" {
		t.Fatalf("StaticKeys = %q", cfg.Auth.StaticKeys)
	}
	if cfg.Catalog.DSN != "postgres://example" {
		t.Fatalf("Catalog.DSN = %q", cfg.Catalog.DSN)
	}
	if cfg.Catalog.MaxOpenConns != 42 {
		t.Fatalf("Catalog.MaxOpenConns = %d", cfg.Catalog.MaxOpenConns)
	}
	if cfg.Catalog.MaxIdleConns != 17 {
		t.Fatalf("Catalog.MaxIdleConns = %d", cfg.Catalog.MaxIdleConns)
	}
	if cfg.LLM.Preference != "groq" {
		t.Fatalf("LLM.Preference = %q", cfg.LLM.Preference)
	}
	if cfg.LLM.MaxHistoryTurns != 4 {
		t.Fatalf("LLM.MaxHistoryTurns = %d", cfg.LLM.MaxHistoryTurns)
	}
	if cfg.LLM.Timeout != 21*time.Second {
		t.Fatalf("LLM.Timeout = %s", cfg.LLM.Timeout)
	}
	if cfg.LLM.OllamaTimeout != 90*time.Second {
		t.Fatalf("LLM.OllamaTimeout = %s", cfg.LLM.OllamaTimeout)
	}
	if cfg.LLM.Temperature != 0.3 {
		t.Fatalf("LLM.Temperature = %f", cfg.LLM.Temperature)
	}
	if cfg.LLM.MaxTokens != 2048 {
		t.Fatalf("LLM.MaxTokens = %d", cfg.LLM.MaxTokens)
	}
	if cfg.Agent.ExecTimeout != 45*time.Second {
		t.Fatalf("Agent.ExecTimeout = %s", cfg.Agent.ExecTimeout)
	}
	if cfg.Agent.WriteTimeout != 15*time.Second {
		t.Fatalf("Agent.WriteTimeout = %s", cfg.Agent.WriteTimeout)
	}
}

func TestLoadErrorsOnInvalidValues(t *testing.T) {
	tests := []map[string]string{
		{"TABLEPILOT_PROFILE": "oops"},
		{"TABLEPILOT_HTTP_READ_TIMEOUT": "NaN"},
		{"TABLEPILOT_CATALOG_MAX_OPEN_CONNS": "oops"},
		{"TABLEPILOT_LLM_MAX_HISTORY_TURNS": "oops"},
		{"TABLEPILOT_LLM_MAX_HISTORY_TURNS": "0"},
		{"TABLEPILOT_LLM_TEMPERATURE": "bad"},
		{"TABLEPILOT_AUTH_REQUIRED": "not-bool"},
		{"TABLEPILOT_LOG_LEVEL": "verbose"},
	}
	for _, env := range tests {
		_, err := Load("tablepilot-api", mapLookup(env))
		if err == nil {
			t.Fatalf("Load() expected error for env %#v", env)
		}
	}
}

func mapLookup(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
