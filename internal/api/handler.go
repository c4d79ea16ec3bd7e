// Package api exposes the HTTP surface: natural-language query turns,
// write confirmation, connection management, and the schema explorer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tablepilot/tablepilot/internal/agent"
	"github.com/tablepilot/tablepilot/internal/catalog"
	"github.com/tablepilot/tablepilot/internal/config"
	"github.com/tablepilot/tablepilot/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// AgentRunner is the conversation core behind /v1/query.
type AgentRunner interface {
	Run(ctx context.Context, in agent.Input) agent.Output
	RunConfirmedWrite(ctx context.Context, in agent.ConfirmInput) (agent.WriteResult, error)
}

// ConnectionStore is the slice of the catalog the handlers need.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, in catalog.CreateConnectionInput) (catalog.Connection, error)
	GetConnection(ctx context.Context, connectionID int64, userID string) (catalog.Connection, error)
	ListConnections(ctx context.Context, userID string) ([]catalog.Connection, error)
	InsertAuditEntry(ctx context.Context, in catalog.AuditEntry) error
}

// TableLister backs the schema-explorer endpoint.
type TableLister func(ctx context.Context, dsn, dialect string) ([]string, error)

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Catalog           ConnectionStore
	Agent             AgentRunner
	ListTables        TableLister
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	protected.HandleFunc("POST /v1/query/execute", func(w http.ResponseWriter, r *http.Request) {
		handleExecuteWrite(deps, w, r)
	})
	protected.HandleFunc("POST /v1/connections", func(w http.ResponseWriter, r *http.Request) {
		handleCreateConnection(deps, w, r)
	})
	protected.HandleFunc("GET /v1/connections", func(w http.ResponseWriter, r *http.Request) {
		handleListConnections(deps, w, r)
	})
	protected.HandleFunc("GET /v1/connections/{id}/tables", func(w http.ResponseWriter, r *http.Request) {
		handleListConnectionTables(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	mux.Handle("POST /v1/query", protectedHandler)
	mux.Handle("POST /v1/query/execute", protectedHandler)
	mux.Handle("POST /v1/connections", protectedHandler)
	mux.Handle("GET /v1/connections", protectedHandler)
	mux.Handle("GET /v1/connections/{id}/tables", protectedHandler)

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
