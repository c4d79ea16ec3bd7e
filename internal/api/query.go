package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tablepilot/tablepilot/internal/agent"
	"github.com/tablepilot/tablepilot/internal/auth"
	"github.com/tablepilot/tablepilot/internal/catalog"
	"github.com/tablepilot/tablepilot/internal/llm"
	"github.com/tablepilot/tablepilot/internal/schema"
)

type queryRequest struct {
	Query        string     `json:"query"`
	ConnectionID int64      `json:"connection_id"`
	ChatHistory  []llm.Turn `json:"chat_history"`
	Dialect      string     `json:"dialect,omitempty"`
}

type queryResponse struct {
	ResponseType  string     `json:"response_type"`
	FinalResponse any        `json:"final_response"`
	ChatHistory   []llm.Turn `json:"chat_history"`
	LLMProvider   string     `json:"llm_provider,omitempty"`
}

type executeRequest struct {
	ConfirmedSQL string `json:"confirmed_sql"`
	ConnectionID int64  `json:"connection_id"`
}

func identityFor(r *http.Request) auth.Identity {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok {
		return identity
	}
	// Auth-optional profiles (dev) run as a local admin.
	return auth.Identity{UserID: "local-dev", Role: auth.RoleAdmin}
}

func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_QUERY", "query text is required", false, nil)
		return
	}
	if req.ConnectionID <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION", "connection_id is required", false, nil)
		return
	}

	identity := identityFor(r)
	conn, err := deps.Catalog.GetConnection(r.Context(), req.ConnectionID, identity.UserID)
	if err != nil {
		writeConnectionError(r.Context(), w, err)
		return
	}

	dialect := req.Dialect
	if dialect == "" {
		dialect = conn.Dialect
	}

	start := time.Now()
	out := deps.Agent.Run(r.Context(), agent.Input{
		Query:           req.Query,
		ConnectionDSN:   conn.DSN,
		ConnectionID:    conn.ID,
		UserID:          identity.UserID,
		UserRole:        identity.Role,
		History:         req.ChatHistory,
		DialectOverride: dialect,
	})

	auditAsync(deps, catalog.AuditEntry{
		UserID:       identity.UserID,
		ConnectionID: conn.ID,
		Question:     req.Query,
		GeneratedSQL: out.GeneratedSQL,
		ResponseType: out.ResponseType,
		LLMProvider:  out.Provider,
		DurationMs:   time.Since(start).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, queryResponse{
		ResponseType:  out.ResponseType,
		FinalResponse: out.Final,
		ChatHistory:   out.History,
		LLMProvider:   out.Provider,
	})
}

func handleExecuteWrite(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.ConfirmedSQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "EMPTY_SQL", "confirmed_sql is required", false, nil)
		return
	}

	identity := identityFor(r)

	// Viewers are rejected before the connection is even resolved.
	if !identity.CanWrite() {
		writeError(r.Context(), w, http.StatusForbidden, "WRITE_FORBIDDEN", "your role does not permit write operations", false, nil)
		return
	}

	conn, err := deps.Catalog.GetConnection(r.Context(), req.ConnectionID, identity.UserID)
	if err != nil {
		writeConnectionError(r.Context(), w, err)
		return
	}

	start := time.Now()
	result, err := deps.Agent.RunConfirmedWrite(r.Context(), agent.ConfirmInput{
		ConfirmedSQL:  req.ConfirmedSQL,
		ConnectionDSN: conn.DSN,
		Dialect:       conn.Dialect,
		UserRole:      identity.Role,
	})
	if err != nil {
		switch {
		case errors.Is(err, agent.ErrWriteForbidden):
			writeError(r.Context(), w, http.StatusForbidden, "WRITE_FORBIDDEN", "your role does not permit write operations", false, nil)
		case errors.Is(err, agent.ErrValidationFailed):
			writeError(r.Context(), w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error(), false, nil)
		default:
			writeError(r.Context(), w, http.StatusInternalServerError, "WRITE_FAILED", err.Error(), false, nil)
		}
		return
	}

	auditAsync(deps, catalog.AuditEntry{
		UserID:       identity.UserID,
		ConnectionID: conn.ID,
		Question:     "",
		GeneratedSQL: result.SQL,
		ResponseType: "write_success",
		DurationMs:   time.Since(start).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, queryResponse{
		ResponseType:  "write_success",
		FinalResponse: result,
	})
}

type createConnectionRequest struct {
	Name    string `json:"name"`
	DSN     string `json:"dsn"`
	Dialect string `json:"dialect,omitempty"`
}

type connectionView struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Dialect   string    `json:"dialect"`
	CreatedAt time.Time `json:"created_at"`
}

func handleCreateConnection(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	var req createConnectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "request body must be valid JSON", false, nil)
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.DSN) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION", "name and dsn are required", false, nil)
		return
	}

	dialect := req.Dialect
	if dialect == "" {
		dialect = schema.DetectDialect(req.DSN)
	}

	identity := identityFor(r)
	conn, err := deps.Catalog.CreateConnection(r.Context(), catalog.CreateConnectionInput{
		Name:        strings.TrimSpace(req.Name),
		DSN:         strings.TrimSpace(req.DSN),
		Dialect:     dialect,
		OwnerUserID: identity.UserID,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "CREATE_FAILED", "could not register connection", false, nil)
		return
	}
	writeJSON(w, http.StatusCreated, toConnectionView(conn))
}

func handleListConnections(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	identity := identityFor(r)
	conns, err := deps.Catalog.ListConnections(r.Context(), identity.UserID)
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "LIST_FAILED", "could not list connections", false, nil)
		return
	}
	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		views = append(views, toConnectionView(conn))
	}
	writeJSON(w, http.StatusOK, map[string]any{"connections": views})
}

func handleListConnectionTables(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	connectionID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || connectionID <= 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_CONNECTION", "connection id must be a positive integer", false, nil)
		return
	}

	identity := identityFor(r)
	conn, err := deps.Catalog.GetConnection(r.Context(), connectionID, identity.UserID)
	if err != nil {
		writeConnectionError(r.Context(), w, err)
		return
	}

	tables, err := deps.ListTables(r.Context(), conn.DSN, conn.Dialect)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadGateway, "INTROSPECTION_FAILED", "could not list tables on the target database", false, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func toConnectionView(conn catalog.Connection) connectionView {
	// The raw DSN stays server-side; it may embed credentials.
	return connectionView{
		ID:        conn.ID,
		Name:      conn.Name,
		Dialect:   conn.Dialect,
		CreatedAt: conn.CreatedAt,
	}
}

func writeConnectionError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		writeError(ctx, w, http.StatusNotFound, "CONNECTION_NOT_FOUND", "connection does not exist", false, nil)
	case errors.Is(err, catalog.ErrForbidden):
		writeError(ctx, w, http.StatusForbidden, "CONNECTION_FORBIDDEN", "connection belongs to another user", false, nil)
	default:
		writeError(ctx, w, http.StatusInternalServerError, "CATALOG_ERROR", "could not resolve connection", false, nil)
	}
}

// auditAsync records the turn without blocking the response.
func auditAsync(deps Dependencies, entry catalog.AuditEntry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Catalog.InsertAuditEntry(ctx, entry); err != nil && deps.Logger != nil {
			deps.Logger.Warn("audit insert failed", "error", err)
		}
	}()
}
