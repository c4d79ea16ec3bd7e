// Package agent orchestrates one natural-language query turn: schema
// loading, SQL generation, validation, and execution or preview. Each
// turn owns its own state; nothing is shared across turns.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tablepilot/tablepilot/internal/dbexec"
	"github.com/tablepilot/tablepilot/internal/llm"
	"github.com/tablepilot/tablepilot/internal/observability"
	"github.com/tablepilot/tablepilot/internal/schema"
	"github.com/tablepilot/tablepilot/internal/sqlcheck"
)

// MaxRetries bounds SQL regeneration after validation failures.
// Generation and execution failures are fatal and never retried.
const MaxRetries = 2

var (
	ErrWriteForbidden   = errors.New("agent: role is not permitted to execute writes")
	ErrValidationFailed = errors.New("agent: confirmed SQL failed validation")
)

// SchemaSource provides prompt context for a target connection.
type SchemaSource interface {
	Reflect(ctx context.Context, dsn, dialect string) (string, error)
	DocContext(ctx context.Context, connectionID int64) (string, error)
}

// Executor runs validated SQL against the target database.
type Executor interface {
	ReadQuery(ctx context.Context, dsn, dialect, query string) (dbexec.Result, error)
	ExecuteWrite(ctx context.Context, dsn, dialect, statement string) (int64, error)
	EstimateAffectedRows(ctx context.Context, dsn, dialect, statement string) int64
}

// ProviderSelector yields a usable model backend or fails with an
// error naming the missing credentials.
type ProviderSelector func() (llm.Provider, error)

type Config struct {
	ExecTimeout  time.Duration
	WriteTimeout time.Duration
}

type Agent struct {
	schema   SchemaSource
	executor Executor
	selector ProviderSelector
	cfg      Config
	logger   *slog.Logger
}

func New(schemaSource SchemaSource, executor Executor, selector ProviderSelector, cfg Config, logger *slog.Logger) *Agent {
	if cfg.ExecTimeout <= 0 {
		cfg.ExecTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	return &Agent{
		schema:   schemaSource,
		executor: executor,
		selector: selector,
		cfg:      cfg,
		logger:   logger,
	}
}

type Input struct {
	Query           string
	ConnectionDSN   string
	ConnectionID    int64
	UserID          string
	UserRole        string
	History         []llm.Turn
	DialectOverride string
}

type Output struct {
	ResponseType string
	Final        any
	History      []llm.Turn
	Provider     string
	GeneratedSQL string
}

type ColumnMeta struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type ResultsResponse struct {
	SQL           string           `json:"sql"`
	Results       []map[string]any `json:"results"`
	Columns       []ColumnMeta     `json:"columns"`
	Summary       string           `json:"summary"`
	RowCount      int              `json:"row_count"`
	ExecutionTime string           `json:"execution_time"`
	LLMProvider   string           `json:"llm_provider"`
	IsTruncated   bool             `json:"is_truncated"`
}

type PreviewResponse struct {
	SQL                  string `json:"sql"`
	OperationType        string `json:"operation_type"`
	AffectedRows         int64  `json:"affected_rows"`
	RiskLevel            string `json:"risk_level"`
	WarningMessage       string `json:"warning_message"`
	LLMProvider          string `json:"llm_provider"`
	RequiresConfirmation bool   `json:"requires_confirmation"`
}

type ClarificationResponse struct {
	Question string `json:"question"`
}

type ErrorResponse struct {
	ErrorMessage string `json:"error_message"`
	RetryCount   int    `json:"retry_count"`
	GeneratedSQL string `json:"generated_sql,omitempty"`
}

// Run processes one query turn end to end and always terminates with
// exactly one response type.
func (a *Agent) Run(ctx context.Context, in Input) Output {
	dialect := in.DialectOverride
	if dialect == "" {
		dialect = schema.DetectDialect(in.ConnectionDSN)
	}

	schemaText, err := a.schema.Reflect(ctx, in.ConnectionDSN, dialect)
	if err != nil {
		a.logger.Error("schema load failed", "connection_id", in.ConnectionID, "error", err)
		return a.errorOutput(in, fmt.Sprintf("Could not load the database schema: %v", err), 0, "")
	}

	docText, err := a.schema.DocContext(ctx, in.ConnectionID)
	if err != nil {
		// Missing documentation degrades the prompt, not the turn.
		a.logger.Warn("doc context fetch failed", "connection_id", in.ConnectionID, "error", err)
		docText = ""
	}

	provider, err := a.selector()
	if err != nil {
		a.logger.Error("no model backend available", "error", err)
		return a.errorOutput(in, err.Error(), 0, "")
	}

	systemPrompt := BuildSystemPrompt(dialect, schemaText, docText)

	var (
		retryCount    int
		lastSQL       string
		lastErrReason string
	)
	for {
		userMessage := in.Query
		if retryCount > 0 && lastSQL != "" && lastErrReason != "" {
			userMessage = BuildRetryUserMessage(in.Query, lastSQL, lastErrReason)
		}

		genStart := time.Now()
		candidate, err := provider.GenerateSQL(ctx, llm.Request{
			SystemPrompt: systemPrompt,
			UserMessage:  userMessage,
			History:      in.History,
		})
		observability.ObserveGenerationLatency(provider.Name(), time.Since(genStart))
		if err != nil {
			a.logger.Error("generation failed", "provider", provider.Name(), "error", err)
			return a.errorOutput(in, fmt.Sprintf("AI provider error: %v", err), retryCount, "")
		}

		result, clarification := sqlcheck.Validate(candidate, in.UserRole, dialect)

		if result.Operation == sqlcheck.OpClarify {
			return a.clarificationOutput(in, provider.Name(), clarification)
		}
		if result.IsValid && result.Operation == sqlcheck.OpWrite {
			return a.previewOutput(ctx, in, provider.Name(), result)
		}
		if !result.IsValid {
			observability.ObserveValidationFailure(result.FailedStage)
			if retryCount < MaxRetries {
				retryCount++
				lastSQL = candidate
				lastErrReason = result.Error
				observability.IncrementGenerationRetry()
				a.logger.Warn("validation failed, retrying",
					"retry", retryCount, "stage", result.FailedStage, "reason", result.Error)
				continue
			}
			a.logger.Error("retry budget exhausted", "reason", result.Error)
			return a.errorOutput(in, result.Error, retryCount, candidate)
		}

		return a.executeAndFormat(ctx, in, provider.Name(), result.SanitizedSQL)
	}
}

func (a *Agent) executeAndFormat(ctx context.Context, in Input, providerName, sanitizedSQL string) Output {
	execCtx, cancel := context.WithTimeout(ctx, a.cfg.ExecTimeout)
	defer cancel()

	dialect := in.DialectOverride
	if dialect == "" {
		dialect = schema.DetectDialect(in.ConnectionDSN)
	}

	res, err := a.executor.ReadQuery(execCtx, in.ConnectionDSN, dialect, sanitizedSQL)
	if err != nil {
		a.logger.Error("query execution failed", "error", err)
		return a.errorOutput(in, fmt.Sprintf("Query execution error: %v", err), 0, sanitizedSQL)
	}
	observability.ObserveQueryExecution(res.Elapsed)

	rows := make([]map[string]any, 0, len(res.Rows))
	for _, row := range res.Rows {
		m := make(map[string]any, len(res.Columns))
		for i, col := range res.Columns {
			m[col] = row[i]
		}
		rows = append(rows, m)
	}
	columns := make([]ColumnMeta, 0, len(res.Columns))
	for _, col := range res.Columns {
		columns = append(columns, ColumnMeta{Name: col, Type: "string"})
	}

	history := appendHistory(in.History, in.Query, "[SQL] "+sanitizedSQL)
	observability.ObserveAgentTurn("results")
	return Output{
		ResponseType: "results",
		Final: ResultsResponse{
			SQL:           sanitizedSQL,
			Results:       rows,
			Columns:       columns,
			Summary:       resultSummary(res.RowCount, res.Columns),
			RowCount:      res.RowCount,
			ExecutionTime: formatElapsed(res.Elapsed),
			LLMProvider:   providerName,
			IsTruncated:   res.Truncated,
		},
		History:      history,
		Provider:     providerName,
		GeneratedSQL: sanitizedSQL,
	}
}

func (a *Agent) previewOutput(ctx context.Context, in Input, providerName string, result sqlcheck.Result) Output {
	dialect := in.DialectOverride
	if dialect == "" {
		dialect = schema.DetectDialect(in.ConnectionDSN)
	}

	estimateCtx, cancel := context.WithTimeout(ctx, a.cfg.ExecTimeout)
	defer cancel()
	affected := a.executor.EstimateAffectedRows(estimateCtx, in.ConnectionDSN, dialect, result.SanitizedSQL)

	observability.ObserveAgentTurn("preview")
	return Output{
		ResponseType: "preview",
		Final: PreviewResponse{
			SQL:                  result.SanitizedSQL,
			OperationType:        string(result.Operation),
			AffectedRows:         affected,
			RiskLevel:            string(result.Risk),
			WarningMessage:       warningFor(result.Risk),
			LLMProvider:          providerName,
			RequiresConfirmation: true,
		},
		History:      in.History,
		Provider:     providerName,
		GeneratedSQL: result.SanitizedSQL,
	}
}

func (a *Agent) clarificationOutput(in Input, providerName, question string) Output {
	if question == "" {
		question = "Could you provide more details?"
	}
	history := appendHistory(in.History, in.Query, "CLARIFY: "+question)
	observability.ObserveAgentTurn("clarification")
	return Output{
		ResponseType: "clarification",
		Final:        ClarificationResponse{Question: question},
		History:      history,
		Provider:     providerName,
	}
}

func (a *Agent) errorOutput(in Input, message string, retryCount int, generatedSQL string) Output {
	observability.ObserveAgentTurn("error")
	return Output{
		ResponseType: "error",
		Final: ErrorResponse{
			ErrorMessage: message,
			RetryCount:   retryCount,
			GeneratedSQL: generatedSQL,
		},
		History:      in.History,
		GeneratedSQL: generatedSQL,
	}
}

func warningFor(risk sqlcheck.RiskLevel) string {
	switch risk {
	case sqlcheck.RiskHigh:
		return "HIGH RISK: This operation may affect many rows or is missing a WHERE clause. Review carefully before confirming."
	case sqlcheck.RiskModerate:
		return "CAUTION: This write operation will modify data. Please review the SQL before confirming."
	default:
		return "Please confirm this write operation."
	}
}

func appendHistory(history []llm.Turn, userContent, assistantContent string) []llm.Turn {
	updated := make([]llm.Turn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated,
		llm.Turn{Role: "user", Content: userContent},
		llm.Turn{Role: "assistant", Content: assistantContent},
	)
	return updated
}

func formatElapsed(elapsed time.Duration) string {
	return fmt.Sprintf("%dms", elapsed.Milliseconds())
}
