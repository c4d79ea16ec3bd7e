package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/tablepilot/tablepilot/internal/observability"
	"github.com/tablepilot/tablepilot/internal/sqlcheck"
)

type ConfirmInput struct {
	ConfirmedSQL  string
	ConnectionDSN string
	Dialect       string
	UserRole      string
}

type WriteResult struct {
	Message       string `json:"message"`
	AffectedRows  int64  `json:"affected_rows"`
	SQL           string `json:"sql"`
	ExecutionTime string `json:"execution_time"`
}

// RunConfirmedWrite executes a previously previewed write after
// re-validating it. Re-validation catches tampering between preview
// and confirmation. The write runs in one transaction and rolls back
// entirely on failure.
func (a *Agent) RunConfirmedWrite(ctx context.Context, in ConfirmInput) (WriteResult, error) {
	if in.UserRole == "viewer" {
		observability.ObserveWriteExecution("forbidden")
		return WriteResult{}, ErrWriteForbidden
	}

	validation := sqlcheck.ValidateConfirmedWrite(in.ConfirmedSQL, in.UserRole)
	if !validation.IsValid {
		observability.ObserveWriteExecution("rejected")
		return WriteResult{}, fmt.Errorf("%w: %s", ErrValidationFailed, validation.Error)
	}

	writeCtx, cancel := context.WithTimeout(ctx, a.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	affected, err := a.executor.ExecuteWrite(writeCtx, in.ConnectionDSN, in.Dialect, validation.SanitizedSQL)
	if err != nil {
		observability.ObserveWriteExecution("failed")
		a.logger.Error("confirmed write failed, rolled back", "error", err)
		return WriteResult{}, fmt.Errorf("write operation failed and was rolled back: %w", err)
	}

	observability.ObserveWriteExecution("ok")
	a.logger.Info("confirmed write executed", "affected_rows", affected)
	return WriteResult{
		Message:       "Operation completed successfully.",
		AffectedRows:  affected,
		SQL:           validation.SanitizedSQL,
		ExecutionTime: formatElapsed(time.Since(start)),
	}, nil
}
