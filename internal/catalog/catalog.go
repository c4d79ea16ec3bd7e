// Package catalog defines the system-of-record store backing the
// service: registered database connections, extracted schema
// documentation, and the query audit log.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("catalog: not found")
	ErrForbidden = errors.New("catalog: forbidden")
)

type Repository interface {
	HealthCheck(ctx context.Context) error

	CreateConnection(ctx context.Context, in CreateConnectionInput) (Connection, error)
	// GetConnection resolves a connection for a user. Ownership is
	// enforced here: a connection owned by someone else returns
	// ErrForbidden, a missing one ErrNotFound.
	GetConnection(ctx context.Context, connectionID int64, userID string) (Connection, error)
	ListConnections(ctx context.Context, userID string) ([]Connection, error)
	DeleteConnection(ctx context.Context, connectionID int64, userID string) error

	AddSchemaDoc(ctx context.Context, in AddSchemaDocInput) (SchemaDoc, error)
	// ListSchemaDocs returns completed docs for a connection, newest
	// first. An empty result is not an error.
	ListSchemaDocs(ctx context.Context, connectionID int64) ([]SchemaDoc, error)

	InsertAuditEntry(ctx context.Context, in AuditEntry) error
}

type Connection struct {
	ID          int64
	Name        string
	DSN         string
	Dialect     string
	OwnerUserID string
	CreatedAt   time.Time
}

type CreateConnectionInput struct {
	Name        string
	DSN         string
	Dialect     string
	OwnerUserID string
}

type SchemaDoc struct {
	ID            int64
	ConnectionID  int64
	Filename      string
	ExtractedText string
	Status        string
	CreatedAt     time.Time
}

type AddSchemaDocInput struct {
	ConnectionID  int64
	Filename      string
	ExtractedText string
}

type AuditEntry struct {
	UserID       string
	ConnectionID int64
	Question     string
	GeneratedSQL string
	ResponseType string
	LLMProvider  string
	DurationMs   int64
}
