package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tablepilot/tablepilot/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateConnection(ctx context.Context, in catalog.CreateConnectionInput) (catalog.Connection, error) {
	query := `
INSERT INTO connections (name, dsn, dialect, owner_user_id)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	var (
		id        int64
		createdAt time.Time
	)
	if err := r.db.QueryRowContext(ctx, query, in.Name, in.DSN, in.Dialect, in.OwnerUserID).Scan(&id, &createdAt); err != nil {
		return catalog.Connection{}, fmt.Errorf("create connection: %w", err)
	}
	return catalog.Connection{
		ID:          id,
		Name:        in.Name,
		DSN:         in.DSN,
		Dialect:     in.Dialect,
		OwnerUserID: in.OwnerUserID,
		CreatedAt:   createdAt,
	}, nil
}

func (r *Repository) GetConnection(ctx context.Context, connectionID int64, userID string) (catalog.Connection, error) {
	query := `
SELECT id, name, dsn, dialect, owner_user_id, created_at
FROM connections
WHERE id = $1`

	var conn catalog.Connection
	if err := r.db.QueryRowContext(ctx, query, connectionID).Scan(
		&conn.ID,
		&conn.Name,
		&conn.DSN,
		&conn.Dialect,
		&conn.OwnerUserID,
		&conn.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Connection{}, catalog.ErrNotFound
		}
		return catalog.Connection{}, fmt.Errorf("get connection: %w", err)
	}
	if conn.OwnerUserID != userID {
		return catalog.Connection{}, catalog.ErrForbidden
	}
	return conn, nil
}

func (r *Repository) ListConnections(ctx context.Context, userID string) ([]catalog.Connection, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, dsn, dialect, owner_user_id, created_at
FROM connections
WHERE owner_user_id = $1
ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var conns []catalog.Connection
	for rows.Next() {
		var conn catalog.Connection
		if err := rows.Scan(
			&conn.ID,
			&conn.Name,
			&conn.DSN,
			&conn.Dialect,
			&conn.OwnerUserID,
			&conn.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, conn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return conns, nil
}

func (r *Repository) DeleteConnection(ctx context.Context, connectionID int64, userID string) error {
	if _, err := r.GetConnection(ctx, connectionID, userID); err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM connections WHERE id = $1`, connectionID); err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}

func (r *Repository) AddSchemaDoc(ctx context.Context, in catalog.AddSchemaDocInput) (catalog.SchemaDoc, error) {
	query := `
INSERT INTO connection_schema_docs (connection_id, filename, extracted_text, status)
VALUES ($1, $2, $3, 'done')
RETURNING id, created_at`
	var (
		id        int64
		createdAt time.Time
	)
	if err := r.db.QueryRowContext(ctx, query, in.ConnectionID, in.Filename, in.ExtractedText).Scan(&id, &createdAt); err != nil {
		return catalog.SchemaDoc{}, fmt.Errorf("add schema doc: %w", err)
	}
	return catalog.SchemaDoc{
		ID:            id,
		ConnectionID:  in.ConnectionID,
		Filename:      in.Filename,
		ExtractedText: in.ExtractedText,
		Status:        "done",
		CreatedAt:     createdAt,
	}, nil
}

func (r *Repository) ListSchemaDocs(ctx context.Context, connectionID int64) ([]catalog.SchemaDoc, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, connection_id, filename, extracted_text, status, created_at
FROM connection_schema_docs
WHERE connection_id = $1 AND status = 'done'
ORDER BY created_at DESC`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list schema docs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []catalog.SchemaDoc
	for rows.Next() {
		var doc catalog.SchemaDoc
		if err := rows.Scan(
			&doc.ID,
			&doc.ConnectionID,
			&doc.Filename,
			&doc.ExtractedText,
			&doc.Status,
			&doc.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan schema doc: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema docs: %w", err)
	}
	return docs, nil
}

func (r *Repository) InsertAuditEntry(ctx context.Context, in catalog.AuditEntry) error {
	query := `
INSERT INTO audit_log (user_id, connection_id, question, generated_sql, response_type, llm_provider, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.ExecContext(ctx, query,
		in.UserID,
		in.ConnectionID,
		in.Question,
		in.GeneratedSQL,
		in.ResponseType,
		in.LLMProvider,
		in.DurationMs,
	); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
