// Package dbexec runs validated SQL against user-registered target
// databases. Handles are pooled per DSN and recycled when a ping
// fails, so a flaky target never pins a dead connection.
package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb/v2"
	_ "modernc.org/sqlite"
)

// MaxFetchRows caps how many rows a read query may return to the
// caller. Larger result sets are truncated, never streamed.
const MaxFetchRows = 10000

type Result struct {
	Columns   []string
	Rows      [][]any
	RowCount  int
	Truncated bool
	Elapsed   time.Duration
}

type Pool struct {
	mu       sync.Mutex
	handles  map[string]*sql.DB
	maxConns int
	open     func(dsn, dialect string) (*sql.DB, error)
}

func NewPool(maxConnsPerTarget int) *Pool {
	if maxConnsPerTarget <= 0 {
		maxConnsPerTarget = 4
	}
	p := &Pool{
		handles:  map[string]*sql.DB{},
		maxConns: maxConnsPerTarget,
	}
	p.open = p.openTarget
	return p
}

func driverFor(dsn, dialect string) (driver, cleanedDSN string, err error) {
	switch dialect {
	case "postgresql":
		return "pgx", dsn, nil
	case "sqlite":
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://"), nil
	case "duckdb":
		return "duckdb", strings.TrimPrefix(dsn, "duckdb://"), nil
	default:
		return "", "", fmt.Errorf("unsupported dialect %q for execution", dialect)
	}
}

func (p *Pool) openTarget(dsn, dialect string) (*sql.DB, error) {
	driver, cleaned, err := driverFor(dsn, dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cleaned)
	if err != nil {
		return nil, fmt.Errorf("open %s target: %w", dialect, err)
	}
	db.SetMaxOpenConns(p.maxConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

func (p *Pool) handle(ctx context.Context, dsn, dialect string) (*sql.DB, error) {
	key := dialect + "|" + dsn

	p.mu.Lock()
	db, ok := p.handles[key]
	p.mu.Unlock()

	if ok {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := db.PingContext(pingCtx)
		cancel()
		if err == nil {
			return db, nil
		}
		p.mu.Lock()
		if p.handles[key] == db {
			delete(p.handles, key)
		}
		p.mu.Unlock()
		_ = db.Close()
	}

	db, err := p.open(dsn, dialect)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	if existing, ok := p.handles[key]; ok {
		p.mu.Unlock()
		_ = db.Close()
		return existing, nil
	}
	p.handles[key] = db
	p.mu.Unlock()
	return db, nil
}

// ReadQuery executes a sanitized SELECT and materializes up to
// MaxFetchRows rows.
func (p *Pool) ReadQuery(ctx context.Context, dsn, dialect, query string) (Result, error) {
	db, err := p.handle(ctx, dsn, dialect)
	if err != nil {
		return Result{}, err
	}

	start := time.Now()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("read columns: %w", err)
	}

	result := Result{Columns: columns}
	for rows.Next() {
		if result.RowCount >= MaxFetchRows {
			result.Truncated = true
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return Result{}, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			values[i] = serializeValue(value)
		}
		result.Rows = append(result.Rows, values)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("iterate rows: %w", err)
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// ExecuteWrite runs one write statement inside a transaction. Any
// error rolls the whole thing back.
func (p *Pool) ExecuteWrite(ctx context.Context, dsn, dialect, statement string) (int64, error) {
	db, err := p.handle(ctx, dsn, dialect)
	if err != nil {
		return 0, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin write tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, statement)
	if err != nil {
		return 0, fmt.Errorf("execute write: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		affected = 0
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit write: %w", err)
	}
	return affected, nil
}

// EstimateAffectedRows previews the blast radius of an UPDATE/DELETE
// by counting rows matching its WHERE clause. -1 means no WHERE clause
// (every row); 0 means the estimate could not be computed.
func (p *Pool) EstimateAffectedRows(ctx context.Context, dsn, dialect, statement string) int64 {
	countQuery, hasWhere, ok := buildCountQuery(statement)
	if !ok {
		return 0
	}
	if !hasWhere {
		return -1
	}

	db, err := p.handle(ctx, dsn, dialect)
	if err != nil {
		return 0
	}
	var count int64
	if err := db.QueryRowContext(ctx, countQuery).Scan(&count); err != nil {
		return 0
	}
	return count
}

func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var firstErr error
	for key, db := range p.handles {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.handles, key)
	}
	return firstErr
}

func serializeValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return v
	}
}
