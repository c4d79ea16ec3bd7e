// Package schema turns a live database into the compact text context a
// model needs to write SQL against it: table/column/type listings with
// keys and indexes, plus optional human-written documentation.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

const (
	// Reflected schema text is capped so prompts stay within model
	// context budgets.
	MaxSchemaChars = 12000
	// At most this many indexes are rendered per table.
	maxIndexesPerTable = 5

	truncationNotice = "\n... (schema truncated)"
)

type Column struct {
	Name       string
	DataType   string
	Nullable   bool
	PrimaryKey bool
}

type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

type Index struct {
	Name       string
	Definition string
}

type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
	Indexes     []Index
}

// DetectDialect sniffs the dialect from a DSN prefix. Unknown schemes
// fall back to postgresql.
func DetectDialect(dsn string) string {
	lowered := strings.ToLower(strings.TrimSpace(dsn))
	switch {
	case strings.HasPrefix(lowered, "postgres://"), strings.HasPrefix(lowered, "postgresql://"):
		return "postgresql"
	case strings.HasPrefix(lowered, "mysql://"), strings.HasPrefix(lowered, "mariadb://"):
		return "mysql"
	case strings.HasPrefix(lowered, "sqlite://"), strings.HasSuffix(lowered, ".sqlite"), strings.HasSuffix(lowered, ".sqlite3"), strings.HasSuffix(lowered, ".db"):
		return "sqlite"
	case strings.HasPrefix(lowered, "duckdb://"), strings.HasSuffix(lowered, ".duckdb"):
		return "duckdb"
	case strings.HasPrefix(lowered, "mssql://"), strings.HasPrefix(lowered, "sqlserver://"):
		return "mssql"
	case strings.HasPrefix(lowered, "oracle://"):
		return "oracle"
	default:
		return "postgresql"
	}
}

// Reflect introspects the target database and renders its schema as
// prompt text. Only dialects with a wired driver are supported.
func Reflect(ctx context.Context, dsn, dialect string) (string, error) {
	db, err := openTarget(dsn, dialect)
	if err != nil {
		return "", err
	}
	defer func() { _ = db.Close() }()

	tables, err := introspect(ctx, db, dialect)
	if err != nil {
		return "", err
	}
	return BuildSchemaText(tables), nil
}

func openTarget(dsn, dialect string) (*sql.DB, error) {
	driver, cleaned, err := driverFor(dsn, dialect)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, cleaned)
	if err != nil {
		return nil, fmt.Errorf("open %s target: %w", dialect, err)
	}
	db.SetMaxOpenConns(2)
	return db, nil
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
		return "", "", fmt.Errorf("unsupported dialect %q for schema reflection", dialect)
	}
}

func introspect(ctx context.Context, db *sql.DB, dialect string) ([]Table, error) {
	switch dialect {
	case "postgresql":
		return reflectPostgres(ctx, db)
	case "sqlite":
		return reflectSQLite(ctx, db)
	case "duckdb":
		return reflectDuckDB(ctx, db)
	default:
		return nil, fmt.Errorf("unsupported dialect %q for schema reflection", dialect)
	}
}

// BuildSchemaText renders tables into the TABLE:-style prompt block,
// capped at MaxSchemaChars with a truncation notice.
func BuildSchemaText(tables []Table) string {
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })

	var b strings.Builder
	for _, table := range tables {
		block := renderTable(table)
		if b.Len()+len(block) > MaxSchemaChars-len(truncationNotice) {
			b.WriteString(truncationNotice)
			break
		}
		b.WriteString(block)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderTable(table Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "TABLE: %s\n", table.Name)
	for _, col := range table.Columns {
		nullability := "NOT NULL"
		if col.Nullable {
			nullability = "NULL"
		}
		fmt.Fprintf(&b, "  - %s: %s %s", col.Name, col.DataType, nullability)
		if col.PrimaryKey {
			b.WriteString(" [PK]")
		}
		b.WriteString("\n")
	}
	for _, fk := range table.ForeignKeys {
		fmt.Fprintf(&b, "  FOREIGN KEY: %s -> %s.%s\n", fk.Column, fk.RefTable, fk.RefColumn)
	}
	indexes := table.Indexes
	if len(indexes) > maxIndexesPerTable {
		indexes = indexes[:maxIndexesPerTable]
	}
	for _, idx := range indexes {
		if idx.Definition != "" {
			fmt.Fprintf(&b, "  INDEX: %s (%s)\n", idx.Name, idx.Definition)
		} else {
			fmt.Fprintf(&b, "  INDEX: %s\n", idx.Name)
		}
	}
	b.WriteString("\n")
	return b.String()
}

// ListTables returns table names only, for the schema explorer surface.
func ListTables(ctx context.Context, dsn, dialect string) ([]string, error) {
	db, err := openTarget(dsn, dialect)
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()

	tables, err := introspect(ctx, db, dialect)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tables))
	for _, table := range tables {
		names = append(names, table.Name)
	}
	sort.Strings(names)
	return names, nil
}
