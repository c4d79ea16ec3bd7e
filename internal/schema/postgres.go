package schema

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func reflectPostgres(ctx context.Context, db *sql.DB) ([]Table, error) {
	rows, err := db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'public' AND table_type = 'BASE TABLE'
ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		table, err := reflectPostgresTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func reflectPostgresTable(ctx context.Context, db *sql.DB, name string) (Table, error) {
	table := Table{Name: name}

	pks, err := postgresPrimaryKeys(ctx, db, name)
	if err != nil {
		return Table{}, err
	}

	colRows, err := db.QueryContext(ctx, `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'public' AND table_name = $1
ORDER BY ordinal_position`, name)
	if err != nil {
		return Table{}, fmt.Errorf("list columns for %s: %w", name, err)
	}
	defer func() { _ = colRows.Close() }()

	for colRows.Next() {
		var (
			colName, dataType, isNullable string
		)
		if err := colRows.Scan(&colName, &dataType, &isNullable); err != nil {
			return Table{}, fmt.Errorf("scan column for %s: %w", name, err)
		}
		table.Columns = append(table.Columns, Column{
			Name:       colName,
			DataType:   dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: pks[colName],
		})
	}
	if err := colRows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate columns for %s: %w", name, err)
	}

	fkRows, err := db.QueryContext(ctx, `
SELECT kcu.column_name, ccu.table_name, ccu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
JOIN information_schema.constraint_column_usage ccu
  ON tc.constraint_name = ccu.constraint_name AND tc.table_schema = ccu.table_schema
WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`, name)
	if err != nil {
		return Table{}, fmt.Errorf("list foreign keys for %s: %w", name, err)
	}
	defer func() { _ = fkRows.Close() }()

	for fkRows.Next() {
		var fk ForeignKey
		if err := fkRows.Scan(&fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return Table{}, fmt.Errorf("scan foreign key for %s: %w", name, err)
		}
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate foreign keys for %s: %w", name, err)
	}

	idxRows, err := db.QueryContext(ctx, `
SELECT indexname, indexdef
FROM pg_indexes
WHERE schemaname = 'public' AND tablename = $1
ORDER BY indexname`, name)
	if err != nil {
		return Table{}, fmt.Errorf("list indexes for %s: %w", name, err)
	}
	defer func() { _ = idxRows.Close() }()

	for idxRows.Next() {
		var idx Index
		if err := idxRows.Scan(&idx.Name, &idx.Definition); err != nil {
			return Table{}, fmt.Errorf("scan index for %s: %w", name, err)
		}
		table.Indexes = append(table.Indexes, idx)
	}
	if err := idxRows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate indexes for %s: %w", name, err)
	}

	return table, nil
}

func postgresPrimaryKeys(ctx context.Context, db *sql.DB, name string) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `
SELECT kcu.column_name
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = 'public' AND tc.table_name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("list primary keys for %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	pks := map[string]bool{}
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, fmt.Errorf("scan primary key for %s: %w", name, err)
		}
		pks[col] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate primary keys for %s: %w", name, err)
	}
	return pks, nil
}
