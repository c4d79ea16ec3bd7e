package schema

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/marcboeker/go-duckdb/v2"
)

func reflectDuckDB(ctx context.Context, db *sql.DB) ([]Table, error) {
	rows, err := db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = 'main' AND table_type = 'BASE TABLE'
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
		table := Table{Name: name}

		colRows, err := db.QueryContext(ctx, `
SELECT column_name, data_type, is_nullable
FROM information_schema.columns
WHERE table_schema = 'main' AND table_name = ?
ORDER BY ordinal_position`, name)
		if err != nil {
			return nil, fmt.Errorf("list columns for %s: %w", name, err)
		}
		for colRows.Next() {
			var colName, dataType, isNullable string
			if err := colRows.Scan(&colName, &dataType, &isNullable); err != nil {
				_ = colRows.Close()
				return nil, fmt.Errorf("scan column for %s: %w", name, err)
			}
			table.Columns = append(table.Columns, Column{
				Name:     colName,
				DataType: dataType,
				Nullable: isNullable == "YES",
			})
		}
		if err := colRows.Err(); err != nil {
			_ = colRows.Close()
			return nil, fmt.Errorf("iterate columns for %s: %w", name, err)
		}
		_ = colRows.Close()

		idxRows, err := db.QueryContext(ctx, `
SELECT index_name, is_unique
FROM duckdb_indexes()
WHERE table_name = ?
ORDER BY index_name`, name)
		if err != nil {
			return nil, fmt.Errorf("list indexes for %s: %w", name, err)
		}
		for idxRows.Next() {
			var (
				idxName string
				unique  bool
			)
			if err := idxRows.Scan(&idxName, &unique); err != nil {
				_ = idxRows.Close()
				return nil, fmt.Errorf("scan index for %s: %w", name, err)
			}
			def := ""
			if unique {
				def = "UNIQUE"
			}
			table.Indexes = append(table.Indexes, Index{Name: idxName, Definition: def})
		}
		if err := idxRows.Err(); err != nil {
			_ = idxRows.Close()
			return nil, fmt.Errorf("iterate indexes for %s: %w", name, err)
		}
		_ = idxRows.Close()

		tables = append(tables, table)
	}
	return tables, nil
}
