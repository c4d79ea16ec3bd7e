package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

func reflectSQLite(ctx context.Context, db *sql.DB) ([]Table, error) {
	rows, err := db.QueryContext(ctx, `
SELECT name FROM sqlite_master
WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
ORDER BY name`)
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
		table, err := reflectSQLiteTable(ctx, db, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, table)
	}
	return tables, nil
}

func reflectSQLiteTable(ctx context.Context, db *sql.DB, name string) (Table, error) {
	table := Table{Name: name}
	quoted := quoteSQLiteIdent(name)

	colRows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(`+quoted+`)`)
	if err != nil {
		return Table{}, fmt.Errorf("table info for %s: %w", name, err)
	}
	defer func() { _ = colRows.Close() }()

	for colRows.Next() {
		var (
			colName, dataType string
			notNull, pk       int
		)
		if err := colRows.Scan(&colName, &dataType, &notNull, &pk); err != nil {
			return Table{}, fmt.Errorf("scan column for %s: %w", name, err)
		}
		if dataType == "" {
			dataType = "TEXT"
		}
		table.Columns = append(table.Columns, Column{
			Name:       colName,
			DataType:   dataType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
		})
	}
	if err := colRows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate columns for %s: %w", name, err)
	}

	fkRows, err := db.QueryContext(ctx, `SELECT "from", "table", "to" FROM pragma_foreign_key_list(`+quoted+`)`)
	if err != nil {
		return Table{}, fmt.Errorf("foreign key list for %s: %w", name, err)
	}
	defer func() { _ = fkRows.Close() }()

	for fkRows.Next() {
		var fk ForeignKey
		var refColumn sql.NullString
		if err := fkRows.Scan(&fk.Column, &fk.RefTable, &refColumn); err != nil {
			return Table{}, fmt.Errorf("scan foreign key for %s: %w", name, err)
		}
		fk.RefColumn = refColumn.String
		table.ForeignKeys = append(table.ForeignKeys, fk)
	}
	if err := fkRows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate foreign keys for %s: %w", name, err)
	}

	idxRows, err := db.QueryContext(ctx, `SELECT name, "unique" FROM pragma_index_list(`+quoted+`)`)
	if err != nil {
		return Table{}, fmt.Errorf("index list for %s: %w", name, err)
	}
	defer func() { _ = idxRows.Close() }()

	for idxRows.Next() {
		var (
			idxName string
			unique  int
		)
		if err := idxRows.Scan(&idxName, &unique); err != nil {
			return Table{}, fmt.Errorf("scan index for %s: %w", name, err)
		}
		def := ""
		if unique == 1 {
			def = "UNIQUE"
		}
		table.Indexes = append(table.Indexes, Index{Name: idxName, Definition: def})
	}
	if err := idxRows.Err(); err != nil {
		return Table{}, fmt.Errorf("iterate indexes for %s: %w", name, err)
	}

	return table, nil
}

func quoteSQLiteIdent(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
