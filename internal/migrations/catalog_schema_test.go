package migrations

import (
	"strings"
	"testing"
)

func TestCoreMigrationContainsRequiredTablesAndIndexes(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_core.up.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}

	sql := string(body)
	requiredSnippets := []string{
		"CREATE TABLE connections",
		"CREATE TABLE connection_schema_docs",
		"CREATE TABLE audit_log",
		"idx_connections_owner",
		"idx_schema_docs_connection",
		"idx_audit_log_user",
		"REFERENCES connections (id) ON DELETE CASCADE",
	}
	for _, snippet := range requiredSnippets {
		if !strings.Contains(sql, snippet) {
			t.Fatalf("migration missing %q", snippet)
		}
	}
}

func TestCoreMigrationDownDropsEverything(t *testing.T) {
	body, err := embeddedFS.ReadFile("sql/000001_core.down.sql")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	sql := string(body)
	for _, table := range []string{"audit_log", "connection_schema_docs", "connections"} {
		if !strings.Contains(sql, "DROP TABLE IF EXISTS "+table) {
			t.Fatalf("down migration missing drop for %q", table)
		}
	}
}
