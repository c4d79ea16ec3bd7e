package sqlcheck

import (
	"strings"
	"testing"
)

func TestValidateAppendsDefaultLimit(t *testing.T) {
	result, _ := Validate("SELECT * FROM sensors", "viewer", "postgres")
	if !result.IsValid {
		t.Fatalf("IsValid = false, error = %q", result.Error)
	}
	if result.Operation != OpSelect {
		t.Fatalf("Operation = %q", result.Operation)
	}
	if result.SanitizedSQL != "SELECT * FROM sensors LIMIT 1000" {
		t.Fatalf("SanitizedSQL = %q", result.SanitizedSQL)
	}
	if result.Risk != RiskSafe {
		t.Fatalf("Risk = %q", result.Risk)
	}
}

func TestValidateDoesNotDoubleLimit(t *testing.T) {
	tests := []string{
		"SELECT * FROM sensors LIMIT 50",
		"SELECT * FROM sensors FETCH FIRST 10 ROWS ONLY",
		"SELECT TOP 5 * FROM sensors",
		"SELECT * FROM sensors WHERE ROWNUM <= 20",
	}
	for _, sql := range tests {
		result, _ := Validate(sql, "viewer", "postgres")
		if !result.IsValid {
			t.Fatalf("Validate(%q) invalid: %s", sql, result.Error)
		}
		if result.SanitizedSQL != sql {
			t.Fatalf("Validate(%q) sanitized = %q", sql, result.SanitizedSQL)
		}
	}
}

func TestValidateIsIdempotentOnSanitizedSelect(t *testing.T) {
	first, _ := Validate("SELECT name FROM sensors", "viewer", "mysql")
	second, _ := Validate(first.SanitizedSQL, "viewer", "mysql")
	if second.SanitizedSQL != first.SanitizedSQL {
		t.Fatalf("re-validation changed SQL: %q -> %q", first.SanitizedSQL, second.SanitizedSQL)
	}
	if strings.Count(second.SanitizedSQL, "LIMIT") != 1 {
		t.Fatalf("expected exactly one LIMIT clause: %q", second.SanitizedSQL)
	}
}

func TestValidateClarifyDirective(t *testing.T) {
	result, question := Validate("  clarify:  Which zone do you mean?  ", "viewer", "postgres")
	if !result.IsValid {
		t.Fatalf("IsValid = false, error = %q", result.Error)
	}
	if result.Operation != OpClarify {
		t.Fatalf("Operation = %q", result.Operation)
	}
	if result.SanitizedSQL != "" {
		t.Fatalf("SanitizedSQL = %q, want empty", result.SanitizedSQL)
	}
	if question != "Which zone do you mean?" {
		t.Fatalf("question = %q", question)
	}
}

func TestValidateWriteOpDirectiveNormalizesOperation(t *testing.T) {
	result, _ := Validate("WRITE_OP: UPDATE sensors SET name = 'x' WHERE sensor_id = 'S-1'", "power_user", "postgres")
	if !result.IsValid {
		t.Fatalf("IsValid = false, error = %q", result.Error)
	}
	if result.Operation != OpWrite {
		t.Fatalf("Operation = %q", result.Operation)
	}
	if result.SanitizedSQL != "UPDATE sensors SET name = 'x' WHERE sensor_id = 'S-1'" {
		t.Fatalf("SanitizedSQL = %q", result.SanitizedSQL)
	}
	if result.Risk != RiskModerate {
		t.Fatalf("Risk = %q", result.Risk)
	}
}

func TestValidateRejectsViewerWrites(t *testing.T) {
	for _, sql := range []string{
		"DELETE FROM calibrations WHERE id = 1",
		"INSERT INTO sensors (name) VALUES ('x')",
		"UPDATE sensors SET name = 'x' WHERE id = 1",
		"WRITE_OP: UPDATE sensors SET name = 'x' WHERE id = 1",
	} {
		result, _ := Validate(sql, "viewer", "postgres")
		if result.IsValid {
			t.Fatalf("Validate(%q) should fail for viewer", sql)
		}
		if result.FailedStage != "rbac" {
			t.Fatalf("Validate(%q) failed at %q, want rbac", sql, result.FailedStage)
		}
		if result.SanitizedSQL != "" {
			t.Fatalf("invalid result carries sanitized SQL %q", result.SanitizedSQL)
		}
	}
}

func TestValidateAllowsPrivilegedWrites(t *testing.T) {
	for _, role := range []string{"admin", "power_user"} {
		result, _ := Validate("DELETE FROM calibrations", role, "postgres")
		if !result.IsValid {
			t.Fatalf("role %q: error = %q", role, result.Error)
		}
		if result.Operation != OpWrite {
			t.Fatalf("role %q: Operation = %q", role, result.Operation)
		}
		if result.Risk != RiskHigh {
			t.Fatalf("role %q: Risk = %q (DELETE without WHERE)", role, result.Risk)
		}
	}
}

func TestValidateBlocksDDLRegardlessOfRole(t *testing.T) {
	statements := []string{
		"DROP TABLE sensors",
		"CREATE TABLE t (id INT)",
		"ALTER TABLE sensors ADD COLUMN x INT",
		"TRUNCATE TABLE calibrations",
		"GRANT ALL ON sensors TO bob",
	}
	for _, sql := range statements {
		for _, role := range []string{"viewer", "power_user", "admin"} {
			result, _ := Validate(sql, role, "postgres")
			if result.IsValid {
				t.Fatalf("Validate(%q) as %q should fail", sql, role)
			}
			if result.FailedStage != "ddl" {
				t.Fatalf("Validate(%q) failed at %q, want ddl", sql, result.FailedStage)
			}
		}
	}
}

func TestValidateBlocksStackedStatements(t *testing.T) {
	result, _ := Validate("UPDATE sensors SET name='x'; DROP TABLE sensors", "admin", "postgres")
	if result.IsValid {
		t.Fatal("stacked statement should fail")
	}
	if result.FailedStage != "injection" {
		t.Fatalf("FailedStage = %q, want injection", result.FailedStage)
	}
	if !strings.Contains(result.Error, "stacked statements") {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestValidateInjectionDenylist(t *testing.T) {
	tests := []struct {
		sql     string
		pattern string
	}{
		{"SELECT * FROM users WHERE id = 1 OR SLEEP(5)", "SLEEP"},
		{"SELECT BENCHMARK(100000, MD5('x'))", "BENCHMARK"},
		{"SELECT * FROM t; WAITFOR DELAY '0:0:5'", "stacked"},
		{"SELECT * FROM mysql.user", "mysql.user"},
		{"SELECT passwd FROM pg_shadow", "pg_shadow"},
		{"SELECT * FROM t INTO OUTFILE '/tmp/x'", "INTO OUTFILE"},
		{"SELECT LOAD_FILE('/etc/passwd')", "LOAD_FILE"},
		{"EXEC (@stmt)", "EXEC"},
		{"SELECT 1 -- bypass",
			"bypass"},
	}
	for _, tc := range tests {
		result, _ := Validate(tc.sql, "admin", "mysql")
		if result.IsValid {
			t.Fatalf("Validate(%q) should fail", tc.sql)
		}
		if result.Risk != RiskHigh {
			t.Fatalf("Validate(%q) Risk = %q", tc.sql, result.Risk)
		}
	}
}

func TestValidateEmptyInput(t *testing.T) {
	for _, raw := range []string{"", "   ", "WRITE_OP:   "} {
		result, _ := Validate(raw, "admin", "postgres")
		if result.IsValid {
			t.Fatalf("Validate(%q) should fail", raw)
		}
		if result.FailedStage != "empty" {
			t.Fatalf("Validate(%q) failed at %q, want empty", raw, result.FailedStage)
		}
		if result.Risk != RiskHigh {
			t.Fatalf("Risk = %q", result.Risk)
		}
	}
}

func TestValidateSemicolonInsideLiteralRejectedByDenylist(t *testing.T) {
	// The stacked-statement pattern runs before the quote-aware
	// splitter and matches any semicolon followed by text.
	result, _ := Validate("SELECT * FROM notes WHERE body = 'a;b'", "viewer", "postgres")
	if result.IsValid {
		t.Fatal("semicolon inside literal should still fail the denylist")
	}
	if result.FailedStage != "injection" {
		t.Fatalf("FailedStage = %q, want injection", result.FailedStage)
	}
	if !strings.Contains(result.Error, "stacked statements") {
		t.Fatalf("Error = %q", result.Error)
	}
}

func TestSplitStatementsHonorsQuotedSemicolons(t *testing.T) {
	statements, err := splitStatements("SELECT * FROM notes WHERE body = 'a;b'")
	if err != nil {
		t.Fatalf("splitStatements error = %v", err)
	}
	if len(statements) != 1 {
		t.Fatalf("statements = %d, want 1: %v", len(statements), statements)
	}
}

func TestValidateUnterminatedLiteralFailsParse(t *testing.T) {
	result, _ := Validate("SELECT * FROM notes WHERE body = 'oops", "viewer", "postgres")
	if result.IsValid {
		t.Fatal("unterminated literal should fail")
	}
	if result.FailedStage != "parse" {
		t.Fatalf("FailedStage = %q, want parse", result.FailedStage)
	}
}

func TestValidateRiskAssessment(t *testing.T) {
	tests := []struct {
		sql  string
		risk RiskLevel
	}{
		{"UPDATE sensors SET name = 'x' WHERE id = 1", RiskModerate},
		{"UPDATE sensors SET name = 'x'", RiskHigh},
		{"DELETE FROM sensors WHERE id = 1", RiskModerate},
		{"DELETE FROM sensors", RiskHigh},
		{"INSERT INTO archive SELECT * FROM sensors", RiskHigh},
		{"INSERT INTO sensors (name) VALUES ('x')", RiskModerate},
	}
	for _, tc := range tests {
		result, _ := Validate(tc.sql, "admin", "postgres")
		if !result.IsValid {
			t.Fatalf("Validate(%q) invalid: %s", tc.sql, result.Error)
		}
		if result.Risk != tc.risk {
			t.Fatalf("Validate(%q) Risk = %q, want %q", tc.sql, result.Risk, tc.risk)
		}
	}
}

func TestValidateCTEClassifiesAsSelect(t *testing.T) {
	result, _ := Validate("WITH recent AS (SELECT * FROM readings) SELECT * FROM recent", "viewer", "postgres")
	if !result.IsValid {
		t.Fatalf("IsValid = false, error = %q", result.Error)
	}
	if result.Operation != OpSelect {
		t.Fatalf("Operation = %q", result.Operation)
	}
	if !strings.HasSuffix(result.SanitizedSQL, "LIMIT 1000") {
		t.Fatalf("SanitizedSQL = %q", result.SanitizedSQL)
	}
}

func TestValidateCTEWrappedWriteEnforcesRBAC(t *testing.T) {
	sql := "WITH doomed AS (SELECT id FROM sensors) DELETE FROM sensors WHERE id IN (SELECT id FROM doomed)"
	result, _ := Validate(sql, "viewer", "postgresql")
	if result.IsValid {
		t.Fatalf("viewer CTE write should fail, got %+v", result)
	}
	if result.FailedStage != "rbac" {
		t.Fatalf("FailedStage = %q, want rbac", result.FailedStage)
	}

	privileged, _ := Validate(sql, "admin", "postgresql")
	if !privileged.IsValid {
		t.Fatalf("admin CTE write invalid: %s", privileged.Error)
	}
	if privileged.Operation != OpWrite {
		t.Fatalf("Operation = %q, want %q", privileged.Operation, OpWrite)
	}
	if strings.Contains(privileged.SanitizedSQL, "LIMIT") {
		t.Fatalf("write gained a row limit: %q", privileged.SanitizedSQL)
	}
}

func TestClassifyOperationSkipsCTEBodies(t *testing.T) {
	tests := []struct {
		sql string
		op  OperationType
	}{
		{"WITH recent AS (SELECT * FROM readings) SELECT * FROM recent", OpSelect},
		{"WITH doomed AS (SELECT id FROM sensors) DELETE FROM sensors WHERE id IN (SELECT id FROM doomed)", OpDelete},
		{"WITH src AS (SELECT * FROM staging) INSERT INTO sensors SELECT * FROM src", OpInsert},
		{"WITH tgt AS (SELECT id FROM sensors WHERE zone = 'a') UPDATE sensors SET name = 'x' WHERE id IN (SELECT id FROM tgt)", OpUpdate},
		{"WITH a AS (SELECT 1), b AS (SELECT 2), c AS (SELECT 3), d AS (SELECT 4), e AS (SELECT 5), f AS (SELECT 6), g AS (SELECT 7), h AS (SELECT 8) DELETE FROM sensors", OpDelete},
		{"WITH a AS (SELECT 1)", OpUnknown},
	}
	for _, tc := range tests {
		if got := classifyOperation(tc.sql); got != tc.op {
			t.Fatalf("classifyOperation(%q) = %q, want %q", tc.sql, got, tc.op)
		}
	}
}

func TestValidateUnsupportedStatementType(t *testing.T) {
	result, _ := Validate("VACUUM FULL sensors", "admin", "postgres")
	if result.IsValid {
		t.Fatal("unsupported statement should fail")
	}
	if result.FailedStage != "classify" {
		t.Fatalf("FailedStage = %q, want classify", result.FailedStage)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	for range 5 {
		a, qa := Validate("CLARIFY: which table?", "viewer", "sqlite")
		b, qb := Validate("CLARIFY: which table?", "viewer", "sqlite")
		if a != b || qa != qb {
			t.Fatal("validation is not deterministic")
		}
	}
}

func TestValidateConfirmedWriteDetectsTampering(t *testing.T) {
	ok := ValidateConfirmedWrite("UPDATE sensors SET name = 'x' WHERE id = 1", "admin")
	if !ok.IsValid || ok.Operation != OpWrite {
		t.Fatalf("result = %+v", ok)
	}
	tampered := ValidateConfirmedWrite("UPDATE sensors SET name='x'; DROP TABLE sensors", "admin")
	if tampered.IsValid {
		t.Fatal("tampered SQL should fail re-validation")
	}
	viewer := ValidateConfirmedWrite("UPDATE sensors SET name = 'x' WHERE id = 1", "viewer")
	if viewer.IsValid {
		t.Fatal("viewer should not pass confirmed-write validation")
	}
}
