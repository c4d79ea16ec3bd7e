package sqlcheck

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultSelectLimit is appended to SELECT statements that carry no
// row-limiting clause of their own.
const DefaultSelectLimit = 1000

type OperationType string

const (
	OpSelect  OperationType = "SELECT"
	OpInsert  OperationType = "INSERT"
	OpUpdate  OperationType = "UPDATE"
	OpDelete  OperationType = "DELETE"
	OpWrite   OperationType = "WRITE_OP"
	OpClarify OperationType = "CLARIFY"
	OpUnknown OperationType = "UNKNOWN"
)

type RiskLevel string

const (
	RiskSafe     RiskLevel = "safe"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Result is produced exactly once per candidate SQL string.
// Invalid results never carry sanitized SQL; CLARIFY results are valid
// but carry the question out-of-band instead of SQL.
type Result struct {
	IsValid      bool
	Operation    OperationType
	Error        string
	SanitizedSQL string
	Risk         RiskLevel
	// FailedStage names the pipeline stage that rejected the input.
	// Empty for valid results.
	FailedStage string
}

const (
	clarifyPrefix = "CLARIFY:"
	writeOpPrefix = "WRITE_OP:"
)

type injectionPattern struct {
	name string
	re   *regexp.Regexp
}

// The denylist is defense in depth, not a soundness guarantee: it is a
// fixed pattern list and inherently incomplete against adversarial SQL.
// The statement splitter below and the DDL/RBAC stages back it up.
var injectionPatterns = []injectionPattern{
	{"stacked statements", regexp.MustCompile(`;\s*\S`)},
	{"EXEC invocation", regexp.MustCompile(`(?i)\bEXEC\s*\(`)},
	{"xp_cmdshell", regexp.MustCompile(`(?i)\bxp_cmdshell\b`)},
	{"sp_executesql", regexp.MustCompile(`(?i)\bsp_executesql\b`)},
	{"information_schema.user reference", regexp.MustCompile(`(?i)\binformation_schema\.user\b`)},
	{"mysql.user reference", regexp.MustCompile(`(?i)\bmysql\.user\b`)},
	{"pg_shadow reference", regexp.MustCompile(`(?i)\bpg_shadow\b`)},
	{"INTO OUTFILE", regexp.MustCompile(`(?i)\bINTO\s+OUTFILE\b`)},
	{"LOAD_FILE invocation", regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(`)},
	{"bypass comment", regexp.MustCompile(`(?i)--\s*bypass`)},
	{"bypass block comment", regexp.MustCompile(`(?i)/\*.*bypass.*\*/`)},
	{"SLEEP invocation", regexp.MustCompile(`(?i)\bSLEEP\s*\(`)},
	{"WAITFOR DELAY", regexp.MustCompile(`(?i)\bWAITFOR\s+DELAY\b`)},
	{"BENCHMARK invocation", regexp.MustCompile(`(?i)\bBENCHMARK\s*\(`)},
}

var forbiddenDDL = map[string]struct{}{
	"CREATE": {}, "DROP": {}, "ALTER": {}, "TRUNCATE": {},
	"RENAME": {}, "COMMENT": {}, "GRANT": {}, "REVOKE": {},
}

var writeVerbs = map[OperationType]struct{}{
	OpInsert: {}, OpUpdate: {}, OpDelete: {}, "MERGE": {}, "REPLACE": {},
}

var (
	limitClauseRe  = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	fetchFirstRe   = regexp.MustCompile(`(?i)\bFETCH\s+FIRST\b`)
	topClauseRe    = regexp.MustCompile(`(?i)\bTOP\s+\d+`)
	rownumClauseRe = regexp.MustCompile(`(?i)\bROWNUM\s*<=?\s*\d+`)
	whereClauseRe  = regexp.MustCompile(`(?i)\bWHERE\b`)
	selectInsideRe = regexp.MustCompile(`(?i)\bSELECT\b`)
)

// Validate runs the full multi-stage safety pipeline over raw model
// output. It is pure and deterministic: the same (raw, role, dialect)
// always yields the same result. The second return value is the
// clarification question when the model emitted a CLARIFY directive.
func Validate(raw, userRole, dialect string) (Result, string) {
	_ = dialect // validation is text-level; dialect steers prompting, not checks

	stripped := strings.TrimSpace(raw)

	// Stage 1: model directives.
	if len(stripped) >= len(clarifyPrefix) && strings.EqualFold(stripped[:len(clarifyPrefix)], clarifyPrefix) {
		question := strings.TrimSpace(stripped[len(clarifyPrefix):])
		return Result{IsValid: true, Operation: OpClarify, Risk: RiskSafe}, question
	}
	writeDirective := len(stripped) >= len(writeOpPrefix) && strings.EqualFold(stripped[:len(writeOpPrefix)], writeOpPrefix)
	if writeDirective {
		stripped = strings.TrimSpace(stripped[len(writeOpPrefix):])
	}

	// Stage 2: emptiness.
	if stripped == "" {
		return fail("empty", "model returned empty SQL; please try rephrasing your question"), ""
	}

	// Stage 3: injection denylist.
	for _, pattern := range injectionPatterns {
		if pattern.re.MatchString(stripped) {
			return fail("injection", fmt.Sprintf("security violation detected: %s", pattern.name)), ""
		}
	}

	// Stage 4: parse and single-statement enforcement. This is a
	// structural second line of defense behind the stacked-statement
	// regex, since the splitter understands quotes and comments.
	statements, err := splitStatements(stripped)
	if err != nil {
		return fail("parse", fmt.Sprintf("could not parse the generated SQL: %v", err)), ""
	}
	if len(statements) == 0 {
		return fail("parse", "could not parse the generated SQL; please rephrase"), ""
	}
	if len(statements) > 1 {
		return fail("parse", "multiple SQL statements detected; only single statements are allowed"), ""
	}

	// Stage 5: operation classification.
	op := classifyOperation(stripped)

	// Stage 6: DDL guard. Never permitted, regardless of role.
	if _, ok := forbiddenDDL[string(op)]; ok {
		return fail("ddl", "DDL operations (CREATE, DROP, ALTER, TRUNCATE, RENAME, COMMENT, GRANT, REVOKE) are not permitted; only data queries and modifications are allowed"), ""
	}
	if op == OpUnknown {
		return fail("classify", "unsupported statement type; only SELECT, INSERT, UPDATE and DELETE are allowed"), ""
	}

	// Stage 7: RBAC for writes.
	_, isWriteVerb := writeVerbs[op]
	isWrite := isWriteVerb || writeDirective
	if isWrite && userRole != "admin" && userRole != "power_user" {
		return fail("rbac", fmt.Sprintf("role %q does not have permission to perform write operations (INSERT/UPDATE/DELETE); contact your administrator", userRole)), ""
	}

	// Stage 8: SELECT row-limit enforcement.
	sanitized := stripped
	if op == OpSelect && !hasRowLimit(stripped) {
		sanitized = strings.TrimSpace(strings.TrimRight(stripped, "; \t\n")) + fmt.Sprintf(" LIMIT %d", DefaultSelectLimit)
	}

	// Stage 9: risk assessment.
	risk := assessRisk(op, sanitized)

	// Stage 10: write operations normalize to WRITE_OP for routing.
	finalOp := op
	if isWrite {
		finalOp = OpWrite
	}

	return Result{
		IsValid:      true,
		Operation:    finalOp,
		SanitizedSQL: sanitized,
		Risk:         risk,
	}, ""
}

// ValidateConfirmedWrite re-runs the pipeline against a previously
// previewed statement at confirmation time, to detect tampering between
// preview and execution.
func ValidateConfirmedWrite(confirmedSQL, userRole string) Result {
	result, _ := Validate(confirmedSQL, userRole, "")
	return result
}

func fail(stage, message string) Result {
	return Result{
		IsValid:     false,
		Operation:   OpUnknown,
		Error:       message,
		Risk:        RiskHigh,
		FailedStage: stage,
	}
}

// splitStatements tokenizes the text into semicolon-separated
// statements, honoring string literals, quoted identifiers and
// comments. An unterminated literal or comment is a parse error.
func splitStatements(sql string) ([]string, error) {
	var statements []string
	var current strings.Builder

	runes := []rune(sql)
	i := 0
	for i < len(runes) {
		ch := runes[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end, err := scanQuoted(runes, i, ch)
			if err != nil {
				return nil, err
			}
			current.WriteString(string(runes[i:end]))
			i = end
		case ch == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := strings.Index(string(runes[i+2:]), "*/")
			if end < 0 {
				return nil, fmt.Errorf("unterminated block comment")
			}
			i += 2 + end + 2
		case ch == ';':
			if text := strings.TrimSpace(current.String()); text != "" {
				statements = append(statements, text)
			}
			current.Reset()
			i++
		default:
			current.WriteRune(ch)
			i++
		}
	}
	if text := strings.TrimSpace(current.String()); text != "" {
		statements = append(statements, text)
	}
	return statements, nil
}

func scanQuoted(runes []rune, start int, quote rune) (int, error) {
	i := start + 1
	for i < len(runes) {
		if runes[i] == quote {
			// Doubled quote is an escaped quote inside the literal.
			if i+1 < len(runes) && runes[i+1] == quote {
				i += 2
				continue
			}
			return i + 1, nil
		}
		if quote == '\'' && runes[i] == '\\' && i+1 < len(runes) {
			i += 2
			continue
		}
		i++
	}
	return 0, fmt.Errorf("unterminated quote %q", string(quote))
}

// classifyOperation derives the primary verb from the first top-level
// keyword token. CTE bodies live inside parentheses and are skipped by
// the tokenizer, so a WITH-prefixed write classifies by its outer verb,
// not the SELECT inside the clause.
func classifyOperation(sql string) OperationType {
	tokens := topLevelKeywords(sql)
	if len(tokens) == 0 {
		return OpUnknown
	}
	first := tokens[0]
	if first == "WITH" {
		for _, token := range tokens[1:] {
			switch token {
			case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "REPLACE":
				return OperationType(token)
			}
			if _, ok := forbiddenDDL[token]; ok {
				return OperationType(token)
			}
		}
		return OpUnknown
	}
	switch first {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "MERGE", "REPLACE":
		return OperationType(first)
	}
	if _, ok := forbiddenDDL[first]; ok {
		return OperationType(first)
	}
	return OpUnknown
}

// topLevelKeywords returns uppercased word tokens outside any
// parenthesized group, string literal, quoted identifier or comment.
func topLevelKeywords(sql string) []string {
	var tokens []string
	runes := []rune(sql)
	depth := 0
	i := 0
	for i < len(runes) {
		ch := runes[i]
		switch {
		case ch == '\'' || ch == '"' || ch == '`':
			end, err := scanQuoted(runes, i, ch)
			if err != nil {
				return tokens
			}
			i = end
		case ch == '-' && i+1 < len(runes) && runes[i+1] == '-':
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case ch == '/' && i+1 < len(runes) && runes[i+1] == '*':
			end := strings.Index(string(runes[i+2:]), "*/")
			if end < 0 {
				return tokens
			}
			i += 2 + end + 2
		case ch == '(':
			depth++
			i++
		case ch == ')':
			if depth > 0 {
				depth--
			}
			i++
		case depth == 0 && isWordRune(ch):
			start := i
			for i < len(runes) && isWordRune(runes[i]) {
				i++
			}
			tokens = append(tokens, strings.ToUpper(string(runes[start:i])))
		default:
			i++
		}
	}
	return tokens
}

func isWordRune(ch rune) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z')
}

func hasRowLimit(sql string) bool {
	return limitClauseRe.MatchString(sql) ||
		fetchFirstRe.MatchString(sql) ||
		topClauseRe.MatchString(sql) ||
		rownumClauseRe.MatchString(sql)
}

func assessRisk(op OperationType, sql string) RiskLevel {
	if op == OpSelect {
		return RiskSafe
	}
	switch op {
	case OpUpdate, OpDelete:
		if !whereClauseRe.MatchString(sql) {
			return RiskHigh
		}
		return RiskModerate
	case OpInsert:
		// INSERT ... SELECT is a bulk insert; literal VALUES are not.
		if selectInsideRe.MatchString(sql) {
			return RiskHigh
		}
		return RiskModerate
	}
	return RiskModerate
}
