package dbexec

import (
	"regexp"
	"strings"
)

var (
	updateTargetPattern = regexp.MustCompile(`(?is)^\s*update\s+([^\s;]+)`)
	deleteTargetPattern = regexp.MustCompile(`(?is)^\s*delete\s+from\s+([^\s;]+)`)
	wherePattern        = regexp.MustCompile(`(?is)\bwhere\b(.*)$`)
	trailingClause      = regexp.MustCompile(`(?is)\b(returning|order\s+by|limit)\b.*$`)
)

// buildCountQuery derives a COUNT(*) probe from an UPDATE or DELETE.
// ok=false means the statement is not an estimable write.
func buildCountQuery(statement string) (query string, hasWhere, ok bool) {
	trimmed := strings.TrimSpace(statement)

	var table string
	if m := updateTargetPattern.FindStringSubmatch(trimmed); m != nil {
		table = m[1]
	} else if m := deleteTargetPattern.FindStringSubmatch(trimmed); m != nil {
		table = m[1]
	} else {
		return "", false, false
	}

	m := wherePattern.FindStringSubmatch(trimmed)
	if m == nil {
		return "", false, true
	}
	where := strings.TrimSpace(strings.TrimSuffix(m[1], ";"))
	where = strings.TrimSpace(trailingClause.ReplaceAllString(where, ""))
	if where == "" {
		return "", false, true
	}
	return "SELECT COUNT(*) FROM " + table + " WHERE " + where, true, true
}
