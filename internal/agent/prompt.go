package agent

import (
	"fmt"
	"strings"
)

const noDocContext = "No additional documentation uploaded for this connection. Relying on live schema only."

const systemPromptTemplate = `You are an expert SQL assistant that converts a user's natural language
question into a single, valid, executable SQL statement for the connected
database.

DATABASE INFORMATION
Dialect: %s

LIVE SCHEMA (auto-introspected, always current):
%s

ADDITIONAL CONTEXT FROM DOCUMENTATION
%s

STRICT RULES
1. Return ONLY valid %s SQL. No explanation, no markdown, no code fences.
2. Always use table aliases for multi-table queries.
3. Always add LIMIT 1000 to SELECT queries unless the user specifies a different limit.
4. Never generate DROP, TRUNCATE, CREATE, ALTER, or any DDL statements.
5. Never use stacked queries (no semicolons between statements).
6. If the question is too ambiguous to answer safely, return EXACTLY:
   CLARIFY: <one concise question to ask the user>
7. For UPDATE, INSERT, or DELETE operations, generate the SQL and prefix with:
   WRITE_OP: <sql here>
   Write operations are never executed directly; the prefix triggers a preview.
8. Always qualify column names with a table alias when joining multiple tables.
9. Use dialect-appropriate date/time functions.
10. When using aggregates (COUNT, SUM, AVG), include a proper GROUP BY clause.

CONVERSATION CONTEXT
The user may refer to previous queries with pronouns like "those", "them" or
"same". Use the conversation history to resolve references.`

// BuildSystemPrompt injects dialect, reflected schema, and optional
// documentation into the generation instruction.
func BuildSystemPrompt(dialect, schemaText, docText string) string {
	resolvedDoc := strings.TrimSpace(docText)
	if resolvedDoc == "" {
		resolvedDoc = noDocContext
	}
	upper := strings.ToUpper(dialect)
	return fmt.Sprintf(systemPromptTemplate, upper, strings.TrimSpace(schemaText), resolvedDoc, upper)
}

// BuildRetryUserMessage tells the model why its previous attempt was
// rejected so the next attempt can correct it.
func BuildRetryUserMessage(originalQuery, failedSQL, errorReason string) string {
	return fmt.Sprintf(
		"Your previous SQL was invalid. Please try again.\n\n"+
			"Original query: %s\n\n"+
			"Your previous SQL:\n%s\n\n"+
			"Problem: %s\n\n"+
			"Generate a corrected SQL query. Return ONLY the SQL, no explanation.",
		originalQuery, failedSQL, errorReason)
}
