package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/tablepilot/tablepilot/internal/catalog"
)

// Documentation text is capped separately from the reflected schema.
const MaxDocChars = 8000

const docTruncationNotice = "\n... (documentation truncated)"

// DocContext concatenates a connection's extracted documentation into
// one prompt block. No documentation is not an error.
func DocContext(ctx context.Context, repo catalog.Repository, connectionID int64) (string, error) {
	docs, err := repo.ListSchemaDocs(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("load schema docs: %w", err)
	}
	return BuildDocText(docs), nil
}

// BuildDocText renders doc sections capped at MaxDocChars.
func BuildDocText(docs []catalog.SchemaDoc) string {
	var b strings.Builder
	for _, doc := range docs {
		text := strings.TrimSpace(doc.ExtractedText)
		if text == "" {
			continue
		}
		section := fmt.Sprintf("--- From: %s ---\n%s\n\n", doc.Filename, text)
		if b.Len()+len(section) > MaxDocChars-len(docTruncationNotice) {
			remaining := MaxDocChars - len(docTruncationNotice) - b.Len()
			if remaining > 0 {
				b.WriteString(section[:remaining])
			}
			b.WriteString(docTruncationNotice)
			break
		}
		b.WriteString(section)
	}
	return strings.TrimRight(b.String(), "\n")
}
