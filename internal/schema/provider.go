package schema

import (
	"context"

	"github.com/tablepilot/tablepilot/internal/catalog"
)

// ContextProvider bundles live reflection with catalog-backed
// documentation lookup behind one dependency.
type ContextProvider struct {
	Docs catalog.Repository
}

func (p *ContextProvider) Reflect(ctx context.Context, dsn, dialect string) (string, error) {
	return Reflect(ctx, dsn, dialect)
}

func (p *ContextProvider) DocContext(ctx context.Context, connectionID int64) (string, error) {
	if p.Docs == nil {
		return "", nil
	}
	return DocContext(ctx, p.Docs, connectionID)
}
