package manager

import (
	"context"
	"fmt"

	"github.com/dshills/semindex/internal/embedder"
	"github.com/dshills/semindex/internal/indexer"
	"github.com/dshills/semindex/pkg/types"
)

// resolveNamespace derives the namespace of a provider. Providers that do
// not report their dimension are asked to embed a probe text once.
func resolveNamespace(ctx context.Context, p embedder.Provider) (types.Namespace, error) {
	if dim, ok := embedder.ExpectedDimensionOf(p); ok {
		return types.NewNamespace(p.ID(), p.Model(), dim), nil
	}

	vectors, err := p.GenerateEmbeddings(ctx, []string{indexer.ProbeText}, embedder.GenerateOptions{InputType: embedder.InputQuery})
	if err != nil {
		if ctx.Err() != nil {
			return types.Namespace{}, ctx.Err()
		}
		return types.Namespace{}, fmt.Errorf("probe embedding dimension: %w", embedder.Classify(err))
	}
	if len(vectors) != 1 || len(vectors[0]) == 0 {
		return types.Namespace{}, &embedder.ProviderError{
			Code:    embedder.CodeInvalidResponse,
			Message: "dimension probe returned no embedding",
		}
	}
	return types.NewNamespace(p.ID(), p.Model(), len(vectors[0])), nil
}
