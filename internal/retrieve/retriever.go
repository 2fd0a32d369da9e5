// Package retrieve answers free-text queries against the vector index.
package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Index is the query surface of the vector index.
type Index interface {
	Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error)
}

// Embedder generates an embedding vector for query text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// Retriever embeds a query and returns the k nearest chunks.
type Retriever struct {
	idx      Index
	embedder Embedder
	topK     int
}

func New(idx Index, embedder Embedder, topK int) *Retriever {
	return &Retriever{idx: idx, embedder: embedder, topK: topK}
}

// Retrieve returns up to k matches ranked by score. A blank query or a
// non-positive k yields an empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]domain.Match, error) {
	return r.RetrieveK(ctx, query, r.topK)
}

func (r *Retriever) RetrieveK(ctx context.Context, query string, k int) ([]domain.Match, error) {
	query = strings.TrimSpace(query)
	if query == "" || k <= 0 {
		return []domain.Match{}, nil
	}

	embedding, err := r.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	matches, err := r.idx.Query(ctx, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return matches, nil
}
