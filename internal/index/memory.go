package index

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Memory is an in-memory index with the same contract as PG. It backs unit
// tests and database-less runs; queries use exact cosine distance.
type Memory struct {
	mu   sync.RWMutex
	docs map[string]map[int]domain.VectorRecord
}

func NewMemory() *Memory {
	return &Memory{docs: make(map[string]map[int]domain.VectorRecord)}
}

func (m *Memory) Upsert(ctx context.Context, rec domain.VectorRecord) error {
	if len(rec.Embedding) == 0 {
		return domain.ErrEmptyEmbedding
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks, ok := m.docs[rec.DocPath]
	if !ok {
		chunks = make(map[int]domain.VectorRecord)
		m.docs[rec.DocPath] = chunks
	}
	chunks[rec.Ordinal] = rec
	return nil
}

func (m *Memory) DeleteDocument(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, path)
	return nil
}

func (m *Memory) DeleteChunksFrom(ctx context.Context, path string, fromOrdinal int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	chunks, ok := m.docs[path]
	if !ok {
		return nil
	}
	for ordinal := range chunks {
		if ordinal >= fromOrdinal {
			delete(chunks, ordinal)
		}
	}
	if len(chunks) == 0 {
		delete(m.docs, path)
	}
	return nil
}

func (m *Memory) Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	if k <= 0 || len(embedding) == 0 {
		return []domain.Match{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]domain.Match, 0, k)
	for _, chunks := range m.docs {
		for _, rec := range chunks {
			dist := cosineDistance(embedding, rec.Embedding)
			matches = append(matches, domain.Match{
				DocPath:   rec.DocPath,
				Ordinal:   rec.Ordinal,
				Content:   rec.Content,
				SourceURL: rec.SourceURL,
				Score:     1.0 / (1.0 + dist),
			})
		}
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (m *Memory) ListDocuments(ctx context.Context) (map[string]DocumentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]DocumentState, len(m.docs))
	for path, chunks := range m.docs {
		state := DocumentState{Chunks: len(chunks)}
		for _, rec := range chunks {
			state.DocHash = rec.DocHash
			break
		}
		states[path] = state
	}
	return states, nil
}

func (m *Memory) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, chunks := range m.docs {
		total += len(chunks)
	}
	return total, nil
}

func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1.0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 1.0
	}
	return 1.0 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
