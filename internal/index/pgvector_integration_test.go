//go:build integration

package index

import (
	"context"
	"testing"

	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/cloo-solutions/vaultmail/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIndex(ctx context.Context, t *testing.T) (*PG, func()) {
	pc := testutil.NewPostgresContainer(ctx, t)

	pool, err := pgxpool.New(ctx, pc.ConnectionString())
	require.NoError(t, err)
	testutil.SetupSchema(ctx, t, pool)

	cleanup := func() {
		pool.Close()
		_ = pc.Terminate(ctx)
	}
	return NewPG(pool), cleanup
}

func dims(seed float32) []float32 {
	v := make([]float32, 1536)
	v[0] = 1
	v[1] = seed
	return v
}

func TestPG_Upsert_Idempotent(t *testing.T) {
	ctx := context.Background()
	idx, cleanup := setupIndex(ctx, t)
	defer cleanup()

	rec := domain.VectorRecord{
		DocPath:   "notes/a.md",
		Ordinal:   0,
		Content:   "hello",
		Hash:      domain.HashText("hello"),
		DocHash:   "doc",
		SourceURL: "https://example.com/a",
		Embedding: dims(0),
	}

	require.NoError(t, idx.Upsert(ctx, rec))
	require.NoError(t, idx.Upsert(ctx, rec))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPG_DeleteDocument_RemovesAllOrdinals(t *testing.T) {
	ctx := context.Background()
	idx, cleanup := setupIndex(ctx, t)
	defer cleanup()

	for i := 0; i < 3; i++ {
		require.NoError(t, idx.Upsert(ctx, domain.VectorRecord{
			DocPath: "notes/a.md", Ordinal: i, Content: "c", Hash: "h", DocHash: "d",
			Embedding: dims(float32(i)),
		}))
	}

	require.NoError(t, idx.DeleteDocument(ctx, "notes/a.md"))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPG_DeleteChunksFrom_TrimsTail(t *testing.T) {
	ctx := context.Background()
	idx, cleanup := setupIndex(ctx, t)
	defer cleanup()

	for i := 0; i < 5; i++ {
		require.NoError(t, idx.Upsert(ctx, domain.VectorRecord{
			DocPath: "notes/a.md", Ordinal: i, Content: "c", Hash: "h", DocHash: "d",
			Embedding: dims(float32(i)),
		}))
	}

	require.NoError(t, idx.DeleteChunksFrom(ctx, "notes/a.md", 2))

	states, err := idx.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, states["notes/a.md"].Chunks)
}

func TestPG_Query_EmptyIndexAndZeroK(t *testing.T) {
	ctx := context.Background()
	idx, cleanup := setupIndex(ctx, t)
	defer cleanup()

	matches, err := idx.Query(ctx, dims(0), 5)
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.NoError(t, idx.Upsert(ctx, domain.VectorRecord{
		DocPath: "notes/a.md", Ordinal: 0, Content: "c", Hash: "h", DocHash: "d",
		Embedding: dims(0),
	}))

	matches, err = idx.Query(ctx, dims(0), 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestPG_Query_ReturnsNearestWithProvenance(t *testing.T) {
	ctx := context.Background()
	idx, cleanup := setupIndex(ctx, t)
	defer cleanup()

	near := dims(0.05)
	far := make([]float32, 1536)
	far[2] = 1

	require.NoError(t, idx.Upsert(ctx, domain.VectorRecord{
		DocPath: "notes/near.md", Ordinal: 0, Content: "near content", Hash: "h1", DocHash: "d1",
		SourceURL: "https://example.com/near", Embedding: near,
	}))
	require.NoError(t, idx.Upsert(ctx, domain.VectorRecord{
		DocPath: "notes/far.md", Ordinal: 0, Content: "far content", Hash: "h2", DocHash: "d2",
		SourceURL: "https://example.com/far", Embedding: far,
	}))

	matches, err := idx.Query(ctx, dims(0), 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "notes/near.md", matches[0].DocPath)
	assert.Equal(t, "https://example.com/near", matches[0].SourceURL)
	assert.Greater(t, matches[0].Score, 0.5)
}
