// Package index provides the vector index clients backing vault search.
// Records are keyed by (document path, ordinal): upserts replace, never
// append, so reconciling the same content twice leaves the index unchanged.
package index

import (
	"context"

	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocumentState summarizes what the index holds for one document path.
type DocumentState struct {
	DocHash string
	Chunks  int
}

// PG is the Postgres/pgvector-backed index client.
type PG struct {
	pool *pgxpool.Pool
}

func NewPG(pool *pgxpool.Pool) *PG {
	return &PG{pool: pool}
}

// Upsert inserts or replaces the record for its chunk key.
func (p *PG) Upsert(ctx context.Context, rec domain.VectorRecord) error {
	if len(rec.Embedding) == 0 {
		return domain.ErrEmptyEmbedding
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO vault_chunks
			(doc_path, ordinal, content, chunk_hash, doc_hash, source_url, embedding, updated_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (doc_path, ordinal) DO UPDATE SET
			content = EXCLUDED.content,
			chunk_hash = EXCLUDED.chunk_hash,
			doc_hash = EXCLUDED.doc_hash,
			source_url = EXCLUDED.source_url,
			embedding = EXCLUDED.embedding,
			updated_at = now()`,
		rec.DocPath,
		rec.Ordinal,
		rec.Content,
		rec.Hash,
		rec.DocHash,
		rec.SourceURL,
		pgvector.NewVector(rec.Embedding),
	)
	return err
}

// DeleteDocument removes every record whose source path matches.
func (p *PG) DeleteDocument(ctx context.Context, path string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM vault_chunks WHERE doc_path = $1`, path)
	return err
}

// DeleteChunksFrom removes the stale ordinal tail of a document after it
// shrank: all records with ordinal >= fromOrdinal.
func (p *PG) DeleteChunksFrom(ctx context.Context, path string, fromOrdinal int) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM vault_chunks WHERE doc_path = $1 AND ordinal >= $2`,
		path, fromOrdinal,
	)
	return err
}

// Query returns the k nearest neighbors by cosine distance, best first.
// k <= 0 and an empty index both yield an empty result.
func (p *PG) Query(ctx context.Context, embedding []float32, k int) ([]domain.Match, error) {
	if k <= 0 || len(embedding) == 0 {
		return []domain.Match{}, nil
	}

	vec := pgvector.NewVector(embedding)
	rows, err := p.pool.Query(ctx,
		`SELECT doc_path, ordinal, content, source_url,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM vault_chunks
		 ORDER BY embedding <=> $1
		 LIMIT $2`,
		vec, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	matches := make([]domain.Match, 0, k)
	for rows.Next() {
		var m domain.Match
		if err := rows.Scan(&m.DocPath, &m.Ordinal, &m.Content, &m.SourceURL, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// ListDocuments returns the per-path document hash and chunk count for
// everything currently indexed. Full resync uses it to skip unchanged
// documents and to find paths that vanished from disk.
func (p *PG) ListDocuments(ctx context.Context) (map[string]DocumentState, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT doc_path, max(doc_hash), count(*)
		 FROM vault_chunks
		 GROUP BY doc_path`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := make(map[string]DocumentState)
	for rows.Next() {
		var path, hash string
		var count int
		if err := rows.Scan(&path, &hash, &count); err != nil {
			return nil, err
		}
		states[path] = DocumentState{DocHash: hash, Chunks: count}
	}

	return states, rows.Err()
}

// Count returns the total number of vector records.
func (p *PG) Count(ctx context.Context) (int, error) {
	var count int
	err := p.pool.QueryRow(ctx, `SELECT count(*) FROM vault_chunks`).Scan(&count)
	return count, err
}
