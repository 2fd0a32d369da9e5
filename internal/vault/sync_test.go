package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloo-solutions/vaultmail/internal/chunker"
	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/cloo-solutions/vaultmail/internal/index"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder returns a deterministic vector per text and counts calls.
type stubEmbedder struct {
	calls atomic.Int64
	fail  error
}

func (e *stubEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return nil, e.fail
	}
	vec := make([]float32, 3)
	for i, r := range text {
		vec[i%3] += float32(r % 13)
	}
	vec[0] += float32(len(text))
	return vec, nil
}

func writeNote(t *testing.T, root, rel, content string) string {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
	return abs
}

func newTestSync(t *testing.T, root string) (*Synchronizer, *index.Memory, *stubEmbedder) {
	t.Helper()
	idx := index.NewMemory()
	embedder := &stubEmbedder{}
	sync := New(root, idx, embedder, Options{
		ChunkConfig:      chunker.Config{MaxChars: 60, MinChars: 20, Overlap: 10, MaxChunks: 0},
		MinContentLength: 10,
		MaxRetries:       1,
	})
	return sync, idx, embedder
}

func TestReconcile_Created_IndexesChunks(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	abs := writeNote(t, root, "notes/pricing.md", "Tier A costs $10/mo, source: https://example.com/pricing")

	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))

	states, err := idx.ListDocuments(ctx)
	require.NoError(t, err)
	require.Contains(t, states, "notes/pricing.md")
	assert.Equal(t, 1, states["notes/pricing.md"].Chunks)
}

func TestReconcile_SameContentTwice_Idempotent(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	content := strings.Repeat("alpha beta gamma delta ", 20)
	abs := writeNote(t, root, "a.md", content)

	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))
	before, err := idx.Count(ctx)
	require.NoError(t, err)
	require.True(t, before > 1)

	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeModified, Path: abs}))
	after, err := idx.Count(ctx)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestReconcile_ShrunkFile_DeletesStaleOrdinals(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	abs := writeNote(t, root, "a.md", strings.Repeat("long content here ", 30))
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))

	states, err := idx.ListDocuments(ctx)
	require.NoError(t, err)
	require.True(t, states["a.md"].Chunks > 1)

	writeNote(t, root, "a.md", "short but indexable note")
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeModified, Path: abs}))

	states, err = idx.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, states["a.md"].Chunks)
}

func TestReconcile_Deleted_RemovesAllRecords(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	abs := writeNote(t, root, "a.md", strings.Repeat("to be deleted ", 20))
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))

	require.NoError(t, os.Remove(abs))
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeDeleted, Path: abs}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReconcile_Renamed_MovesRecords(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	content := strings.Repeat("renamed content ", 20)
	oldAbs := writeNote(t, root, "a.md", content)
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: oldAbs}))

	newAbs := filepath.Join(root, "b.md")
	require.NoError(t, os.Rename(oldAbs, newAbs))
	require.NoError(t, sync.Reconcile(ctx, domain.Change{
		Type:    domain.ChangeRenamed,
		Path:    newAbs,
		OldPath: oldAbs,
	}))

	states, err := idx.ListDocuments(ctx)
	require.NoError(t, err)
	assert.NotContains(t, states, "a.md")
	assert.Contains(t, states, "b.md")
}

func TestReconcile_NonMarkdown_Ignored(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, embedder := newTestSync(t, root)

	abs := writeNote(t, root, "image.png", "not really an image but not markdown either")

	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(0), embedder.calls.Load())
}

func TestReconcile_TooShort_SkippedWithoutError(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	abs := writeNote(t, root, "tiny.md", "hi")

	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
	assert.Equal(t, int64(1), sync.Stats().Skipped)
}

func TestReconcile_EmbedderFailure_Requeues(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, embedder := newTestSync(t, root)
	embedder.fail = errors.New("embedding service down")

	abs := writeNote(t, root, "a.md", "content long enough to index")

	err := sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs})
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeTransientIO, domainErr.Code)

	count, idxErr := idx.Count(ctx)
	require.NoError(t, idxErr)
	assert.Equal(t, 0, count)
	assert.Equal(t, 1, sync.Stats().Requeued)

	// Next full resync picks the path back up once the service recovers.
	embedder.fail = nil
	require.NoError(t, sync.FullResync(ctx))

	count, idxErr = idx.Count(ctx)
	require.NoError(t, idxErr)
	assert.Equal(t, 1, count)
	assert.Equal(t, 0, sync.Stats().Requeued)
}

func TestFullResync_DeletesRecordsForMissingFiles(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	require.NoError(t, idx.Upsert(ctx, domain.VectorRecord{
		DocPath: "ghost.md", Ordinal: 0, Content: "gone", Hash: "h", DocHash: "d",
		Embedding: []float32{1, 0, 0},
	}))

	require.NoError(t, sync.FullResync(ctx))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestFullResync_UnreadableFileKeepsRecords(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	abs := writeNote(t, root, "b.md", "note that will briefly go bad")
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))

	before, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, before)

	// Mid-save file states: invalid UTF-8, then content truncated below
	// the minimum. Both are skips, not deletions.
	require.NoError(t, os.WriteFile(abs, []byte{0xff, 0xfe, 0xfd, 0xfc}, 0o644))
	require.NoError(t, sync.FullResync(ctx))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, count)

	writeNote(t, root, "b.md", "hi")
	require.NoError(t, sync.FullResync(ctx))

	count, err = idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, count)

	// Once the file is healthy again, the next pass reindexes it.
	writeNote(t, root, "b.md", "note restored after the bad save")
	require.NoError(t, sync.FullResync(ctx))

	states, err := idx.ListDocuments(ctx)
	require.NoError(t, err)
	require.Contains(t, states, "b.md")
	assert.Equal(t, domain.HashText("note restored after the bad save"), states["b.md"].DocHash)
}

func TestFullResync_IndexesNewAndSkipsUnchanged(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, embedder := newTestSync(t, root)

	writeNote(t, root, "notes/a.md", "first note with enough content")
	writeNote(t, root, "notes/b.md", "second note with enough content")

	require.NoError(t, sync.FullResync(ctx))

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	callsAfterFirst := embedder.calls.Load()

	// Unchanged tree: second pass embeds nothing.
	require.NoError(t, sync.FullResync(ctx))
	assert.Equal(t, callsAfterFirst, embedder.calls.Load())
	assert.False(t, sync.Stats().LastResync.IsZero())
}

func TestFullResync_AfterDeleteLeavesNoRecords(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	sync, idx, _ := newTestSync(t, root)

	abs := writeNote(t, root, "d.md", "note that will disappear soon")
	require.NoError(t, sync.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: abs}))
	require.NoError(t, os.Remove(abs))

	require.NoError(t, sync.FullResync(ctx))

	states, err := idx.ListDocuments(ctx)
	require.NoError(t, err)
	assert.NotContains(t, states, "d.md")
}
