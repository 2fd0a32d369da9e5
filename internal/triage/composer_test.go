package triage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/cloo-solutions/vaultmail/internal/index"
	"github.com/cloo-solutions/vaultmail/internal/retrieve"
	"github.com/cloo-solutions/vaultmail/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type stubRetriever struct {
	matches []domain.Match
	err     error
}

func (s *stubRetriever) Retrieve(ctx context.Context, query string) ([]domain.Match, error) {
	return s.matches, s.err
}

func TestCompose_EmptyEvidence_Abstains(t *testing.T) {
	gen := new(MockGenerator)
	c := NewComposer(&stubRetriever{matches: []domain.Match{}}, gen)

	draft, err := c.Compose(context.Background(), questionThread())
	require.NoError(t, err)
	assert.True(t, draft.IsAbstention())
	assert.Empty(t, draft.HTML)
	gen.AssertNotCalled(t, "GenerateText")
}

func TestCompose_InsufficientContextSentinel_Abstains(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything, mock.Anything).
		Return("INSUFFICIENT_CONTEXT", nil)

	c := NewComposer(&stubRetriever{matches: []domain.Match{
		{DocPath: "unrelated.md", Content: "Q3 roadmap themes", Score: 0.4},
	}}, gen)

	draft, err := c.Compose(context.Background(), questionThread())
	require.NoError(t, err)
	assert.True(t, draft.IsAbstention())
}

func TestCompose_GroundedAnswerWithFootnotes(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything, mock.Anything).
		Return("Hi,\n\nTier A costs $10 per month.", nil)

	c := NewComposer(&stubRetriever{matches: []domain.Match{
		{DocPath: "pricing.md", Ordinal: 0, Content: "Tier A costs $10/mo", SourceURL: "https://example.com/pricing", Score: 0.9},
		{DocPath: "pricing.md", Ordinal: 1, Content: "Tier B costs $25/mo", SourceURL: "https://example.com/pricing", Score: 0.8},
		{DocPath: "faq.md", Ordinal: 0, Content: "Billing is monthly", SourceURL: "https://example.com/faq", Score: 0.7},
	}}, gen)

	draft, err := c.Compose(context.Background(), questionThread())
	require.NoError(t, err)

	assert.False(t, draft.IsAbstention())
	// Duplicate pricing URL collapses; order follows evidence rank.
	assert.Equal(t, []string{"https://example.com/pricing", "https://example.com/faq"}, draft.Footnotes)
	assert.Contains(t, draft.HTML, "<p>Tier A costs $10 per month.</p>")
	assert.Contains(t, draft.HTML, `<a href="https://example.com/pricing">`)
}

func TestCompose_EscapesMarkupInAnswer(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything, mock.Anything).
		Return("Use <config> blocks & restart.", nil)

	c := NewComposer(&stubRetriever{matches: []domain.Match{
		{DocPath: "ops.md", Content: "restart notes", SourceURL: "obsidian://open?path=ops.md", Score: 0.9},
	}}, gen)

	draft, err := c.Compose(context.Background(), questionThread())
	require.NoError(t, err)
	assert.Contains(t, draft.HTML, "&lt;config&gt; blocks &amp; restart.")
}

func TestCompose_RetrieverError(t *testing.T) {
	c := NewComposer(&stubRetriever{err: errors.New("index down")}, new(MockGenerator))

	_, err := c.Compose(context.Background(), questionThread())
	assert.Error(t, err)
}

func TestCompose_GeneratorError(t *testing.T) {
	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything, mock.Anything).
		Return("", errors.New("rate limited"))

	c := NewComposer(&stubRetriever{matches: []domain.Match{
		{DocPath: "pricing.md", Content: "Tier A costs $10/mo", Score: 0.9},
	}}, gen)

	_, err := c.Compose(context.Background(), questionThread())
	assert.Error(t, err)
}

type keywordEmbedder struct{}

// GenerateEmbedding maps pricing-flavored text near [1,0,0] and everything
// else near [0,1,0], enough to exercise real ranking.
func (keywordEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(text)
	if strings.Contains(lower, "tier") || strings.Contains(lower, "cost") {
		return []float32{1, 0.1, 0}, nil
	}
	return []float32{0, 1, 0.1}, nil
}

// TestCompose_EndToEnd_PricingNote drives the full chain: a note on disk is
// reconciled into the index, then an email asking about it is answered with
// the note's URL as the single footnote.
func TestCompose_EndToEnd_PricingNote(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	idx := index.NewMemory()
	embedder := keywordEmbedder{}

	notePath := filepath.Join(root, "notes", "pricing.md")
	require.NoError(t, os.MkdirAll(filepath.Dir(notePath), 0o755))
	require.NoError(t, os.WriteFile(notePath,
		[]byte("Tier A costs $10/mo, source: https://example.com/pricing"), 0o644))

	offTopicPath := filepath.Join(root, "notes", "offsite.md")
	require.NoError(t, os.WriteFile(offTopicPath,
		[]byte("Meeting notes from the Q3 offsite planning session"), 0o644))

	syncer := vault.New(root, idx, embedder, vault.Options{MinContentLength: 10})
	require.NoError(t, syncer.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: notePath}))
	require.NoError(t, syncer.Reconcile(ctx, domain.Change{Type: domain.ChangeCreated, Path: offTopicPath}))

	hits, err := retrieve.New(idx, embedder, 1).Retrieve(ctx, "how much is tier A")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Contains(t, hits[0].Content, "$10/mo")
	assert.Equal(t, "https://example.com/pricing", hits[0].SourceURL)

	gen := new(MockGenerator)
	gen.On("GenerateText", mock.Anything, mock.Anything, mock.MatchedBy(func(prompt string) bool {
		return strings.Contains(prompt, "Tier A costs $10/mo")
	})).Return("Tier A costs $10/mo.", nil)

	c := NewComposer(retrieve.New(idx, embedder, 1), gen)

	draft, err := c.Compose(ctx, questionThread())
	require.NoError(t, err)

	assert.False(t, draft.IsAbstention())
	assert.Contains(t, draft.HTML, "Tier A costs $10/mo.")
	require.Len(t, draft.Footnotes, 1)
	assert.Equal(t, "https://example.com/pricing", draft.Footnotes[0])
}
