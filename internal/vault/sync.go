// Package vault keeps the vector index consistent with a markdown note
// tree. Change notifications are treated as hints; FullResync rebuilds
// from the tree itself and is the consistency backstop.
package vault

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloo-solutions/vaultmail/internal/chunker"
	"github.com/cloo-solutions/vaultmail/internal/domain"
	"github.com/cloo-solutions/vaultmail/internal/index"
)

// Index is the slice of the vector index the synchronizer needs.
type Index interface {
	Upsert(ctx context.Context, rec domain.VectorRecord) error
	DeleteDocument(ctx context.Context, path string) error
	DeleteChunksFrom(ctx context.Context, path string, fromOrdinal int) error
	ListDocuments(ctx context.Context) (map[string]index.DocumentState, error)
}

// Embedder generates embedding vectors for chunk text.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

const defaultMaxRetries = 3

// Options tunes synchronizer behavior.
type Options struct {
	ChunkConfig      chunker.Config
	MinContentLength int
	MaxRetries       uint64
}

// Stats is a point-in-time snapshot of synchronizer counters.
type Stats struct {
	DocumentsSynced  int64
	DocumentsDeleted int64
	ChunksUpserted   int64
	Skipped          int64
	Failures         int64
	Requeued         int
	LastResync       time.Time
}

// Synchronizer reconciles the note tree against the vector index.
type Synchronizer struct {
	root       string
	idx        Index
	embedder   Embedder
	chunkCfg   chunker.Config
	minContent int
	maxRetries uint64

	mu       sync.Mutex
	requeued map[string]struct{}
	stats    Stats
}

// New creates a Synchronizer rooted at the vault directory.
func New(root string, idx Index, embedder Embedder, opts Options) *Synchronizer {
	cfg := opts.ChunkConfig
	if cfg.MaxChars <= 0 {
		cfg = chunker.DefaultConfig()
	}
	retries := opts.MaxRetries
	if retries == 0 {
		retries = defaultMaxRetries
	}
	return &Synchronizer{
		root:       root,
		idx:        idx,
		embedder:   embedder,
		chunkCfg:   cfg,
		minContent: opts.MinContentLength,
		maxRetries: retries,
		requeued:   make(map[string]struct{}),
	}
}

// Reconcile applies a single change notification. Malformed documents are
// skipped and logged; transient failures are retried and, on exhaustion,
// the path is requeued for the next full resync.
func (s *Synchronizer) Reconcile(ctx context.Context, change domain.Change) error {
	switch change.Type {
	case domain.ChangeCreated, domain.ChangeModified:
		return s.syncDocument(ctx, s.relPath(change.Path))
	case domain.ChangeDeleted:
		rel := s.relPath(change.Path)
		if err := s.idx.DeleteDocument(ctx, rel); err != nil {
			s.requeue(rel)
			return fmt.Errorf("delete %s: %w", rel, err)
		}
		s.bump(func(st *Stats) { st.DocumentsDeleted++ })
		return nil
	case domain.ChangeRenamed:
		oldRel := s.relPath(change.OldPath)
		if err := s.idx.DeleteDocument(ctx, oldRel); err != nil {
			s.requeue(oldRel)
			return fmt.Errorf("delete renamed %s: %w", oldRel, err)
		}
		s.bump(func(st *Stats) { st.DocumentsDeleted++ })
		return s.syncDocument(ctx, s.relPath(change.Path))
	default:
		return fmt.Errorf("unknown change type %q", change.Type)
	}
}

// FullResync walks the whole tree, reconciles every document that changed
// since it was indexed, and deletes indexed records whose path no longer
// exists on disk. Requeued paths are re-read even when their hash matches.
func (s *Synchronizer) FullResync(ctx context.Context) error {
	indexed, err := s.idx.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("list indexed documents: %w", err)
	}

	forced := s.drainRequeue()
	desired := make(map[string]struct{})

	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("sync: walk %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			if isHidden(d.Name()) && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isMarkdown(d.Name()) || isHidden(d.Name()) {
			return nil
		}

		rel := s.relPath(path)
		doc, readErr := s.loadDocument(rel)
		if readErr != nil {
			s.bump(func(st *Stats) { st.Skipped++ })
			log.Printf("sync: skipping %s: %v", rel, readErr)
			if !errors.Is(readErr, fs.ErrNotExist) {
				// Still on disk, just unreadable or too short right now
				// (editors truncate then write). Keep its records out of
				// the stale sweep and retry on the next pass.
				desired[rel] = struct{}{}
			}
			return nil
		}

		desired[rel] = struct{}{}

		_, forcedPath := forced[rel]
		if state, ok := indexed[rel]; ok && state.DocHash == doc.Hash && !forcedPath {
			return nil
		}

		if syncErr := s.syncLoaded(ctx, doc); syncErr != nil {
			log.Printf("sync: resync %s failed: %v", rel, syncErr)
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("walk vault: %w", walkErr)
	}

	// Anything indexed but absent from the desired set is stale.
	for path := range indexed {
		if _, ok := desired[path]; ok {
			continue
		}
		if err := s.idx.DeleteDocument(ctx, path); err != nil {
			s.requeue(path)
			log.Printf("sync: delete stale %s failed: %v", path, err)
			continue
		}
		s.bump(func(st *Stats) { st.DocumentsDeleted++ })
	}

	s.mu.Lock()
	s.stats.LastResync = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

// Stats returns a snapshot of the synchronizer counters.
func (s *Synchronizer) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats
	st.Requeued = len(s.requeued)
	return st
}

func (s *Synchronizer) syncDocument(ctx context.Context, rel string) error {
	if !isMarkdown(rel) {
		return nil
	}

	doc, err := s.loadDocument(rel)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a delete; the delete notification or the next
			// resync removes the records.
			return nil
		}
		s.bump(func(st *Stats) { st.Skipped++ })
		log.Printf("sync: skipping %s: %v", rel, err)
		return nil
	}

	return s.syncLoaded(ctx, doc)
}

func (s *Synchronizer) syncLoaded(ctx context.Context, doc domain.Document) error {
	chunks := chunker.Split(doc, s.chunkCfg)

	// Upsert new chunks before deleting removed ordinals so recall never
	// drops below the old state mid-update.
	op := func() error {
		for _, chunk := range chunks {
			embedding, err := s.embedder.GenerateEmbedding(ctx, chunk.Content)
			if err != nil {
				return fmt.Errorf("embed %s: %w", chunk.Key(), err)
			}
			rec := domain.VectorRecord{
				DocPath:   chunk.DocPath,
				Ordinal:   chunk.Ordinal,
				Content:   chunk.Content,
				Hash:      chunk.Hash,
				DocHash:   doc.Hash,
				SourceURL: doc.SourceURL,
				Embedding: embedding,
			}
			if err := s.idx.Upsert(ctx, rec); err != nil {
				return fmt.Errorf("upsert %s: %w", chunk.Key(), err)
			}
		}
		return s.idx.DeleteChunksFrom(ctx, doc.Path, len(chunks))
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), s.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		s.requeue(doc.Path)
		s.bump(func(st *Stats) { st.Failures++ })
		return domain.NewDomainErrorWithCause(domain.ErrCodeTransientIO, "reconcile "+doc.Path, err)
	}

	s.bump(func(st *Stats) {
		st.DocumentsSynced++
		st.ChunksUpserted += int64(len(chunks))
	})
	return nil
}

func (s *Synchronizer) loadDocument(rel string) (domain.Document, error) {
	abs := filepath.Join(s.root, filepath.FromSlash(rel))
	info, err := os.Stat(abs)
	if err != nil {
		return domain.Document{}, err
	}

	raw, err := os.ReadFile(abs)
	if err != nil {
		return domain.Document{}, err
	}
	if !utf8.Valid(raw) {
		return domain.Document{}, domain.ErrDocumentUnreadable
	}

	content := strings.TrimSpace(string(raw))
	if utf8.RuneCountInString(content) < s.minContent {
		return domain.Document{}, domain.ErrDocumentTooShort
	}

	return domain.NewDocument(rel, content, info.ModTime()), nil
}

func (s *Synchronizer) relPath(path string) string {
	if rel, err := filepath.Rel(s.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

func (s *Synchronizer) requeue(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requeued[path] = struct{}{}
}

func (s *Synchronizer) drainRequeue() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.requeued
	s.requeued = make(map[string]struct{})
	return drained
}

func (s *Synchronizer) bump(fn func(*Stats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.stats)
}

func isMarkdown(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".md")
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
