// Package mail polls a mailbox for threads that still need attention and
// deduplicates them so each thread is handed downstream at most once.
package mail

import (
	"context"
	"sync"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Mailbox lists candidate threads and saves reply drafts. Implementations
// decide what "candidate" means for their provider; the poller applies the
// provider-independent filters on top.
type Mailbox interface {
	ListThreads(ctx context.Context) ([]domain.EmailThread, error)
	SaveDraft(ctx context.Context, thread domain.EmailThread, draft domain.DraftResponse) error
}

// SeenStore remembers which thread IDs were already handed downstream.
type SeenStore interface {
	IsSeen(ctx context.Context, threadID string) (bool, error)
	MarkSeen(ctx context.Context, threadID string) error
}

// MemorySeenStore is a process-local SeenStore for tests and database-less
// runs.
type MemorySeenStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemorySeenStore() *MemorySeenStore {
	return &MemorySeenStore{seen: make(map[string]struct{})}
}

func (s *MemorySeenStore) IsSeen(ctx context.Context, threadID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[threadID]
	return ok, nil
}

func (s *MemorySeenStore) MarkSeen(ctx context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[threadID] = struct{}{}
	return nil
}
