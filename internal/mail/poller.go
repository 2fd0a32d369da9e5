package mail

import (
	"context"
	"fmt"
	"log"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// Poller lists mailbox threads and returns only the ones that still need a
// look: latest message unread, not a draft, and not seen before. Threads are
// marked seen as they are returned, so a thread reaches the caller at most
// once even across restarts when the store is durable.
type Poller struct {
	mailbox Mailbox
	seen    SeenStore
}

func NewPoller(mailbox Mailbox, seen SeenStore) *Poller {
	return &Poller{mailbox: mailbox, seen: seen}
}

// Poll returns fresh threads in mailbox order. A store failure on one thread
// skips that thread without marking it, so it is retried on the next poll.
func (p *Poller) Poll(ctx context.Context) ([]domain.EmailThread, error) {
	threads, err := p.mailbox.ListThreads(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	fresh := make([]domain.EmailThread, 0, len(threads))
	for _, thread := range threads {
		if err := domain.ValidateEmailThread(&thread); err != nil {
			log.Printf("poller: skipping thread %q: %v", thread.ID, err)
			continue
		}

		latest := thread.LatestMessage()
		if latest.Draft || !latest.Unread {
			// Already answered, or the user got there first.
			continue
		}

		seen, err := p.seen.IsSeen(ctx, thread.ID)
		if err != nil {
			log.Printf("poller: seen lookup for %s failed: %v", thread.ID, err)
			continue
		}
		if seen {
			continue
		}

		if err := p.seen.MarkSeen(ctx, thread.ID); err != nil {
			log.Printf("poller: mark seen for %s failed: %v", thread.ID, err)
			continue
		}
		fresh = append(fresh, thread)
	}

	return fresh, nil
}
