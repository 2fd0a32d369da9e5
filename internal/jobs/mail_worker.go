package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/cloo-solutions/vaultmail/internal/domain"
)

// ThreadSource hands out threads that still need triage, at most once each.
type ThreadSource interface {
	Poll(ctx context.Context) ([]domain.EmailThread, error)
}

// Categorizer assigns taxonomy labels to a thread.
type Categorizer interface {
	Categorize(ctx context.Context, thread domain.EmailThread) ([]domain.CategoryLabel, error)
}

// Composer drafts a reply for a thread, possibly abstaining.
type Composer interface {
	Compose(ctx context.Context, thread domain.EmailThread) (domain.DraftResponse, error)
}

// DraftSink persists a finished draft on the thread.
type DraftSink interface {
	SaveDraft(ctx context.Context, thread domain.EmailThread, draft domain.DraftResponse) error
}

// Archiver keeps a copy of each saved draft in object storage. Optional;
// archive failures never block the draft itself.
type Archiver interface {
	ArchiveDraft(ctx context.Context, threadID string, html string) (string, error)
}

// MailStats is a point-in-time snapshot of mail loop counters.
type MailStats struct {
	Polled      int64
	Categorized int64
	Drafted     int64
	Abstained   int64
	Failures    int64
}

// MailWorker is one tick of the mail loop: poll, categorize, and answer
// question threads from vault evidence. Failures are isolated per thread.
type MailWorker struct {
	source      ThreadSource
	categorizer Categorizer
	composer    Composer
	drafts      DraftSink
	archiver    Archiver

	mu    sync.Mutex
	stats MailStats
}

func NewMailWorker(source ThreadSource, categorizer Categorizer, composer Composer, drafts DraftSink, archiver Archiver) *MailWorker {
	return &MailWorker{
		source:      source,
		categorizer: categorizer,
		composer:    composer,
		drafts:      drafts,
		archiver:    archiver,
	}
}

// ProcessJobs implements JobProcessor.
func (w *MailWorker) ProcessJobs(ctx context.Context) error {
	threads, err := w.source.Poll(ctx)
	if err != nil {
		return fmt.Errorf("poll mailbox: %w", err)
	}
	if len(threads) == 0 {
		return nil
	}

	w.bump(func(st *MailStats) { st.Polled += int64(len(threads)) })
	log.Printf("mail: triaging %d threads", len(threads))

	for _, thread := range threads {
		if err := w.processThread(ctx, thread); err != nil {
			w.bump(func(st *MailStats) { st.Failures++ })
			log.Printf("mail: thread %s: %v", thread.ID, err)
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (w *MailWorker) Stats() MailStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *MailWorker) processThread(ctx context.Context, thread domain.EmailThread) error {
	labels, err := w.categorizer.Categorize(ctx, thread)
	compose := hasLabel(labels, domain.CategoryQuestion)
	if err != nil {
		if errors.Is(err, domain.ErrClassificationFailed) {
			// Classification failure keeps the thread eligible for drafting;
			// the composer's abstention gate still protects against
			// ungrounded replies.
			log.Printf("mail: thread %s: %v", thread.ID, err)
			compose = true
		} else {
			return fmt.Errorf("categorize: %w", err)
		}
	}
	w.bump(func(st *MailStats) { st.Categorized++ })

	if !compose {
		return nil
	}

	draft, err := w.composer.Compose(ctx, thread)
	if err != nil {
		return fmt.Errorf("compose: %w", err)
	}
	if draft.IsAbstention() {
		w.bump(func(st *MailStats) { st.Abstained++ })
		log.Printf("mail: thread %s: abstained, insufficient evidence", thread.ID)
		return nil
	}

	if err := w.drafts.SaveDraft(ctx, thread, draft); err != nil {
		return fmt.Errorf("save draft: %w", err)
	}
	w.bump(func(st *MailStats) { st.Drafted++ })

	if w.archiver != nil {
		if key, archiveErr := w.archiver.ArchiveDraft(ctx, thread.ID, draft.HTML); archiveErr != nil {
			log.Printf("mail: thread %s: archive failed: %v", thread.ID, archiveErr)
		} else {
			log.Printf("mail: thread %s: draft archived at %s", thread.ID, key)
		}
	}
	return nil
}

func (w *MailWorker) bump(fn func(*MailStats)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fn(&w.stats)
}

func hasLabel(labels []domain.CategoryLabel, want domain.CategoryLabel) bool {
	for _, label := range labels {
		if label == want {
			return true
		}
	}
	return false
}
