package jobs

import (
	"context"
	"fmt"
)

// VaultResyncer rebuilds index state from the note tree.
type VaultResyncer interface {
	FullResync(ctx context.Context) error
}

// ResyncWorker is one tick of the vault loop: a full walk of the tree that
// repairs whatever the change notifications missed.
type ResyncWorker struct {
	sync VaultResyncer
}

func NewResyncWorker(sync VaultResyncer) *ResyncWorker {
	return &ResyncWorker{sync: sync}
}

// ProcessJobs implements JobProcessor.
func (w *ResyncWorker) ProcessJobs(ctx context.Context) error {
	if err := w.sync.FullResync(ctx); err != nil {
		return fmt.Errorf("full resync: %w", err)
	}
	return nil
}
