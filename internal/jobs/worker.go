// Package jobs runs the two periodic loops: vault resync and mail triage.
package jobs

import (
	"context"
	"log"
	"time"

	"github.com/cloo-solutions/vaultmail/internal/telemetry"
)

// JobProcessor is one tick of work for a periodic loop.
type JobProcessor interface {
	ProcessJobs(ctx context.Context) error
}

// Worker drives a JobProcessor on a fixed interval. Processor errors are
// logged and the loop keeps ticking.
type Worker struct {
	name         string
	processor    JobProcessor
	pollInterval time.Duration
	stopChan     chan struct{}
	doneChan     chan struct{}
}

func NewWorker(name string, processor JobProcessor, pollInterval time.Duration) *Worker {
	return &Worker{
		name:         name,
		processor:    processor,
		pollInterval: pollInterval,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start runs the polling loop until the context is cancelled or Stop is
// called.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	defer close(w.doneChan)

	log.Printf("%s worker started, interval %v", w.name, w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			log.Printf("%s worker stopped: context cancelled", w.name)
			return
		case <-w.stopChan:
			log.Printf("%s worker stopped", w.name)
			return
		case <-ticker.C:
			span := telemetry.StartSpan(ctx, "worker."+w.name)
			if err := w.processor.ProcessJobs(span.Context()); err != nil {
				span.SetError(err)
				log.Printf("%s worker tick failed: %v", w.name, err)
			}
			span.End()
		}
	}
}

// Stop signals the loop and waits for it to exit.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}
