package service

import (
	"context"
	"log"
	"time"
)

// DefaultDebounce is the quiet window collapsing a burst of staging-area
// change notifications into one merge.
const DefaultDebounce = time.Second

// MergeWatcher debounces change notifications and triggers at most one merge
// per quiet window. The filesystem watching itself belongs to the caller;
// the watcher only consumes its notifications. Triggered merges run on the
// watcher's goroutine and serialize against API-driven operations through
// the ledger lock.
type MergeWatcher struct {
	debounce time.Duration
	merge    func() error
	notify   chan struct{}
}

// NewMergeWatcher wires a debounced trigger around merge. A non-positive
// window falls back to DefaultDebounce.
func NewMergeWatcher(debounce time.Duration, merge func() error) *MergeWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &MergeWatcher{
		debounce: debounce,
		merge:    merge,
		notify:   make(chan struct{}, 1),
	}
}

// Notify records one observed change. It never blocks; notifications
// arriving while one is already pending coalesce.
func (w *MergeWatcher) Notify() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// Run consumes notifications until ctx is done. Each notification resets the
// debounce timer; the merge fires once the staging area has been quiet for
// the whole window. Merge failures are logged and the loop keeps running;
// the next change gets another chance.
func (w *MergeWatcher) Run(ctx context.Context) {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	for {
		select {
		case <-ctx.Done():
			if armed && !timer.Stop() {
				<-timer.C
			}
			return

		case <-w.notify:
			if armed && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			armed = true

		case <-timer.C:
			armed = false
			if err := w.merge(); err != nil {
				log.Printf("[watcher] merge failed: %v", err)
			}
		}
	}
}
