package livereload

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/gammazero/deque"
	"github.com/samber/lo"
)

// Notifier receives batches of changes once a burst of edits settles.
type Notifier interface {
	Notify(ctx context.Context, changes []Change)
}

type WatcherOptions struct {
	Interval time.Duration
	Debounce time.Duration
}

func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		Interval: 500 * time.Millisecond,
		Debounce: 100 * time.Millisecond,
	}
}

type Watcher struct {
	scanner  *Scanner
	notifier Notifier
	options  WatcherOptions
	debounce func(f func())

	mu      sync.Mutex
	pending deque.Deque[Change]
}

func NewWatcher(scanner *Scanner, notifier Notifier, options WatcherOptions) *Watcher {
	w := &Watcher{
		scanner:  scanner,
		notifier: notifier,
		options:  options,
	}

	if options.Debounce > 0 {
		w.debounce = debounce.New(options.Debounce)
	}

	return w
}

// Run polls until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	if _, err := w.scanner.Scan(); err != nil {
		slog.Warn("initial scan failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(w.options.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				slog.Warn("scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Poll scans once and queues any changes for the next flush.
func (w *Watcher) Poll(ctx context.Context) error {
	changes, err := w.scanner.Scan()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	w.mu.Lock()
	for _, c := range changes {
		w.pending.PushBack(c)
	}
	w.mu.Unlock()

	if w.debounce == nil {
		w.Flush(ctx)
		return nil
	}

	w.debounce(func() {
		w.Flush(ctx)
	})
	return nil
}

// Flush drains the queued changes, keeps the latest event per path, and
// notifies. It returns the batch that was sent.
func (w *Watcher) Flush(ctx context.Context) []Change {
	w.mu.Lock()
	newestFirst := make([]Change, 0, w.pending.Len())
	for w.pending.Len() > 0 {
		newestFirst = append(newestFirst, w.pending.PopBack())
	}
	w.mu.Unlock()

	if len(newestFirst) == 0 {
		return nil
	}

	batch := lo.UniqBy(newestFirst, func(c Change) string {
		return c.Path
	})
	slices.SortFunc(batch, func(a, b Change) int {
		return cmp.Compare(a.Path, b.Path)
	})

	slog.Debug("files changed", slog.Int("count", len(batch)))
	w.notifier.Notify(ctx, batch)

	return batch
}

// Pending reports how many changes are waiting for a flush.
func (w *Watcher) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending.Len()
}
