package weights

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"brainstem/internal/config"
	"brainstem/internal/logging"
)

// GlobalUpdate is one cross-session weight contribution. Sessions are
// write-only toward the global tier; reads happen against a cold snapshot.
type GlobalUpdate struct {
	SessionID string    `json:"session_id"`
	Key       string    `json:"key"`
	Delta     float64   `json:"delta"`
	Reason    string    `json:"reason"`
	At        time.Time `json:"at"`
}

// GlobalSink receives drained batches of global updates.
type GlobalSink interface {
	ApplyBatch(ctx context.Context, batch []GlobalUpdate) error
}

// GlobalTier buffers global-category updates in a bounded queue (drop-oldest
// on overflow) and drains them in batches on a background task. Enqueue never
// blocks the per-turn critical path.
type GlobalTier struct {
	cfg  config.GlobalTierConfig
	sink GlobalSink

	mu      sync.Mutex
	queue   []GlobalUpdate
	dropped uint64

	notify chan struct{}
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewGlobalTier starts the background drain task.
func NewGlobalTier(cfg config.GlobalTierConfig, sink GlobalSink) *GlobalTier {
	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)

	t := &GlobalTier{
		cfg:    cfg,
		sink:   sink,
		queue:  make([]GlobalUpdate, 0, cfg.QueueCapacity),
		notify: make(chan struct{}, 1),
		cancel: cancel,
		eg:     eg,
	}
	eg.Go(func() error { return t.drainLoop(ctx) })
	return t
}

// Enqueue adds an update to the queue, evicting the oldest entry when full.
func (t *GlobalTier) Enqueue(u GlobalUpdate) {
	if u.At.IsZero() {
		u.At = time.Now()
	}

	t.mu.Lock()
	if len(t.queue) >= t.cfg.QueueCapacity {
		copy(t.queue, t.queue[1:])
		t.queue = t.queue[:len(t.queue)-1]
		t.dropped++
	}
	t.queue = append(t.queue, u)
	batchReady := len(t.queue) >= t.cfg.BatchSize
	t.mu.Unlock()

	if batchReady {
		select {
		case t.notify <- struct{}{}:
		default:
		}
	}
}

// Dropped returns how many updates were evicted due to overflow.
func (t *GlobalTier) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Pending returns the current queue depth.
func (t *GlobalTier) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

// Close flushes remaining updates and stops the drain task.
func (t *GlobalTier) Close() error {
	t.cancel()
	return t.eg.Wait()
}

func (t *GlobalTier) drainLoop(ctx context.Context) error {
	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final flush; the parent context is gone, so bound it.
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			t.flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			t.flush(ctx)
		case <-t.notify:
			t.flush(ctx)
		}
	}
}

func (t *GlobalTier) flush(ctx context.Context) {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			return
		}
		n := len(t.queue)
		if n > t.cfg.BatchSize {
			n = t.cfg.BatchSize
		}
		batch := make([]GlobalUpdate, n)
		copy(batch, t.queue[:n])
		copy(t.queue, t.queue[n:])
		t.queue = t.queue[:len(t.queue)-n]
		t.mu.Unlock()

		if err := t.sink.ApplyBatch(ctx, batch); err != nil {
			logging.Get(logging.CategoryWeights).Warnw("global batch apply failed",
				"size", len(batch), "error", err)
			return
		}
	}
}

// StoreSink applies global updates into a shared weight store under the
// global category.
type StoreSink struct {
	Store *Store
}

// ApplyBatch implements GlobalSink.
func (s *StoreSink) ApplyBatch(ctx context.Context, batch []GlobalUpdate) error {
	for _, u := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := s.Store.ApplyDelta(CategoryGlobal, u.Key, u.Delta, u.Reason); err != nil {
			// Malformed keys are dropped, not retried.
			logging.Get(logging.CategoryWeights).Debugw("global update rejected",
				"key", u.Key, "error", err)
		}
	}
	return nil
}
