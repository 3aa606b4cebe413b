// Package batchwriter accumulates normalized quotes and flushes them to the
// persistent quote table in bounded bursts, triggered by either queue size
// or a periodic tick, with bounded retry-by-requeue (spec §4.2).
package batchwriter

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"marketintel/internal/config"
	"marketintel/internal/store"
	"marketintel/pkg/types"
)

// Counters tracks the writer's lifetime statistics.
type Counters struct {
	Queued   int64
	Inserted int64
	Errors   int64
}

// Writer is a single-consumer, multi-producer flush queue: many ingestor
// sessions call Enqueue concurrently; one flush loop drains it.
type Writer struct {
	mu       sync.Mutex
	queue    []types.Quote
	cap      int // retained-queue cap, 10x batch size per spec §4.2/§9
	size     int
	interval time.Duration
	flushNow chan struct{}

	s      *store.Client
	logger *slog.Logger

	countersMu sync.Mutex
	counters   Counters
}

// New creates a Writer against the given store client.
func New(cfg config.BatchConfig, s *store.Client, logger *slog.Logger) *Writer {
	size := cfg.Size
	if size <= 0 {
		size = 25
	}
	return &Writer{
		cap:      size * 10,
		size:     size,
		interval: cfg.FlushInterval(),
		flushNow: make(chan struct{}, 1),
		s:        s,
		logger:   logger.With("component", "batch-writer"),
	}
}

// Enqueue appends a quote to the queue without blocking the caller's read
// loop. If the queue has grown past the retained cap, the oldest records are
// dropped and a warning is logged for that overflow; every overflow logs, the
// warnings are not sampled (spec §4.2 retry policy also governs steady-state
// overflow, not only post-failure requeue).
func (w *Writer) Enqueue(q types.Quote) {
	w.mu.Lock()
	w.queue = append(w.queue, q)
	if len(w.queue) > w.cap {
		dropped := len(w.queue) - w.cap
		w.queue = w.queue[dropped:]
		w.logger.Warn("queue over cap, dropping oldest", "dropped", dropped, "cap", w.cap)
	}
	reachedThreshold := len(w.queue) >= w.size
	w.mu.Unlock()

	w.countersMu.Lock()
	w.counters.Queued++
	w.countersMu.Unlock()

	if reachedThreshold {
		select {
		case w.flushNow <- struct{}{}:
		default:
		}
	}
}

// QueueLen reports the current queue depth, used by ingestor sessions to
// implement the high-water-mark back-pressure check (spec §4.1).
func (w *Writer) QueueLen() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// Stats returns a snapshot of the lifetime counters.
func (w *Writer) Stats() Counters {
	w.countersMu.Lock()
	defer w.countersMu.Unlock()
	return w.counters
}

// Run drives the periodic flush loop until ctx is cancelled, performing one
// final synchronous flush before returning (spec §4.2, §5 shutdown
// sequence).
func (w *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.flush(context.Background())
			return
		case <-ticker.C:
			w.flush(ctx)
		case <-w.flushNow:
			w.flush(ctx)
		}
	}
}

// flush atomically drains the queue and performs a single insert call. On
// failure the drained batch is prepended back onto the queue for the next
// attempt, subject to the retained cap.
func (w *Writer) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	if err := w.s.Insert(ctx, store.TableMarketSignals, batch); err != nil {
		w.logger.Error("flush failed, requeueing batch", "count", len(batch), "error", err)
		w.countersMu.Lock()
		w.counters.Errors++
		w.countersMu.Unlock()

		w.mu.Lock()
		w.queue = append(batch, w.queue...)
		if len(w.queue) > w.cap {
			dropped := len(w.queue) - w.cap
			w.queue = w.queue[dropped:]
			w.logger.Warn("retained queue over cap after failed flush, dropping oldest", "dropped", dropped)
		}
		w.mu.Unlock()
		return
	}

	w.countersMu.Lock()
	w.counters.Inserted += int64(len(batch))
	w.countersMu.Unlock()
}
