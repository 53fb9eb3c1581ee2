// Package worker keeps a process's live store in step with transactions
// committed by other processes that share the same database.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"expensetracker/internal/amqp"
)

const (
	defaultMinRetry = time.Second
	defaultMaxRetry = 30 * time.Second
)

// EventSource delivers transaction change events. *amqp.Client implements it.
type EventSource interface {
	ConsumeTransactionEvents(ctx context.Context, handler func(amqp.TransactionEvent) error) error
}

// Refresher re-reads changed records. *live.Store implements it.
type Refresher interface {
	Refresh(ctx context.Context, ids ...string)
}

var _ EventSource = (*amqp.Client)(nil)

// SyncWorker applies change events published by other processes to the local
// store, so live queries and cached reads see their writes.
type SyncWorker struct {
	store  Refresher
	source EventSource
	self   string
	logger *slog.Logger

	minRetry time.Duration
	maxRetry time.Duration

	applied atomic.Int64
	skipped atomic.Int64
}

// Option configures a SyncWorker.
type Option func(*SyncWorker)

func WithLogger(l *slog.Logger) Option {
	return func(w *SyncWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetry bounds the delay between reconnect attempts.
func WithRetry(first, limit time.Duration) Option {
	return func(w *SyncWorker) {
		if first > 0 {
			w.minRetry = first
		}
		if limit >= w.minRetry {
			w.maxRetry = limit
		}
	}
}

// NewSyncWorker builds a worker that ignores events tagged with self, the
// event source of this process's own publisher.
func NewSyncWorker(store Refresher, source EventSource, self string, opts ...Option) *SyncWorker {
	w := &SyncWorker{
		store:    store,
		source:   source,
		self:     self,
		logger:   slog.Default(),
		minRetry: defaultMinRetry,
		maxRetry: defaultMaxRetry,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// HandleEvent refreshes the store for a single event.
func (w *SyncWorker) HandleEvent(ctx context.Context, ev amqp.TransactionEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if w.self != "" && ev.Source == w.self {
		w.skipped.Add(1)
		return nil
	}

	w.store.Refresh(ctx, ev.ID)
	w.applied.Add(1)

	w.logger.DebugContext(ctx, "Applied remote transaction event",
		"op", ev.Op,
		"transaction_id", ev.ID,
		"source", ev.Source)
	return nil
}

// Run consumes events until ctx is cancelled. When the consumer stops with
// an error it waits, refreshes the whole store to cover events missed while
// disconnected, and consumes again.
func (w *SyncWorker) Run(ctx context.Context) error {
	delay := w.minRetry
	for {
		started := time.Now()
		err := w.source.ConsumeTransactionEvents(ctx, func(ev amqp.TransactionEvent) error {
			return w.HandleEvent(ctx, ev)
		})
		if ctx.Err() != nil {
			w.logger.InfoContext(ctx, "Sync worker stopped",
				"applied", w.applied.Load(),
				"skipped", w.skipped.Load())
			return nil
		}
		if err == nil {
			err = errors.New("consumer stopped")
		}
		if time.Since(started) > w.maxRetry {
			delay = w.minRetry
		}

		w.logger.WarnContext(ctx, "Event consumer failed, retrying",
			"error", err,
			"retry_in", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
		delay = min(delay*2, w.maxRetry)

		w.store.Refresh(ctx)
	}
}

// Applied is the number of remote events applied so far.
func (w *SyncWorker) Applied() int64 {
	return w.applied.Load()
}

// Skipped is the number of events ignored because this process published them.
func (w *SyncWorker) Skipped() int64 {
	return w.skipped.Load()
}
