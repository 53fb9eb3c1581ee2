package live

import (
	"context"
	"sync"

	"expensetracker/internal/core"
)

// Subscription delivers fresh snapshots of a query until it is closed, its
// context is cancelled or the query fails.
//
// Values are conflated: a consumer that falls behind receives the newest
// snapshot, never a backlog of stale ones.
type Subscription[T any] struct {
	updates chan T
	done    chan struct{}
	cancel  context.CancelFunc

	mu  sync.Mutex
	err error
}

// Updates yields snapshots. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Done is closed once the subscription goroutine has exited.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the query error that terminated the subscription, or nil when
// it ended by cancellation or Close.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops recomputation and waits for the subscription to release its resources.
func (s *Subscription[T]) Close() {
	s.cancel()
	<-s.done
}

func (s *Subscription[T]) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Watch runs query once immediately and again after every committed mutation
// for which affects reports true on the previous or the new version of a
// record. The subscription lives until ctx is cancelled or Close is called.
func Watch[T any](ctx context.Context, s *Store, affects func(core.Transaction) bool, query func(context.Context) (T, error)) *Subscription[T] {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription[T]{
		updates: make(chan T),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	w := &watcher{
		affects: affects,
		trigger: make(chan struct{}, 1),
		stop:    cancel,
	}
	id, err := s.register(w)
	if err != nil {
		sub.fail(err)
		cancel()
		close(sub.updates)
		close(sub.done)
		return sub
	}

	go func() {
		defer close(sub.done)
		defer close(sub.updates)
		defer s.unregister(id)

		for {
			v, err := query(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.ErrorContext(ctx, "Live query failed", "subscription", id, "error", err)
				sub.fail(err)
				return
			}

			select {
			case sub.updates <- v:
			case <-w.trigger:
				// v is already stale.
				continue
			case <-ctx.Done():
				return
			}

			select {
			case <-w.trigger:
			case <-ctx.Done():
				return
			}
		}
	}()

	return sub
}

// Map derives a subscription whose snapshots are fn applied to src's.
// Closing the result closes src.
func Map[T, U any](src *Subscription[T], fn func(T) U) *Subscription[U] {
	out := &Subscription[U]{
		updates: make(chan U),
		done:    make(chan struct{}),
		cancel:  src.cancel,
	}

	go func() {
		defer close(out.done)
		defer close(out.updates)
		defer func() {
			<-src.done
			out.fail(src.Err())
		}()

		for v := range src.updates {
			select {
			case out.updates <- fn(v):
			case <-src.done:
				return
			}
		}
	}()

	return out
}

type watcher struct {
	affects func(core.Transaction) bool
	trigger chan struct{}
	stop    context.CancelFunc
}

func (w *watcher) notify(changed []core.Transaction) {
	for _, tx := range changed {
		if w.affects == nil || w.affects(tx) {
			w.wake()
			return
		}
	}
}

func (w *watcher) wake() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}
