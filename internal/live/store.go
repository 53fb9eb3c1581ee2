// Package live wraps a storage.Repository with serialized mutations and
// observable queries that re-run whenever a relevant record changes.
package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"expensetracker/internal/cache"
	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

var errStoreClosed = fmt.Errorf("%w: store closed", core.ErrStorageUnavailable)

// Store is the single source of truth for transactions. Mutations are
// applied one at a time and every committed mutation notifies the live
// queries it affects.
type Store struct {
	repo   storage.Repository
	cache  *cache.LRUCache[core.Transaction]
	logger *slog.Logger

	// writeMu serialises mutations. Cache fills hold the read side so a
	// committed write cannot be overtaken by an older read.
	writeMu sync.RWMutex

	subsMu sync.Mutex
	subs   map[uint64]*watcher
	nextID uint64
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithCache enables read-through caching for GetByID.
func WithCache(c *cache.LRUCache[core.Transaction]) Option {
	return func(s *Store) {
		s.cache = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

func New(repo storage.Repository, opts ...Option) *Store {
	s := &Store{
		repo:   repo,
		logger: slog.Default(),
		subs:   make(map[uint64]*watcher),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "store")
	return s
}

// Insert adds a transaction or replaces the one with the same ID.
func (s *Store) Insert(ctx context.Context, tx core.Transaction) error {
	return s.InsertMany(ctx, []core.Transaction{tx})
}

// InsertMany applies every upsert atomically. Nothing is written when any
// transaction is invalid.
func (s *Store) InsertMany(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			return fmt.Errorf("transaction %q: %w", tx.ID, err)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return errStoreClosed
	}

	changed := make([]core.Transaction, 0, 2*len(txs))
	for _, tx := range txs {
		old, err := s.repo.Get(ctx, tx.ID)
		switch {
		case err == nil:
			changed = append(changed, old)
		case !errors.Is(err, core.ErrNotFound):
			return err
		}
	}

	if err := s.repo.Upsert(ctx, txs...); err != nil {
		return err
	}
	for _, tx := range txs {
		s.evict(tx.ID)
	}

	s.logger.DebugContext(ctx, "Transactions inserted", "count", len(txs))
	s.notify(append(changed, txs...))
	return nil
}

// Update replaces an existing transaction. It fails with core.ErrNotFound
// when the ID is unknown.
func (s *Store) Update(ctx context.Context, tx core.Transaction) error {
	if err := tx.Validate(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return errStoreClosed
	}

	old, err := s.repo.Get(ctx, tx.ID)
	if err != nil {
		return err
	}
	if err := s.repo.Update(ctx, tx); err != nil {
		return err
	}
	s.evict(tx.ID)

	s.logger.DebugContext(ctx, "Transaction updated", "transaction_id", tx.ID)
	s.notify([]core.Transaction{old, tx})
	return nil
}

// DeleteByID removes a transaction. Unknown IDs are ignored and notify nobody.
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.isClosed() {
		return errStoreClosed
	}

	old, err := s.repo.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.evict(id)

	s.logger.DebugContext(ctx, "Transaction deleted", "transaction_id", id)
	s.notify([]core.Transaction{old})
	return nil
}

// GetByID returns the transaction with the given ID, or ok=false when absent.
func (s *Store) GetByID(ctx context.Context, id string) (tx core.Transaction, ok bool, err error) {
	if s.cache != nil {
		if tx, ok := s.cache.Get(id); ok {
			return tx, true, nil
		}
	}

	if s.cache != nil {
		s.writeMu.RLock()
		defer s.writeMu.RUnlock()
	}

	tx, err = s.repo.Get(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Transaction{}, false, nil
	}
	if err != nil {
		return core.Transaction{}, false, err
	}

	if s.cache != nil {
		s.cache.Set(id, tx)
	}
	return tx, true, nil
}

// List is a one-shot read, newest first.
func (s *Store) List(ctx context.Context, f storage.Filter) ([]core.Transaction, error) {
	return s.repo.List(ctx, f)
}

// Sum is a one-shot total of the matching amounts.
func (s *Store) Sum(ctx context.Context, f storage.Filter) (core.Money, error) {
	return s.repo.Sum(ctx, f)
}

// Query observes the transactions matching f, newest first.
func (s *Store) Query(ctx context.Context, f storage.Filter) *Subscription[[]core.Transaction] {
	return Watch(ctx, s, f.Match, func(ctx context.Context) ([]core.Transaction, error) {
		return s.repo.List(ctx, f)
	})
}

// All observes every transaction, newest first.
func (s *Store) All(ctx context.Context) *Subscription[[]core.Transaction] {
	return s.Query(ctx, storage.Filter{})
}

// InRange observes the transactions with start <= timestamp < end.
func (s *Store) InRange(ctx context.Context, start, end time.Time) *Subscription[[]core.Transaction] {
	return s.Query(ctx, storage.InRange(start, end))
}

// ByCategory observes the transactions of one category.
func (s *Store) ByCategory(ctx context.Context, c core.Category) *Subscription[[]core.Transaction] {
	return s.Query(ctx, storage.Filter{Category: c})
}

// SumInRange observes the total of [start, end), leaving out the exclude
// category when it is non-zero.
func (s *Store) SumInRange(ctx context.Context, start, end time.Time, exclude core.Category) *Subscription[core.Money] {
	f := storage.Filter{From: start, To: end, Exclude: exclude}
	return Watch(ctx, s, f.Match, func(ctx context.Context) (core.Money, error) {
		return s.repo.Sum(ctx, f)
	})
}

// Refresh drops the cached copies of ids and re-runs every live query. It is
// for changes committed outside this store, such as by another process
// sharing the database. With no ids the whole cache is dropped.
func (s *Store) Refresh(ctx context.Context, ids ...string) {
	if s.cache != nil && len(ids) == 0 {
		s.cache.Purge()
	}
	for _, id := range ids {
		s.evict(id)
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, w := range s.subs {
		w.wake()
	}
	s.logger.DebugContext(ctx, "Store refreshed", "ids", len(ids), "subscribers", len(s.subs))
}

// Repository exposes the backing repository for maintenance tasks such as seeding.
func (s *Store) Repository() storage.Repository {
	return s.repo
}

// Close ends every live subscription and closes the repository.
func (s *Store) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.subsMu.Lock()
	if s.closed {
		s.subsMu.Unlock()
		return nil
	}
	s.closed = true
	for _, w := range s.subs {
		w.stop()
	}
	s.subsMu.Unlock()

	if s.cache != nil {
		s.cache.Purge()
	}
	return s.repo.Close()
}

func (s *Store) register(w *watcher) (uint64, error) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	if s.closed {
		return 0, errStoreClosed
	}
	s.nextID++
	s.subs[s.nextID] = w
	return s.nextID, nil
}

func (s *Store) unregister(id uint64) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	delete(s.subs, id)
}

// Subscribers returns the number of active live queries.
func (s *Store) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

func (s *Store) notify(changed []core.Transaction) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, w := range s.subs {
		w.notify(changed)
	}
}

func (s *Store) evict(id string) {
	if s.cache != nil {
		s.cache.Delete(id)
	}
}

func (s *Store) isClosed() bool {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return s.closed
}
