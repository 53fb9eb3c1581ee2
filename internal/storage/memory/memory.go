// Package memory is an in-process storage.Repository used by tests and the
// memory data backend. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

type Store struct {
	mu    sync.RWMutex
	items map[string]core.Transaction
	meta  map[string]string
}

var _ storage.Repository = (*Store)(nil)

func New(seed ...core.Transaction) *Store {
	s := &Store{
		items: make(map[string]core.Transaction, len(seed)),
		meta:  make(map[string]string),
	}
	for _, tx := range seed {
		s.items[tx.ID] = tx
	}
	return s
}

func (s *Store) Upsert(_ context.Context, txs ...core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.items[tx.ID] = tx
	}
	return nil
}

func (s *Store) Update(_ context.Context, tx core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[tx.ID]; !ok {
		return fmt.Errorf("update transaction %s: %w", tx.ID, core.ErrNotFound)
	}
	s.items[tx.ID] = tx
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *Store) Get(_ context.Context, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.items[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, core.ErrNotFound)
	}
	return tx, nil
}

// List returns matches newest first; equal timestamps are ordered by ID.
func (s *Store) List(ctx context.Context, f storage.Filter) ([]core.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]core.Transaction, 0, len(s.items))
	for _, tx := range s.items {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) Sum(ctx context.Context, f storage.Filter) (core.Money, error) {
	txs, err := s.List(ctx, f)
	if err != nil {
		return core.Zero, err
	}
	return core.SumMoney(txs), nil
}

func (s *Store) Meta(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.meta[key]
	return v, ok, nil
}

func (s *Store) SetMeta(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta[key] = value
	return nil
}

func (s *Store) Close() error {
	return nil
}
