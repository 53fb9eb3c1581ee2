package storage

import (
	"context"
	"time"

	"expensetracker/internal/core"
)

// Repository is the snapshot persistence contract shared by the SQLite and
// in-memory backends. List results are ordered by timestamp, newest first.
type Repository interface {
	// Upsert inserts or fully replaces each transaction by ID, in order.
	Upsert(ctx context.Context, txs ...core.Transaction) error
	// Update replaces an existing transaction and fails with core.ErrNotFound if it is absent.
	Update(ctx context.Context, tx core.Transaction) error
	// Delete removes a transaction; deleting an unknown ID is not an error.
	Delete(ctx context.Context, id string) error
	// Get returns core.ErrNotFound when no transaction has the given ID.
	Get(ctx context.Context, id string) (core.Transaction, error)
	List(ctx context.Context, f Filter) ([]core.Transaction, error)
	// Sum adds up matching amounts and returns zero for an empty match.
	Sum(ctx context.Context, f Filter) (core.Money, error)

	Meta(ctx context.Context, key string) (value string, ok bool, err error)
	SetMeta(ctx context.Context, key, value string) error

	Close() error
}

// Filter selects transactions. Zero fields do not constrain the result.
type Filter struct {
	// From and To bound the timestamp to [From, To).
	From time.Time
	To   time.Time
	// Category keeps only this category.
	Category core.Category
	// Exclude drops this category.
	Exclude core.Category
}

// InRange is a Filter over [start, end).
func InRange(start, end time.Time) Filter {
	return Filter{From: start, To: end}
}

// Match reports whether tx satisfies the filter.
func (f Filter) Match(tx core.Transaction) bool {
	if !f.From.IsZero() && tx.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !tx.Timestamp.Before(f.To) {
		return false
	}
	if f.Category != 0 && tx.Category != f.Category {
		return false
	}
	if f.Exclude != 0 && tx.Category == f.Exclude {
		return false
	}
	return true
}
