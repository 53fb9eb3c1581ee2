package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/live"
	"expensetracker/internal/storage"
)

// EventPublisher announces committed mutations. *amqp.Client implements it.
type EventPublisher interface {
	PublishTransactionEvent(ctx context.Context, ev amqp.TransactionEvent) error
	Close() error
}

var _ EventPublisher = (*amqp.Client)(nil)

// Draft is the user supplied part of a new transaction.
type Draft struct {
	Amount      core.Money
	Description string
	Category    core.Category
	Timestamp   time.Time
	Currency    string
}

// TransactionService validates and stores transactions, then publishes a
// change event for each committed mutation.
type TransactionService struct {
	store           *live.Store
	events          EventPublisher
	defaultCurrency string

	// source tags published events with this process.
	source string
}

// NewTransactionService wires the store with an optional publisher; events may be nil.
func NewTransactionService(store *live.Store, events EventPublisher, defaultCurrency string) *TransactionService {
	defaultCurrency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = core.DefaultCurrency
	}
	return &TransactionService{
		store:           store,
		events:          events,
		defaultCurrency: defaultCurrency,
		source:          uuid.NewString(),
	}
}

// Create records a new transaction and returns it with its generated ID.
func (s *TransactionService) Create(ctx context.Context, d Draft) (core.Transaction, error) {
	currency := d.Currency
	if strings.TrimSpace(currency) == "" {
		currency = s.defaultCurrency
	}
	tx := core.NewTransaction(d.Amount, d.Description, d.Category, d.Timestamp, currency)

	if err := s.store.Insert(ctx, tx); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction created",
		"transaction_id", tx.ID,
		"category", tx.Category.String(),
		"amount", tx.Amount.String())
	s.publish(ctx, amqp.OpUpsert, tx.ID)
	return tx, nil
}

// Import upserts a batch atomically, keeping the given IDs.
func (s *TransactionService) Import(ctx context.Context, txs []core.Transaction) error {
	if err := s.store.InsertMany(ctx, txs); err != nil {
		return fmt.Errorf("import transactions: %w", err)
	}
	for _, tx := range txs {
		s.publish(ctx, amqp.OpUpsert, tx.ID)
	}
	return nil
}

// Update replaces an existing transaction.
func (s *TransactionService) Update(ctx context.Context, tx core.Transaction) error {
	tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	if tx.Currency == "" {
		tx.Currency = s.defaultCurrency
	}
	if err := s.store.Update(ctx, tx); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}
	s.publish(ctx, amqp.OpUpsert, tx.ID)
	return nil
}

// Delete removes a transaction. Unknown IDs succeed without an event.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	_, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if !ok {
		return nil
	}
	if err := s.store.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.publish(ctx, amqp.OpDelete, id)
	return nil
}

// Get returns core.ErrNotFound for unknown IDs.
func (s *TransactionService) Get(ctx context.Context, id string) (core.Transaction, error) {
	tx, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction: %w", err)
	}
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return tx, nil
}

// List is a one-shot listing, newest first.
func (s *TransactionService) List(ctx context.Context, f storage.Filter) ([]core.Transaction, error) {
	txs, err := s.store.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// EventSource is the tag carried by every event this service publishes.
func (s *TransactionService) EventSource() string {
	return s.source
}

// Store exposes the live store for subscriptions.
func (s *TransactionService) Store() *live.Store {
	return s.store
}

func (s *TransactionService) publish(ctx context.Context, op amqp.Op, id string) {
	if s.events == nil {
		return
	}
	ev := amqp.NewTransactionEvent(op, id)
	ev.Source = s.source
	// The mutation is already committed; a lost event is only logged.
	if err := s.events.PublishTransactionEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish transaction event",
			"op", op,
			"transaction_id", id,
			"error", err)
	}
}

// Close closes both the store and the publisher.
func (s *TransactionService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
	}

	if s.events != nil {
		if err := s.events.Close(); err != nil {
			errs = append(errs, fmt.Errorf("events: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close transaction service: %w", errors.Join(errs...))
	}
	return nil
}
