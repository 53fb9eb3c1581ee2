package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/amqp"
	"expensetracker/internal/core"
	"expensetracker/internal/live"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.TransactionEvent
	err    error
	closed bool
}

func (p *recordingPublisher) PublishTransactionEvent(_ context.Context, ev amqp.TransactionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) ops() []amqp.Op {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]amqp.Op, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Op
	}
	return out
}

func newService(t *testing.T, pub EventPublisher) *TransactionService {
	t.Helper()
	svc := NewTransactionService(live.New(memory.New()), pub, "eur")
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestCreateAppliesDefaults(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	tx, err := svc.Create(ctx, Draft{Amount: core.MustParseMoney("4.50"), Category: core.Coffee})
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "Coffee", tx.Description)
	assert.Equal(t, "EUR", tx.Currency)
	assert.WithinDuration(t, time.Now(), tx.Timestamp, time.Minute)

	stored, err := svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, tx.ID, stored.ID)
	assert.Equal(t, []amqp.Op{amqp.OpUpsert}, pub.ops())
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)

	_, err := svc.Create(context.Background(), Draft{Amount: core.MustParseMoney("1.00")})
	assert.ErrorIs(t, err, core.ErrInvalidInput)
	assert.Empty(t, pub.ops())
}

func TestUpdateAndDelete(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	tx, err := svc.Create(ctx, Draft{Amount: core.MustParseMoney("10.00"), Category: core.Food})
	require.NoError(t, err)

	tx.Amount = core.MustParseMoney("12.00")
	require.NoError(t, svc.Update(ctx, tx))
	got, err := svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.00", got.Amount.String())

	require.NoError(t, svc.Delete(ctx, tx.ID))
	_, err = svc.Get(ctx, tx.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, svc.Delete(ctx, tx.ID), "deleting twice is a no-op")
	assert.Equal(t, []amqp.Op{amqp.OpUpsert, amqp.OpUpsert, amqp.OpDelete}, pub.ops())
}

func TestUpdateUnknownIsNotFound(t *testing.T) {
	svc := newService(t, nil)

	tx := core.NewTransaction(core.MustParseMoney("1.00"), "", core.Food, time.Now(), "")
	err := svc.Update(context.Background(), tx)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(t, pub)
	ctx := context.Background()

	tx, err := svc.Create(ctx, Draft{Amount: core.MustParseMoney("3.00"), Category: core.Snacks})
	require.NoError(t, err)

	txs, err := svc.List(ctx, storage.Filter{})
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.Equal(t, tx.ID, txs[0].ID)
}

func TestImportKeepsIDs(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	ctx := context.Background()

	txs := []core.Transaction{
		core.NewTransaction(core.MustParseMoney("1.00"), "a", core.Food, time.Now(), "USD"),
		core.NewTransaction(core.MustParseMoney("2.00"), "b", core.Rent, time.Now(), "USD"),
	}
	require.NoError(t, svc.Import(ctx, txs))

	got, err := svc.Get(ctx, txs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Description)
	assert.Len(t, pub.ops(), 2)
}

func TestCloseClosesPublisher(t *testing.T) {
	pub := &recordingPublisher{}
	svc := NewTransactionService(live.New(memory.New()), pub, "")

	require.NoError(t, svc.Close())
	assert.True(t, pub.closed)
	assert.Equal(t, core.DefaultCurrency, svc.defaultCurrency)
}

func TestEventsCarryProcessSource(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newService(t, pub)
	other := newService(t, nil)

	_, err := svc.Create(context.Background(), Draft{Amount: core.MustParseMoney("2.00"), Category: core.Coffee})
	require.NoError(t, err)

	require.Len(t, pub.events, 1)
	assert.NotEmpty(t, svc.EventSource())
	assert.Equal(t, svc.EventSource(), pub.events[0].Source)
	assert.NotEqual(t, svc.EventSource(), other.EventSource())
}
