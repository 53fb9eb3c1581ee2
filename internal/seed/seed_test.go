package seed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/aggregate"
	"expensetracker/internal/core"
	"expensetracker/internal/live"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
	"expensetracker/internal/storage/memory"
)

var now = time.Date(2024, 5, 16, 21, 0, 0, 0, time.UTC)

func TestDemo(t *testing.T) {
	txs := Demo(now, "")
	require.Len(t, txs, 10)

	var salaries int
	for _, tx := range txs {
		require.NoError(t, tx.Validate())
		assert.Equal(t, core.DefaultCurrency, tx.Currency)
		if tx.IsIncome() {
			salaries++
			assert.Equal(t, "2300.00", tx.Amount.String())
		}
	}
	assert.Equal(t, 1, salaries)
}

func TestDemoIDsAreStable(t *testing.T) {
	first := Demo(now, "USD")
	second := Demo(now.AddDate(0, 0, 3), "EUR")

	seen := make(map[string]bool)
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, DemoID(i), first[i].ID)
		assert.False(t, seen[first[i].ID], "duplicate id %s", first[i].ID)
		seen[first[i].ID] = true
	}
}

// gatedMeta makes every Meta read wait until n readers have arrived, so
// concurrent seeders all see an unseeded database.
type gatedMeta struct {
	storage.Repository
	arrived sync.WaitGroup
}

func (g *gatedMeta) Meta(ctx context.Context, key string) (string, bool, error) {
	v, ok, err := g.Repository.Meta(ctx, key)
	g.arrived.Done()
	g.arrived.Wait()
	return v, ok, err
}

func TestConcurrentRunsDoNotDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := &gatedMeta{Repository: memory.New()}
	repo.arrived.Add(2)

	// Two services over one repository stand in for two processes sharing a
	// database file.
	a := services.NewTransactionService(live.New(repo), nil, "USD")
	defer a.Close()
	b := services.NewTransactionService(live.New(repo), nil, "USD")
	defer b.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, svc := range []*services.TransactionService{a, b} {
		i, svc := i, svc
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = Run(ctx, svc, now, "USD")
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	all, err := a.List(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestRunOnlyOnce(t *testing.T) {
	ctx := context.Background()
	svc := services.NewTransactionService(live.New(memory.New()), nil, "USD")
	defer svc.Close()

	inserted, err := Run(ctx, svc, now, "USD")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = Run(ctx, svc, now, "USD")
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := svc.List(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 10)
}

func TestDemoSummary(t *testing.T) {
	ctx := context.Background()
	store := live.New(memory.New())
	defer store.Close()
	svc := services.NewTransactionService(store, nil, "USD")

	_, err := Run(ctx, svc, now, "USD")
	require.NoError(t, err)

	e := aggregate.NewEngine(store, aggregate.WithClock(func() time.Time { return now }))
	s, err := e.Summary(ctx)
	require.NoError(t, err)

	assert.Equal(t, "7.24", s.Today.String())
	assert.Equal(t, "53.94", s.Yesterday.String())
	assert.Equal(t, "131.41", s.Total.String())
	assert.Equal(t, "48.98", s.ByCategory[core.Food].String())
	_, ok := s.ByCategory[core.Salary]
	assert.False(t, ok)
}
