package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"expensetracker/internal/core"
	"expensetracker/internal/live"
	"expensetracker/internal/storage"
)

// Engine serves aggregate views over a live store. Every live view captures
// now once, when it is subscribed.
type Engine struct {
	store  *live.Store
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*Engine)

// WithClock replaces time.Now. The clock's location defines where days start.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func NewEngine(store *live.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "aggregate")
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time {
	return e.now()
}

func (e *Engine) watchSpend(ctx context.Context, r core.TimeRange) *live.Subscription[core.Money] {
	return e.store.SumInRange(ctx, r.Start, r.End, core.Salary)
}

// WatchTodayTotal observes today's spend.
func (e *Engine) WatchTodayTotal(ctx context.Context) *live.Subscription[core.Money] {
	return e.watchSpend(ctx, Today(e.now()))
}

// WatchYesterdayTotal observes yesterday's spend.
func (e *Engine) WatchYesterdayTotal(ctx context.Context) *live.Subscription[core.Money] {
	return e.watchSpend(ctx, Yesterday(e.now()))
}

// WatchWeekTotal observes the spend of the rolling week.
func (e *Engine) WatchWeekTotal(ctx context.Context) *live.Subscription[core.Money] {
	return e.watchSpend(ctx, Week(e.now()))
}

// WatchDailyBuckets observes the seven daily spend buckets of the rolling week.
func (e *Engine) WatchDailyBuckets(ctx context.Context) *live.Subscription[[]core.DailyBucket] {
	now := e.now()
	w := Week(now)
	return live.Map(e.store.InRange(ctx, w.Start, w.End), func(txs []core.Transaction) []core.DailyBucket {
		return DailyBuckets(txs, now)
	})
}

// WatchByCategory observes the rolling week's spend per category.
func (e *Engine) WatchByCategory(ctx context.Context) *live.Subscription[core.CategoryTotals] {
	w := Week(e.now())
	return live.Map(e.store.InRange(ctx, w.Start, w.End), ByCategory)
}

// WatchSummary observes the full week summary, recomputed whenever a
// transaction in the current or previous week changes.
func (e *Engine) WatchSummary(ctx context.Context) *live.Subscription[core.WeekSummary] {
	now := e.now()
	span := storage.InRange(PreviousWeek(now).Start, Week(now).End)
	return live.Watch(ctx, e.store, span.Match, func(ctx context.Context) (core.WeekSummary, error) {
		return e.summaryAt(ctx, now)
	})
}

// Summary computes a one-shot week summary at the engine's current time.
func (e *Engine) Summary(ctx context.Context) (core.WeekSummary, error) {
	return e.summaryAt(ctx, e.now())
}

func (e *Engine) summaryAt(ctx context.Context, now time.Time) (core.WeekSummary, error) {
	week := Week(now)
	spend := func(r core.TimeRange) storage.Filter {
		return storage.Filter{From: r.Start, To: r.End, Exclude: core.Salary}
	}

	var (
		weekTxs          []core.Transaction
		today, yesterday core.Money
		previous         core.Money
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		txs, err := e.store.List(gctx, spend(week))
		if err != nil {
			return fmt.Errorf("list week: %w", err)
		}
		weekTxs = txs
		return nil
	})
	g.Go(func() error {
		sum, err := e.store.Sum(gctx, spend(Today(now)))
		if err != nil {
			return fmt.Errorf("sum today: %w", err)
		}
		today = sum
		return nil
	})
	g.Go(func() error {
		sum, err := e.store.Sum(gctx, spend(Yesterday(now)))
		if err != nil {
			return fmt.Errorf("sum yesterday: %w", err)
		}
		yesterday = sum
		return nil
	})
	g.Go(func() error {
		sum, err := e.store.Sum(gctx, spend(PreviousWeek(now)))
		if err != nil {
			return fmt.Errorf("sum previous week: %w", err)
		}
		previous = sum
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.WeekSummary{}, err
	}

	total := SpendTotal(weekTxs)
	summary := core.WeekSummary{
		Now:           now,
		Window:        week,
		Today:         today,
		Yesterday:     yesterday,
		Total:         total,
		PreviousTotal: previous,
		PercentChange: PercentChange(total, previous),
		Daily:         DailyBuckets(weekTxs, now),
		ByCategory:    ByCategory(weekTxs),
	}

	e.logger.DebugContext(ctx, "Week summary computed",
		"window", week.String(),
		"total", total.String(),
		"previous_total", previous.String(),
		"transactions", len(weekTxs),
	)
	return summary, nil
}
