// Package seed loads the demo dataset into an empty installation.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"expensetracker/internal/core"
	"expensetracker/internal/services"
)

// MetaKey records when the demo dataset was loaded.
const MetaKey = "seeded_at"

type sample struct {
	amount      string
	description string
	category    core.Category
	daysAgo     int
	hour, min   int
}

var samples = []sample{
	{"3.35", "Treats", core.Pets, 0, 8, 54},
	{"1.70", "Snacks", core.Snacks, 0, 8, 54},
	{"2.19", "Coffee", core.Coffee, 0, 8, 37},
	{"2300.00", "Salary", core.Salary, 0, 7, 44},
	{"12.99", "Lunch", core.Food, 1, 13, 30},
	{"40.95", "Gas", core.Transportation, 1, 18, 15},
	{"8.50", "Book", core.Education, 2, 14, 20},
	{"15.75", "Movie tickets", core.Entertainment, 2, 19, 45},
	{"35.99", "Dinner", core.Food, 3, 20, 0},
	{"9.99", "Netflix", core.Entertainment, 3, 22, 0},
}

// demoNamespace derives the demo row IDs.
var demoNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("expensetracker:demo"))

// DemoID is the fixed ID of the i-th demo row. Two processes seeding the same
// database at once upsert the same rows instead of doubling them.
func DemoID(i int) string {
	return uuid.NewSHA1(demoNamespace, []byte(fmt.Sprintf("sample-%d", i))).String()
}

// Demo returns the demo transactions placed on the four days ending at now,
// in now's location.
func Demo(now time.Time, currency string) []core.Transaction {
	out := make([]core.Transaction, 0, len(samples))
	for i, s := range samples {
		y, m, d := now.AddDate(0, 0, -s.daysAgo).Date()
		ts := time.Date(y, m, d, s.hour, s.min, 0, 0, now.Location())
		tx := core.NewTransaction(core.MustParseMoney(s.amount), s.description, s.category, ts, currency)
		tx.ID = DemoID(i)
		out = append(out, tx)
	}
	return out
}

// Run imports the demo dataset unless it was loaded before. It reports
// whether anything was inserted.
func Run(ctx context.Context, svc *services.TransactionService, now time.Time, currency string) (bool, error) {
	repo := svc.Store().Repository()

	at, ok, err := repo.Meta(ctx, MetaKey)
	if err != nil {
		return false, fmt.Errorf("read seed marker: %w", err)
	}
	if ok {
		slog.DebugContext(ctx, "Demo data already loaded", "seeded_at", at)
		return false, nil
	}

	txs := Demo(now, currency)
	if err := svc.Import(ctx, txs); err != nil {
		return false, fmt.Errorf("seed demo data: %w", err)
	}
	if err := repo.SetMeta(ctx, MetaKey, now.Format(time.RFC3339)); err != nil {
		return false, fmt.Errorf("write seed marker: %w", err)
	}

	slog.InfoContext(ctx, "Demo data loaded", "count", len(txs))
	return true, nil
}
