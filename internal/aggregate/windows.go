// Package aggregate derives spend totals, daily buckets and category totals
// from the transaction store. Income (the Salary category) never counts as spend.
package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"expensetracker/internal/core"
)

// DaysInWeek is the length of the rolling week and the number of daily buckets.
const DaysInWeek = 7

// StartOfDay returns the first instant of t's calendar day in t's location.
// That is local midnight, or the moment the clocks jump on days whose
// midnight is skipped by a DST change.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	if start.Day() != d {
		// time.Date normalised the missing midnight into the previous day.
		_, start = start.ZoneBounds()
	}
	return start
}

// addDays returns the start of the day n calendar days after t's day.
func addDays(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	return StartOfDay(time.Date(y, m, d+n, 12, 0, 0, 0, t.Location()))
}

// Today is [midnight, next midnight).
func Today(now time.Time) core.TimeRange {
	start := StartOfDay(now)
	return core.TimeRange{Start: start, End: addDays(start, 1)}
}

// Yesterday is the calendar day before Today.
func Yesterday(now time.Time) core.TimeRange {
	start := StartOfDay(now)
	return core.TimeRange{Start: addDays(start, -1), End: start}
}

// Week is the rolling seven days ending with today. It is never aligned to a
// weekday.
func Week(now time.Time) core.TimeRange {
	end := addDays(StartOfDay(now), 1)
	return core.TimeRange{Start: addDays(end, -DaysInWeek), End: end}
}

// PreviousWeek is the seven days immediately before Week.
func PreviousWeek(now time.Time) core.TimeRange {
	w := Week(now)
	return core.TimeRange{Start: addDays(w.Start, -DaysInWeek), End: w.Start}
}

// SpendTotal adds up every non-income amount in txs.
func SpendTotal(txs []core.Transaction) core.Money {
	total := core.Zero
	for _, tx := range txs {
		if !tx.IsIncome() {
			total = total.Add(tx.Amount)
		}
	}
	return total
}

// DailyBuckets returns the spend of each of the last seven days, oldest
// first, with today last. Days without spend get a zero bucket.
func DailyBuckets(txs []core.Transaction, now time.Time) []core.DailyBucket {
	today := StartOfDay(now)
	buckets := make([]core.DailyBucket, 0, DaysInWeek)
	for offset := DaysInWeek - 1; offset >= 0; offset-- {
		day := addDays(today, -offset)
		r := core.TimeRange{Start: day, End: addDays(day, 1)}

		total := core.Zero
		for _, tx := range txs {
			if !tx.IsIncome() && r.Contains(tx.Timestamp) {
				total = total.Add(tx.Amount)
			}
		}
		buckets = append(buckets, core.DailyBucket{
			Label: day.Weekday().String()[:3],
			Day:   day,
			Total: total,
		})
	}
	return buckets
}

// ByCategory groups the spend in txs by category. Categories without any
// spend are absent from the result.
func ByCategory(txs []core.Transaction) core.CategoryTotals {
	out := make(core.CategoryTotals)
	for _, tx := range txs {
		if tx.IsIncome() {
			continue
		}
		out[tx.Category] = out[tx.Category].Add(tx.Amount)
	}
	return out
}

var hundred = decimal.NewFromInt(100)

// PercentChange is (current-previous)/previous*100 rounded to two places,
// or zero when previous is zero.
func PercentChange(current, previous core.Money) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	diff := current.Decimal().Sub(previous.Decimal())
	return diff.Div(previous.Decimal()).Mul(hundred).Round(2)
}
