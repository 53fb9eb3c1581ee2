package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// DailyBucket is the spend total of one calendar day.
type DailyBucket struct {
	Label string    `json:"label"`
	Day   time.Time `json:"day"`
	Total Money     `json:"total"`
}

// CategoryTotals maps spend categories to their summed amount.
// Categories without transactions are absent.
type CategoryTotals map[Category]Money

// WeekSummary is a compact snapshot of the trailing week.
type WeekSummary struct {
	Now           time.Time       `json:"now"`
	Window        TimeRange       `json:"window"`
	Today         Money           `json:"today"`
	Yesterday     Money           `json:"yesterday"`
	Total         Money           `json:"total"`
	PreviousTotal Money           `json:"previous_total"`
	PercentChange decimal.Decimal `json:"percent_change"`
	Daily         []DailyBucket   `json:"daily"`
	ByCategory    CategoryTotals  `json:"by_category"`
}
