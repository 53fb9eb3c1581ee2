package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is used when a transaction is created without a currency.
const DefaultCurrency = "USD"

type (
	// Transaction is a single recorded expense or income.
	// Instances are values: the store owns the persisted copy and hands out snapshots.
	Transaction struct {
		ID          string    `json:"id"`
		Amount      Money     `json:"amount"`
		Description string    `json:"description"`
		Category    Category  `json:"category"`
		Timestamp   time.Time `json:"timestamp"`
		Currency    string    `json:"currency"`
	}

	// TimeRange is the half-open interval [Start, End).
	TimeRange struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	}
)

var (
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrInvalidInput       = errors.New("invalid input")

	ErrNegativeAmount   = fmt.Errorf("%w: amount must not be negative", ErrInvalidInput)
	ErrAmountPrecision  = fmt.Errorf("%w: amount has more than two decimal places", ErrInvalidInput)
	ErrAmountTooLarge   = fmt.Errorf("%w: amount exceeds 999999999999.99", ErrInvalidInput)
	ErrInvalidAmount    = fmt.Errorf("%w: invalid amount", ErrInvalidInput)
	ErrUnknownCategory  = fmt.Errorf("%w: unknown category", ErrInvalidInput)
	ErrEmptyID          = fmt.Errorf("%w: empty id", ErrInvalidInput)
	ErrZeroTimestamp    = fmt.Errorf("%w: timestamp cannot be zero", ErrInvalidInput)
	ErrInvalidCurrency  = fmt.Errorf("%w: invalid currency code", ErrInvalidInput)
	ErrDescriptionLong  = fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidInput)
	ErrInvalidTimeRange = fmt.Errorf("%w: range end must not be before start", ErrInvalidInput)
)

// NewID returns a fresh random transaction identifier.
func NewID() string {
	return uuid.NewString()
}

// NewTransaction builds a transaction the way the add-expense flow does:
// a new ID, the category name as description when none is given, the current
// time when ts is zero and the default currency when none is given.
func NewTransaction(amount Money, description string, category Category, ts time.Time, currency string) Transaction {
	description = strings.TrimSpace(description)
	if description == "" {
		description = category.Display().Name
	}
	if ts.IsZero() {
		ts = time.Now()
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	return Transaction{
		ID:          NewID(),
		Amount:      amount,
		Description: description,
		Category:    category,
		Timestamp:   ts,
		Currency:    currency,
	}
}

// IsIncome reports whether the transaction counts as income rather than spend.
func (t Transaction) IsIncome() bool {
	return t.Category.IsIncome()
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return ErrEmptyID
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if !t.Category.Valid() {
		return ErrUnknownCategory
	}
	if t.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	if len(t.Description) > 200 {
		return ErrDescriptionLong
	}
	if !validCurrency(t.Currency) {
		return ErrInvalidCurrency
	}
	return nil
}

// validCurrency accepts three upper-case ASCII letters.
func validCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return false
		}
	}
	return true
}

// NewTimeRange returns [start, end) or an error when end precedes start.
func NewTimeRange(start, end time.Time) (TimeRange, error) {
	if end.Before(start) {
		return TimeRange{}, ErrInvalidTimeRange
	}
	return TimeRange{Start: start, End: end}, nil
}

// Contains reports whether t lies in [Start, End).
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start.Format(time.RFC3339), r.End.Format(time.RFC3339))
}
