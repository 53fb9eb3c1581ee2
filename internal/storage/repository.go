package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"expensetracker/internal/core"

	_ "modernc.org/sqlite"
)

// timestampLayout is fixed width so that text comparison orders like time.
const timestampLayout = "2006-01-02 15:04:05.000000000"

const dsnPragmas = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

const selectColumns = `SELECT id, amount_cents, description, category, timestamp, currency FROM transactions`

// SQLiteRepository persists transactions in a single SQLite table.
// Timestamps are stored as wall-clock time in loc.
type SQLiteRepository struct {
	db  *sql.DB
	loc *time.Location
}

// Option configures a SQLiteRepository.
type Option func(*SQLiteRepository)

// WithLocation sets the zone timestamps are stored and read in. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(r *SQLiteRepository) {
		if loc != nil {
			r.loc = loc
		}
	}
}

// NewSQLiteRepository opens (or creates) the database at dbPath and migrates it.
// Any failure wraps core.ErrStorageUnavailable.
func NewSQLiteRepository(dbPath string, opts ...Option) (*SQLiteRepository, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("%w: empty database path", core.ErrStorageUnavailable)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w: %w", core.ErrStorageUnavailable, err)
	}

	db, err := sql.Open("sqlite", dbPath+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w: %w", core.ErrStorageUnavailable, err)
	}

	// One connection serialises writes; WAL keeps readers on committed state.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w: %w", core.ErrStorageUnavailable, err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", core.ErrStorageUnavailable, err)
	}

	repo := &SQLiteRepository{
		db:  db,
		loc: time.Local,
	}
	for _, opt := range opts {
		opt(repo)
	}

	return repo, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Upsert writes all transactions in one database transaction; the last
// version of a repeated ID wins.
func (r *SQLiteRepository) Upsert(ctx context.Context, txs ...core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.PrepareContext(ctx, `
		INSERT INTO transactions (id, amount_cents, description, category, timestamp, currency)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			description  = excluded.description,
			category     = excluded.category,
			timestamp    = excluded.timestamp,
			currency     = excluded.currency`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, tx := range txs {
		if _, err := stmt.ExecContext(ctx,
			tx.ID,
			tx.Amount.Cents(),
			tx.Description,
			tx.Category.String(),
			r.formatTime(tx.Timestamp),
			tx.Currency,
		); err != nil {
			return fmt.Errorf("upsert transaction %s: %w", tx.ID, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}

	slog.DebugContext(ctx, "Transactions saved to SQLite", "count", len(txs))
	return nil
}

func (r *SQLiteRepository) Update(ctx context.Context, tx core.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET amount_cents = ?, description = ?, category = ?, timestamp = ?, currency = ?
		WHERE id = ?`,
		tx.Amount.Cents(),
		tx.Description,
		tx.Category.String(),
		r.formatTime(tx.Timestamp),
		tx.Currency,
		tx.ID,
	)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", tx.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("update transaction %s: %w", tx.ID, core.ErrNotFound)
	}

	slog.DebugContext(ctx, "Transaction updated in SQLite", "id", tx.ID)
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	slog.DebugContext(ctx, "Transaction deleted from SQLite", "id", id)
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	tx, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return tx, nil
}

func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]core.Transaction, error) {
	where, args := r.where(f)
	rows, err := r.db.QueryContext(ctx, selectColumns+where+` ORDER BY timestamp DESC, id ASC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		tx, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}

func (r *SQLiteRepository) Sum(ctx context.Context, f Filter) (core.Money, error) {
	where, args := r.where(f)
	var cents int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(amount_cents), 0) FROM transactions`+where, args...).Scan(&cents); err != nil {
		return core.Zero, fmt.Errorf("sum transactions: %w", err)
	}
	return core.MoneyFromCents(cents), nil
}

func (r *SQLiteRepository) Meta(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.QueryRowContext(ctx, `SELECT value FROM app_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %s: %w", key, err)
	}
	return value, true, nil
}

func (r *SQLiteRepository) SetMeta(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO app_meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set meta %s: %w", key, err)
	}
	return nil
}

func (r *SQLiteRepository) where(f Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if !f.From.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, r.formatTime(f.From))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "timestamp < ?")
		args = append(args, r.formatTime(f.To))
	}
	if f.Category != 0 {
		clauses = append(clauses, "category = ?")
		args = append(args, f.Category.String())
	}
	if f.Exclude != 0 {
		clauses = append(clauses, "category != ?")
		args = append(args, f.Exclude.String())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *SQLiteRepository) scan(s scanner) (core.Transaction, error) {
	var (
		tx       core.Transaction
		cents    int64
		category string
		ts       string
	)
	if err := s.Scan(&tx.ID, &cents, &tx.Description, &category, &ts, &tx.Currency); err != nil {
		return core.Transaction{}, err
	}

	c, err := core.ParseCategory(category)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction %s: %w", tx.ID, err)
	}
	parsed, err := time.ParseInLocation(timestampLayout, ts, r.loc)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("scan transaction %s timestamp: %w", tx.ID, err)
	}

	tx.Amount = core.MoneyFromCents(cents)
	tx.Category = c
	tx.Timestamp = parsed
	return tx, nil
}

func (r *SQLiteRepository) formatTime(t time.Time) string {
	return t.In(r.loc).Format(timestampLayout)
}
