/*
Package sqlite provides a SQLite-backed implementation of sales.Store.

PURPOSE:
  Persists payments and answers grouped-sum queries. In production the same
  patterns apply to PostgreSQL (DATE_TRUNC instead of substr) - only minor
  SQL dialect differences.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on the payments table
  - No DELETE statements on the payments table

KEY TABLES:
  payments: One row per accepted payment

TIME STORAGE:
  Timestamps are stored as fixed-width UTC text
  (2006-01-02T15:04:05.000000000Z). Fixed width makes lexicographic order
  equal chronological order, so range filters and bucket truncation both
  work on the text directly:

    minute  substr(occurred_at, 1, 16)   2022-09-01T10:15
    hour    substr(occurred_at, 1, 13)   2022-09-01T10
    day     substr(occurred_at, 1, 10)   2022-09-01
    month   substr(occurred_at, 1, 7)    2022-09
    year    substr(occurred_at, 1, 4)    2022

DECIMALS:
  Prices are stored as decimal text. SQLite's SUM() would coerce them to
  float, so the store truncates to buckets in SQL and folds the sums with
  decimal.Decimal while streaming the ordered rows.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. WAL mode lets readers proceed while
  a write is in flight.

USAGE:
  store, err := sqlite.New("./data/sales.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - sales/store.go: Interface definition
  - sales/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/anyx/sales-engine/sales"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements sales.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Payments (append-only)
	CREATE TABLE IF NOT EXISTS payments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		price TEXT NOT NULL,
		price_modifier TEXT NOT NULL,
		points INTEGER NOT NULL,
		payment_method TEXT NOT NULL,
		occurred_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Range scans for sales statements (hot path)
	CREATE INDEX IF NOT EXISTS idx_payments_occurred_at
		ON payments(occurred_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// PAYMENT STORE (sales.Store interface)
// =============================================================================

// SavePayment inserts a payment and returns it with its assigned ID.
func (s *Store) SavePayment(ctx context.Context, p sales.Payment) (sales.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.OccurredAt = p.OccurredAt.UTC()
	p.CreatedAt = p.CreatedAt.UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO payments
		(price, price_modifier, points, payment_method, occurred_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		p.Price.String(),
		p.PriceModifier.String(),
		p.Points,
		string(p.PaymentMethod),
		formatTime(p.OccurredAt),
		formatTime(p.CreatedAt),
	)
	if err != nil {
		return sales.Payment{}, fmt.Errorf("failed to insert payment: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return sales.Payment{}, fmt.Errorf("failed to read payment id: %w", err)
	}
	p.ID = id
	return p, nil
}

// QueryGroupedSums returns per-bucket sums of price and points for payments
// with occurred_at in [start, end], ascending by bucket.
func (s *Store) QueryGroupedSums(ctx context.Context, start, end time.Time, unit sales.Granularity) ([]sales.SalesStatement, error) {
	prefix, layout, err := bucketFormat(unit)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(occurred_at, 1, ?) AS bucket, price, points
		FROM payments
		WHERE occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC
	`, prefix, formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query sales statement: %w", err)
	}
	defer rows.Close()

	var (
		out        []sales.SalesStatement
		lastBucket string
	)
	for rows.Next() {
		var (
			bucket string
			price  string
			points int64
		)
		if err := rows.Scan(&bucket, &price, &points); err != nil {
			return nil, fmt.Errorf("failed to scan sales row: %w", err)
		}
		amount, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("corrupt price %q: %w", price, err)
		}

		if len(out) > 0 && bucket == lastBucket {
			last := &out[len(out)-1]
			last.TotalPrice = last.TotalPrice.Add(amount)
			last.TotalPoints += points
			continue
		}

		bucketStart, err := time.ParseInLocation(layout, bucket, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("corrupt bucket %q: %w", bucket, err)
		}
		out = append(out, sales.SalesStatement{
			TotalPrice:  amount,
			TotalPoints: points,
			BucketStart: bucketStart,
		})
		lastBucket = bucket
	}

	return out, rows.Err()
}

// ListPayments returns payments with occurred_at in [from, to], ascending.
func (s *Store) ListPayments(ctx context.Context, from, to time.Time) ([]sales.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, price, price_modifier, points, payment_method, occurred_at, created_at
		FROM payments
		WHERE occurred_at >= ? AND occurred_at <= ?
		ORDER BY occurred_at ASC, id ASC
	`, formatTime(from), formatTime(to))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []sales.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func scanPayment(rows *sql.Rows) (sales.Payment, error) {
	var (
		p          sales.Payment
		price      string
		modifier   string
		method     string
		occurredAt string
		createdAt  string
	)
	if err := rows.Scan(&p.ID, &price, &modifier, &p.Points, &method, &occurredAt, &createdAt); err != nil {
		return p, fmt.Errorf("failed to scan payment: %w", err)
	}

	var err error
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return p, fmt.Errorf("corrupt price %q: %w", price, err)
	}
	if p.PriceModifier, err = decimal.NewFromString(modifier); err != nil {
		return p, fmt.Errorf("corrupt price modifier %q: %w", modifier, err)
	}
	p.PaymentMethod = sales.PaymentMethod(method)
	if p.OccurredAt, err = time.Parse(timeLayout, occurredAt); err != nil {
		return p, fmt.Errorf("corrupt occurred_at %q: %w", occurredAt, err)
	}
	if p.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return p, fmt.Errorf("corrupt created_at %q: %w", createdAt, err)
	}
	return p, nil
}

// Helper functions

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func bucketFormat(unit sales.Granularity) (int, string, error) {
	switch unit {
	case sales.GranularityMinute:
		return 16, "2006-01-02T15:04", nil
	case sales.GranularityHour:
		return 13, "2006-01-02T15", nil
	case sales.GranularityDay:
		return 10, "2006-01-02", nil
	case sales.GranularityMonth:
		return 7, "2006-01", nil
	case sales.GranularityYear:
		return 4, "2006", nil
	default:
		return 0, "", fmt.Errorf("unsupported granularity %q", string(unit))
	}
}
