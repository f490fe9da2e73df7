package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Entry is a ledger row: the submitted request and its latest known outcome.
type Entry struct {
	Request
	Status        Status
	FailureReason string
	UpdatedAt     time.Time
}

// Ledger records submitted transfers and their execution outcomes.
type Ledger interface {
	// Insert stores req as pending, returning false if the id already exists.
	Insert(ctx context.Context, req Request) (bool, error)
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error
	Get(ctx context.Context, id string) (Entry, error)
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger stores transfers in the transfers table.
type PostgresLedger struct {
	pool rowQuerier
	now  func() time.Time
}

var _ Ledger = (*PostgresLedger)(nil)

func NewPostgresLedger(pool *pgxpool.Pool) *PostgresLedger {
	if pool == nil {
		panic("transfer: pgx pool required")
	}
	return newPostgresLedgerWithExec(pool)
}

func newPostgresLedgerWithExec(exec rowQuerier) *PostgresLedger {
	if exec == nil {
		panic("transfer: exec required")
	}
	return &PostgresLedger{pool: exec, now: time.Now}
}

func (l *PostgresLedger) Insert(ctx context.Context, req Request) (bool, error) {
	query := `
		INSERT INTO transfers (id, sender_id, corridor_id, currency, amount, fee, total, status, submitted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (id) DO NOTHING
	`
	ct, err := l.pool.Exec(ctx, query,
		req.ID, req.SenderID, req.CorridorID, req.Currency,
		req.Amount.StringFixed(2), req.Fee.StringFixed(2), req.Total.StringFixed(2),
		string(StatusPending), req.SubmittedAt,
	)
	if err != nil {
		return false, fmt.Errorf("transfer: insert ledger entry: %w", err)
	}
	return ct.RowsAffected() > 0, nil
}

func (l *PostgresLedger) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	query := `
		UPDATE transfers
		SET status = $2, failure_reason = $3, updated_at = $4
		WHERE id = $1
	`
	ct, err := l.pool.Exec(ctx, query, id, string(status), reason, l.now().UTC())
	if err != nil {
		return fmt.Errorf("transfer: update status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (l *PostgresLedger) Get(ctx context.Context, id string) (Entry, error) {
	query := `
		SELECT id, sender_id, corridor_id, currency, amount::text, fee::text, total::text,
		       status, COALESCE(failure_reason, ''), submitted_at, updated_at
		FROM transfers WHERE id = $1
	`
	var (
		e                  Entry
		amount, fee, total string
		status             string
	)
	err := l.pool.QueryRow(ctx, query, id).Scan(
		&e.ID, &e.SenderID, &e.CorridorID, &e.Currency, &amount, &fee, &total,
		&status, &e.FailureReason, &e.SubmittedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Entry{}, fmt.Errorf("transfer: get ledger entry: %w", err)
	}
	e.Status = Status(status)
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return Entry{}, fmt.Errorf("transfer: parse amount: %w", err)
	}
	if e.Fee, err = decimal.NewFromString(fee); err != nil {
		return Entry{}, fmt.Errorf("transfer: parse fee: %w", err)
	}
	if e.Total, err = decimal.NewFromString(total); err != nil {
		return Entry{}, fmt.Errorf("transfer: parse total: %w", err)
	}
	return e, nil
}

// MemoryLedger is the in-process ledger used in development and tests.
type MemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

var _ Ledger = (*MemoryLedger)(nil)

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]Entry), now: time.Now}
}

func (l *MemoryLedger) Insert(_ context.Context, req Request) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[req.ID]; ok {
		return false, nil
	}
	l.entries[req.ID] = Entry{Request: req, Status: StatusPending, UpdatedAt: req.SubmittedAt}
	return true, nil
}

func (l *MemoryLedger) UpdateStatus(_ context.Context, id string, status Status, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.Status = status
	e.FailureReason = reason
	e.UpdatedAt = l.now().UTC()
	l.entries[id] = e
	return nil
}

func (l *MemoryLedger) Get(_ context.Context, id string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.entries[id]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Len reports how many transfers are recorded.
func (l *MemoryLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
