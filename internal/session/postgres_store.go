package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists sessions in the remit_sessions table.
type PostgresStore struct {
	pool   rowQuerier
	policy policy
	tracer trace.Tracer
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a pgx-backed store.
func NewPostgresStore(pool *pgxpool.Pool, idleTimeout time.Duration, opts ...Option) *PostgresStore {
	if pool == nil {
		panic("session: pgx pool required")
	}
	return newPostgresStoreWithExec(pool, idleTimeout, opts...)
}

func newPostgresStoreWithExec(exec rowQuerier, idleTimeout time.Duration, opts ...Option) *PostgresStore {
	if exec == nil {
		panic("session: exec required")
	}
	return &PostgresStore{
		pool:   exec,
		policy: newPolicy(idleTimeout, opts...),
		tracer: otel.Tracer("remitchat.internal.session.postgres"),
	}
}

func (s *PostgresStore) LoadOrCreate(ctx context.Context, senderID string) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.postgres.load")
	defer span.End()

	query := `SELECT payload FROM remit_sessions WHERE sender_id = $1`
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, senderID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.policy.resolve(senderID, Session{}, false), nil
		}
		span.RecordError(err)
		return Session{}, unavailable("load", err)
	}
	var stored Session
	if err := json.Unmarshal(payload, &stored); err != nil {
		return Session{}, unavailable("decode", err)
	}
	return s.policy.resolve(senderID, stored, true), nil
}

func (s *PostgresStore) CompareAndSwap(ctx context.Context, senderID string, expectedVersion int64, next Session) (bool, error) {
	if err := validateWrite(senderID, expectedVersion, next); err != nil {
		return false, err
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("session: encode: %w", err)
	}

	ctx, span := s.tracer.Start(ctx, "session.postgres.compare_and_swap")
	defer span.End()

	var ct pgconn.CommandTag
	if expectedVersion == 0 {
		query := `
			INSERT INTO remit_sessions (sender_id, state, payload, version, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (sender_id) DO NOTHING
		`
		ct, err = s.pool.Exec(ctx, query, senderID, string(next.State), payload, next.Version, next.LastUpdated)
	} else {
		query := `
			UPDATE remit_sessions
			SET state = $2, payload = $3, version = $4, updated_at = $5
			WHERE sender_id = $1 AND version = $6
		`
		ct, err = s.pool.Exec(ctx, query, senderID, string(next.State), payload, next.Version, next.LastUpdated, expectedVersion)
	}
	if err != nil {
		span.RecordError(err)
		return false, unavailable("compare_and_swap", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (s *PostgresStore) Delete(ctx context.Context, senderID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM remit_sessions WHERE sender_id = $1`, senderID); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

// PurgeIdle deletes sessions whose last write is older than twice the idle timeout.
func (s *PostgresStore) PurgeIdle(ctx context.Context) (int64, error) {
	ttl := s.policy.storageTTL()
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := s.policy.now().Add(-ttl)
	ct, err := s.pool.Exec(ctx, `DELETE FROM remit_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, unavailable("purge", err)
	}
	return ct.RowsAffected(), nil
}
