package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var errVersionMismatch = errors.New("session: version mismatch")

// RedisStore keeps sessions as JSON values and swaps them under WATCH.
type RedisStore struct {
	redis  *redis.Client
	policy policy
	tracer trace.Tracer
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client, idleTimeout time.Duration, opts ...Option) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		redis:  client,
		policy: newPolicy(idleTimeout, opts...),
		tracer: otel.Tracer("remitchat.internal.session.redis"),
	}
}

func (s *RedisStore) LoadOrCreate(ctx context.Context, senderID string) (Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.redis.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(senderID)).Bytes()
	if err == redis.Nil {
		return s.policy.resolve(senderID, Session{}, false), nil
	}
	if err != nil {
		span.RecordError(err)
		return Session{}, unavailable("load", err)
	}
	var stored Session
	if err := json.Unmarshal(data, &stored); err != nil {
		span.RecordError(err)
		return Session{}, unavailable("decode", err)
	}
	return s.policy.resolve(senderID, stored, true), nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, senderID string, expectedVersion int64, next Session) (bool, error) {
	if err := validateWrite(senderID, expectedVersion, next); err != nil {
		return false, err
	}
	ctx, span := s.tracer.Start(ctx, "session.redis.compare_and_swap")
	defer span.End()

	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("session: encode: %w", err)
	}
	key := sessionKey(senderID)
	ttl := s.policy.storageTTL()

	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := storedVersion(ctx, tx, key)
		if err != nil {
			return err
		}
		if current != expectedVersion {
			return errVersionMismatch
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errVersionMismatch), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		span.RecordError(err)
		return false, unavailable("compare_and_swap", err)
	}
}

func (s *RedisStore) Delete(ctx context.Context, senderID string) error {
	if err := s.redis.Del(ctx, sessionKey(senderID)).Err(); err != nil {
		return unavailable("delete", err)
	}
	return nil
}

func storedVersion(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	data, err := tx.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var stored struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(data, &stored); err != nil {
		return 0, err
	}
	return stored.Version, nil
}

func sessionKey(senderID string) string {
	return fmt.Sprintf("remit:session:%s", senderID)
}
