package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/remitchat/internal/config"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/pkg/logging"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendDynamo   = "dynamodb"
)

// SessionDeps carries the clients a session backend may need.
type SessionDeps struct {
	Redis    *redis.Client
	Postgres *pgxpool.Pool
	Dynamo   *dynamodb.Client
}

// SessionStore is the selected backend plus its housekeeping loop.
type SessionStore struct {
	session.Store
	Backend string
	// Janitor runs until ctx is done; nil when the backend expires on its own.
	Janitor func(ctx context.Context)
}

// BuildSessionStore selects the backend named by SESSION_BACKEND.
func BuildSessionStore(cfg *appconfig.Config, deps SessionDeps, logger *logging.Logger) (*SessionStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	idle := cfg.SessionIdleTimeout
	interval := cfg.SessionJanitorInterval

	switch cfg.SessionBackend {
	case "", BackendMemory:
		store := session.NewMemoryStore(idle)
		return &SessionStore{
			Store:   store,
			Backend: BackendMemory,
			Janitor: func(ctx context.Context) { store.RunJanitor(ctx, interval, logger) },
		}, nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("bootstrap: redis session backend requires REDIS_ADDR")
		}
		return &SessionStore{Store: session.NewRedisStore(deps.Redis, idle), Backend: BackendRedis}, nil
	case BackendPostgres:
		if deps.Postgres == nil {
			return nil, fmt.Errorf("bootstrap: postgres session backend requires DATABASE_URL")
		}
		store := session.NewPostgresStore(deps.Postgres, idle)
		return &SessionStore{
			Store:   store,
			Backend: BackendPostgres,
			Janitor: func(ctx context.Context) { purgeLoop(ctx, store, interval, logger) },
		}, nil
	case BackendDynamo:
		if deps.Dynamo == nil {
			return nil, fmt.Errorf("bootstrap: dynamodb session backend requires an AWS client")
		}
		return &SessionStore{Store: session.NewDynamoStore(deps.Dynamo, cfg.SessionsTable, idle), Backend: BackendDynamo}, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session backend %q", cfg.SessionBackend)
	}
}

type idlePurger interface {
	PurgeIdle(ctx context.Context) (int64, error)
}

func purgeLoop(ctx context.Context, store idlePurger, interval time.Duration, logger *logging.Logger) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.PurgeIdle(ctx)
			if err != nil {
				logger.Warn("session purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("purged idle sessions", "count", n)
			}
		}
	}
}
