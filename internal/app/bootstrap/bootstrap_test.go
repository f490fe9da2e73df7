package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/remitchat/internal/config"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/internal/transfer"
	"github.com/wolfman30/remitchat/pkg/logging"
)

func TestBuildRedisClient(t *testing.T) {
	logger := logging.New("error")
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, logger, true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, true)
	require.NotNil(t, client)
	_ = client.Close()

	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: "127.0.0.1:1"}, logger, true))
}

func TestBuildPostgresPoolEmptyURLReturnsNil(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), "", logging.New("error"))
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildCatalog(t *testing.T) {
	logger := logging.New("error")
	catalog, err := BuildCatalog(&appconfig.Config{}, logger)
	require.NoError(t, err)
	active, err := catalog.ListActive(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, active)

	_, err = BuildCatalog(&appconfig.Config{CorridorCatalogPath: filepath.Join(t.TempDir(), "missing.yaml")}, logger)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`corridors:
  - id: us-mx
    name: Estados Unidos → México
    source_country: US
    destination_country: México
    destination_currency: MXN
    fee_rate: "0.01"
    settlement_time: minutos
    delivery_methods: [bank_transfer]
    min_amount: "10"
    max_amount: "500"
`), 0o600))
	catalog, err = BuildCatalog(&appconfig.Config{CorridorCatalogPath: path}, logger)
	require.NoError(t, err)
	active, err = catalog.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "us-mx", active[0].ID)
}

func TestBuildSessionStore(t *testing.T) {
	logger := logging.New("error")
	base := appconfig.Config{SessionIdleTimeout: time.Minute, SessionJanitorInterval: time.Millisecond}

	t.Run("memory by default", func(t *testing.T) {
		cfg := base
		store, err := BuildSessionStore(&cfg, SessionDeps{}, logger)
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, store.Backend)
		require.NotNil(t, store.Janitor)
		_, ok := store.Store.(*session.MemoryStore)
		assert.True(t, ok)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() { store.Janitor(ctx); close(done) }()
		cancel()
		<-done
	})

	t.Run("redis", func(t *testing.T) {
		cfg := base
		cfg.SessionBackend = BackendRedis
		_, err := BuildSessionStore(&cfg, SessionDeps{}, logger)
		assert.Error(t, err)

		mr := miniredis.RunT(t)
		client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, logger, false)
		store, err := BuildSessionStore(&cfg, SessionDeps{Redis: client}, logger)
		require.NoError(t, err)
		assert.Nil(t, store.Janitor)

		sess, err := store.LoadOrCreate(context.Background(), "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, session.StateWelcome, sess.State)
	})

	t.Run("postgres and dynamodb need clients", func(t *testing.T) {
		for _, backend := range []string{BackendPostgres, BackendDynamo} {
			cfg := base
			cfg.SessionBackend = backend
			_, err := BuildSessionStore(&cfg, SessionDeps{}, logger)
			assert.Error(t, err, backend)
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := base
		cfg.SessionBackend = "etcd"
		_, err := BuildSessionStore(&cfg, SessionDeps{}, logger)
		assert.ErrorContains(t, err, "unknown session backend")
	})
}

type countingPurger struct{ calls chan struct{} }

func (c countingPurger) PurgeIdle(context.Context) (int64, error) {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return 1, nil
}

func TestPurgeLoopRunsUntilCancelled(t *testing.T) {
	purger := countingPurger{calls: make(chan struct{}, 1)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { purgeLoop(ctx, purger, time.Millisecond, logging.New("error")); close(done) }()

	select {
	case <-purger.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("purge never ran")
	}
	cancel()
	<-done
}

func TestBuildHandoffMemoryQueue(t *testing.T) {
	cfg := &appconfig.Config{WorkerCount: 1}
	h, err := BuildHandoff(cfg, nil, nil, nil, logging.New("error"))
	require.NoError(t, err)
	assert.Equal(t, "memory", h.Queue)
	require.NotNil(t, h.Worker)
	require.NotNil(t, h.Status)

	ctx, cancel := context.WithCancel(context.Background())
	h.Worker.Start(ctx)

	req := transfer.Request{
		ID:          transfer.RequestID("+15551234567", 6),
		SenderID:    "+15551234567",
		CorridorID:  "us-mx",
		Currency:    "USD",
		Amount:      decimal.RequireFromString("100"),
		Fee:         decimal.RequireFromString("0.50"),
		Total:       decimal.RequireFromString("100.50"),
		SubmittedAt: time.Now().UTC(),
	}
	require.NoError(t, h.Submitter.Submit(context.Background(), req))

	require.Eventually(t, func() bool {
		entry, err := h.Ledger.Get(context.Background(), req.ID)
		return err == nil && entry.Status == transfer.StatusPending
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	h.Worker.Wait()
}

func TestBuildHandoffSQSRequiresClient(t *testing.T) {
	cfg := &appconfig.Config{TransferQueueURL: "https://sqs.us-east-1.amazonaws.com/123/transfers"}
	_, err := BuildHandoff(cfg, nil, nil, nil, logging.New("error"))
	assert.Error(t, err)
}
