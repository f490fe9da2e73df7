package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

const testIdle = 30 * time.Minute

func advance(s Session, state State, now time.Time) Session {
	next := s.Clone()
	next.State = state
	next.Version = s.Version + 1
	next.LastUpdated = now
	return next
}

// runStoreContract exercises the semantics every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T, clock *testClock) Store) {
	t.Run("creates welcome session for unknown sender", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		sess, err := store.LoadOrCreate(context.Background(), "+15551234567")
		require.NoError(t, err)
		assert.Equal(t, StateWelcome, sess.State)
		assert.Equal(t, int64(0), sess.Version)
		assert.Equal(t, "+15551234567", sess.SenderID)
	})

	t.Run("compare and swap round trip", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()

		sess, err := store.LoadOrCreate(ctx, "alice")
		require.NoError(t, err)
		next := advance(sess, StateAmountEntry, clock.Now())
		amount := decimal.RequireFromString("100")
		next.Selections.CorridorID = "us-mx"
		next.Selections.Amount = &amount
		next.Selections.Offered = []string{"us-mx", "us-co"}
		next.Remember("SM0", Reply{Text: "¿A qué país?"})
		next.Remember("SM1", Reply{Text: "hola", QuickReplies: []QuickReply{{Label: "Sí", Token: "confirm"}}})

		ok, err := store.CompareAndSwap(ctx, "alice", 0, next)
		require.NoError(t, err)
		require.True(t, ok)

		loaded, err := store.LoadOrCreate(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, StateAmountEntry, loaded.State)
		assert.Equal(t, int64(1), loaded.Version)
		assert.Equal(t, "us-mx", loaded.Selections.CorridorID)
		require.NotNil(t, loaded.Selections.Amount)
		assert.True(t, loaded.Selections.Amount.Equal(amount))
		assert.Equal(t, []string{"us-mx", "us-co"}, loaded.Selections.Offered)
		require.NotNil(t, loaded.LastReply)
		assert.Equal(t, "confirm", loaded.LastReply.QuickReplies[0].Token)
		earlier, ok := loaded.ReplyFor("SM0")
		require.True(t, ok)
		assert.Equal(t, "¿A qué país?", earlier.Text)
	})

	t.Run("stale version loses", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()

		sess, err := store.LoadOrCreate(ctx, "bob")
		require.NoError(t, err)
		first := advance(sess, StateCorridorSelection, clock.Now())
		ok, err := store.CompareAndSwap(ctx, "bob", 0, first)
		require.NoError(t, err)
		require.True(t, ok)

		replay := advance(sess, StateCorridorSelection, clock.Now())
		ok, err = store.CompareAndSwap(ctx, "bob", 0, replay)
		require.NoError(t, err)
		assert.False(t, ok)

		second := advance(first, StateAmountEntry, clock.Now())
		ok, err = store.CompareAndSwap(ctx, "bob", 1, second)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = store.CompareAndSwap(ctx, "bob", 1, advance(first, StateTerminal, clock.Now()))
		require.NoError(t, err)
		assert.False(t, ok)

		loaded, err := store.LoadOrCreate(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, StateAmountEntry, loaded.State)
		assert.Equal(t, int64(2), loaded.Version)
	})

	t.Run("idle session resets but keeps version", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()

		sess, err := store.LoadOrCreate(ctx, "carol")
		require.NoError(t, err)
		next := advance(sess, StateConfirmation, clock.Now())
		next.Selections.CorridorID = "us-mx"
		ok, err := store.CompareAndSwap(ctx, "carol", 0, next)
		require.NoError(t, err)
		require.True(t, ok)

		clock.Advance(testIdle + time.Second)
		loaded, err := store.LoadOrCreate(ctx, "carol")
		require.NoError(t, err)
		assert.Equal(t, StateWelcome, loaded.State)
		assert.Empty(t, loaded.Selections.CorridorID)
		assert.Equal(t, int64(1), loaded.Version)

		ok, err = store.CompareAndSwap(ctx, "carol", loaded.Version, advance(loaded, StateCorridorSelection, clock.Now()))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("rejects writes that do not advance", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		sess := New("dave", clock.Now())
		_, err := store.CompareAndSwap(context.Background(), "dave", 0, sess)
		assert.ErrorIs(t, err, ErrInvalidSession)

		bad := advance(sess, State("limbo"), clock.Now())
		_, err = store.CompareAndSwap(context.Background(), "dave", 0, bad)
		assert.ErrorIs(t, err, ErrInvalidSession)
	})

	t.Run("delete forgets sender", func(t *testing.T) {
		clock := newTestClock()
		store := newStore(t, clock)
		ctx := context.Background()
		sess, _ := store.LoadOrCreate(ctx, "erin")
		ok, err := store.CompareAndSwap(ctx, "erin", 0, advance(sess, StateAmountEntry, clock.Now()))
		require.NoError(t, err)
		require.True(t, ok)

		require.NoError(t, store.Delete(ctx, "erin"))
		loaded, err := store.LoadOrCreate(ctx, "erin")
		require.NoError(t, err)
		assert.Equal(t, int64(0), loaded.Version)
		assert.Equal(t, StateWelcome, loaded.State)
	})
}
