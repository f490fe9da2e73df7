package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/remitchat/internal/corridor"
	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/internal/session"
)

func newTestProcessor(t *testing.T, store session.Store, sub *recordingSubmitter, opts ...ProcessorOption) *Processor {
	t.Helper()
	catalog := corridor.Default()
	opts = append([]ProcessorOption{WithNow(func() time.Time { return t0 })}, opts...)
	return NewProcessor(store, newTestClassifier(t), NewEngine(catalog), sub, nil, opts...)
}

func newMemoryStore() *session.MemoryStore {
	return session.NewMemoryStore(30*time.Minute, session.WithClock(func() time.Time { return t0 }))
}

func send(t *testing.T, p *Processor, text, messageID string) OutboundMessage {
	t.Helper()
	reply, err := p.Handle(context.Background(), Inbound{SenderID: testSender, Text: text, MessageID: messageID, Channel: "sms"})
	require.NoError(t, err)
	return reply
}

func load(t *testing.T, store session.Store) session.Session {
	t.Helper()
	s, err := store.LoadOrCreate(context.Background(), testSender)
	require.NoError(t, err)
	return s
}

func TestProcessorScenarios(t *testing.T) {
	store := newMemoryStore()
	sub := &recordingSubmitter{}
	p := newTestProcessor(t, store, sub)

	// 1. New sender says hola.
	reply := send(t, p, "hola", "m1")
	assert.Equal(t, session.StateCorridorSelection, load(t, store).State)
	assert.NotEmpty(t, reply.QuickReplies)

	// 2. First corridor, fee 0.5%.
	send(t, p, "1", "m2")
	s := load(t, store)
	assert.Equal(t, session.StateAmountEntry, s.State)
	assert.Equal(t, "us-mx", s.Selections.CorridorID)

	// 3. Amount 100.
	summary := send(t, p, "100", "m3")
	s = load(t, store)
	assert.Equal(t, session.StateConfirmation, s.State)
	assert.True(t, s.Selections.Fee.Equal(dec("0.50")))
	assert.True(t, s.Selections.Total.Equal(dec("100.50")))
	assert.Contains(t, summary.Text, "$0.50 USD")
	assert.Contains(t, summary.Text, "$100.50 USD")

	// 4. Unrecognized answer repeats the summary.
	again := send(t, p, "tal vez", "m4")
	assert.Equal(t, summary, again)
	assert.Equal(t, session.StateConfirmation, load(t, store).State)

	// 5. Confirm hands off once.
	send(t, p, "si", "m5")
	p.Wait()
	assert.Equal(t, session.StateTerminal, load(t, store).State)
	reqs := sub.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "us-mx", reqs[0].CorridorID)
	assert.Equal(t, testSender, reqs[0].SenderID)
	assert.True(t, reqs[0].Amount.Equal(dec("100")))
	assert.True(t, reqs[0].Fee.Equal(dec("0.50")))
	assert.True(t, reqs[0].Total.Equal(dec("100.50")))

	// 6. A new message resets the conversation.
	send(t, p, "hola", "m6")
	s = load(t, store)
	assert.Equal(t, session.StateWelcome, s.State)
	assert.Equal(t, int64(6), s.Version)
}

func TestProcessorReplayReturnsStoredReply(t *testing.T) {
	store := newMemoryStore()
	reg := prometheus.NewRegistry()
	p := newTestProcessor(t, store, &recordingSubmitter{}, WithDialogueMetrics(metrics.NewDialogueMetrics(reg)))

	send(t, p, "hola", "m1")
	first := send(t, p, "1", "m2")
	before := load(t, store)

	replayed := send(t, p, "1", "m2")
	after := load(t, store)
	assert.Equal(t, first, replayed)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, session.StateAmountEntry, after.State)
}

func TestProcessorLateRedeliveryDoesNotAdvance(t *testing.T) {
	store := newMemoryStore()
	sub := &recordingSubmitter{}
	p := newTestProcessor(t, store, sub)

	var confirmed OutboundMessage
	for i, text := range []string{"hola", "1", "100", "si", "hola"} {
		reply := send(t, p, text, fmt.Sprintf("m%d", i))
		if i == 3 {
			confirmed = reply
		}
	}
	p.Wait()
	before := load(t, store)
	require.Equal(t, session.StateWelcome, before.State)

	// m3 arrives again after m4 was applied.
	replayed := send(t, p, "si", "m3")
	p.Wait()
	after := load(t, store)
	assert.Equal(t, confirmed, replayed)
	assert.Equal(t, before.Version, after.Version)
	assert.Equal(t, session.StateWelcome, after.State)
	assert.Len(t, sub.Requests(), 1)
}

func TestProcessorConfirmReplayDoesNotResubmit(t *testing.T) {
	store := newMemoryStore()
	sub := &recordingSubmitter{}
	p := newTestProcessor(t, store, sub)

	for i, text := range []string{"hola", "1", "100", "si"} {
		send(t, p, text, fmt.Sprintf("m%d", i))
	}
	send(t, p, "si", "m3")
	p.Wait()

	assert.Len(t, sub.Requests(), 1)
	assert.Equal(t, session.StateTerminal, load(t, store).State)
}

// racingStore lets a duplicate delivery win the first compare-and-swap.
type racingStore struct {
	*session.MemoryStore
	once  sync.Once
	rival func()
}

func (r *racingStore) CompareAndSwap(ctx context.Context, sender string, expected int64, next session.Session) (bool, error) {
	r.once.Do(r.rival)
	return r.MemoryStore.CompareAndSwap(ctx, sender, expected, next)
}

func TestProcessorLosingReplayIsNoop(t *testing.T) {
	inner := newMemoryStore()
	sub := &recordingSubmitter{}
	direct := newTestProcessor(t, inner, sub)
	send(t, direct, "hola", "m1")

	racing := &racingStore{MemoryStore: inner}
	racing.rival = func() { send(t, direct, "1", "m2") }
	p := newTestProcessor(t, racing, sub)

	reply := send(t, p, "1", "m2")
	s := load(t, inner)
	assert.Equal(t, int64(2), s.Version, "only one application of m2")
	assert.Equal(t, session.StateAmountEntry, s.State)
	assert.Equal(t, *s.LastReply, reply)
}

type conflictStore struct {
	*session.MemoryStore
}

func (conflictStore) CompareAndSwap(context.Context, string, int64, session.Session) (bool, error) {
	return false, nil
}

func TestProcessorGivesUpAfterMaxAttempts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewDialogueMetrics(reg)
	p := newTestProcessor(t, conflictStore{newMemoryStore()}, &recordingSubmitter{}, WithMaxAttempts(2), WithDialogueMetrics(m))

	reply := send(t, p, "hola", "m1")
	assert.Contains(t, reply.Text, "intenta de nuevo")
	assert.Empty(t, reply.QuickReplies)
}

type brokenStore struct{}

var errRedisDown = errors.New("dial tcp: connection refused")

func (brokenStore) LoadOrCreate(context.Context, string) (session.Session, error) {
	return session.Session{}, fmt.Errorf("session: load: %w: %w", session.ErrUnavailable, errRedisDown)
}

func (brokenStore) CompareAndSwap(context.Context, string, int64, session.Session) (bool, error) {
	return false, nil
}

func (brokenStore) Delete(context.Context, string) error { return nil }

func TestProcessorSurfacesStoreUnavailable(t *testing.T) {
	p := newTestProcessor(t, brokenStore{}, &recordingSubmitter{})
	reply, err := p.Handle(context.Background(), Inbound{SenderID: testSender, Text: "hola"})
	assert.ErrorIs(t, err, session.ErrUnavailable)
	assert.Equal(t, OutboundMessage{}, reply)
}

func TestProcessorRejectsEmptySender(t *testing.T) {
	p := newTestProcessor(t, newMemoryStore(), &recordingSubmitter{})
	_, err := p.Handle(context.Background(), Inbound{Text: "hola"})
	assert.Error(t, err)
}

func TestProcessorHandoffFailureIsNotSurfaced(t *testing.T) {
	store := newMemoryStore()
	sub := &recordingSubmitter{err: errors.New("queue unavailable")}
	p := newTestProcessor(t, store, sub)

	var reply OutboundMessage
	for i, text := range []string{"hola", "1", "100", "si"} {
		reply = send(t, p, text, fmt.Sprintf("m%d", i))
	}
	p.Wait()
	assert.Contains(t, reply.Text, "Listo")
	assert.Equal(t, session.StateTerminal, load(t, store).State)
	assert.Len(t, sub.Requests(), 1)
}

func TestProcessorSerializesConcurrentMessages(t *testing.T) {
	store := newMemoryStore()
	p := newTestProcessor(t, store, &recordingSubmitter{}, WithMaxAttempts(50))

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Handle(context.Background(), Inbound{SenderID: testSender, Text: "xyz", MessageID: fmt.Sprintf("c%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(n), load(t, store).Version)
}

func TestProcessorIdleSessionRestarts(t *testing.T) {
	now := t0
	clock := func() time.Time { return now }
	store := session.NewMemoryStore(30*time.Minute, session.WithClock(clock))
	p := NewProcessor(store, newTestClassifier(t), NewEngine(corridor.Default()), &recordingSubmitter{}, nil, WithNow(clock))

	send(t, p, "hola", "m1")
	send(t, p, "1", "m2")
	now = now.Add(31 * time.Minute)

	reply := send(t, p, "100", "m3")
	s := load(t, store)
	assert.Equal(t, session.StateCorridorSelection, s.State)
	assert.Equal(t, int64(3), s.Version)
	assert.NotEmpty(t, reply.QuickReplies)
}
