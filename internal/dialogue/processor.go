package dialogue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/internal/transfer"
	"github.com/wolfman30/remitchat/pkg/logging"
)

// ErrConflict means every compare-and-swap attempt lost to a concurrent write.
var ErrConflict = errors.New("dialogue: concurrent update conflict")

const (
	defaultMaxAttempts    = 3
	defaultHandoffTimeout = 2 * time.Second
)

// Inbound is one message as extracted by a transport adapter.
type Inbound struct {
	SenderID  string
	Text      string
	MessageID string
	Channel   string
}

// Processor runs the load, classify, transition, compare-and-swap loop.
type Processor struct {
	store      session.Store
	classifier *Classifier
	engine     *Engine
	submitter  transfer.Submitter
	metrics    *metrics.DialogueMetrics
	logger     *logging.Logger
	tracer     trace.Tracer

	maxAttempts    int
	handoffTimeout time.Duration
	now            func() time.Time

	handoffs sync.WaitGroup
}

// ProcessorOption customizes a Processor.
type ProcessorOption func(*Processor)

// WithMaxAttempts bounds the compare-and-swap retries per message.
func WithMaxAttempts(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithHandoffTimeout bounds each execution hand-off call.
func WithHandoffTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.handoffTimeout = d
		}
	}
}

// WithDialogueMetrics records transitions and conflicts.
func WithDialogueMetrics(m *metrics.DialogueMetrics) ProcessorOption {
	return func(p *Processor) {
		p.metrics = m
	}
}

// WithNow overrides the clock used to stamp transitions.
func WithNow(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

func NewProcessor(store session.Store, classifier *Classifier, engine *Engine, submitter transfer.Submitter, logger *logging.Logger, opts ...ProcessorOption) *Processor {
	if store == nil {
		panic("dialogue: session store cannot be nil")
	}
	if classifier == nil {
		panic("dialogue: classifier cannot be nil")
	}
	if engine == nil {
		panic("dialogue: engine cannot be nil")
	}
	if submitter == nil {
		panic("dialogue: submitter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	p := &Processor{
		store:          store,
		classifier:     classifier,
		engine:         engine,
		submitter:      submitter,
		logger:         logger,
		tracer:         otel.Tracer("remitchat.internal.dialogue"),
		maxAttempts:    defaultMaxAttempts,
		handoffTimeout: defaultHandoffTimeout,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle applies one inbound message and returns the reply to send. Store
// failures come back wrapping session.ErrUnavailable and carry no reply.
func (p *Processor) Handle(ctx context.Context, in Inbound) (OutboundMessage, error) {
	if in.SenderID == "" {
		return OutboundMessage{}, fmt.Errorf("dialogue: sender id required")
	}
	ctx, span := p.tracer.Start(ctx, "dialogue.handle", trace.WithAttributes(
		attribute.String("channel", in.Channel),
	))
	defer span.End()

	log := p.logger.With("sender_id", logging.MaskSender(in.SenderID), "channel", in.Channel, "message_id", in.MessageID)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		reply, done, err := p.attempt(ctx, in, log)
		if err != nil {
			span.RecordError(err)
			return OutboundMessage{}, err
		}
		if done {
			span.SetAttributes(attribute.Int("attempts", attempt))
			return reply, nil
		}
		p.metrics.ObserveConflict()
		log.Debug("session version conflict, retrying", "attempt", attempt)
	}

	p.metrics.ObserveExhausted()
	log.Warn("giving up after concurrent updates", "error", ErrConflict, "attempts", p.maxAttempts)
	span.RecordError(ErrConflict)
	return p.engine.Busy(), nil
}

// attempt runs one optimistic round. done is false when the write lost a race.
func (p *Processor) attempt(ctx context.Context, in Inbound, log *logging.Logger) (OutboundMessage, bool, error) {
	sess, err := p.store.LoadOrCreate(ctx, in.SenderID)
	if err != nil {
		return OutboundMessage{}, false, err
	}
	if reply, ok := sess.ReplyFor(in.MessageID); ok {
		p.metrics.ObserveReplay()
		log.Info("replayed message answered from session", "state", sess.State, "version", sess.Version)
		return reply, true, nil
	}

	intent := p.classifier.Classify(sess, in.Text)
	result, err := p.engine.Transition(ctx, sess, intent, p.now())
	if err != nil {
		return OutboundMessage{}, false, err
	}
	next := result.Session
	next.Remember(in.MessageID, result.Reply)

	ok, err := p.store.CompareAndSwap(ctx, in.SenderID, sess.Version, next)
	if err != nil {
		return OutboundMessage{}, false, err
	}
	if !ok {
		return OutboundMessage{}, false, nil
	}

	p.metrics.ObserveTransition(string(sess.State), string(next.State))
	log.Info("conversation advanced",
		"from", sess.State,
		"to", next.State,
		"intent", intent.Kind,
		"reason", intent.Reason,
		"version", next.Version,
	)
	if result.Handoff != nil {
		p.handoff(ctx, *result.Handoff, log)
	}
	return result.Reply, true, nil
}

// handoff submits req without waiting; failures are logged, never surfaced.
func (p *Processor) handoff(ctx context.Context, req transfer.Request, log *logging.Logger) {
	p.handoffs.Add(1)
	go func() {
		defer p.handoffs.Done()
		submitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.handoffTimeout)
		defer cancel()
		if err := p.submitter.Submit(submitCtx, req); err != nil {
			log.Error("transfer hand-off failed", "error", err, "transfer_id", req.ID)
			return
		}
		log.Info("transfer handed off", "transfer_id", req.ID, "corridor_id", req.CorridorID)
	}()
}

// Wait blocks until in-flight hand-offs finish.
func (p *Processor) Wait() {
	p.handoffs.Wait()
}
