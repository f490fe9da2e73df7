package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/remitchat/internal/corridor"
	"github.com/wolfman30/remitchat/internal/quote"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/internal/transfer"
)

const defaultOfferLimit = 6

// Result is the outcome of one transition.
type Result struct {
	Session session.Session
	Reply   OutboundMessage
	// Handoff is set only on the Confirmation to Terminal transition.
	Handoff *transfer.Request
}

// Engine applies the conversation state table. It holds no mutable state.
type Engine struct {
	catalog    corridor.Catalog
	quotes     *quote.Calculator
	prompts    *Prompts
	offerLimit int
}

// EngineOption customizes the engine.
type EngineOption func(*Engine)

// WithOfferLimit caps how many corridors the first list shows.
func WithOfferLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.offerLimit = n
		}
	}
}

// WithPrompts overrides the prompt catalog.
func WithPrompts(p *Prompts) EngineOption {
	return func(e *Engine) {
		if p != nil {
			e.prompts = p
		}
	}
}

func NewEngine(catalog corridor.Catalog, opts ...EngineOption) *Engine {
	if catalog == nil {
		panic("dialogue: catalog cannot be nil")
	}
	e := &Engine{
		catalog:    catalog,
		quotes:     quote.NewCalculator(catalog),
		offerLimit: defaultOfferLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.prompts == nil {
		e.prompts = MustPrompts()
	}
	return e
}

// turn carries the session being built during one transition.
type turn struct {
	ctx  context.Context
	next session.Session
}

// Transition computes the next session and reply for intent. Every call
// yields a session one version ahead of sess; the only error is a catalog
// failure, which wraps session.ErrUnavailable.
func (e *Engine) Transition(ctx context.Context, sess session.Session, intent Intent, now time.Time) (Result, error) {
	t := &turn{ctx: ctx, next: sess.Clone()}
	t.next.Version = sess.Version + 1
	t.next.LastUpdated = now.UTC()

	var (
		reply   OutboundMessage
		handoff *transfer.Request
		err     error
	)
	switch sess.State {
	case session.StateWelcome:
		reply, err = e.offerCorridors(t, promptWelcome, false)
	case session.StateCorridorSelection:
		reply, err = e.fromCorridorSelection(t, intent)
	case session.StateAmountEntry:
		reply, err = e.fromAmountEntry(t, intent)
	case session.StateConfirmation:
		reply, handoff, err = e.fromConfirmation(t, intent)
	case session.StateTerminal:
		reply, err = e.restart(t)
	default:
		// Unknown states cannot come out of a store, but resetting keeps the table total.
		reply, err = e.offerCorridors(t, promptWelcome, false)
	}
	if err != nil {
		return Result{}, err
	}

	t.next.LastReply = &reply
	return Result{Session: t.next, Reply: reply, Handoff: handoff}, nil
}

func (e *Engine) fromCorridorSelection(t *turn, intent Intent) (OutboundMessage, error) {
	if intent.Kind == KindUnrecognized && intent.Reason == ReasonViewAll {
		return e.offerCorridors(t, promptCorridorAll, true)
	}
	if intent.Kind != KindSelectCorridor || intent.CorridorID == "" {
		return e.offerCorridors(t, promptCorridorRetry, false)
	}

	cor, err := e.quotes.Corridor(t.ctx, intent.CorridorID)
	if err != nil {
		if errors.Is(err, quote.ErrUnknownCorridor) {
			return e.offerCorridors(t, promptCorridorRetry, false)
		}
		return OutboundMessage{}, catalogUnavailable(err)
	}

	t.next.State = session.StateAmountEntry
	t.next.Selections = session.Selections{CorridorID: cor.ID}
	return e.amountPrompt(promptAmount, cor)
}

func (e *Engine) fromAmountEntry(t *turn, intent Intent) (OutboundMessage, error) {
	cor, ok, err := e.selectedCorridor(t)
	if err != nil || !ok {
		return e.corridorGone(t, err)
	}

	switch intent.Kind {
	case KindEnterAmount:
		q, err := quote.Compute(intent.Amount, cor)
		if err != nil {
			var amountErr *quote.AmountError
			if errors.As(err, &amountErr) && amountErr.Reason == quote.ReasonNonPositive {
				return e.text(promptNonPositive, nil)
			}
			if errors.As(err, &amountErr) && amountErr.Reason == quote.ReasonTooManyDecimals {
				return e.text(promptTooManyDecimals, nil)
			}
			return e.text(promptAmountBounds, viewOf(cor))
		}
		t.next.State = session.StateConfirmation
		t.next.Selections.Amount = &q.Amount
		t.next.Selections.Fee = &q.Fee
		t.next.Selections.Total = &q.Total
		t.next.Selections.Offered = nil
		return e.summary(cor, q)
	case KindSelectCorridor:
		return e.switchCorridor(t, intent.CorridorID, cor)
	case KindUnrecognized:
		switch intent.Reason {
		case ReasonNonPositive:
			return e.text(promptNonPositive, nil)
		case ReasonTooManyDecimals:
			return e.text(promptTooManyDecimals, nil)
		default:
			return e.text(promptNotANumber, nil)
		}
	default:
		return e.amountPrompt(promptAmount, cor)
	}
}

// switchCorridor replaces the chosen corridor from AmountEntry. An empty,
// unknown or inactive target keeps the current one.
func (e *Engine) switchCorridor(t *turn, id string, current corridor.Corridor) (OutboundMessage, error) {
	if id == "" || id == current.ID {
		return e.amountPrompt(promptAmount, current)
	}
	cor, err := e.quotes.Corridor(t.ctx, id)
	if err != nil {
		if errors.Is(err, quote.ErrUnknownCorridor) {
			return e.amountPrompt(promptAmount, current)
		}
		return OutboundMessage{}, catalogUnavailable(err)
	}
	t.next.Selections = session.Selections{CorridorID: cor.ID}
	return e.amountPrompt(promptAmount, cor)
}

func (e *Engine) fromConfirmation(t *turn, intent Intent) (OutboundMessage, *transfer.Request, error) {
	cor, ok, err := e.selectedCorridor(t)
	if err != nil || !ok {
		reply, err := e.corridorGone(t, err)
		return reply, nil, err
	}
	sel := t.next.Selections
	if sel.Amount == nil {
		// A confirmation without an amount cannot be honoured; ask again.
		t.next.State = session.StateAmountEntry
		t.next.Selections.ClearAmount()
		reply, err := e.amountPrompt(promptAmount, cor)
		return reply, nil, err
	}

	q, err := quote.Compute(*sel.Amount, cor)
	if err != nil {
		t.next.State = session.StateAmountEntry
		t.next.Selections.ClearAmount()
		reply, err := e.text(promptAmountBounds, viewOf(cor))
		return reply, nil, err
	}
	// Derived values always follow the current corridor terms.
	t.next.Selections.Fee = &q.Fee
	t.next.Selections.Total = &q.Total

	switch intent.Kind {
	case KindConfirm:
		req := transfer.Request{
			ID:          transfer.RequestID(t.next.SenderID, t.next.Version),
			SenderID:    t.next.SenderID,
			CorridorID:  cor.ID,
			Currency:    q.Currency,
			Amount:      q.Amount,
			Fee:         q.Fee,
			Total:       q.Total,
			SubmittedAt: t.next.LastUpdated,
		}
		t.next.State = session.StateTerminal
		reply, err := e.text(promptConfirmed, confirmedView{
			summaryView: summaryOf(cor, q),
			Reference:   strings.ToUpper(req.ID[:8]),
		})
		return reply, &req, err
	case KindCancel:
		t.next.State = session.StateAmountEntry
		t.next.Selections.ClearAmount()
		reply, err := e.amountPrompt(promptAmountAgain, cor)
		return reply, nil, err
	default:
		reply, err := e.summary(cor, q)
		return reply, nil, err
	}
}

func (e *Engine) restart(t *turn) (OutboundMessage, error) {
	t.next.State = session.StateWelcome
	t.next.Selections = session.Selections{}
	reply, err := e.text(promptWelcome, nil)
	if err != nil {
		return OutboundMessage{}, err
	}
	reply.QuickReplies = []QuickReply{{Label: "Nuevo envío", Token: TokenStart}}
	return reply, nil
}

// selectedCorridor loads the session's corridor; ok is false when it is
// missing or no longer active.
func (e *Engine) selectedCorridor(t *turn) (corridor.Corridor, bool, error) {
	id := t.next.Selections.CorridorID
	if id == "" {
		return corridor.Corridor{}, false, nil
	}
	cor, err := e.quotes.Corridor(t.ctx, id)
	if err != nil {
		if errors.Is(err, quote.ErrUnknownCorridor) {
			return corridor.Corridor{}, false, nil
		}
		return corridor.Corridor{}, false, catalogUnavailable(err)
	}
	return cor, true, nil
}

// corridorGone sends the sender back to corridor selection when the chosen
// corridor disappeared or was never set.
func (e *Engine) corridorGone(t *turn, err error) (OutboundMessage, error) {
	if err != nil {
		return OutboundMessage{}, err
	}
	id := t.next.Selections.CorridorID
	if id == "" {
		return e.offerCorridors(t, promptCorridorRetry, false)
	}
	name := id
	if cor, getErr := e.catalog.Get(t.ctx, id); getErr == nil {
		name = cor.DestinationCountry
	}
	return e.offerCorridorsWith(t, promptCorridorUnavailable, corridorView{Corridor: name}, false)
}

// offerCorridors moves the session to CorridorSelection and lists the active
// corridors, either the top offerLimit plus a "view all" option or all of them.
func (e *Engine) offerCorridors(t *turn, prompt string, all bool) (OutboundMessage, error) {
	return e.offerCorridorsWith(t, prompt, nil, all)
}

func (e *Engine) offerCorridorsWith(t *turn, prompt string, data any, all bool) (OutboundMessage, error) {
	active, err := e.catalog.ListActive(t.ctx)
	if err != nil {
		return OutboundMessage{}, catalogUnavailable(err)
	}
	text, err := e.prompts.Render(prompt, data)
	if err != nil {
		return OutboundMessage{}, err
	}

	shown := active
	truncated := !all && len(active) > e.offerLimit
	if truncated {
		shown = active[:e.offerLimit]
	}
	reply := OutboundMessage{Text: text}
	offered := make([]string, 0, len(shown))
	for _, c := range shown {
		offered = append(offered, c.ID)
		reply.QuickReplies = append(reply.QuickReplies, QuickReply{Label: c.DestinationCountry, Token: CorridorToken(c.ID)})
	}
	if truncated {
		reply.QuickReplies = append(reply.QuickReplies, QuickReply{Label: "Ver todos", Token: TokenViewAll})
	}

	t.next.State = session.StateCorridorSelection
	t.next.Selections = session.Selections{Offered: offered}
	return reply, nil
}

func (e *Engine) amountPrompt(prompt string, cor corridor.Corridor) (OutboundMessage, error) {
	view := viewOf(cor)
	text, err := e.prompts.Render(prompt, view)
	if err != nil {
		return OutboundMessage{}, err
	}
	reply := OutboundMessage{Text: text}
	for _, amount := range exampleAmounts(cor) {
		reply.QuickReplies = append(reply.QuickReplies, QuickReply{
			Label: quote.Money(amount, cor.Currency),
			Token: amount.StringFixed(2),
		})
	}
	return reply, nil
}

func (e *Engine) summary(cor corridor.Corridor, q quote.Quote) (OutboundMessage, error) {
	text, err := e.prompts.Render(promptSummary, summaryOf(cor, q))
	if err != nil {
		return OutboundMessage{}, err
	}
	return OutboundMessage{Text: text, QuickReplies: confirmReplies()}, nil
}

func (e *Engine) text(prompt string, data any) (OutboundMessage, error) {
	text, err := e.prompts.Render(prompt, data)
	if err != nil {
		return OutboundMessage{}, err
	}
	return OutboundMessage{Text: text}, nil
}

// Busy is the reply sent when a message could not be applied after retries.
func (e *Engine) Busy() OutboundMessage {
	reply, err := e.text(promptBusy, nil)
	if err != nil {
		return OutboundMessage{Text: "Por favor intenta de nuevo."}
	}
	return reply
}

func confirmReplies() []QuickReply {
	return []QuickReply{
		{Label: "Confirmar", Token: TokenConfirm},
		{Label: "Cancelar", Token: TokenCancel},
	}
}

func catalogUnavailable(err error) error {
	return fmt.Errorf("dialogue: catalog: %w: %w", session.ErrUnavailable, err)
}
