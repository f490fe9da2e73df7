// Package session tracks per-sender conversation state between independent
// webhook deliveries and guards updates with optimistic versioning.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// State is a step of the transfer conversation.
type State string

const (
	StateWelcome           State = "welcome"
	StateCorridorSelection State = "corridor_selection"
	StateAmountEntry       State = "amount_entry"
	StateConfirmation      State = "confirmation"
	StateTerminal          State = "terminal"
)

// States lists every valid state in conversation order.
var States = []State{StateWelcome, StateCorridorSelection, StateAmountEntry, StateConfirmation, StateTerminal}

// Valid reports whether s is one of the enumerated states.
func (s State) Valid() bool {
	switch s {
	case StateWelcome, StateCorridorSelection, StateAmountEntry, StateConfirmation, StateTerminal:
		return true
	default:
		return false
	}
}

var (
	// ErrUnavailable wraps every backing-store I/O failure.
	ErrUnavailable = errors.New("session: store unavailable")
	// ErrInvalidSession is returned when a write would break a session invariant.
	ErrInvalidSession = errors.New("session: invalid session")
)

// QuickReply is a pre-enumerated response option.
type QuickReply struct {
	Label string `json:"label"`
	Token string `json:"token"`
}

// Reply is an outbound message; the last one is kept to answer replays.
type Reply struct {
	Text         string       `json:"text"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
}

// Selections is the partially built transfer request.
type Selections struct {
	CorridorID string           `json:"corridor_id,omitempty"`
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Fee        *decimal.Decimal `json:"fee,omitempty"`
	Total      *decimal.Decimal `json:"total,omitempty"`
	// Offered holds the corridor ids behind the numbered options of the last list.
	Offered []string `json:"offered,omitempty"`
}

// ClearAmount drops the amount and its derived values.
func (s *Selections) ClearAmount() {
	s.Amount = nil
	s.Fee = nil
	s.Total = nil
}

// MaxRecentDeliveries bounds how many answered message ids a session keeps
// for redelivery detection.
const MaxRecentDeliveries = 8

// Delivery is an inbound message id and the reply it produced.
type Delivery struct {
	MessageID string `json:"message_id"`
	Reply     Reply  `json:"reply"`
}

// Session is the durable state of one sender's conversation.
type Session struct {
	SenderID      string     `json:"sender_id"`
	State         State      `json:"state"`
	Selections    Selections `json:"selections"`
	LastUpdated   time.Time  `json:"last_updated"`
	Version       int64      `json:"version"`
	LastMessageID string     `json:"last_message_id,omitempty"`
	LastReply     *Reply     `json:"last_reply,omitempty"`
	// Recent holds the latest deliveries, oldest first.
	Recent []Delivery `json:"recent,omitempty"`
}

// New returns a fresh Welcome session.
func New(senderID string, now time.Time) Session {
	return Session{
		SenderID:    senderID,
		State:       StateWelcome,
		LastUpdated: now.UTC(),
	}
}

// Expired reports whether the session has been idle longer than idle.
func (s Session) Expired(now time.Time, idle time.Duration) bool {
	if idle <= 0 || s.LastUpdated.IsZero() {
		return false
	}
	return now.Sub(s.LastUpdated) > idle
}

// ReplyFor returns the reply already sent for messageID, if the session
// still remembers it.
func (s Session) ReplyFor(messageID string) (Reply, bool) {
	if messageID == "" {
		return Reply{}, false
	}
	if messageID == s.LastMessageID && s.LastReply != nil {
		return cloneReply(*s.LastReply), true
	}
	for i := len(s.Recent) - 1; i >= 0; i-- {
		if s.Recent[i].MessageID == messageID {
			return cloneReply(s.Recent[i].Reply), true
		}
	}
	return Reply{}, false
}

// Remember records reply as the answer to messageID, dropping the oldest
// delivery past MaxRecentDeliveries.
func (s *Session) Remember(messageID string, reply Reply) {
	s.LastMessageID = messageID
	stored := cloneReply(reply)
	s.LastReply = &stored
	if messageID == "" {
		return
	}
	s.Recent = append(s.Recent, Delivery{MessageID: messageID, Reply: cloneReply(reply)})
	if over := len(s.Recent) - MaxRecentDeliveries; over > 0 {
		s.Recent = append([]Delivery(nil), s.Recent[over:]...)
	}
}

// Clone returns a deep copy so callers can mutate it freely.
func (s Session) Clone() Session {
	out := s
	out.Selections.Offered = append([]string(nil), s.Selections.Offered...)
	out.Selections.Amount = cloneDecimal(s.Selections.Amount)
	out.Selections.Fee = cloneDecimal(s.Selections.Fee)
	out.Selections.Total = cloneDecimal(s.Selections.Total)
	if s.LastReply != nil {
		reply := cloneReply(*s.LastReply)
		out.LastReply = &reply
	}
	if s.Recent != nil {
		out.Recent = make([]Delivery, len(s.Recent))
		for i, d := range s.Recent {
			out.Recent[i] = Delivery{MessageID: d.MessageID, Reply: cloneReply(d.Reply)}
		}
	}
	return out
}

func cloneReply(r Reply) Reply {
	r.QuickReplies = append([]QuickReply(nil), r.QuickReplies...)
	return r
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Store persists sessions with per-sender compare-and-swap.
type Store interface {
	// LoadOrCreate returns the stored session, or a fresh Welcome session when
	// none exists or the stored one is idle past the timeout.
	LoadOrCreate(ctx context.Context, senderID string) (Session, error)
	// CompareAndSwap writes next only if the stored version equals
	// expectedVersion (absent counts as zero).
	CompareAndSwap(ctx context.Context, senderID string, expectedVersion int64, next Session) (bool, error)
	// Delete removes the sender's session.
	Delete(ctx context.Context, senderID string) error
}

// Option configures the expiry policy shared by all stores.
type Option func(*policy)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *policy) {
		if now != nil {
			p.now = now
		}
	}
}

type policy struct {
	idle time.Duration
	now  func() time.Time
}

func newPolicy(idle time.Duration, opts ...Option) policy {
	p := policy{idle: idle, now: time.Now}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// resolve applies the idle timeout to a loaded session. An expired session
// comes back as Welcome but keeps its version so later writes still compare
// against what is physically stored.
func (p policy) resolve(senderID string, stored Session, found bool) Session {
	now := p.now()
	if !found {
		return New(senderID, now)
	}
	if stored.Expired(now, p.idle) {
		fresh := New(senderID, now)
		fresh.Version = stored.Version
		return fresh
	}
	return stored
}

// storageTTL is how long a backend keeps a key after its last write; logical
// expiry happens earlier in resolve.
func (p policy) storageTTL() time.Duration {
	if p.idle <= 0 {
		return 0
	}
	ttl := 2 * p.idle
	if ttl < time.Minute {
		ttl = time.Minute
	}
	return ttl
}

func validateWrite(senderID string, expected int64, next Session) error {
	if senderID == "" {
		return fmt.Errorf("%w: sender id required", ErrInvalidSession)
	}
	if next.SenderID != senderID {
		return fmt.Errorf("%w: sender mismatch", ErrInvalidSession)
	}
	if !next.State.Valid() {
		return fmt.Errorf("%w: state %q", ErrInvalidSession, next.State)
	}
	if next.Version <= expected {
		return fmt.Errorf("%w: version %d does not advance %d", ErrInvalidSession, next.Version, expected)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("session: %s: %w: %w", op, ErrUnavailable, err)
}
