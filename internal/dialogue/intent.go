// Package dialogue turns inbound chat text into transfer-conversation steps:
// it classifies input, applies the state table and persists the result with
// optimistic concurrency.
package dialogue

import (
	"github.com/shopspring/decimal"

	"github.com/wolfman30/remitchat/internal/session"
)

// Kind is the category of a classified message.
type Kind string

const (
	KindSelectCorridor Kind = "select_corridor"
	KindEnterAmount    Kind = "enter_amount"
	KindConfirm        Kind = "confirm"
	KindCancel         Kind = "cancel"
	KindUnrecognized   Kind = "unrecognized"
)

// Kinds lists every intent kind.
var Kinds = []Kind{KindSelectCorridor, KindEnterAmount, KindConfirm, KindCancel, KindUnrecognized}

// Unrecognized reason codes.
const (
	ReasonNotANumber      = "not_a_number"
	ReasonNonPositive     = "non_positive"
	ReasonTooManyDecimals = "too_many_decimals"
	ReasonViewAll         = "view_all"
	ReasonNoMatch         = "no_match"
)

// Intent is the structured reading of one inbound message. It is never persisted.
type Intent struct {
	Kind       Kind
	CorridorID string
	Amount     decimal.Decimal
	Reason     string
}

// OutboundMessage is what the gateway renders back to the sender.
type OutboundMessage = session.Reply

// QuickReply is one pre-enumerated option of an OutboundMessage.
type QuickReply = session.QuickReply

// Quick-reply tokens understood by the classifier.
const (
	TokenConfirm        = "confirm"
	TokenCancel         = "cancel"
	TokenViewAll        = "view_all"
	TokenStart          = "start"
	corridorTokenPrefix = "corridor:"
)

// CorridorToken is the quick-reply token that selects corridor id.
func CorridorToken(id string) string {
	return corridorTokenPrefix + id
}

func selectCorridor(id string) Intent {
	return Intent{Kind: KindSelectCorridor, CorridorID: id}
}

func unrecognized(reason string) Intent {
	return Intent{Kind: KindUnrecognized, Reason: reason}
}
