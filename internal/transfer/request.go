// Package transfer hands confirmed transfer requests to the execution side
// and records what the execution side reports back.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status of a transfer as known to the ledger.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ErrNotFound is returned when a transfer id is unknown to the ledger.
var ErrNotFound = errors.New("transfer: not found")

var requestNamespace = uuid.MustParse("6f1c2a8e-3b4d-5e6f-8a9b-0c1d2e3f4a5b")

// Request is the finalized selection submitted for execution.
type Request struct {
	ID          string          `json:"id"`
	SenderID    string          `json:"sender_id"`
	CorridorID  string          `json:"corridor_id"`
	Currency    string          `json:"currency"`
	Amount      decimal.Decimal `json:"amount"`
	Fee         decimal.Decimal `json:"fee"`
	Total       decimal.Decimal `json:"total"`
	SubmittedAt time.Time       `json:"submitted_at"`
}

// RequestID derives a stable id from the sender and the session version that
// confirmed the transfer, so a redelivered confirmation maps to the same id.
func RequestID(senderID string, version int64) string {
	return uuid.NewSHA1(requestNamespace, []byte(fmt.Sprintf("%s:%d", senderID, version))).String()
}

// Validate checks the fields the execution side relies on.
func (r Request) Validate() error {
	switch {
	case r.ID == "":
		return errors.New("transfer: request id required")
	case r.SenderID == "":
		return errors.New("transfer: sender id required")
	case r.CorridorID == "":
		return errors.New("transfer: corridor id required")
	case !r.Amount.IsPositive():
		return errors.New("transfer: amount must be positive")
	case !r.Total.Equal(r.Amount.Add(r.Fee)):
		return errors.New("transfer: total does not match amount plus fee")
	}
	return nil
}

// Submitter accepts a request for asynchronous execution. A nil error is an
// acknowledgment of receipt only.
type Submitter interface {
	Submit(ctx context.Context, req Request) error
}
