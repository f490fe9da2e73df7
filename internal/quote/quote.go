// Package quote computes transfer fees and totals with fixed-point decimals.
package quote

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/remitchat/internal/corridor"
)

var (
	// ErrInvalidAmount is returned for non-positive, out-of-bounds or over-precise amounts.
	ErrInvalidAmount = errors.New("quote: invalid amount")
	// ErrUnknownCorridor is returned when the corridor is missing or inactive.
	ErrUnknownCorridor = errors.New("quote: unknown corridor")
)

// Amount validation reasons.
const (
	ReasonNonPositive     = "non_positive"
	ReasonBelowMin        = "below_min"
	ReasonAboveMax        = "above_max"
	ReasonTooManyDecimals = "too_many_decimals"
)

// AmountError describes why an amount was rejected for a corridor.
type AmountError struct {
	Reason string
	Min    decimal.Decimal
	Max    decimal.Decimal
}

func (e *AmountError) Error() string {
	return fmt.Sprintf("quote: invalid amount (%s, range %s-%s)", e.Reason, e.Min.StringFixed(2), e.Max.StringFixed(2))
}

func (e *AmountError) Unwrap() error { return ErrInvalidAmount }

// Quote is the priced result for an amount on a corridor.
type Quote struct {
	CorridorID string
	Currency   string
	Amount     decimal.Decimal
	Fee        decimal.Decimal
	Total      decimal.Decimal
}

// Display renders the total as shown to the sender, e.g. "$100.50 USD".
func (q Quote) Display() string {
	return Money(q.Total, q.Currency)
}

// Money formats a value with two decimals and a currency code.
func Money(v decimal.Decimal, currency string) string {
	if currency == "" {
		currency = "USD"
	}
	return "$" + v.StringFixed(2) + " " + currency
}

// Compute prices amount against c. It does not consult c.Active.
func Compute(amount decimal.Decimal, c corridor.Corridor) (Quote, error) {
	if err := ValidateAmount(amount, c); err != nil {
		return Quote{}, err
	}
	fee := amount.Mul(c.FeeRate).Round(2)
	return Quote{
		CorridorID: c.ID,
		Currency:   c.Currency,
		Amount:     amount,
		Fee:        fee,
		Total:      amount.Add(fee),
	}, nil
}

// ValidateAmount checks amount against the corridor bounds, inclusive.
func ValidateAmount(amount decimal.Decimal, c corridor.Corridor) error {
	reason := ""
	switch {
	case !amount.IsPositive():
		reason = ReasonNonPositive
	case !amount.Equal(amount.Truncate(2)):
		reason = ReasonTooManyDecimals
	case amount.LessThan(c.MinAmount):
		reason = ReasonBelowMin
	case amount.GreaterThan(c.MaxAmount):
		reason = ReasonAboveMax
	}
	if reason == "" {
		return nil
	}
	return &AmountError{Reason: reason, Min: c.MinAmount, Max: c.MaxAmount}
}

// Calculator resolves corridors from a catalog before pricing.
type Calculator struct {
	catalog corridor.Catalog
}

// NewCalculator builds a calculator over catalog.
func NewCalculator(catalog corridor.Catalog) *Calculator {
	if catalog == nil {
		panic("quote: catalog cannot be nil")
	}
	return &Calculator{catalog: catalog}
}

// Quote prices amount on the active corridor identified by corridorID.
func (c *Calculator) Quote(ctx context.Context, amount decimal.Decimal, corridorID string) (Quote, error) {
	cor, err := c.Corridor(ctx, corridorID)
	if err != nil {
		return Quote{}, err
	}
	return Compute(amount, cor)
}

// Corridor returns the active corridor or ErrUnknownCorridor.
func (c *Calculator) Corridor(ctx context.Context, corridorID string) (corridor.Corridor, error) {
	cor, err := c.catalog.Get(ctx, corridorID)
	if err != nil {
		if errors.Is(err, corridor.ErrNotFound) {
			return corridor.Corridor{}, fmt.Errorf("%w: %s", ErrUnknownCorridor, corridorID)
		}
		return corridor.Corridor{}, fmt.Errorf("quote: load corridor: %w", err)
	}
	if !cor.Active {
		return corridor.Corridor{}, fmt.Errorf("%w: %s inactive", ErrUnknownCorridor, corridorID)
	}
	return cor, nil
}
