// Package corridor holds the read-only catalog of payment corridors offered
// in the transfer conversation.
package corridor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a corridor id is not part of the catalog.
var ErrNotFound = errors.New("corridor: not found")

// Corridor is a source→destination payment route.
type Corridor struct {
	ID                  string
	Name                string
	SourceCountry       string
	DestinationCountry  string
	Currency            string
	DestinationCurrency string
	FeeRate             decimal.Decimal
	SettlementTime      string
	DeliveryMethods     []string
	MinAmount           decimal.Decimal
	MaxAmount           decimal.Decimal
	Aliases             []string
	Active              bool
}

// Catalog is the read-only view of corridors used by the conversation.
type Catalog interface {
	ListActive(ctx context.Context) ([]Corridor, error)
	Get(ctx context.Context, id string) (Corridor, error)
}

// Static is an immutable, ordered catalog safe for concurrent use.
type Static struct {
	ordered []Corridor
	byID    map[string]int
	active  []int
}

// NewStatic validates the corridors and returns a catalog preserving their order.
func NewStatic(corridors []Corridor) (*Static, error) {
	s := &Static{
		ordered: make([]Corridor, 0, len(corridors)),
		byID:    make(map[string]int, len(corridors)),
	}
	for _, c := range corridors {
		c.ID = strings.TrimSpace(c.ID)
		if err := validate(c); err != nil {
			return nil, err
		}
		if _, dup := s.byID[c.ID]; dup {
			return nil, fmt.Errorf("corridor: duplicate id %q", c.ID)
		}
		if c.Active {
			s.active = append(s.active, len(s.ordered))
		}
		s.byID[c.ID] = len(s.ordered)
		s.ordered = append(s.ordered, clone(c))
	}
	return s, nil
}

// ListActive returns the active corridors in catalog order.
func (s *Static) ListActive(_ context.Context) ([]Corridor, error) {
	out := make([]Corridor, len(s.active))
	for i, idx := range s.active {
		out[i] = clone(s.ordered[idx])
	}
	return out, nil
}

// Get returns the corridor with the given id, active or not.
func (s *Static) Get(_ context.Context, id string) (Corridor, error) {
	idx, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return Corridor{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return clone(s.ordered[idx]), nil
}

var one = decimal.NewFromInt(1)

func validate(c Corridor) error {
	if c.ID == "" {
		return errors.New("corridor: id required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("corridor: %s: name required", c.ID)
	}
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThan(one) {
		return fmt.Errorf("corridor: %s: fee rate %s outside [0,1]", c.ID, c.FeeRate)
	}
	if !c.MinAmount.IsPositive() {
		return fmt.Errorf("corridor: %s: min amount must be positive", c.ID)
	}
	if c.MaxAmount.LessThan(c.MinAmount) {
		return fmt.Errorf("corridor: %s: max amount below min amount", c.ID)
	}
	if !c.MinAmount.Equal(c.MinAmount.Truncate(2)) || !c.MaxAmount.Equal(c.MaxAmount.Truncate(2)) {
		return fmt.Errorf("corridor: %s: bounds must have at most two decimals", c.ID)
	}
	return nil
}

func clone(c Corridor) Corridor {
	c.DeliveryMethods = append([]string(nil), c.DeliveryMethods...)
	c.Aliases = append([]string(nil), c.Aliases...)
	return c
}
