package dialogue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/remitchat/internal/corridor"
	"github.com/wolfman30/remitchat/internal/session"
	"github.com/wolfman30/remitchat/internal/transfer"
)

const testSender = "+15551234567"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func newTestClassifier(t *testing.T) *Classifier {
	t.Helper()
	active, err := corridor.Default().ListActive(context.Background())
	require.NoError(t, err)
	return NewClassifier(active)
}

func defaultOffered(t *testing.T) []string {
	t.Helper()
	active, err := corridor.Default().ListActive(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, defaultOfferLimit)
	for _, c := range active[:defaultOfferLimit] {
		ids = append(ids, c.ID)
	}
	return ids
}

// sessionIn builds a well-formed session in state.
func sessionIn(t *testing.T, state session.State) session.Session {
	t.Helper()
	s := session.New(testSender, t0)
	s.Version = 4
	s.State = state
	switch state {
	case session.StateCorridorSelection:
		s.Selections.Offered = defaultOffered(t)
	case session.StateAmountEntry:
		s.Selections.CorridorID = "us-mx"
	case session.StateConfirmation, session.StateTerminal:
		s.Selections.CorridorID = "us-mx"
		s.Selections.Amount = decPtr("100")
		s.Selections.Fee = decPtr("0.50")
		s.Selections.Total = decPtr("100.50")
	}
	return s
}

type recordingSubmitter struct {
	mu       sync.Mutex
	requests []transfer.Request
	err      error
}

func (r *recordingSubmitter) Submit(_ context.Context, req transfer.Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	return r.err
}

func (r *recordingSubmitter) Requests() []transfer.Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]transfer.Request(nil), r.requests...)
}

type failingCatalog struct{}

var errCatalogDown = errors.New("catalog backend down")

func (failingCatalog) ListActive(context.Context) ([]corridor.Corridor, error) {
	return nil, errCatalogDown
}

func (failingCatalog) Get(context.Context, string) (corridor.Corridor, error) {
	return corridor.Corridor{}, errCatalogDown
}
