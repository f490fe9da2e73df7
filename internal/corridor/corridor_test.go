package corridor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat := Default()
	ctx := context.Background()

	active, err := cat.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 7)
	assert.Equal(t, "us-mx", active[0].ID)
	assert.True(t, active[0].FeeRate.Equal(decimal.RequireFromString("0.005")))

	inactive, err := cat.Get(ctx, "us-ar")
	require.NoError(t, err)
	assert.False(t, inactive.Active)
	for _, c := range active {
		assert.NotEqual(t, "us-ar", c.ID)
	}
}

func TestStaticGetUnknown(t *testing.T) {
	_, err := Default().Get(context.Background(), "zz-yy")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListActiveReturnsCopies(t *testing.T) {
	cat := Default()
	first, err := cat.ListActive(context.Background())
	require.NoError(t, err)
	first[0].Name = "mutated"
	first[0].DeliveryMethods[0] = "mutated"

	second, err := cat.ListActive(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", second[0].Name)
	assert.NotEqual(t, "mutated", second[0].DeliveryMethods[0])
}

func TestNewStaticValidation(t *testing.T) {
	valid := Corridor{
		ID:        "us-mx",
		Name:      "US → MX",
		FeeRate:   decimal.RequireFromString("0.01"),
		MinAmount: decimal.NewFromInt(1),
		MaxAmount: decimal.NewFromInt(100),
		Active:    true,
	}

	tests := []struct {
		name   string
		mutate func(c *Corridor)
	}{
		{"missing id", func(c *Corridor) { c.ID = " " }},
		{"missing name", func(c *Corridor) { c.Name = "" }},
		{"negative fee", func(c *Corridor) { c.FeeRate = decimal.RequireFromString("-0.1") }},
		{"fee above one", func(c *Corridor) { c.FeeRate = decimal.RequireFromString("1.01") }},
		{"zero min", func(c *Corridor) { c.MinAmount = decimal.Zero }},
		{"max below min", func(c *Corridor) { c.MaxAmount = decimal.RequireFromString("0.5") }},
		{"three decimals", func(c *Corridor) { c.MaxAmount = decimal.RequireFromString("99.999") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			_, err := NewStatic([]Corridor{c})
			assert.Error(t, err)
		})
	}

	_, err := NewStatic([]Corridor{valid, valid})
	assert.ErrorContains(t, err, "duplicate")
}

func TestLoadFile(t *testing.T) {
	doc := `
corridors:
  - id: us-ph
    name: US → Philippines
    destination_country: Philippines
    fee_rate: "0.0075"
    settlement_time: minutes
    delivery_methods: [mobile_wallet]
    min_amount: "1"
    max_amount: "500.50"
    aliases: [pinas]
  - id: us-in
    name: US → India
    fee_rate: "0.01"
    min_amount: "5"
    max_amount: "1000"
    active: false
`
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cat, err := LoadFile(path)
	require.NoError(t, err)

	active, err := cat.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "USD", active[0].Currency)
	assert.Equal(t, []string{"pinas"}, active[0].Aliases)
	assert.True(t, active[0].MaxAmount.Equal(decimal.RequireFromString("500.5")))
}

func TestParseRejectsBadDecimal(t *testing.T) {
	_, err := Parse([]byte("corridors:\n  - id: x\n    name: X\n    min_amount: abc\n    max_amount: \"10\"\n"))
	assert.ErrorContains(t, err, "min_amount")

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
