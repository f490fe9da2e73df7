package corridor

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type fileCatalog struct {
	Corridors []fileCorridor `yaml:"corridors"`
}

type fileCorridor struct {
	ID                  string   `yaml:"id"`
	Name                string   `yaml:"name"`
	SourceCountry       string   `yaml:"source_country"`
	DestinationCountry  string   `yaml:"destination_country"`
	Currency            string   `yaml:"currency"`
	DestinationCurrency string   `yaml:"destination_currency"`
	FeeRate             string   `yaml:"fee_rate"`
	SettlementTime      string   `yaml:"settlement_time"`
	DeliveryMethods     []string `yaml:"delivery_methods"`
	MinAmount           string   `yaml:"min_amount"`
	MaxAmount           string   `yaml:"max_amount"`
	Aliases             []string `yaml:"aliases"`
	Active              *bool    `yaml:"active"`
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("corridor: read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Static, error) {
	var doc fileCatalog
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("corridor: decode catalog: %w", err)
	}
	corridors := make([]Corridor, 0, len(doc.Corridors))
	for i, fc := range doc.Corridors {
		c, err := fc.toCorridor()
		if err != nil {
			return nil, fmt.Errorf("corridor: entry %d: %w", i, err)
		}
		corridors = append(corridors, c)
	}
	return NewStatic(corridors)
}

func (fc fileCorridor) toCorridor() (Corridor, error) {
	fee, err := parseDecimal("fee_rate", fc.FeeRate, "0")
	if err != nil {
		return Corridor{}, err
	}
	minAmount, err := parseDecimal("min_amount", fc.MinAmount, "")
	if err != nil {
		return Corridor{}, err
	}
	maxAmount, err := parseDecimal("max_amount", fc.MaxAmount, "")
	if err != nil {
		return Corridor{}, err
	}
	active := true
	if fc.Active != nil {
		active = *fc.Active
	}
	currency := strings.ToUpper(strings.TrimSpace(fc.Currency))
	if currency == "" {
		currency = "USD"
	}
	return Corridor{
		ID:                  fc.ID,
		Name:                fc.Name,
		SourceCountry:       fc.SourceCountry,
		DestinationCountry:  fc.DestinationCountry,
		Currency:            currency,
		DestinationCurrency: strings.ToUpper(strings.TrimSpace(fc.DestinationCurrency)),
		FeeRate:             fee,
		SettlementTime:      fc.SettlementTime,
		DeliveryMethods:     fc.DeliveryMethods,
		MinAmount:           minAmount,
		MaxAmount:           maxAmount,
		Aliases:             fc.Aliases,
		Active:              active,
	}, nil
}

func parseDecimal(field, raw, fallback string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = fallback
	}
	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%s required", field)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}
