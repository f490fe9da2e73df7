package dialogue

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/shopspring/decimal"

	"github.com/wolfman30/remitchat/internal/corridor"
	"github.com/wolfman30/remitchat/internal/quote"
)

const (
	promptWelcome             = "welcome"
	promptCorridorRetry       = "corridor_retry"
	promptCorridorAll         = "corridor_all"
	promptCorridorUnavailable = "corridor_unavailable"
	promptAmount              = "amount"
	promptAmountAgain         = "amount_again"
	promptAmountBounds        = "amount_bounds"
	promptNotANumber          = "not_a_number"
	promptNonPositive         = "non_positive"
	promptTooManyDecimals     = "too_many_decimals"
	promptSummary             = "summary"
	promptConfirmed           = "confirmed"
	promptBusy                = "busy"
)

var promptTexts = map[string]string{
	promptWelcome:             "¡Hola! Te ayudo a enviar dinero desde Estados Unidos. ¿A qué país quieres enviar?",
	promptCorridorRetry:       "No encontré ese destino. Elige una opción de la lista o escribe el nombre del país.",
	promptCorridorAll:         "Estos son todos los destinos disponibles:",
	promptCorridorUnavailable: "Lo sentimos, {{.Corridor}} ya no está disponible. Elige otro destino:",
	promptAmount:              "Perfecto, enviarás a {{.Corridor}} (comisión {{.FeePercent}}, llega en {{.Settlement}}). ¿Cuánto quieres enviar en {{.Currency}}? Por ejemplo: {{join .Examples \", \"}}.",
	promptAmountAgain:         "Envío cancelado. ¿Qué monto quieres enviar a {{.Corridor}}? Por ejemplo: {{join .Examples \", \"}}.",
	promptAmountBounds:        "El monto para {{.Corridor}} debe estar entre {{.Min}} y {{.Max}}. Intenta de nuevo.",
	promptNotANumber:          "No entendí el monto. Escribe solo el número, por ejemplo 150 o 150.25.",
	promptNonPositive:         "El monto debe ser mayor que cero.",
	promptTooManyDecimals:     "Usa como máximo dos decimales, por ejemplo 150.25.",
	promptSummary:             "Resumen de tu envío:\nDestino: {{.Corridor}}\nMonto: {{.Amount}}\nComisión: {{.Fee}}\nTotal a pagar: {{.Total}}\nEntrega: {{.Delivery}} ({{.Settlement}})\n¿Confirmas el envío?",
	promptConfirmed:           "¡Listo! Recibimos tu solicitud de envío de {{.Amount}} a {{.Corridor}}. Referencia: {{.Reference}}. Te avisaremos cuando se complete.",
	promptBusy:                "Estamos procesando tu mensaje anterior. Por favor intenta de nuevo en un momento.",
}

var deliveryLabels = map[string]string{
	"bank_transfer": "depósito bancario",
	"cash_pickup":   "retiro en efectivo",
	"mobile_wallet": "billetera móvil",
}

// Prompts renders the Spanish prompt catalog.
type Prompts struct {
	templates map[string]*template.Template
}

// NewPrompts parses every prompt with strict missing-key semantics.
func NewPrompts() (*Prompts, error) {
	funcs := template.FuncMap{"join": strings.Join}
	p := &Prompts{templates: make(map[string]*template.Template, len(promptTexts))}
	for name, text := range promptTexts {
		t, err := template.New(name).Option("missingkey=error").Funcs(funcs).Parse(text)
		if err != nil {
			return nil, fmt.Errorf("dialogue: parse prompt %s: %w", name, err)
		}
		p.templates[name] = t
	}
	return p, nil
}

// MustPrompts is NewPrompts for package-level use; the catalog is static.
func MustPrompts() *Prompts {
	p, err := NewPrompts()
	if err != nil {
		panic(err)
	}
	return p
}

// Render executes the named prompt.
func (p *Prompts) Render(name string, data any) (string, error) {
	t, ok := p.templates[name]
	if !ok {
		return "", fmt.Errorf("dialogue: unknown prompt %q", name)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("dialogue: render %s: %w", name, err)
	}
	return buf.String(), nil
}

type corridorView struct {
	Corridor   string
	Currency   string
	FeePercent string
	Settlement string
	Delivery   string
	Min        string
	Max        string
	Examples   []string
}

var hundred = decimal.NewFromInt(100)

func viewOf(c corridor.Corridor) corridorView {
	delivery := make([]string, 0, len(c.DeliveryMethods))
	for _, m := range c.DeliveryMethods {
		if label, ok := deliveryLabels[m]; ok {
			delivery = append(delivery, label)
		} else {
			delivery = append(delivery, m)
		}
	}
	examples := exampleAmounts(c)
	labels := make([]string, len(examples))
	for i, e := range examples {
		labels[i] = quote.Money(e, c.Currency)
	}
	return corridorView{
		Corridor:   c.DestinationCountry,
		Currency:   c.Currency,
		FeePercent: c.FeeRate.Mul(hundred).String() + "%",
		Settlement: c.SettlementTime,
		Delivery:   strings.Join(delivery, " o "),
		Min:        quote.Money(c.MinAmount, c.Currency),
		Max:        quote.Money(c.MaxAmount, c.Currency),
		Examples:   labels,
	}
}

var roundSteps = []int64{1000, 500, 100, 50, 10}

// exampleAmounts returns the minimum, a round value near the middle of the
// range and the maximum, without duplicates.
func exampleAmounts(c corridor.Corridor) []decimal.Decimal {
	mid := c.MinAmount.Add(c.MaxAmount).Div(decimal.NewFromInt(2))
	for _, step := range roundSteps {
		s := decimal.NewFromInt(step)
		rounded := mid.Div(s).Floor().Mul(s)
		if rounded.GreaterThan(c.MinAmount) && rounded.LessThan(c.MaxAmount) {
			mid = rounded
			break
		}
	}
	mid = mid.Round(2)
	out := []decimal.Decimal{c.MinAmount}
	for _, v := range []decimal.Decimal{mid, c.MaxAmount} {
		if !v.Equal(out[len(out)-1]) {
			out = append(out, v)
		}
	}
	return out
}

type summaryView struct {
	corridorView
	Amount string
	Fee    string
	Total  string
}

func summaryOf(c corridor.Corridor, q quote.Quote) summaryView {
	return summaryView{
		corridorView: viewOf(c),
		Amount:       quote.Money(q.Amount, q.Currency),
		Fee:          quote.Money(q.Fee, q.Currency),
		Total:        q.Display(),
	}
}

type confirmedView struct {
	summaryView
	Reference string
}
