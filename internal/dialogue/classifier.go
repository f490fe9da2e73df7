package dialogue

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/wolfman30/remitchat/internal/corridor"
	"github.com/wolfman30/remitchat/internal/session"
)

var (
	affirmative = wordSet("si", "s", "confirmar", "confirmo", "yes", "y", "confirm", "ok", "1")
	negative    = wordSet("no", "n", "cancelar", "cancel", "2")
	viewAll     = wordSet("ver todos", "ver todo", "todos", "ver mas", "mas", "all", "view all")

	// currencyWords are spoken dollar names; currency codes come from the catalog.
	currencyWords = []string{"us$", "usd", "dolares", "dolar", "dlls"}

	plainNumber  = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
	decimalComma = regexp.MustCompile(`^[+-]?\d+,\d{1,2}$`)
	wordSplitter = regexp.MustCompile(`[^\p{L}\p{N}-]+`)
)

func wordSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

type corridorTerms struct {
	id    string
	exact []string
	fuzzy []string
}

// Classifier maps raw text to an Intent for the sender's current state. It
// performs no I/O and is safe for concurrent use.
type Classifier struct {
	corridors   []corridorTerms
	byID        map[string]struct{}
	amountNoise *regexp.Regexp
}

// NewClassifier indexes the active corridors for fuzzy matching.
func NewClassifier(active []corridor.Corridor) *Classifier {
	c := &Classifier{byID: make(map[string]struct{}, len(active))}
	for _, cor := range active {
		terms := corridorTerms{
			id:    cor.ID,
			exact: []string{fold(cor.Name)},
			fuzzy: []string{fold(cor.ID), fold(cor.DestinationCountry)},
		}
		for _, alias := range cor.Aliases {
			terms.fuzzy = append(terms.fuzzy, fold(alias))
		}
		c.corridors = append(c.corridors, terms)
		c.byID[cor.ID] = struct{}{}
	}
	c.amountNoise = currencyPattern(active)
	return c
}

// currencyPattern matches any currency symbol, the dollar words and the
// source and destination codes of the active corridors.
func currencyPattern(active []corridor.Corridor) *regexp.Regexp {
	seen := make(map[string]struct{})
	var terms []string
	add := func(term string) {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			return
		}
		if _, ok := seen[term]; ok {
			return
		}
		seen[term] = struct{}{}
		terms = append(terms, regexp.QuoteMeta(term))
	}
	for _, w := range currencyWords {
		add(w)
	}
	for _, cor := range active {
		add(cor.Currency)
		add(cor.DestinationCurrency)
	}
	// Alternation is leftmost-first, so longer terms go first.
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
	return regexp.MustCompile(`(?i)(` + strings.Join(terms, "|") + `|\p{Sc})`)
}

// Classify reads raw in the context of sess.
func (c *Classifier) Classify(sess session.Session, raw string) Intent {
	text := strings.ToLower(strings.TrimSpace(raw))

	switch sess.State {
	case session.StateWelcome, session.StateTerminal:
		return selectCorridor("")
	}

	if intent, ok := c.token(text); ok {
		return intent
	}

	switch sess.State {
	case session.StateCorridorSelection:
		return c.classifyCorridor(sess.Selections.Offered, text)
	case session.StateAmountEntry:
		return c.classifyAmount(text)
	case session.StateConfirmation:
		return classifyConfirmation(text)
	default:
		return unrecognized(ReasonNoMatch)
	}
}

func (c *Classifier) token(text string) (Intent, bool) {
	switch {
	case text == TokenConfirm:
		return Intent{Kind: KindConfirm}, true
	case text == TokenCancel:
		return Intent{Kind: KindCancel}, true
	case text == TokenViewAll:
		return unrecognized(ReasonViewAll), true
	case strings.HasPrefix(text, corridorTokenPrefix):
		id := strings.TrimPrefix(text, corridorTokenPrefix)
		if _, ok := c.byID[id]; ok {
			return selectCorridor(id), true
		}
		return unrecognized(ReasonNoMatch), true
	}
	return Intent{}, false
}

func (c *Classifier) classifyCorridor(offered []string, text string) Intent {
	folded := fold(text)
	if n, err := strconv.Atoi(folded); err == nil {
		switch {
		case n >= 1 && n <= len(offered):
			return selectCorridor(offered[n-1])
		case n == len(offered)+1 && len(offered) < len(c.corridors):
			return unrecognized(ReasonViewAll)
		}
		return unrecognized(ReasonNoMatch)
	}
	if _, ok := viewAll[folded]; ok {
		return unrecognized(ReasonViewAll)
	}
	if id, ok := c.match(folded); ok {
		return selectCorridor(id)
	}
	for _, word := range wordSplitter.Split(folded, -1) {
		if len([]rune(word)) < 3 {
			continue
		}
		if id, ok := c.match(word); ok {
			return selectCorridor(id)
		}
	}
	return unrecognized(ReasonNoMatch)
}

const (
	scoreNone = iota
	scoreEdit
	scorePrefix
	scoreExact
)

// match returns the single corridor with the strongest match for input. Ties
// between different corridors count as no match.
func (c *Classifier) match(input string) (string, bool) {
	if input == "" {
		return "", false
	}
	best, bestID, tied := scoreNone, "", false
	for _, terms := range c.corridors {
		score := terms.score(input)
		switch {
		case score > best:
			best, bestID, tied = score, terms.id, false
		case score == best && score != scoreNone && terms.id != bestID:
			tied = true
		}
	}
	if best == scoreNone || tied {
		return "", false
	}
	return bestID, true
}

func (t corridorTerms) score(input string) int {
	best := scoreNone
	for _, term := range t.exact {
		if term == input {
			return scoreExact
		}
	}
	inputLen := len([]rune(input))
	for _, term := range t.fuzzy {
		switch {
		case term == input:
			return scoreExact
		case inputLen >= 3 && strings.HasPrefix(term, input):
			best = max(best, scorePrefix)
		case inputLen >= 5 && levenshtein(term, input) <= 1:
			best = max(best, scoreEdit)
		}
	}
	return best
}

func (c *Classifier) classifyAmount(text string) Intent {
	cleaned := strings.TrimSpace(c.amountNoise.ReplaceAllString(fold(text), ""))
	switch {
	case decimalComma.MatchString(cleaned):
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}
	if !plainNumber.MatchString(cleaned) {
		return unrecognized(ReasonNotANumber)
	}
	amount, err := decimal.NewFromString(cleaned)
	if err != nil {
		return unrecognized(ReasonNotANumber)
	}
	if !amount.IsPositive() {
		return unrecognized(ReasonNonPositive)
	}
	if !amount.Equal(amount.Truncate(2)) {
		return unrecognized(ReasonTooManyDecimals)
	}
	return Intent{Kind: KindEnterAmount, Amount: amount}
}

func classifyConfirmation(text string) Intent {
	folded := strings.TrimRight(fold(text), ".!¡ ")
	if _, ok := affirmative[folded]; ok {
		return Intent{Kind: KindConfirm}
	}
	if _, ok := negative[folded]; ok {
		return Intent{Kind: KindCancel}
	}
	return unrecognized(ReasonNoMatch)
}

// fold lowercases s and strips diacritics so "México" matches "mexico".
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(s))
	}
	return out
}

// levenshtein is the rune-wise edit distance between a and b.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
