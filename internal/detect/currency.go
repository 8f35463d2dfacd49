package detect

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/currency"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// PatternCurrencyInference backfills a missing currency from the raw text.
const PatternCurrencyInference = "currency_inference"

// Checked in order so a text carrying several symbols resolves the same way
// every run.
var currencySymbols = []struct {
	Symbol string
	Code   string
}{
	{"€", "EUR"},
	{"£", "GBP"},
	{"₹", "INR"},
	{"₩", "KRW"},
	{"¥", "JPY"},
	{"$", "USD"},
}

var isoCodeRe = regexp.MustCompile(`\b[A-Z]{3}\b`)

// CurrencyDetector infers the invoice currency from symbols or ISO codes in
// the raw text when the extracted currency field is empty. Candidate codes
// are validated through the currency registry so stray three-letter words
// never become a proposal.
type CurrencyDetector struct{}

func (d *CurrencyDetector) Name() string { return "currency" }

func (d *CurrencyDetector) Detect(inv model.Invoice) []model.Proposal {
	if inv.Currency != "" || inv.RawText == "" {
		return nil
	}

	for _, sym := range currencySymbols {
		if strings.Contains(inv.RawText, sym.Symbol) {
			return []model.Proposal{{
				PatternID:     PatternCurrencyInference,
				Field:         "currency",
				ProposedValue: sym.Code,
				Reason:        fmt.Sprintf("raw text contains currency symbol %s", sym.Symbol),
			}}
		}
	}

	for _, tok := range isoCodeRe.FindAllString(inv.RawText, 8) {
		unit, err := currency.ParseISO(tok)
		if err != nil {
			continue
		}
		return []model.Proposal{{
			PatternID:     PatternCurrencyInference,
			Field:         "currency",
			ProposedValue: unit.String(),
			Reason:        fmt.Sprintf("raw text contains ISO currency code %s", unit),
		}}
	}
	return nil
}
