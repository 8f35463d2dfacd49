// Package detect holds the candidate generators: small pattern detectors
// that read one invoice and emit proposed corrections. Generators never
// touch the memory stores; the decision engine judges their proposals
// against learned confidence.
package detect

import "github.com/adaptivedocs/corrigo/internal/model"

// Generator emits zero or more proposed corrections for an invoice.
type Generator interface {
	Name() string
	Detect(inv model.Invoice) []model.Proposal
}

// DefaultGenerators returns the production generator set. The SKU mapper
// uses its compiled-in keyword table when keywordsPath is empty.
func DefaultGenerators(keywordsPath string) ([]Generator, error) {
	sku, err := NewSKUMapper(keywordsPath)
	if err != nil {
		return nil, err
	}
	return []Generator{
		&VATDetector{},
		&CurrencyDetector{},
		&PODetector{},
		&TermsDetector{},
		sku,
	}, nil
}
