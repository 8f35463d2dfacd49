package detect

import (
	"strings"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// PatternVATInclusive flags totals whose raw text says VAT is included.
const PatternVATInclusive = "vat_inclusive_total"

var vatPhrases = []string{
	"incl. vat",
	"incl vat",
	"vat included",
	"inclusive of vat",
	"including vat",
	"inkl. mwst",
	"ttc",
}

// VATDetector proposes marking the total as VAT-inclusive when the raw text
// says so and the extracted flag disagrees or is missing.
type VATDetector struct{}

func (d *VATDetector) Name() string { return "vat" }

func (d *VATDetector) Detect(inv model.Invoice) []model.Proposal {
	if inv.VATIncluded != nil && *inv.VATIncluded {
		return nil
	}
	text := strings.ToLower(inv.RawText)
	for _, phrase := range vatPhrases {
		if strings.Contains(text, phrase) {
			return []model.Proposal{{
				PatternID:     PatternVATInclusive,
				Field:         "vat_included",
				ProposedValue: "true",
				Reason:        "raw text contains \"" + phrase + "\"",
			}}
		}
	}
	return nil
}
