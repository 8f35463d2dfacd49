package detect

import (
	"fmt"
	"regexp"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// PatternDiscountTerms extracts early-payment discount terms.
const PatternDiscountTerms = "discount_terms"

// Matches the "2/10 net 30" family, tolerating separators and casing.
var discountTermsRe = regexp.MustCompile(`(?i)\b(\d{1,2})\s*/\s*(\d{1,3})\s*,?\s*net\s*(\d{1,3})\b`)
var netTermsRe = regexp.MustCompile(`(?i)\bnet\s*(\d{1,3})\b`)

// TermsDetector normalizes payment terms found in the raw text when the
// extracted terms field is empty.
type TermsDetector struct{}

func (d *TermsDetector) Name() string { return "terms" }

func (d *TermsDetector) Detect(inv model.Invoice) []model.Proposal {
	if inv.PaymentTerms != "" || inv.RawText == "" {
		return nil
	}

	if m := discountTermsRe.FindStringSubmatch(inv.RawText); m != nil {
		normalized := fmt.Sprintf("%s/%s net %s", m[1], m[2], m[3])
		return []model.Proposal{{
			PatternID:     PatternDiscountTerms,
			Field:         "payment_terms",
			ProposedValue: normalized,
			Reason:        fmt.Sprintf("raw text carries discount terms %q", m[0]),
		}}
	}
	if m := netTermsRe.FindStringSubmatch(inv.RawText); m != nil {
		normalized := "net " + m[1]
		return []model.Proposal{{
			PatternID:     PatternDiscountTerms,
			Field:         "payment_terms",
			ProposedValue: normalized,
			Reason:        fmt.Sprintf("raw text carries payment terms %q", m[0]),
		}}
	}
	return nil
}
