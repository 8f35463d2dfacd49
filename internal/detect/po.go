package detect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// Pattern ids for purchase-order matching.
const (
	PatternPOBackfill = "po_number_backfill"
	PatternPOMismatch = "po_line_mismatch"
)

var poNumberRe = regexp.MustCompile(`(?i)\bP\.?O\.?\s*(?:number|no\.?|#)?\s*[:#]?\s*([A-Z0-9][A-Z0-9-]{3,15})\b`)

// PODetector matches purchase-order references in the raw text against the
// extracted PO number: it backfills a missing one, and flags a mismatch when
// the text references a different order than the extractor picked up.
type PODetector struct{}

func (d *PODetector) Name() string { return "po" }

func (d *PODetector) Detect(inv model.Invoice) []model.Proposal {
	m := poNumberRe.FindStringSubmatch(inv.RawText)
	if m == nil {
		return nil
	}
	found := strings.ToUpper(m[1])

	if inv.PONumber == "" {
		return []model.Proposal{{
			PatternID:     PatternPOBackfill,
			Field:         "po_number",
			ProposedValue: found,
			Reason:        fmt.Sprintf("raw text references purchase order %s", found),
		}}
	}
	if !strings.EqualFold(inv.PONumber, found) {
		return []model.Proposal{{
			PatternID:     PatternPOMismatch,
			Field:         "po_number",
			ProposedValue: found,
			Reason:        fmt.Sprintf("extracted PO %s disagrees with %s in raw text", inv.PONumber, found),
		}}
	}
	return nil
}
