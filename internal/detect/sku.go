package detect

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// SKUPatternPrefix prefixes the per-keyword pattern ids, so each keyword
// mapping earns (or loses) confidence independently.
const SKUPatternPrefix = "sku_category:"

// defaultSKUKeywords maps line-description keywords to categories. A YAML
// file of the same shape replaces it wholesale when configured.
var defaultSKUKeywords = map[string]string{
	"toner":    "office_supplies",
	"paper":    "office_supplies",
	"stapler":  "office_supplies",
	"laptop":   "it_hardware",
	"monitor":  "it_hardware",
	"keyboard": "it_hardware",
	"license":  "software",
	"saas":     "software",
	"hosting":  "software",
	"freight":  "shipping",
	"shipping": "shipping",
	"pallet":   "shipping",
	"cleaning": "facilities",
	"repair":   "facilities",
	"catering": "meals",
	"training": "professional_services",
	"consult":  "professional_services",
}

// SKUMapper proposes a category for uncategorized line items whose
// description contains a known keyword.
type SKUMapper struct {
	keywords map[string]string
	ordered  []string
}

// NewSKUMapper builds a mapper from the YAML keyword file at path, or from
// the compiled-in table when path is empty.
func NewSKUMapper(path string) (*SKUMapper, error) {
	keywords := defaultSKUKeywords
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "detect: read sku keywords %s", path)
		}
		loaded := map[string]string{}
		if err := yaml.Unmarshal(data, &loaded); err != nil {
			return nil, eris.Wrapf(err, "detect: parse sku keywords %s", path)
		}
		keywords = loaded
	}

	ordered := make([]string, 0, len(keywords))
	for kw := range keywords {
		ordered = append(ordered, kw)
	}
	sort.Strings(ordered)

	return &SKUMapper{keywords: keywords, ordered: ordered}, nil
}

func (d *SKUMapper) Name() string { return "sku" }

func (d *SKUMapper) Detect(inv model.Invoice) []model.Proposal {
	var out []model.Proposal
	for i, item := range inv.LineItems {
		if item.Category != "" {
			continue
		}
		desc := strings.ToLower(item.Description)
		for _, kw := range d.ordered {
			if strings.Contains(desc, kw) {
				out = append(out, model.Proposal{
					PatternID:     SKUPatternPrefix + kw,
					Field:         fmt.Sprintf("line_items[%d].category", i),
					ProposedValue: d.keywords[kw],
					Reason:        fmt.Sprintf("line %d description matches keyword %q", i, kw),
				})
				break
			}
		}
	}
	return out
}
