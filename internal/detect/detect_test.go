package detect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivedocs/corrigo/internal/model"
)

func TestVATDetector(t *testing.T) {
	d := &VATDetector{}

	t.Run("proposes when raw text says VAT included", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Total: 1190.00 EUR incl. VAT"})
		require.Len(t, props, 1)
		assert.Equal(t, PatternVATInclusive, props[0].PatternID)
		assert.Equal(t, "vat_included", props[0].Field)
		assert.Equal(t, "true", props[0].ProposedValue)
	})

	t.Run("german phrasing", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Gesamtbetrag inkl. MwSt."})
		require.Len(t, props, 1)
	})

	t.Run("silent when flag already set", func(t *testing.T) {
		v := true
		props := d.Detect(model.Invoice{VATIncluded: &v, RawText: "incl. VAT"})
		assert.Empty(t, props)
	})

	t.Run("silent without a phrase", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Total: 1000.00 plus tax"})
		assert.Empty(t, props)
	})
}

func TestCurrencyDetector(t *testing.T) {
	d := &CurrencyDetector{}

	t.Run("symbol wins", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Amount due: €1.190,00"})
		require.Len(t, props, 1)
		assert.Equal(t, "currency", props[0].Field)
		assert.Equal(t, "EUR", props[0].ProposedValue)
	})

	t.Run("iso code fallback", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "All amounts in CHF unless noted"})
		require.Len(t, props, 1)
		assert.Equal(t, "CHF", props[0].ProposedValue)
	})

	t.Run("non-currency capitals are ignored", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "SEE FAQ AND TOS"})
		assert.Empty(t, props)
	})

	t.Run("silent when currency already extracted", func(t *testing.T) {
		props := d.Detect(model.Invoice{Currency: "EUR", RawText: "$ 500"})
		assert.Empty(t, props)
	})
}

func TestPODetector(t *testing.T) {
	d := &PODetector{}

	t.Run("backfills missing PO", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Ref: PO number 4500123456"})
		require.Len(t, props, 1)
		assert.Equal(t, PatternPOBackfill, props[0].PatternID)
		assert.Equal(t, "4500123456", props[0].ProposedValue)
	})

	t.Run("flags mismatch", func(t *testing.T) {
		props := d.Detect(model.Invoice{PONumber: "4500999999", RawText: "per P.O. #4500123456"})
		require.Len(t, props, 1)
		assert.Equal(t, PatternPOMismatch, props[0].PatternID)
		assert.Equal(t, "4500123456", props[0].ProposedValue)
	})

	t.Run("silent when PO matches", func(t *testing.T) {
		props := d.Detect(model.Invoice{PONumber: "4500123456", RawText: "PO: 4500123456"})
		assert.Empty(t, props)
	})

	t.Run("silent without a reference", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "no order reference here"})
		assert.Empty(t, props)
	})
}

func TestTermsDetector(t *testing.T) {
	d := &TermsDetector{}

	t.Run("normalizes discount terms", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Payment: 2 / 10, Net 30"})
		require.Len(t, props, 1)
		assert.Equal(t, PatternDiscountTerms, props[0].PatternID)
		assert.Equal(t, "2/10 net 30", props[0].ProposedValue)
	})

	t.Run("plain net terms", func(t *testing.T) {
		props := d.Detect(model.Invoice{RawText: "Due NET 45 from invoice date"})
		require.Len(t, props, 1)
		assert.Equal(t, "net 45", props[0].ProposedValue)
	})

	t.Run("silent when terms already extracted", func(t *testing.T) {
		props := d.Detect(model.Invoice{PaymentTerms: "net 30", RawText: "2/10 net 30"})
		assert.Empty(t, props)
	})
}

func TestSKUMapper_Defaults(t *testing.T) {
	m, err := NewSKUMapper("")
	require.NoError(t, err)

	inv := model.Invoice{LineItems: []model.LineItem{
		{Description: "HP LaserJet toner cartridge"},
		{Description: "Dell 27in monitor", Category: "it_hardware"}, // already categorized
		{Description: "Unrecognized widget"},
	}}

	props := m.Detect(inv)
	require.Len(t, props, 1)
	assert.Equal(t, SKUPatternPrefix+"toner", props[0].PatternID)
	assert.Equal(t, "line_items[0].category", props[0].Field)
	assert.Equal(t, "office_supplies", props[0].ProposedValue)
}

func TestSKUMapper_YAMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keywords.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gravel: raw_materials\n"), 0o644))

	m, err := NewSKUMapper(path)
	require.NoError(t, err)

	props := m.Detect(model.Invoice{LineItems: []model.LineItem{
		{Description: "crushed gravel, 2t"},
		{Description: "toner cartridge"}, // default table is replaced, not merged
	}})
	require.Len(t, props, 1)
	assert.Equal(t, "raw_materials", props[0].ProposedValue)
}

func TestSKUMapper_BadFile(t *testing.T) {
	_, err := NewSKUMapper(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDefaultGenerators(t *testing.T) {
	gens, err := DefaultGenerators("")
	require.NoError(t, err)
	require.Len(t, gens, 5)

	names := make([]string, len(gens))
	for i, g := range gens {
		names[i] = g.Name()
	}
	assert.Equal(t, []string{"vat", "currency", "po", "terms", "sku"}, names)
}
