// Package ingest loads structured invoices from tabular files for batch
// processing. One row is one invoice; line items are not represented in
// tabular input.
package ingest

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// column headers recognized in CSV and XLSX input, case-insensitive.
var recognizedHeaders = []string{
	"vendor", "invoice_number", "invoice_date", "service_date",
	"currency", "total", "po_number", "payment_terms", "raw_text",
}

type headerIndex map[string]int

func indexHeaders(header []string) (headerIndex, error) {
	idx := headerIndex{}
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"vendor", "invoice_number", "invoice_date"} {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("ingest: missing required column %q", required)
		}
	}
	return idx, nil
}

func (idx headerIndex) get(row []string, col string) string {
	i, ok := idx[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func rowToInvoice(idx headerIndex, row []string) (model.Invoice, error) {
	inv := model.Invoice{
		Vendor:        idx.get(row, "vendor"),
		InvoiceNumber: idx.get(row, "invoice_number"),
		InvoiceDate:   idx.get(row, "invoice_date"),
		ServiceDate:   idx.get(row, "service_date"),
		Currency:      idx.get(row, "currency"),
		PONumber:      idx.get(row, "po_number"),
		PaymentTerms:  idx.get(row, "payment_terms"),
		RawText:       idx.get(row, "raw_text"),
	}
	if inv.Vendor == "" || inv.InvoiceNumber == "" {
		return inv, eris.New("ingest: row missing vendor or invoice_number")
	}
	if raw := idx.get(row, "total"); raw != "" {
		total, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", ""), 64)
		if err != nil {
			return inv, eris.Wrapf(err, "ingest: bad total %q", raw)
		}
		inv.Total = total
	}
	return inv, nil
}
