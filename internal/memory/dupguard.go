package memory

import (
	"context"
	"strings"

	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/store"
)

// KeyDelimiter joins the natural-key parts of a duplicate key.
const KeyDelimiter = "|"

// DuplicateGuard blocks re-processing and re-learning of invoices already
// seen under an identical natural key (vendor, invoice number, invoice date).
type DuplicateGuard struct {
	store store.Store
}

// NewDuplicateGuard returns a guard over the given store.
func NewDuplicateGuard(st store.Store) *DuplicateGuard {
	return &DuplicateGuard{store: st}
}

// DuplicateKey builds the composite natural key.
func DuplicateKey(vendor, invoiceNumber, invoiceDate string) string {
	return strings.Join([]string{vendor, invoiceNumber, invoiceDate}, KeyDelimiter)
}

// CheckAndRecord reports and records in a single atomic step: the first
// sighting creates the record and returns (false, 1); every later sighting
// increments the count and returns (true, n). This is the only write path
// into the duplicate ledger, so check and record can never diverge.
func (g *DuplicateGuard) CheckAndRecord(ctx context.Context, vendor, invoiceNumber, invoiceDate string) (bool, int, error) {
	rec, err := g.store.CheckAndRecordDuplicate(ctx, model.DuplicateRecord{
		DuplicateKey:  DuplicateKey(vendor, invoiceNumber, invoiceDate),
		Vendor:        vendor,
		InvoiceNumber: invoiceNumber,
		InvoiceDate:   invoiceDate,
	})
	if err != nil {
		return false, 0, err
	}
	return rec.SeenCount > 1, rec.SeenCount, nil
}

// IsDuplicate probes the ledger without recording a sighting.
func (g *DuplicateGuard) IsDuplicate(ctx context.Context, vendor, invoiceNumber, invoiceDate string) (bool, error) {
	rec, err := g.store.GetDuplicate(ctx, DuplicateKey(vendor, invoiceNumber, invoiceDate))
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}
