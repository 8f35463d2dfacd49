package model

// Invoice is a structured invoice as produced by upstream extraction.
// Fields the extractor could not determine are left zero; the decision
// engine and the candidate generators work with whatever is present.
type Invoice struct {
	Vendor        string     `json:"vendor"`
	InvoiceNumber string     `json:"invoice_number"`
	InvoiceDate   string     `json:"invoice_date"`
	ServiceDate   string     `json:"service_date,omitempty"`
	Currency      string     `json:"currency,omitempty"`
	Total         float64    `json:"total,omitempty"`
	VATIncluded   *bool      `json:"vat_included,omitempty"`
	PONumber      string     `json:"po_number,omitempty"`
	PaymentTerms  string     `json:"payment_terms,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty"`
	RawText       string     `json:"raw_text,omitempty"`
}

// LineItem is a single invoice line.
type LineItem struct {
	SKU         string  `json:"sku,omitempty"`
	Description string  `json:"description"`
	Category    string  `json:"category,omitempty"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

// NormalizedInvoice is the engine's output view of an invoice: the input
// fields plus any corrections that cleared the auto-apply gate.
type NormalizedInvoice struct {
	Invoice

	// ServiceDateLabel is the vendor-specific label the learned vendor rule
	// maps onto the service date field (e.g. "Leistungsdatum").
	ServiceDateLabel string `json:"service_date_label,omitempty"`

	// AppliedFields names the fields rewritten by auto-applied corrections.
	AppliedFields []string `json:"applied_fields,omitempty"`
}

// Proposal is a candidate correction emitted by a generator. Generators
// never touch the memory stores; proposals are judged in the decide phase.
type Proposal struct {
	PatternID     string `json:"pattern_id"`
	Field         string `json:"field"`
	ProposedValue string `json:"proposed_value"`
	Reason        string `json:"reason"`
}

// Feedback is an explicit human verdict on a decision run. On approval,
// ServiceDateLabel optionally carries the corrected vendor label so the
// vendor rule learns it.
type Feedback struct {
	Approved         bool   `json:"approved"`
	ServiceDateLabel string `json:"service_date_label,omitempty"`
	Note             string `json:"note,omitempty"`
}
