package model

import "time"

// Confidence bounds and update steps. Rejections decay twice as fast as
// approvals grow, so a single rejection outweighs two approvals.
const (
	ConfidenceSeed = 0.5
	ConfidenceMin  = 0.0
	ConfidenceMax  = 1.0
	ReinforceStep  = 0.1
	DecayStep      = 0.2
)

// VendorRule is the vendor-scoped confidence record: what the system has
// learned about one vendor's invoices.
type VendorRule struct {
	Vendor           string    `json:"vendor"`
	ServiceDateLabel string    `json:"service_date_label"`
	Confidence       float64   `json:"confidence"`
	ApprovedCount    int       `json:"approved_count"`
	RejectedCount    int       `json:"rejected_count"`
	LastUpdated      time.Time `json:"last_updated"`
}

// PatternRule is the pattern-scoped confidence record: a learned correction
// pattern and the action it performs.
type PatternRule struct {
	PatternID     string    `json:"pattern_id"`
	Description   string    `json:"description"`
	Action        string    `json:"action"`
	Confidence    float64   `json:"confidence"`
	ApprovedCount int       `json:"approved_count"`
	RejectedCount int       `json:"rejected_count"`
	LastUpdated   time.Time `json:"last_updated"`
}

// DuplicateRecord tracks sightings of one natural invoice key. SeenCount
// only ever grows; records are removed only by an explicit purge.
type DuplicateRecord struct {
	DuplicateKey  string    `json:"duplicate_key"`
	Vendor        string    `json:"vendor"`
	InvoiceNumber string    `json:"invoice_number"`
	InvoiceDate   string    `json:"invoice_date"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	SeenCount     int       `json:"seen_count"`
}

// Decision is the recorded outcome of a human verdict.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ResolutionRecord is a pure approve/reject counter per decision id. It
// carries no confidence: it measures system accuracy over time, independent
// of which rule produced the output.
type ResolutionRecord struct {
	MemoryID      string    `json:"memory_id"`
	ApprovedCount int       `json:"approved_count"`
	RejectedCount int       `json:"rejected_count"`
	LastDecision  Decision  `json:"last_decision"`
	LastUpdated   time.Time `json:"last_updated"`
}
