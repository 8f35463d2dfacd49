package model

import "time"

// AuditStep identifies a phase recorded in the audit trail.
type AuditStep string

const (
	StepDuplicateCheck AuditStep = "duplicate_check"
	StepDetect         AuditStep = "detect"
	StepRecall         AuditStep = "recall"
	StepDecide         AuditStep = "decide"
	StepApply          AuditStep = "apply"
	StepLearn          AuditStep = "learn"
)

// AuditEntry is one ordered, immutable entry in a run's audit trail.
type AuditEntry struct {
	Step      AuditStep `json:"step"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

// RunStatus represents the current state of a decision run.
type RunStatus string

const (
	RunStatusProcessing  RunStatus = "processing"
	RunStatusAutoApplied RunStatus = "auto_applied"
	RunStatusNeedsReview RunStatus = "needs_review"
	RunStatusBlocked     RunStatus = "blocked"
	RunStatusApproved    RunStatus = "approved"
	RunStatusRejected    RunStatus = "rejected"
)

// DecisionResult is the terminal output of one decision run.
type DecisionResult struct {
	RunID               string            `json:"run_id"`
	Normalized          NormalizedInvoice `json:"normalized_invoice"`
	Proposals           []Proposal        `json:"proposals,omitempty"`
	ProposedCorrections []string          `json:"proposed_corrections"`
	RequiresHumanReview bool              `json:"requires_human_review"`
	Duplicate           bool              `json:"duplicate"`
	Reasoning           string            `json:"reasoning"`
	ConfidenceScore     float64           `json:"confidence_score"`
	MemoryUpdates       []string          `json:"memory_updates"`
	AuditTrail          []AuditEntry      `json:"audit_trail"`

	// Keys touched during recall, kept so feedback on a stored run can
	// replay the learn phase against the right records.
	VendorKey   string   `json:"vendor_key,omitempty"`
	PatternKeys []string `json:"pattern_keys,omitempty"`
}

// Run is a persisted decision run.
type Run struct {
	ID        string          `json:"id"`
	Invoice   Invoice         `json:"invoice"`
	Status    RunStatus       `json:"status"`
	Result    *DecisionResult `json:"result,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}
