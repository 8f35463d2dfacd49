package store

import (
	"context"

	"github.com/adaptivedocs/corrigo/internal/model"
)

// RunFilter specifies criteria for listing decision runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Vendor string          `json:"vendor,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for the decision engine's memory.
//
// Reinforce/decay arithmetic executes inside the database as a single
// per-key statement, so two updates to the same key can never lose each
// other's counts. Absent keys are reported as (nil, nil), never as errors.
type Store interface {
	// Vendor rules (vendor-scoped confidence records)
	ReinforceVendorRule(ctx context.Context, vendor, serviceDateLabel string) (*model.VendorRule, error)
	DecayVendorRule(ctx context.Context, vendor string) (*model.VendorRule, error)
	GetVendorRule(ctx context.Context, vendor string) (*model.VendorRule, error)
	ListVendorRules(ctx context.Context) ([]model.VendorRule, error)

	// Pattern rules (pattern-scoped confidence records)
	ReinforcePatternRule(ctx context.Context, patternID, description, action string) (*model.PatternRule, error)
	DecayPatternRule(ctx context.Context, patternID string) (*model.PatternRule, error)
	GetPatternRule(ctx context.Context, patternID string) (*model.PatternRule, error)
	ListPatternRules(ctx context.Context) ([]model.PatternRule, error)

	// Duplicate ledger. CheckAndRecordDuplicate reports and records in one
	// atomic statement; GetDuplicate is the read-only probe.
	CheckAndRecordDuplicate(ctx context.Context, rec model.DuplicateRecord) (*model.DuplicateRecord, error)
	GetDuplicate(ctx context.Context, key string) (*model.DuplicateRecord, error)

	// Resolution ledger
	RecordResolution(ctx context.Context, memoryID string, decision model.Decision) (*model.ResolutionRecord, error)
	GetResolution(ctx context.Context, memoryID string) (*model.ResolutionRecord, error)
	ListResolutions(ctx context.Context) ([]model.ResolutionRecord, error)

	// Decision runs
	CreateRun(ctx context.Context, inv model.Invoice) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, result *model.DecisionResult) error
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Maintenance. The only deletion paths: rule stores reset whole, the
	// duplicate ledger purged whole.
	ResetVendorRules(ctx context.Context) error
	ResetPatternRules(ctx context.Context) error
	PurgeDuplicates(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
