package memory

import (
	"context"

	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/store"
)

// ResolutionLedger counts human approve/reject outcomes per decision id.
// It tracks no confidence: it measures how often the final output was right,
// independent of which rule produced it.
type ResolutionLedger struct {
	store store.Store
}

// NewResolutionLedger returns a ledger over the given store.
func NewResolutionLedger(st store.Store) *ResolutionLedger {
	return &ResolutionLedger{store: st}
}

// RecordApproval creates-or-increments the approval count for id.
func (l *ResolutionLedger) RecordApproval(ctx context.Context, id string) (*model.ResolutionRecord, error) {
	return l.store.RecordResolution(ctx, id, model.DecisionApproved)
}

// RecordRejection creates-or-increments the rejection count for id.
func (l *ResolutionLedger) RecordRejection(ctx context.Context, id string) (*model.ResolutionRecord, error) {
	return l.store.RecordResolution(ctx, id, model.DecisionRejected)
}

// Stats returns the record for id, or (nil, nil) when nothing is recorded.
func (l *ResolutionLedger) Stats(ctx context.Context, id string) (*model.ResolutionRecord, error) {
	return l.store.GetResolution(ctx, id)
}
