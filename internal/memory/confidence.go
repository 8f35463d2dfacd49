// Package memory exposes the decision engine's three memory surfaces over
// the persistent store: confidence-scored rules, the duplicate ledger, and
// the resolution ledger.
package memory

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/store"
)

// Scope selects which rule table a ConfidenceStore operates on.
type Scope string

const (
	ScopeVendor  Scope = "vendor"
	ScopePattern Scope = "pattern"
)

// Payload carries the scope-specific fields written on reinforcement. The
// store always reflects the most recent correction, not a historical blend.
type Payload struct {
	// Vendor scope
	ServiceDateLabel string

	// Pattern scope
	Description string
	Action      string
}

// Record is the scope-neutral view of a confidence record.
type Record struct {
	Key           string
	Confidence    float64
	ApprovedCount int
	RejectedCount int
	LastUpdated   time.Time
	Payload       Payload
}

// ConfidenceStore is the reinforce/decay abstraction over one rule scope.
// A rule starts at the seed confidence on first reinforcement, grows by the
// reinforce step on approval and shrinks by the decay step on rejection,
// clamped to [0,1] and rounded to one decimal. An absent key is unknown,
// not zero-confidence; decay on an absent key is a no-op.
type ConfidenceStore struct {
	scope Scope
	store store.Store
}

// NewConfidenceStore returns a ConfidenceStore bound to one rule scope.
func NewConfidenceStore(scope Scope, st store.Store) *ConfidenceStore {
	return &ConfidenceStore{scope: scope, store: st}
}

// Scope returns the rule scope this store operates on.
func (c *ConfidenceStore) Scope() Scope { return c.scope }

// Reinforce creates the record at the seed confidence or bumps an existing
// one, overwriting its payload with the latest values.
func (c *ConfidenceStore) Reinforce(ctx context.Context, key string, p Payload) (*Record, error) {
	switch c.scope {
	case ScopeVendor:
		r, err := c.store.ReinforceVendorRule(ctx, key, p.ServiceDateLabel)
		if err != nil {
			return nil, err
		}
		return vendorRecord(r), nil
	case ScopePattern:
		r, err := c.store.ReinforcePatternRule(ctx, key, p.Description, p.Action)
		if err != nil {
			return nil, err
		}
		return patternRecord(r), nil
	}
	return nil, eris.Errorf("memory: unknown scope %q", c.scope)
}

// Decay lowers an existing record's confidence. Absent keys are a defined
// no-op: (nil, nil).
func (c *ConfidenceStore) Decay(ctx context.Context, key string) (*Record, error) {
	switch c.scope {
	case ScopeVendor:
		r, err := c.store.DecayVendorRule(ctx, key)
		if err != nil || r == nil {
			return nil, err
		}
		return vendorRecord(r), nil
	case ScopePattern:
		r, err := c.store.DecayPatternRule(ctx, key)
		if err != nil || r == nil {
			return nil, err
		}
		return patternRecord(r), nil
	}
	return nil, eris.Errorf("memory: unknown scope %q", c.scope)
}

// Get returns the record for key, or (nil, nil) when no memory exists.
func (c *ConfidenceStore) Get(ctx context.Context, key string) (*Record, error) {
	switch c.scope {
	case ScopeVendor:
		r, err := c.store.GetVendorRule(ctx, key)
		if err != nil || r == nil {
			return nil, err
		}
		return vendorRecord(r), nil
	case ScopePattern:
		r, err := c.store.GetPatternRule(ctx, key)
		if err != nil || r == nil {
			return nil, err
		}
		return patternRecord(r), nil
	}
	return nil, eris.Errorf("memory: unknown scope %q", c.scope)
}

func vendorRecord(r *model.VendorRule) *Record {
	return &Record{
		Key:           r.Vendor,
		Confidence:    r.Confidence,
		ApprovedCount: r.ApprovedCount,
		RejectedCount: r.RejectedCount,
		LastUpdated:   r.LastUpdated,
		Payload:       Payload{ServiceDateLabel: r.ServiceDateLabel},
	}
}

func patternRecord(r *model.PatternRule) *Record {
	return &Record{
		Key:           r.PatternID,
		Confidence:    r.Confidence,
		ApprovedCount: r.ApprovedCount,
		RejectedCount: r.RejectedCount,
		LastUpdated:   r.LastUpdated,
		Payload:       Payload{Description: r.Description, Action: r.Action},
	}
}
