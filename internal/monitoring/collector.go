// Package monitoring aggregates memory and run statistics into a
// point-in-time health snapshot.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/store"
)

// MetricsSnapshot holds a point-in-time view of memory health and decision
// accuracy.
type MetricsSnapshot struct {
	// Rule memory.
	VendorRules     int     `json:"vendor_rules"`
	PatternRules    int     `json:"pattern_rules"`
	AvgVendorConf   float64 `json:"avg_vendor_confidence"`
	AvgPatternConf  float64 `json:"avg_pattern_confidence"`
	TrustedVendors  int     `json:"trusted_vendors"`
	TrustedPatterns int     `json:"trusted_patterns"`

	// Recent runs.
	RunsTotal       int     `json:"runs_total"`
	RunsAutoApplied int     `json:"runs_auto_applied"`
	RunsEscalated   int     `json:"runs_escalated"`
	RunsBlocked     int     `json:"runs_blocked"`
	AutoApplyRate   float64 `json:"auto_apply_rate"`
	DuplicateRate   float64 `json:"duplicate_rate"`

	// Resolution ledger.
	Resolutions  int     `json:"resolutions"`
	Approvals    int     `json:"approvals"`
	Rejections   int     `json:"rejections"`
	ApprovalRate float64 `json:"approval_rate"`

	CollectedAt time.Time `json:"collected_at"`
}

// Collector gathers metrics from the store.
type Collector struct {
	store     store.Store
	threshold float64
}

// NewCollector creates a collector; threshold marks rules counted as
// trusted (auto-applicable).
func NewCollector(st store.Store, threshold float64) *Collector {
	return &Collector{store: st, threshold: threshold}
}

// Collect gathers a snapshot over the most recent runs (up to limit).
func (c *Collector) Collect(ctx context.Context, limit int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{CollectedAt: time.Now().UTC()}

	vendors, err := c.store.ListVendorRules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list vendor rules")
	}
	snap.VendorRules = len(vendors)
	var sum float64
	for _, r := range vendors {
		sum += r.Confidence
		if r.Confidence >= c.threshold {
			snap.TrustedVendors++
		}
	}
	if len(vendors) > 0 {
		snap.AvgVendorConf = sum / float64(len(vendors))
	}

	patterns, err := c.store.ListPatternRules(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list pattern rules")
	}
	snap.PatternRules = len(patterns)
	sum = 0
	for _, r := range patterns {
		sum += r.Confidence
		if r.Confidence >= c.threshold {
			snap.TrustedPatterns++
		}
	}
	if len(patterns) > 0 {
		snap.AvgPatternConf = sum / float64(len(patterns))
	}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	snap.RunsTotal = len(runs)
	for _, r := range runs {
		switch r.Status {
		case model.RunStatusAutoApplied, model.RunStatusApproved:
			snap.RunsAutoApplied++
		case model.RunStatusNeedsReview, model.RunStatusRejected:
			snap.RunsEscalated++
		case model.RunStatusBlocked:
			snap.RunsBlocked++
		}
	}
	if snap.RunsTotal > 0 {
		snap.AutoApplyRate = float64(snap.RunsAutoApplied) / float64(snap.RunsTotal)
		snap.DuplicateRate = float64(snap.RunsBlocked) / float64(snap.RunsTotal)
	}

	resolutions, err := c.store.ListResolutions(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list resolutions")
	}
	snap.Resolutions = len(resolutions)
	for _, r := range resolutions {
		snap.Approvals += r.ApprovedCount
		snap.Rejections += r.RejectedCount
	}
	if total := snap.Approvals + snap.Rejections; total > 0 {
		snap.ApprovalRate = float64(snap.Approvals) / float64(total)
	}

	return snap, nil
}
