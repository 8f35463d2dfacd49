package monitoring

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestCollect_EmptyStore(t *testing.T) {
	c := NewCollector(newTestStore(t), 0.6)

	snap, err := c.Collect(context.Background(), 100)
	require.NoError(t, err)

	assert.Zero(t, snap.VendorRules)
	assert.Zero(t, snap.RunsTotal)
	assert.Zero(t, snap.AutoApplyRate)
	assert.Zero(t, snap.ApprovalRate)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollect_RuleAggregates(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st, 0.6)
	ctx := context.Background()

	// Acme at 0.7 (trusted), Beta at 0.5 (not trusted)
	for i := 0; i < 3; i++ {
		_, err := st.ReinforceVendorRule(ctx, "Acme GmbH", "Leistungsdatum")
		require.NoError(t, err)
	}
	_, err := st.ReinforceVendorRule(ctx, "Beta AG", "Servicedatum")
	require.NoError(t, err)

	_, err = st.ReinforcePatternRule(ctx, "vat_inclusive_total", "", "set vat_included = true")
	require.NoError(t, err)

	snap, err := c.Collect(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.VendorRules)
	assert.Equal(t, 1, snap.TrustedVendors)
	assert.InDelta(t, 0.6, snap.AvgVendorConf, 1e-9) // (0.7+0.5)/2
	assert.Equal(t, 1, snap.PatternRules)
	assert.Equal(t, 0, snap.TrustedPatterns)
}

func TestCollect_RunRates(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st, 0.6)
	ctx := context.Background()

	statuses := []model.RunStatus{
		model.RunStatusAutoApplied,
		model.RunStatusAutoApplied,
		model.RunStatusNeedsReview,
		model.RunStatusBlocked,
	}
	for i, status := range statuses {
		run, err := st.CreateRun(ctx, model.Invoice{Vendor: "v", InvoiceNumber: string(rune('a' + i))})
		require.NoError(t, err)
		require.NoError(t, st.CompleteRun(ctx, run.ID, status, &model.DecisionResult{RunID: run.ID}))
	}

	snap, err := c.Collect(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsAutoApplied)
	assert.Equal(t, 1, snap.RunsEscalated)
	assert.Equal(t, 1, snap.RunsBlocked)
	assert.InDelta(t, 0.5, snap.AutoApplyRate, 1e-9)
	assert.InDelta(t, 0.25, snap.DuplicateRate, 1e-9)
}

func TestCollect_ResolutionRates(t *testing.T) {
	st := newTestStore(t)
	c := NewCollector(st, 0.6)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := st.RecordResolution(ctx, "Acme GmbH:service_date_label", model.DecisionApproved)
		require.NoError(t, err)
	}
	_, err := st.RecordResolution(ctx, "Acme GmbH:vat_included", model.DecisionRejected)
	require.NoError(t, err)

	snap, err := c.Collect(ctx, 100)
	require.NoError(t, err)

	assert.Equal(t, 2, snap.Resolutions)
	assert.Equal(t, 3, snap.Approvals)
	assert.Equal(t, 1, snap.Rejections)
	assert.InDelta(t, 0.75, snap.ApprovalRate, 1e-9)
}
