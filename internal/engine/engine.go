// Package engine implements the per-invoice decision loop: duplicate check,
// candidate detection, memory recall, threshold decision, and learning from
// feedback.
package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/config"
	"github.com/adaptivedocs/corrigo/internal/detect"
	"github.com/adaptivedocs/corrigo/internal/memory"
	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/resilience"
	"github.com/adaptivedocs/corrigo/internal/store"
)

// Engine orchestrates the decision loop over the memory stores.
type Engine struct {
	cfg        config.EngineConfig
	store      store.Store
	vendorMem  *memory.ConfidenceStore
	patternMem *memory.ConfidenceStore
	guard      *memory.DuplicateGuard
	ledger     *memory.ResolutionLedger
	generators []detect.Generator
	retry      resilience.RetryConfig
}

// New creates an Engine with all dependencies. The auto-apply threshold and
// the implicit-approval policy come from cfg, never from literals.
func New(cfg config.EngineConfig, st store.Store, generators []detect.Generator) *Engine {
	return &Engine{
		cfg:        cfg,
		store:      st,
		vendorMem:  memory.NewConfidenceStore(memory.ScopeVendor, st),
		patternMem: memory.NewConfidenceStore(memory.ScopePattern, st),
		guard:      memory.NewDuplicateGuard(st),
		ledger:     memory.NewResolutionLedger(st),
		generators: generators,
		retry:      resilience.DefaultRetryConfig(),
	}
}

// Process runs the decision loop for one invoice. Feedback may be supplied
// inline for one-shot flows; pass nil to decide now and give feedback later
// via ApplyFeedback. Persistence failures are logged, never fatal: the
// worst case is lost memory, not a lost result.
func (e *Engine) Process(ctx context.Context, inv model.Invoice, fb *model.Feedback) (*model.DecisionResult, error) {
	log := zap.L().With(zap.String("vendor", inv.Vendor), zap.String("invoice", inv.InvoiceNumber))

	normalized := inv
	normalized.LineItems = append([]model.LineItem(nil), inv.LineItems...)
	result := &model.DecisionResult{
		Normalized: model.NormalizedInvoice{Invoice: normalized},
	}
	audit := func(step model.AuditStep, format string, args ...any) {
		result.AuditTrail = append(result.AuditTrail, model.AuditEntry{
			Step:      step,
			Timestamp: time.Now().UTC(),
			Details:   fmt.Sprintf(format, args...),
		})
	}

	run, err := resilience.DoVal(ctx, e.retry, func(ctx context.Context) (*model.Run, error) {
		return e.store.CreateRun(ctx, inv)
	})
	if err != nil {
		log.Warn("engine: failed to persist run, continuing unrecorded", zap.Error(err))
	} else {
		result.RunID = run.ID
	}

	// Phase 1: duplicate check. A repeat short-circuits before any other
	// phase so a duplicate can never touch confidence or the ledger.
	isDup, seen, err := e.guard.CheckAndRecord(ctx, inv.Vendor, inv.InvoiceNumber, inv.InvoiceDate)
	if err != nil {
		log.Warn("engine: duplicate check failed, treating as first sighting", zap.Error(err))
	}
	if isDup {
		audit(model.StepDuplicateCheck, "duplicate: %s seen %d times",
			memory.DuplicateKey(inv.Vendor, inv.InvoiceNumber, inv.InvoiceDate), seen)
		result.Duplicate = true
		result.RequiresHumanReview = true
		result.Reasoning = fmt.Sprintf("invoice already processed %d times; blocked from re-learning", seen)
		e.completeRun(ctx, result, model.RunStatusBlocked)
		log.Info("engine: duplicate blocked", zap.Int("seen_count", seen))
		return result, nil
	}
	audit(model.StepDuplicateCheck, "first sighting of %s",
		memory.DuplicateKey(inv.Vendor, inv.InvoiceNumber, inv.InvoiceDate))

	// Phase 2: candidate detection.
	for _, g := range e.generators {
		result.Proposals = append(result.Proposals, g.Detect(inv)...)
	}
	audit(model.StepDetect, "%d proposals from %d generators", len(result.Proposals), len(e.generators))

	// Phase 3: recall. Absence is audited, never an error.
	result.VendorKey = inv.Vendor
	vendorRec, err := e.vendorMem.Get(ctx, inv.Vendor)
	if err != nil {
		log.Warn("engine: vendor recall failed, treating as no memory", zap.Error(err))
		vendorRec = nil
	}
	if vendorRec != nil {
		audit(model.StepRecall, "vendor memory for %s: confidence %.1f", inv.Vendor, vendorRec.Confidence)
	} else {
		audit(model.StepRecall, "no memory found for vendor %s", inv.Vendor)
	}

	patternRecs := map[string]*memory.Record{}
	for _, p := range result.Proposals {
		if _, ok := patternRecs[p.PatternID]; ok {
			continue
		}
		result.PatternKeys = append(result.PatternKeys, p.PatternID)
		rec, err := e.patternMem.Get(ctx, p.PatternID)
		if err != nil {
			log.Warn("engine: pattern recall failed, treating as no memory",
				zap.String("pattern", p.PatternID), zap.Error(err))
			rec = nil
		}
		patternRecs[p.PatternID] = rec
		if rec != nil {
			audit(model.StepRecall, "pattern memory for %s: confidence %.1f", p.PatternID, rec.Confidence)
		} else {
			audit(model.StepRecall, "no memory found for pattern %s", p.PatternID)
		}
	}

	// Phase 4: decide. Threshold comparison is >=: a record exactly at the
	// threshold is sufficient. Each proposal is judged independently.
	threshold := e.cfg.AutoApplyThreshold
	var reasons []string

	if vendorRec != nil && vendorRec.Confidence >= threshold {
		result.Normalized.ServiceDateLabel = vendorRec.Payload.ServiceDateLabel
		result.Normalized.AppliedFields = append(result.Normalized.AppliedFields, "service_date_label")
		result.ConfidenceScore = vendorRec.Confidence
		result.RequiresHumanReview = false
		audit(model.StepApply, "auto-applied vendor rule %s (service date label %q, confidence %.1f)",
			inv.Vendor, vendorRec.Payload.ServiceDateLabel, vendorRec.Confidence)
		reasons = append(reasons, fmt.Sprintf("vendor rule %s trusted at %.1f", inv.Vendor, vendorRec.Confidence))
	} else {
		result.RequiresHumanReview = true
		if vendorRec != nil {
			result.ConfidenceScore = vendorRec.Confidence
			reasons = append(reasons, fmt.Sprintf("vendor rule %s below threshold (%.1f < %.1f)",
				inv.Vendor, vendorRec.Confidence, threshold))
		} else {
			reasons = append(reasons, fmt.Sprintf("no learned rule for vendor %s", inv.Vendor))
		}
	}

	for _, p := range result.Proposals {
		rec := patternRecs[p.PatternID]
		if rec != nil && rec.Confidence >= threshold {
			applyProposal(&result.Normalized, p)
			audit(model.StepApply, "auto-applied pattern %s: %s = %s (confidence %.1f)",
				p.PatternID, p.Field, p.ProposedValue, rec.Confidence)
		} else {
			conf := 0.0
			if rec != nil {
				conf = rec.Confidence
			}
			result.ProposedCorrections = append(result.ProposedCorrections,
				fmt.Sprintf("%s: set %s = %s (needs review, confidence %.1f; %s)",
					p.PatternID, p.Field, p.ProposedValue, conf, p.Reason))
			audit(model.StepDecide, "pattern %s below threshold (%.1f < %.1f), proposed for review",
				p.PatternID, conf, threshold)
		}
	}
	audit(model.StepDecide, "requires_human_review=%t confidence=%.1f", result.RequiresHumanReview, result.ConfidenceScore)
	result.Reasoning = strings.Join(reasons, "; ")

	// Phase 5: learn.
	status := model.RunStatusNeedsReview
	if !result.RequiresHumanReview {
		status = model.RunStatusAutoApplied
	}
	switch {
	case fb != nil && fb.Approved:
		e.learnApproval(ctx, result, vendorLabel(result, fb))
		audit(model.StepLearn, "human approval: reinforced %d keys", 1+len(result.PatternKeys))
		status = model.RunStatusApproved
	case fb != nil && !fb.Approved:
		e.learnRejection(ctx, result)
		audit(model.StepLearn, "human rejection: decayed %d pattern keys", len(result.PatternKeys))
		status = model.RunStatusRejected
	case !result.RequiresHumanReview && e.cfg.AssumeApprovedOnAutoApply:
		// Policy: an unreviewed auto-apply counts as a system success.
		e.learnApproval(ctx, result, result.Normalized.ServiceDateLabel)
		audit(model.StepLearn, "implicit approval of auto-applied run (assume_approved_on_auto_apply)")
	}

	e.completeRun(ctx, result, status)
	log.Info("engine: run complete",
		zap.String("run_id", result.RunID),
		zap.Bool("requires_review", result.RequiresHumanReview),
		zap.Float64("confidence", result.ConfidenceScore),
	)
	return result, nil
}

// ApplyFeedback replays the learn phase for a stored run. A run accepts
// feedback once; duplicates never learn.
func (e *Engine) ApplyFeedback(ctx context.Context, runID string, fb model.Feedback) (*model.DecisionResult, error) {
	run, err := e.store.GetRun(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: load run %s", runID)
	}
	if run.Result == nil {
		return nil, eris.Errorf("engine: run %s has no recorded result", runID)
	}
	if run.Result.Duplicate {
		return nil, eris.Errorf("engine: run %s was blocked as a duplicate and cannot learn", runID)
	}
	if run.Status == model.RunStatusApproved || run.Status == model.RunStatusRejected {
		return nil, eris.Errorf("engine: run %s already has %s feedback", runID, run.Status)
	}

	result := run.Result
	status := model.RunStatusRejected
	if fb.Approved {
		e.learnApproval(ctx, result, vendorLabel(result, &fb))
		result.AuditTrail = append(result.AuditTrail, model.AuditEntry{
			Step:      model.StepLearn,
			Timestamp: time.Now().UTC(),
			Details:   fmt.Sprintf("human approval: reinforced %d keys", 1+len(result.PatternKeys)),
		})
		status = model.RunStatusApproved
	} else {
		e.learnRejection(ctx, result)
		result.AuditTrail = append(result.AuditTrail, model.AuditEntry{
			Step:      model.StepLearn,
			Timestamp: time.Now().UTC(),
			Details:   fmt.Sprintf("human rejection: decayed %d pattern keys", len(result.PatternKeys)),
		})
	}

	e.completeRun(ctx, result, status)
	return result, nil
}

// vendorLabel picks the service-date label the vendor rule should learn:
// the human-corrected one when supplied, else whatever the run applied.
func vendorLabel(result *model.DecisionResult, fb *model.Feedback) string {
	if fb != nil && fb.ServiceDateLabel != "" {
		return fb.ServiceDateLabel
	}
	return result.Normalized.ServiceDateLabel
}

// learnApproval reinforces every touched key and records approvals in the
// resolution ledger.
func (e *Engine) learnApproval(ctx context.Context, result *model.DecisionResult, serviceDateLabel string) {
	log := zap.L().With(zap.String("run_id", result.RunID))

	rec, err := e.vendorMem.Reinforce(ctx, result.VendorKey, memory.Payload{
		ServiceDateLabel: serviceDateLabel,
	})
	if err != nil {
		log.Warn("engine: vendor reinforce failed, learning lost", zap.Error(err))
	} else {
		result.MemoryUpdates = append(result.MemoryUpdates,
			fmt.Sprintf("vendor rule %s reinforced to %.1f", rec.Key, rec.Confidence))
	}

	for _, p := range uniqueProposals(result.Proposals) {
		rec, err := e.patternMem.Reinforce(ctx, p.PatternID, memory.Payload{
			Description: p.Reason,
			Action:      fmt.Sprintf("set %s = %s", p.Field, p.ProposedValue),
		})
		if err != nil {
			log.Warn("engine: pattern reinforce failed, learning lost",
				zap.String("pattern", p.PatternID), zap.Error(err))
			continue
		}
		result.MemoryUpdates = append(result.MemoryUpdates,
			fmt.Sprintf("pattern rule %s reinforced to %.1f", rec.Key, rec.Confidence))
	}

	e.recordResolutions(ctx, result, true)
}

// learnRejection decays the pattern keys only: vendor learning is never
// decayed, only explicit correction patterns are.
func (e *Engine) learnRejection(ctx context.Context, result *model.DecisionResult) {
	log := zap.L().With(zap.String("run_id", result.RunID))

	for _, key := range result.PatternKeys {
		rec, err := e.patternMem.Decay(ctx, key)
		if err != nil {
			log.Warn("engine: pattern decay failed", zap.String("pattern", key), zap.Error(err))
			continue
		}
		if rec == nil {
			continue // no memory to decay
		}
		result.MemoryUpdates = append(result.MemoryUpdates,
			fmt.Sprintf("pattern rule %s decayed to %.1f", rec.Key, rec.Confidence))
	}

	e.recordResolutions(ctx, result, false)
}

func (e *Engine) recordResolutions(ctx context.Context, result *model.DecisionResult, approved bool) {
	log := zap.L().With(zap.String("run_id", result.RunID))

	ids := []string{result.VendorKey + ":service_date_label"}
	for _, p := range uniqueProposals(result.Proposals) {
		ids = append(ids, result.VendorKey+":"+p.Field)
	}
	for _, id := range ids {
		var err error
		if approved {
			_, err = e.ledger.RecordApproval(ctx, id)
		} else {
			_, err = e.ledger.RecordRejection(ctx, id)
		}
		if err != nil {
			log.Warn("engine: resolution record failed", zap.String("memory_id", id), zap.Error(err))
		}
	}
}

func (e *Engine) completeRun(ctx context.Context, result *model.DecisionResult, status model.RunStatus) {
	if result.RunID == "" {
		return
	}
	err := resilience.Do(ctx, e.retry, func(ctx context.Context) error {
		return e.store.CompleteRun(ctx, result.RunID, status, result)
	})
	if err != nil {
		zap.L().Warn("engine: failed to persist run result",
			zap.String("run_id", result.RunID), zap.Error(err))
	}
}

// uniqueProposals keeps the first proposal per pattern id, preserving order.
func uniqueProposals(proposals []model.Proposal) []model.Proposal {
	seen := map[string]bool{}
	var out []model.Proposal
	for _, p := range proposals {
		if seen[p.PatternID] {
			continue
		}
		seen[p.PatternID] = true
		out = append(out, p)
	}
	return out
}

// applyProposal writes an auto-applied correction into the normalized view.
func applyProposal(n *model.NormalizedInvoice, p model.Proposal) {
	switch {
	case p.Field == "vat_included":
		v := p.ProposedValue == "true"
		n.VATIncluded = &v
	case p.Field == "currency":
		n.Currency = p.ProposedValue
	case p.Field == "po_number":
		n.PONumber = p.ProposedValue
	case p.Field == "payment_terms":
		n.PaymentTerms = p.ProposedValue
	case strings.HasPrefix(p.Field, "line_items["):
		if i, ok := lineItemIndex(p.Field); ok && i < len(n.LineItems) {
			n.LineItems[i].Category = p.ProposedValue
		}
	}
	n.AppliedFields = append(n.AppliedFields, p.Field)
}

func lineItemIndex(field string) (int, bool) {
	open := strings.Index(field, "[")
	end := strings.Index(field, "]")
	if open < 0 || end <= open {
		return 0, false
	}
	i, err := strconv.Atoi(field[open+1 : end])
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}
