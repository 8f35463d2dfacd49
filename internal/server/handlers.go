package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type decideRequest struct {
	Invoice  model.Invoice   `json:"invoice"`
	Feedback *model.Feedback `json:"feedback,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Invoice.Vendor == "" || req.Invoice.InvoiceNumber == "" {
		respondError(w, http.StatusBadRequest, "vendor and invoice_number are required")
		return
	}

	result, err := s.engine.Process(r.Context(), req.Invoice, req.Feedback)
	if err != nil {
		zap.L().Error("server: decision failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "decision failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")

	var fb model.Feedback
	if err := json.NewDecoder(r.Body).Decode(&fb); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.engine.ApplyFeedback(r.Context(), runID, fb)
	if err != nil {
		zap.L().Warn("server: feedback rejected", zap.String("run_id", runID), zap.Error(err))
		respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Vendor: r.URL.Query().Get("vendor"),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list runs failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	vendorRules, err := s.store.ListVendorRules(r.Context())
	if err != nil {
		zap.L().Error("server: list vendor rules failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list rules failed")
		return
	}
	patternRules, err := s.store.ListPatternRules(r.Context())
	if err != nil {
		zap.L().Error("server: list pattern rules failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "list rules failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"vendor_rules":  vendorRules,
		"pattern_rules": patternRules,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.collector.Collect(r.Context(), queryInt(r, "limit", 500))
	if err != nil {
		zap.L().Error("server: collect stats failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "collect stats failed")
		return
	}
	respondJSON(w, http.StatusOK, snapshot)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
