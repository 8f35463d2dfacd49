package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adaptivedocs/corrigo/internal/config"
	"github.com/adaptivedocs/corrigo/internal/detect"
	"github.com/adaptivedocs/corrigo/internal/engine"
	"github.com/adaptivedocs/corrigo/internal/model"
	"github.com/adaptivedocs/corrigo/internal/monitoring"
	"github.com/adaptivedocs/corrigo/internal/store"
)

func newTestServer(t *testing.T) (*Server, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	generators, err := detect.DefaultGenerators("")
	require.NoError(t, err)

	engCfg := config.EngineConfig{AutoApplyThreshold: 0.6}
	eng := engine.New(engCfg, st, generators)
	collector := monitoring.NewCollector(st, engCfg.AutoApplyThreshold)

	srv := New(config.ServerConfig{Port: 0, RateLimitRPS: 1000}, eng, st, collector)
	return srv, st
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Decide(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/decisions", decideRequest{
		Invoice: model.Invoice{
			Vendor:        "Acme GmbH",
			InvoiceNumber: "INV-001",
			InvoiceDate:   "2026-01-15",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.DecisionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.RequiresHumanReview)
	assert.NotEmpty(t, result.RunID)
	assert.False(t, result.Duplicate)
}

func TestServer_Decide_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", bytes.NewBufferString("not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/v1/decisions", decideRequest{
		Invoice: model.Invoice{Vendor: "Acme GmbH"}, // missing invoice number
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_FeedbackFlow(t *testing.T) {
	srv, st := newTestServer(t)
	router := srv.Router()

	rec := doJSON(t, router, http.MethodPost, "/v1/decisions", decideRequest{
		Invoice: model.Invoice{
			Vendor:        "Acme GmbH",
			InvoiceNumber: "INV-002",
			InvoiceDate:   "2026-01-16",
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result model.DecisionResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/v1/decisions/%s/feedback", result.RunID),
		model.Feedback{Approved: true, ServiceDateLabel: "Leistungsdatum"})
	require.Equal(t, http.StatusOK, rec.Code)

	rule, err := st.GetVendorRule(context.Background(), "Acme GmbH")
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, 0.5, rule.Confidence)

	// second feedback on the same run is refused
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/v1/decisions/%s/feedback", result.RunID),
		model.Feedback{Approved: false})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_Feedback_UnknownRun(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doJSON(t, srv.Router(), http.MethodPost,
		"/v1/decisions/no-such-run/feedback",
		model.Feedback{Approved: true})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestServer_ListRuns(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	run, err := st.CreateRun(ctx, model.Invoice{Vendor: "Acme GmbH", InvoiceNumber: "INV-003"})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, model.RunStatusNeedsReview, &model.DecisionResult{RunID: run.ID}))

	rec := doJSON(t, srv.Router(), http.MethodGet, "/v1/runs?status=needs_review", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Runs  []model.Run `json:"runs"`
		Count int         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, 1, resp.Count)
	assert.Equal(t, run.ID, resp.Runs[0].ID)
}

func TestServer_ListRules(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.ReinforceVendorRule(ctx, "Acme GmbH", "Leistungsdatum")
	require.NoError(t, err)
	_, err = st.ReinforcePatternRule(ctx, "vat_inclusive_total", "", "set vat_included = true")
	require.NoError(t, err)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/v1/rules", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		VendorRules  []model.VendorRule  `json:"vendor_rules"`
		PatternRules []model.PatternRule `json:"pattern_rules"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.VendorRules, 1)
	assert.Len(t, resp.PatternRules, 1)
}

func TestServer_Stats(t *testing.T) {
	srv, st := newTestServer(t)
	ctx := context.Background()

	_, err := st.ReinforceVendorRule(ctx, "Acme GmbH", "Leistungsdatum")
	require.NoError(t, err)

	rec := doJSON(t, srv.Router(), http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap monitoring.MetricsSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, 1, snap.VendorRules)
}

func TestServer_RateLimit(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	generators, err := detect.DefaultGenerators("")
	require.NoError(t, err)
	eng := engine.New(config.EngineConfig{AutoApplyThreshold: 0.6}, st, generators)

	srv := New(config.ServerConfig{RateLimitRPS: 1}, eng, st, monitoring.NewCollector(st, 0.6))
	router := srv.Router()

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}
