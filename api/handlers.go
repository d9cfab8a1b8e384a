/*
handlers.go - HTTP API handlers for the depreciation engine

PURPOSE:
  Exposes the depreciation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine and the
  store's read views.

ENDPOINTS:
  Depreciation:
    POST    /api/depreciation/run        Post depreciation for the current period
    OPTIONS /api/depreciation/run        Preflight, answered with no body
    GET     /api/depreciation/runs       Run history

  Assets:
    GET    /api/assets                   List the tenant's assets
    POST   /api/assets                   Register or replace an asset
    GET    /api/assets/{id}              Asset details
    GET    /api/assets/{id}/schedule     Ledger entries + consistency report
    GET    /api/assets/{id}/projection   Expected future postings (?periods=N)

  Scenarios:
    GET    /api/scenarios                List demo scenarios
    GET    /api/scenarios/current        Currently loaded scenario
    POST   /api/scenarios/load           Load a demo scenario
    POST   /api/scenarios/reset          Clear all data

TENANT RESOLUTION:
  1. tenant_id query parameter
  2. X-Tenant-ID header
  3. Handler.DefaultTenant
  No tenant at all is a 400.

ERROR HANDLING:
  Errors are returned as {"success": false, "error": "..."}:
  - 400: No tenant, invalid input
  - 404: Asset not found (or owned by another tenant)
  - 500: Fatal run errors, store failures

SECURITY NOTE:
  No authentication. Tenant identity is taken from the request as-is and
  must be enforced by a gateway in front of this service.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/factory"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the store surface the API needs. store/memory, store/sqlite
// and store/postgres all satisfy it.
type Backend interface {
	depreciation.Store
	depreciation.Reader
	depreciation.AssetWriter
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store         Backend
	Engine        *depreciation.Engine
	AssetFactory  *factory.AssetFactory
	DefaultTenant generic.TenantID

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler.
func NewHandler(store Backend, engine *depreciation.Engine) *Handler {
	return &Handler{
		Store:         store,
		Engine:        engine,
		AssetFactory:  factory.NewAssetFactory(),
		DefaultTenant: "default",
	}
}

// tenantFrom resolves the tenant of a request.
func (h *Handler) tenantFrom(r *http.Request) generic.TenantID {
	if t := strings.TrimSpace(r.URL.Query().Get("tenant_id")); t != "" {
		return generic.TenantID(t)
	}
	if t := strings.TrimSpace(r.Header.Get("X-Tenant-ID")); t != "" {
		return generic.TenantID(t)
	}
	return h.DefaultTenant
}

// =============================================================================
// DEPRECIATION RUN
// =============================================================================

// RunDepreciation posts depreciation for the period containing now.
// POST /api/depreciation/run
func (h *Handler) RunDepreciation(w http.ResponseWriter, r *http.Request) {
	tenant := h.tenantFrom(r)

	summary, err := h.Engine.Run(r.Context(), tenant)
	if err != nil {
		writeError(w, statusFor(err), err.Error(), nil)
		return
	}

	resp := toRunResponse(summary)
	resp.Message = runMessage(summary)
	writeJSON(w, http.StatusOK, resp)
}

func runMessage(s depreciation.RunSummary) string {
	msg := fmt.Sprintf("Depreciation posted for %d asset(s) for %s", s.Processed, s.Period)
	if n := len(s.Failed); n > 0 {
		msg += fmt.Sprintf("; %d asset(s) failed", n)
	}
	return msg
}

// Preflight answers OPTIONS with 204 and no body.
// OPTIONS /api/depreciation/run
func (h *Handler) Preflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// ListRuns returns the tenant's run history, newest first.
// GET /api/depreciation/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), h.tenantFrom(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunRecordDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toRunRecordDTO(run))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ASSET ENDPOINTS
// =============================================================================

// ListAssets returns all assets of the tenant.
// GET /api/assets
func (h *Handler) ListAssets(w http.ResponseWriter, r *http.Request) {
	tenant := h.tenantFrom(r)
	if tenant == "" {
		writeError(w, http.StatusBadRequest, generic.ErrTenantRequired.Error(), nil)
		return
	}

	assets, err := h.Store.ListAssets(r.Context(), tenant)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list assets", err)
		return
	}

	dtos := make([]AssetDTO, 0, len(assets))
	for _, a := range assets {
		dtos = append(dtos, toAssetDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAsset registers an asset, replacing any asset with the same ID. An
// asset that already has postings keeps its book value; the response shows
// the stored asset.
// POST /api/assets
func (h *Handler) CreateAsset(w http.ResponseWriter, r *http.Request) {
	var req factory.AssetJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	tenant := h.tenantFrom(r)
	if req.TenantID == "" {
		req.TenantID = string(tenant)
	}
	if generic.TenantID(req.TenantID) != tenant {
		writeError(w, http.StatusBadRequest, "tenant_id does not match the request tenant", nil)
		return
	}

	asset, err := h.AssetFactory.FromJSON(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid asset", err)
		return
	}
	if err := h.Store.SaveAsset(r.Context(), asset); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save asset", err)
		return
	}

	stored, err := h.Store.GetAsset(r.Context(), asset.ID)
	if err != nil || stored == nil {
		writeError(w, http.StatusInternalServerError, "Failed to read back asset", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAssetDTO(*stored))
}

// GetAsset returns one asset.
// GET /api/assets/{id}
func (h *Handler) GetAsset(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAsset(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toAssetDTO(*a))
}

// GetSchedule returns an asset's ledger entries and checks them against the
// ledger invariants.
// GET /api/assets/{id}/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	entries, err := h.Store.ListEntries(r.Context(), a.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get schedule", err)
		return
	}

	resp := ScheduleResponse{
		Asset:      toAssetDTO(*a),
		Entries:    make([]ScheduleEntryDTO, 0, len(entries)),
		Violations: []string{},
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toScheduleEntryDTO(e))
	}
	for _, v := range depreciation.CheckAsset(*a, entries) {
		resp.Violations = append(resp.Violations, v.String())
	}
	resp.Consistent = len(resp.Violations) == 0

	writeJSON(w, http.StatusOK, resp)
}

// GetProjection returns the asset's expected postings from the next
// unposted period on, up to ?periods= periods (default 12).
// GET /api/assets/{id}/projection
func (h *Handler) GetProjection(w http.ResponseWriter, r *http.Request) {
	a, ok := h.loadAsset(w, r)
	if !ok {
		return
	}

	periods := defaultProjectionPeriods
	if v := r.URL.Query().Get("periods"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "periods must be an integer", err)
			return
		}
		periods = n
	}

	from := h.Engine.Periods.Resolve(h.Engine.Now())
	posted, err := h.Store.PostedAssetIDs(r.Context(), a.TenantID, from)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read ledger", err)
		return
	}
	if posted[a.ID] {
		from = from.NextPeriod()
	}

	proj, err := h.Engine.Calculator.Project(*a, from, periods)
	if err != nil {
		writeError(w, statusFor(err), err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusOK, toProjectionResponse(*a, proj))
}

const defaultProjectionPeriods = 12

// loadAsset fetches the {id} asset and writes the error response itself
// when it cannot be returned.
func (h *Handler) loadAsset(w http.ResponseWriter, r *http.Request) (*depreciation.Asset, bool) {
	id := generic.AssetID(chi.URLParam(r, "id"))

	a, err := h.Store.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get asset", err)
		return nil, false
	}
	if a == nil || a.TenantID != h.tenantFrom(r) {
		writeError(w, http.StatusNotFound, generic.ErrAssetNotFound.Error(), nil)
		return nil, false
	}
	return a, true
}

// =============================================================================
// ADMIN
// =============================================================================

// ResetDatabase clears all data.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}

	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Success: false, Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, generic.ErrAlreadyPosted):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
