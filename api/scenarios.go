/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built asset registers that exercise each depreciation path.
	Scenarios are loaded into the handler's default tenant; run
	POST /api/depreciation/run afterwards to post the current period.

AVAILABLE SCENARIOS:

	straight-line-fleet:  Vehicles depreciated evenly over their life
	declining-equipment:  Machinery on declining balance, with and without an explicit rate
	near-salvage:         Assets one posting away from salvage, and one already there
	future-in-service:    An asset bought but not yet placed in service
	mixed-register:       Ineligible assets and a misconfigured one next to a valid asset

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Build assets from factory presets
 3. Save them through the store

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "near-salvage"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: ResetDatabase handler
  - factory/presets.go: Asset JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/depreciation-engine/factory"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "straight-line-fleet",
		Name:        "Straight-Line Fleet",
		Description: "Three vehicles depreciated evenly over 5 to 8 years",
	},
	{
		ID:          "declining-equipment",
		Name:        "Declining Equipment",
		Description: "Machinery on declining balance, one with a 30% rate and one on the life-based rate",
	},
	{
		ID:          "near-salvage",
		Name:        "Near Salvage",
		Description: "A laptop one posting from salvage (clamped) and a fully depreciated server",
	},
	{
		ID:          "future-in-service",
		Name:        "Future In-Service",
		Description: "A building placed in service next month, skipped until then",
	},
	{
		ID:          "mixed-register",
		Name:        "Mixed Register",
		Description: "Disposed, unpriced and misconfigured assets next to a valid one",
	},
}

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	out := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		s.Tenant = string(h.DefaultTenant)
		out[i] = s
	}
	writeJSON(w, http.StatusOK, out)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
// GET /api/scenarios/current
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == current {
			s.Tenant = string(h.DefaultTenant)
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current, Tenant: string(h.DefaultTenant)})
}

// LoadScenario loads a predefined scenario.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	assets, ok := h.scenarioAssets(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	ctx := r.Context()

	h.mu.Lock()
	defer h.mu.Unlock()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := h.saveAssets(ctx, assets); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "loaded",
		"scenario": req.ScenarioID,
		"tenant":   string(h.DefaultTenant),
		"assets":   len(assets),
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioAssets returns the asset JSON documents of a scenario.
func (h *Handler) scenarioAssets(id string) ([]string, bool) {
	tenant := string(h.DefaultTenant)

	switch id {
	case "straight-line-fleet":
		return []string{
			factory.StraightLineJSON(tenant, "van-01", "Delivery Van", "36000", "6000", 5, "2024-03-01"),
			factory.StraightLineJSON(tenant, "van-02", "Delivery Van", "36000", "6000", 5, "2024-09-15"),
			factory.StraightLineJSON(tenant, "truck-01", "Box Truck", "96000", "0", 8, "2023-01-01"),
		}, true

	case "declining-equipment":
		return []string{
			factory.DecliningBalanceJSON(tenant, "lathe-01", "CNC Lathe", "120000", "10000", 10, "30", "2023-07-01"),
			factory.DecliningBalanceJSON(tenant, "press-01", "Hydraulic Press", "48000", "4000", 8, "", "2024-02-01"),
		}, true

	case "near-salvage":
		// The laptop's straight-line charge (300.00) exceeds what is left
		// above salvage (5.00), so the posting is clamped.
		return []string{
			factory.WithBookValueJSON(tenant, "laptop-07", "Laptop", "3700", "100", 1, "straight_line", "105"),
			factory.WithBookValueJSON(tenant, "server-02", "Rack Server", "9000", "500", 3, "straight_line", "500"),
		}, true

	case "future-in-service":
		next := h.Engine.Periods.Resolve(h.Engine.Now()).NextPeriod()
		return []string{
			factory.StraightLineJSON(tenant, "hq-building", "Headquarters", "2400000", "400000", 40, next.Start.String()),
			factory.StraightLineJSON(tenant, "forklift-03", "Forklift", "28000", "4000", 6, "2024-05-01"),
		}, true

	case "mixed-register":
		return []string{
			factory.StraightLineJSON(tenant, "desk-11", "Standing Desk", "1200", "0", 4, "2024-01-01"),
			disposedJSON(tenant, "copier-02", "Copier"),
			fmt.Sprintf(`{"id": "donated-art", "tenant_id": %q, "name": "Donated Artwork", "depreciation_method": "straight_line"}`, tenant),
			factory.StraightLineJSON(tenant, "kiosk-04", "Kiosk", "5000", "0", 0, "2024-01-01"),
		}, true
	}
	return nil, false
}

func disposedJSON(tenant, id, name string) string {
	return fmt.Sprintf(`{
		"id": %q,
		"tenant_id": %q,
		"name": %q,
		"purchase_price": "4500",
		"salvage_value": "0",
		"useful_life_years": 5,
		"depreciation_method": "straight_line",
		"in_service_date": "2021-01-01",
		"status": "disposed"
	}`, id, tenant, name)
}

func (h *Handler) saveAssets(ctx context.Context, docs []string) error {
	for _, doc := range docs {
		asset, err := h.AssetFactory.ParseAsset(doc)
		if err != nil {
			return err
		}
		if err := h.Store.SaveAsset(ctx, asset); err != nil {
			return fmt.Errorf("save asset %s: %w", asset.ID, err)
		}
	}
	return nil
}
