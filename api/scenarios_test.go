/*
scenarios_test.go - Tests for demo scenario loading

Each scenario is loaded through the API and then run once for
January 2025, checking the outcome the scenario is meant to show.
*/
package api

import (
	"net/http"
	"testing"
)

func loadScenario(t *testing.T, h *Handler, id string) RunResponse {
	t.Helper()
	router := NewRouter(h, nil)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: id}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Failed to load scenario %s: %d %s", id, rec.Code, rec.Body.String())
	}

	rec = do(t, router, http.MethodPost, "/api/depreciation/run", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Run after scenario %s failed: %d %s", id, rec.Code, rec.Body.String())
	}
	return decode[RunResponse](t, rec)
}

func TestScenario_AllLoad(t *testing.T) {
	for _, s := range scenarios {
		t.Run(s.ID, func(t *testing.T) {
			h := setupTestHandler(t)
			loadScenario(t, h, s.ID)

			current := decode[ScenarioDTO](t, do(t, NewRouter(h, nil), http.MethodGet, "/api/scenarios/current", nil, nil))
			if current.ID != s.ID {
				t.Errorf("Expected current scenario %s, got %s", s.ID, current.ID)
			}
		})
	}
}

func TestScenario_StraightLineFleet(t *testing.T) {
	// GIVEN: Three vehicles in service before January 2025
	// WHEN: Running January
	// THEN: All three are posted
	resp := loadScenario(t, setupTestHandler(t), "straight-line-fleet")

	if resp.Processed != 3 {
		t.Errorf("Expected 3 processed, got %d", resp.Processed)
	}
}

func TestScenario_DecliningEquipment(t *testing.T) {
	resp := loadScenario(t, setupTestHandler(t), "declining-equipment")

	if resp.Processed != 2 {
		t.Errorf("Expected 2 processed, got %d", resp.Processed)
	}
	if len(resp.Failed) != 0 {
		t.Errorf("Expected no failures, got %+v", resp.Failed)
	}
}

func TestScenario_NearSalvage(t *testing.T) {
	// GIVEN: A laptop 5.00 above salvage and a server at salvage
	// WHEN: Running January
	// THEN: The laptop is posted and the server is skipped
	resp := loadScenario(t, setupTestHandler(t), "near-salvage")

	if resp.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", resp.Processed)
	}
	if resp.Skipped["fully_depreciated"] != 1 {
		t.Errorf("Expected 1 fully_depreciated skip, got %v", resp.Skipped)
	}
}

func TestScenario_FutureInService(t *testing.T) {
	resp := loadScenario(t, setupTestHandler(t), "future-in-service")

	if resp.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", resp.Processed)
	}
	if resp.Skipped["not_in_service"] != 1 {
		t.Errorf("Expected 1 not_in_service skip, got %v", resp.Skipped)
	}
}

func TestScenario_MixedRegister(t *testing.T) {
	// GIVEN: A valid desk, a disposed copier, an unpriced artwork and a
	// kiosk with no useful life
	// WHEN: Running January
	// THEN: Only the desk and kiosk are considered, and the kiosk fails
	resp := loadScenario(t, setupTestHandler(t), "mixed-register")

	if resp.Considered != 2 {
		t.Errorf("Expected 2 considered, got %d", resp.Considered)
	}
	if resp.Processed != 1 {
		t.Errorf("Expected 1 processed, got %d", resp.Processed)
	}
	if len(resp.Failed) != 1 || resp.Failed[0].AssetID != "kiosk-04" {
		t.Errorf("Expected kiosk-04 to fail, got %+v", resp.Failed)
	}
}

func TestScenario_UnknownAndReset(t *testing.T) {
	h := setupTestHandler(t)
	router := NewRouter(h, nil)

	rec := do(t, router, http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "nope"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown scenario, got %d", rec.Code)
	}

	loadScenario(t, h, "straight-line-fleet")
	if rec := do(t, router, http.MethodPost, "/api/scenarios/reset", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("Reset failed: %d", rec.Code)
	}

	assets := decode[[]AssetDTO](t, do(t, router, http.MethodGet, "/api/assets", nil, nil))
	if len(assets) != 0 {
		t.Errorf("Expected no assets after reset, got %d", len(assets))
	}
	if rec := do(t, router, http.MethodGet, "/api/scenarios/current", nil, nil); rec.Body.String() != "null\n" {
		t.Errorf("Expected no current scenario, got %q", rec.Body.String())
	}
}
