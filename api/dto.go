/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract:
  - Amounts are rendered as strings with two decimals ("11800.00")
  - Dates are rendered as YYYY-MM-DD

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Run:       RunResponse, PeriodDTO, FailureDTO, RunRecordDTO
  Assets:    AssetDTO, ScheduleEntryDTO, ScheduleResponse, ProjectionResponse
  Scenarios: ScenarioDTO, LoadScenarioRequest
  Errors:    ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/depreciation-engine/depreciation"
	"github.com/warp/depreciation-engine/generic"
)

// =============================================================================
// DEPRECIATION RUN
// =============================================================================

// PeriodDTO is the accounting period a run posted for.
type PeriodDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// FailureDTO is one asset the run could not post.
type FailureDTO struct {
	AssetID string `json:"asset_id"`
	Error   string `json:"error"`
}

// RunResponse is returned by POST /api/depreciation/run.
type RunResponse struct {
	Success    bool           `json:"success"`
	Message    string         `json:"message"`
	Processed  int            `json:"processed"`
	Period     PeriodDTO      `json:"period"`
	RunID      string         `json:"run_id"`
	TenantID   string         `json:"tenant_id"`
	Considered int            `json:"considered"`
	Skipped    map[string]int `json:"skipped"`
	Failed     []FailureDTO   `json:"failed"`
}

// RunRecordDTO represents a stored run.
type RunRecordDTO struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Period      PeriodDTO `json:"period"`
	Status      string    `json:"status"`
	Considered  int       `json:"considered"`
	Processed   int       `json:"processed"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	Error       string    `json:"error,omitempty"`
	StartedAt   string    `json:"started_at"`
	CompletedAt string    `json:"completed_at,omitempty"`
}

// =============================================================================
// ASSETS AND SCHEDULES
// =============================================================================

// AssetDTO represents an asset in API responses.
type AssetDTO struct {
	ID               string  `json:"id"`
	TenantID         string  `json:"tenant_id"`
	Name             string  `json:"name"`
	PurchasePrice    *string `json:"purchase_price"`
	SalvageValue     string  `json:"salvage_value"`
	UsefulLifeYears  int     `json:"useful_life_years"`
	Method           string  `json:"depreciation_method"`
	RatePct          *string `json:"depreciation_rate"`
	InServiceDate    string  `json:"in_service_date,omitempty"`
	Status           string  `json:"status"`
	CurrentBookValue string  `json:"current_book_value"`
}

// ScheduleEntryDTO represents one ledger row.
type ScheduleEntryDTO struct {
	ID                      string `json:"id,omitempty"`
	PeriodType              string `json:"period_type"`
	PeriodStart             string `json:"period_start"`
	PeriodEnd               string `json:"period_end"`
	OpeningValue            string `json:"opening_value"`
	DepreciationAmount      string `json:"depreciation_amount"`
	AccumulatedDepreciation string `json:"accumulated_depreciation"`
	ClosingValue            string `json:"closing_value"`
	Method                  string `json:"method"`
	CreatedAt               string `json:"created_at,omitempty"`
	Voided                  bool   `json:"voided,omitempty"`
}

// ScheduleResponse is an asset's ledger with a consistency report.
type ScheduleResponse struct {
	Asset      AssetDTO           `json:"asset"`
	Entries    []ScheduleEntryDTO `json:"entries"`
	Consistent bool               `json:"consistent"`
	Violations []string           `json:"violations"`
}

// ProjectionResponse is an asset's expected future schedule.
type ProjectionResponse struct {
	Asset              AssetDTO           `json:"asset"`
	From               PeriodDTO          `json:"from"`
	Entries            []ScheduleEntryDTO `json:"entries"`
	FullyDepreciatedIn *PeriodDTO         `json:"fully_depreciated_in"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Tenant      string `json:"tenant"`
}

// LoadScenarioRequest is the body of POST /api/scenarios/load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toPeriodDTO(p generic.Period) PeriodDTO {
	return PeriodDTO{Start: p.Start.String(), End: p.End.String()}
}

func toRunResponse(s depreciation.RunSummary) RunResponse {
	resp := RunResponse{
		Success:    true,
		Processed:  s.Processed,
		Period:     toPeriodDTO(s.Period),
		RunID:      string(s.RunID),
		TenantID:   string(s.TenantID),
		Considered: s.Considered,
		Skipped:    make(map[string]int, len(s.Skipped)),
		Failed:     make([]FailureDTO, 0, len(s.Failed)),
	}
	for reason, n := range s.Skipped {
		resp.Skipped[string(reason)] = n
	}
	for _, f := range s.Failed {
		resp.Failed = append(resp.Failed, FailureDTO{AssetID: string(f.AssetID), Error: f.Err.Error()})
	}
	return resp
}

func toRunRecordDTO(r depreciation.RunRecord) RunRecordDTO {
	dto := RunRecordDTO{
		ID:         string(r.ID),
		TenantID:   string(r.TenantID),
		Period:     PeriodDTO{Start: r.PeriodStart.String(), End: r.PeriodEnd.String()},
		Status:     string(r.Status),
		Considered: r.Considered,
		Processed:  r.Processed,
		Skipped:    r.Skipped,
		Failed:     r.Failed,
		Error:      r.Error,
		StartedAt:  r.StartedAt.UTC().Format(time.RFC3339),
	}
	if r.CompletedAt != nil {
		dto.CompletedAt = r.CompletedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toAssetDTO(a depreciation.Asset) AssetDTO {
	dto := AssetDTO{
		ID:               string(a.ID),
		TenantID:         string(a.TenantID),
		Name:             a.Name,
		SalvageValue:     generic.FormatCents(a.SalvageValue),
		UsefulLifeYears:  a.UsefulLifeYears,
		Method:           string(a.Method),
		InServiceDate:    a.InServiceDate.String(),
		Status:           string(a.Status),
		CurrentBookValue: generic.FormatCents(a.CurrentBookValue),
	}
	if a.PurchasePrice.Valid {
		p := generic.FormatCents(a.PurchasePrice.Decimal)
		dto.PurchasePrice = &p
	}
	if a.RatePct.Valid {
		r := a.RatePct.Decimal.String()
		dto.RatePct = &r
	}
	return dto
}

func toScheduleEntryDTO(e depreciation.ScheduleEntry) ScheduleEntryDTO {
	dto := ScheduleEntryDTO{
		ID:                      string(e.ID),
		PeriodType:              string(e.PeriodType),
		PeriodStart:             e.PeriodStart.String(),
		PeriodEnd:               e.PeriodEnd.String(),
		OpeningValue:            generic.FormatCents(e.OpeningValue),
		DepreciationAmount:      generic.FormatCents(e.DepreciationAmount),
		AccumulatedDepreciation: generic.FormatCents(e.AccumulatedDepreciation),
		ClosingValue:            generic.FormatCents(e.ClosingValue),
		Method:                  string(e.Method),
		Voided:                  e.DeletedAt != nil,
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func toProjectionResponse(a depreciation.Asset, p depreciation.Projection) ProjectionResponse {
	resp := ProjectionResponse{
		Asset:   toAssetDTO(a),
		From:    toPeriodDTO(p.From),
		Entries: make([]ScheduleEntryDTO, 0, len(p.Entries)),
	}
	for _, e := range p.Entries {
		resp.Entries = append(resp.Entries, toScheduleEntryDTO(e))
	}
	if p.FullyDepreciatedIn != nil {
		done := toPeriodDTO(*p.FullyDepreciatedIn)
		resp.FullyDepreciatedIn = &done
	}
	return resp
}
