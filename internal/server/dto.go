package server

import (
	"encoding/json"

	"taxline/internal/config"
	"taxline/internal/domain"
	"taxline/internal/engine"
)

// Request payloads

// ComputeReturnRequest is decoded by hand from the raw body so amounts keep
// their exact decimal value.
type ComputeReturnRequest struct {
	TaxYear int                  `json:"tax_year"`
	Input   domain.TaxpayerInput `json:"input"`
	PriorID string               `json:"prior_id,omitempty"`
	Save    bool                 `json:"save,omitempty"`
}

// Response payloads

type HealthResponse struct {
	Status          string `json:"status"`
	SchemaVersion   int    `json:"schema_version,omitempty"`
	SchemaMigration string `json:"schema_migration,omitempty"`
}

type ReturnListResponse struct {
	Items []domain.ReturnSummary `json:"items"`
}

type EventListResponse struct {
	Items []domain.Event `json:"items"`
}

type PlanResponse struct {
	Steps []engine.Decision `json:"steps"`
}

type YearsResponse struct {
	Years []int `json:"years"`
}

// configBody renders year constants as plain JSON values for the response.
func configBody(cfg *config.Config) (map[string]any, error) {
	b, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
