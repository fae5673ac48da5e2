// internal/stages/score-cases-ai/models.go
package scorecasesai

import (
	"caserank/internal/common/errors"
	"caserank/internal/models"
)

type Input struct {
	Clinician *models.Clinician     `json:"clinician"`
	Features  []models.CaseFeatures `json:"features"`
}

type Output struct {
	Scored []models.ScoredCase `json:"scored"`

	BatchCount      int `json:"batchCount"`
	BatchesScored   int `json:"batchesScored"`
	BatchesFellBack int `json:"batchesFellBack"`
	CacheHits       int `json:"cacheHits"`

	// Errors collects per-batch failures that were absorbed by fallback
	// scoring. They never abort the request.
	Errors []*errors.StandardError `json:"errors,omitempty"`
}

// scoredEntry is one element of the model's JSON-array response.
type scoredEntry struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}
