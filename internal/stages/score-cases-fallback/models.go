// internal/stages/score-cases-fallback/models.go
package scorecasesfallback

import "caserank/internal/models"

type Input struct {
	Clinician *models.Clinician     `json:"clinician"`
	Features  []models.CaseFeatures `json:"features"`
}

type Output struct {
	Scored []models.ScoredCase `json:"scored"`
}
