// internal/stages/dedupe-recommendations/models.go
package deduperecommendations

import "caserank/internal/models"

type Input struct {
	Scored []models.ScoredCase `json:"scored"`
}

type Output struct {
	Ranked            []models.ScoredCase `json:"ranked"`
	DuplicatesRemoved int                 `json:"duplicatesRemoved"`
}
