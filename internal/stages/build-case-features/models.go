// internal/stages/build-case-features/models.go
package buildcasefeatures

import "caserank/internal/models"

type Input struct {
	Clinician   *models.Clinician    `json:"clinician"`
	OpenCases   []models.PatientCase `json:"openCases"`
	ActiveCases []models.ActiveCase  `json:"activeCases"`
}

type Output struct {
	Features []models.CaseFeatures `json:"features"`

	TotalOpenCases    int `json:"totalOpenCases"`
	DisciplineMatched int `json:"disciplineMatched"`
	DroppedBlankID    int `json:"droppedBlankId"`
}
