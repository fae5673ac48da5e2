// internal/models/recommendation.go
package models

// ScoreSource identifies which scorer produced a recommendation's score.
type ScoreSource string

const (
	ScoreSourceAI       ScoreSource = "ai"
	ScoreSourceFallback ScoreSource = "fallback"
	ScoreSourceCache    ScoreSource = "cache"
)

// ScoredCase is a candidate case with its match score attached.
type ScoredCase struct {
	CaseFeatures

	MatchScore  int         `json:"matchScore"`
	Reasons     []string    `json:"reasons"`
	ScoreSource ScoreSource `json:"scoreSource"`
}

// SearchParams echoes the resolved request parameters back to the caller.
type SearchParams struct {
	ProviderID  string  `json:"providerId"`
	RadiusMiles float64 `json:"radiusMiles"`
	Limit       int     `json:"limit"`
}

// ClinicianSummary is the clinician block of the response.
type ClinicianSummary struct {
	ProviderID      string       `json:"providerId"`
	Name            string       `json:"name"`
	Discipline      Discipline   `json:"discipline"`
	Specialties     []string     `json:"specialties,omitempty"`
	Coordinates     *Coordinates `json:"coordinates,omitempty"`
	ActiveCaseCount int          `json:"activeCaseCount"`
}

// FilteringStats exposes candidate counts through each pipeline stage.
type FilteringStats struct {
	TotalOpenCases      int `json:"totalOpenCases"`
	DisciplineMatched   int `json:"disciplineMatched"`
	DroppedBlankID      int `json:"droppedBlankId"`
	ScoredCases         int `json:"scoredCases"`
	AfterDeduplication  int `json:"afterDeduplication"`
	WithinRadius        int `json:"withinRadius"`
	UnknownDistanceKept int `json:"unknownDistanceKept"`
	Returned            int `json:"returned"`
}

// AIMetadata describes how the scoring stage behaved for this request.
type AIMetadata struct {
	Enabled         bool   `json:"enabled"`
	Model           string `json:"model,omitempty"`
	BatchCount      int    `json:"batchCount"`
	BatchesScored   int    `json:"batchesScored"`
	BatchesFellBack int    `json:"batchesFellBack"`
	CacheHits       int    `json:"cacheHits"`
	DurationMillis  int64  `json:"durationMillis"`
}

// ResponseError is a non-fatal problem surfaced alongside results.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RecommendationResult is the full response body for a recommendation
// request.
type RecommendationResult struct {
	SearchParams    SearchParams     `json:"searchParams"`
	Clinician       ClinicianSummary `json:"clinician"`
	Filtering       FilteringStats   `json:"filtering"`
	AI              AIMetadata       `json:"ai"`
	Errors          []ResponseError  `json:"errors,omitempty"`
	Recommendations []ScoredCase     `json:"recommendations"`
}
