// internal/stages/score-cases-fallback/handler.go
package scorecasesfallback

import (
	"context"
	"fmt"

	"caserank/internal/common/logger"
	"caserank/internal/models"
)

const StageName = "score-cases-fallback"

// distanceBands maps a primary distance to its point award, worst band
// last. A missing distance scores the worst band.
var distanceBands = []struct {
	upTo   float64 // exclusive upper bound in miles
	points int
	label  string
}{
	{2, 20, "0-2 mi"},
	{5, 17, "2-5 mi"},
	{10, 15, "5-10 mi"},
	{20, 10, "10-20 mi"},
	{40, 7, "20-40 mi"},
}

const (
	worstBandPoints = 3
	worstBandLabel  = "40+ mi"
)

type Handler struct {
	config *Config
	logger logger.Logger
}

func NewHandler(config *Config, log logger.Logger) *Handler {
	return &Handler{
		config: config,
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Execute scores each case with the deterministic rubric. Scores land in
// [0, 100] by construction; reasons carry per-factor point contributions.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{Scored: make([]models.ScoredCase, 0, len(input.Features))}

	for _, cf := range input.Features {
		sc := h.ScoreOne(&cf)
		out.Scored = append(out.Scored, sc)
	}

	h.logger.Info("fallback scoring completed", map[string]interface{}{
		"cases": len(out.Scored),
	})
	return out, nil
}

// ScoreOne applies the rubric to a single case.
func (h *Handler) ScoreOne(cf *models.CaseFeatures) models.ScoredCase {
	score := 0
	var reasons []string

	if cf.IsPreviousProviderMatch {
		score += h.config.PreviousProviderPoints
		reasons = append(reasons, fmt.Sprintf("Previous provider match (+%d)", h.config.PreviousProviderPoints))
	}

	distPoints, distLabel := distancePoints(cf.PrimaryDistance)
	score += distPoints
	reasons = append(reasons, fmt.Sprintf("Distance %s (+%d)", distLabel, distPoints))

	if models.StatusIsOpen(cf.Status) {
		score += h.config.OpenStatusPoints
		reasons = append(reasons, fmt.Sprintf("Status open/pending (+%d)", h.config.OpenStatusPoints))
	} else {
		score += h.config.OtherStatusPoints
		reasons = append(reasons, fmt.Sprintf("Status other (+%d)", h.config.OtherStatusPoints))
	}

	return models.ScoredCase{
		CaseFeatures: *cf,
		MatchScore:   clamp(score, 0, 100),
		Reasons:      reasons,
		ScoreSource:  models.ScoreSourceFallback,
	}
}

func distancePoints(d *float64) (int, string) {
	if d == nil {
		return worstBandPoints, "unknown"
	}
	for _, band := range distanceBands {
		if *d < band.upTo {
			return band.points, band.label
		}
	}
	return worstBandPoints, worstBandLabel
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
