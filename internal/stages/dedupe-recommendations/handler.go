// internal/stages/dedupe-recommendations/handler.go
package deduperecommendations

import (
	"context"
	"math"
	"sort"

	"caserank/internal/common/logger"
	"caserank/internal/models"
)

const StageName = "dedupe-recommendations"

type Handler struct {
	logger logger.Logger
}

func NewHandler(log logger.Logger) *Handler {
	return &Handler{
		logger: log.WithFields(map[string]interface{}{"stage": StageName}),
	}
}

// Execute produces the final presentation order: canonical sort, then
// per-id dedup keeping the highest score (first seen wins an exact tie),
// then the canonical sort again so survivors land in deterministic order.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	working := make([]models.ScoredCase, len(input.Scored))
	copy(working, input.Scored)

	CanonicalSort(working)

	best := make(map[string]int, len(working)) // case id -> index into deduped
	var deduped []models.ScoredCase
	duplicates := 0

	for _, sc := range working {
		idx, seen := best[sc.CaseID]
		if !seen {
			best[sc.CaseID] = len(deduped)
			deduped = append(deduped, sc)
			continue
		}
		duplicates++
		if sc.MatchScore > deduped[idx].MatchScore {
			deduped[idx] = sc
		}
	}

	// Dedup can promote entries whose canonical position changed.
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].MatchScore > deduped[j].MatchScore
	})
	CanonicalSort(deduped)

	if duplicates > 0 {
		h.logger.Info("duplicate recommendations removed", map[string]interface{}{
			"duplicates": duplicates,
			"remaining":  len(deduped),
		})
	}

	return &Output{Ranked: deduped, DuplicatesRemoved: duplicates}, nil
}

// CanonicalSort orders scored cases by the canonical tie-break key:
// previous-provider matches first, then score descending, then primary
// distance ascending (missing last), then clinician distance ascending
// (missing last), then case id.
func CanonicalSort(scored []models.ScoredCase) {
	sort.SliceStable(scored, func(i, j int) bool {
		return canonicalLess(&scored[i], &scored[j])
	})
}

func canonicalLess(a, b *models.ScoredCase) bool {
	if a.IsPreviousProviderMatch != b.IsPreviousProviderMatch {
		return a.IsPreviousProviderMatch
	}
	if a.MatchScore != b.MatchScore {
		return a.MatchScore > b.MatchScore
	}
	if da, db := orInf(a.PrimaryDistance), orInf(b.PrimaryDistance); da != db {
		return da < db
	}
	if da, db := orInf(a.DistanceToClinician), orInf(b.DistanceToClinician); da != db {
		return da < db
	}
	return a.CaseID < b.CaseID
}

func orInf(d *float64) float64 {
	if d == nil {
		return math.Inf(1)
	}
	return *d
}
