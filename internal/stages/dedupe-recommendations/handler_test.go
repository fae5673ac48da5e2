// internal/stages/dedupe-recommendations/handler_test.go
package deduperecommendations

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserank/internal/common/logger"
	"caserank/internal/models"
)

func newHandler(t *testing.T) *Handler {
	return NewHandler(logger.NewTestLogger(t))
}

func ptr(f float64) *float64 { return &f }

func scored(id string, score int, prevMatch bool, primary, toClin *float64) models.ScoredCase {
	return models.ScoredCase{
		CaseFeatures: models.CaseFeatures{
			PatientCase:             models.PatientCase{CaseID: id},
			PrimaryDistance:         primary,
			DistanceToClinician:     toClin,
			IsPreviousProviderMatch: prevMatch,
		},
		MatchScore: score,
	}
}

func TestExecute_DuplicateKeepsMaxScore(t *testing.T) {
	h := newHandler(t)

	out, err := h.Execute(context.Background(), &Input{Scored: []models.ScoredCase{
		scored("P1", 40, false, ptr(3), nil),
		scored("P2", 50, false, ptr(8), nil),
		scored("P1", 72, false, ptr(3), nil),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, out.DuplicatesRemoved)
	require.Len(t, out.Ranked, 2)

	var p1 *models.ScoredCase
	for i := range out.Ranked {
		if out.Ranked[i].CaseID == "P1" {
			p1 = &out.Ranked[i]
		}
	}
	require.NotNil(t, p1)
	assert.Equal(t, 72, p1.MatchScore)
}

func TestExecute_NoDuplicateIDsRemain(t *testing.T) {
	h := newHandler(t)

	input := &Input{Scored: []models.ScoredCase{
		scored("A", 10, false, nil, nil),
		scored("B", 20, false, nil, nil),
		scored("A", 10, false, nil, nil),
		scored("C", 30, true, ptr(1), nil),
		scored("B", 5, false, nil, nil),
		scored("A", 15, false, nil, nil),
	}}

	out, err := h.Execute(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 3, out.DuplicatesRemoved)

	seen := map[string]bool{}
	for _, sc := range out.Ranked {
		assert.False(t, seen[sc.CaseID], "duplicate id %s in output", sc.CaseID)
		seen[sc.CaseID] = true
	}

	// Max score per id survives.
	for _, sc := range out.Ranked {
		if sc.CaseID == "A" {
			assert.Equal(t, 15, sc.MatchScore)
		}
	}
}

func TestCanonicalSort(t *testing.T) {
	t.Run("previous provider match outranks higher score", func(t *testing.T) {
		list := []models.ScoredCase{
			scored("high", 95, false, ptr(1), nil),
			scored("match", 38, true, ptr(45), nil),
		}
		CanonicalSort(list)
		assert.Equal(t, "match", list[0].CaseID)
	})

	t.Run("score descends within same priority", func(t *testing.T) {
		list := []models.ScoredCase{
			scored("low", 20, false, nil, nil),
			scored("high", 80, false, nil, nil),
			scored("mid", 50, false, nil, nil),
		}
		CanonicalSort(list)
		assert.Equal(t, []string{"high", "mid", "low"},
			[]string{list[0].CaseID, list[1].CaseID, list[2].CaseID})
	})

	t.Run("missing primary distance sorts last among equal scores", func(t *testing.T) {
		list := []models.ScoredCase{
			scored("unknown", 50, false, nil, nil),
			scored("far", 50, false, ptr(30), nil),
			scored("near", 50, false, ptr(2), nil),
		}
		CanonicalSort(list)
		assert.Equal(t, []string{"near", "far", "unknown"},
			[]string{list[0].CaseID, list[1].CaseID, list[2].CaseID})
	})

	t.Run("clinician distance then id break remaining ties", func(t *testing.T) {
		list := []models.ScoredCase{
			scored("b", 50, false, ptr(5), ptr(9)),
			scored("a", 50, false, ptr(5), ptr(9)),
			scored("c", 50, false, ptr(5), ptr(4)),
		}
		CanonicalSort(list)
		assert.Equal(t, []string{"c", "a", "b"},
			[]string{list[0].CaseID, list[1].CaseID, list[2].CaseID})
	})

	t.Run("idempotent", func(t *testing.T) {
		list := []models.ScoredCase{
			scored("x", 10, false, ptr(3), nil),
			scored("y", 70, true, nil, ptr(2)),
			scored("z", 70, false, ptr(1), nil),
			scored("w", 10, false, nil, nil),
		}
		CanonicalSort(list)
		first := make([]string, len(list))
		for i, sc := range list {
			first[i] = sc.CaseID
		}

		CanonicalSort(list)
		second := make([]string, len(list))
		for i, sc := range list {
			second[i] = sc.CaseID
		}
		assert.Equal(t, first, second)
	})
}
