// internal/stages/score-cases-ai/handler_test.go
package scorecasesai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserank/internal/common/cache"
	"caserank/internal/common/errors"
	"caserank/internal/common/logger"
	"caserank/internal/models"
	scorecasesfallback "caserank/internal/stages/score-cases-fallback"
)

var promptIDRe = regexp.MustCompile(`"ID": "(case-[^"]+)"`)

// stubGenerator replies to scoring prompts from a canned response builder.
type stubGenerator struct {
	mu      sync.Mutex
	calls   int
	respond func(call int, ids []string) (string, error)
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	var ids []string
	for _, m := range promptIDRe.FindAllStringSubmatch(prompt, -1) {
		ids = append(ids, m[1])
	}
	return s.respond(call, ids)
}

func (s *stubGenerator) Model() string { return "stub" }

func (s *stubGenerator) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// completeResponse scores every id with a reason whose contributions sum
// to the given total.
func completeResponse(ids []string) (string, error) {
	type entry struct {
		ID     string  `json:"id"`
		Score  float64 `json:"score"`
		Reason string  `json:"reason"`
	}
	out := make([]entry, 0, len(ids))
	for _, id := range ids {
		out = append(out, entry{ID: id, Score: 75, Reason: "Previous provider 30pts + surgery 5pts + close 20pts + good match 10pts + open 10pts"})
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func testClinician() *models.Clinician {
	return &models.Clinician{
		ProviderID: "prov-1",
		Name:       "Dana Wells",
		Discipline: models.DisciplinePT,
	}
}

func testFeatures(n int) []models.CaseFeatures {
	features := make([]models.CaseFeatures, 0, n)
	for i := 0; i < n; i++ {
		d := 1.5
		features = append(features, models.CaseFeatures{
			PatientCase: models.PatientCase{
				CaseID: fmt.Sprintf("case-%d", i+1),
				Status: "Open issue",
			},
			PrimaryDistance: &d,
		})
	}
	return features
}

func newTestHandler(t *testing.T, cfg *Config, gen *stubGenerator, scoreCache cache.ScoreCache) *Handler {
	t.Helper()
	log := logger.NewNoOpLogger()
	fb := scorecasesfallback.NewHandler(scorecasesfallback.DefaultConfig(), log)
	h, err := NewHandler(cfg, gen, fb, scoreCache, log)
	require.NoError(t, err)
	return h
}

func TestExecute_ScoresAllCases(t *testing.T) {
	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		return completeResponse(ids)
	}}
	h := newTestHandler(t, DefaultConfig(), gen, nil)

	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  testFeatures(4),
	})
	require.NoError(t, err)

	require.Len(t, out.Scored, 4)
	assert.Equal(t, 1, out.BatchCount)
	assert.Equal(t, 1, out.BatchesScored)
	assert.Equal(t, 0, out.BatchesFellBack)
	for _, sc := range out.Scored {
		assert.Equal(t, models.ScoreSourceAI, sc.ScoreSource)
		assert.Equal(t, 75, sc.MatchScore) // 30+5+20+10+10 from the reason text
	}
}

func TestExecute_ReconcilesScoreFromReason(t *testing.T) {
	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		return fmt.Sprintf(`[{"id":%q,"score":93,"reason":"Previous provider 30pts + close 20pts + open 10pts"}]`, ids[0]), nil
	}}
	h := newTestHandler(t, DefaultConfig(), gen, nil)

	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  testFeatures(1),
	})
	require.NoError(t, err)
	require.Len(t, out.Scored, 1)

	// The stated 93 disagrees with the reasons; the reasons win.
	assert.Equal(t, 60, out.Scored[0].MatchScore)
}

func TestExecute_RepairsFencedResponse(t *testing.T) {
	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		body, err := completeResponse(ids)
		if err != nil {
			return "", err
		}
		return "```json\n" + body + "\n```", nil
	}}
	h := newTestHandler(t, DefaultConfig(), gen, nil)

	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  testFeatures(2),
	})
	require.NoError(t, err)
	assert.Len(t, out.Scored, 2)
	assert.Equal(t, 1, out.BatchesScored)
}

func TestExecute_OmittedIDFallsBackWithEveryCaseScored(t *testing.T) {
	// The stub always drops the first case from its response. After the
	// retry budget the batch must fall back, and the output must still
	// contain a score for every input case.
	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		return completeResponse(ids[1:])
	}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	h := newTestHandler(t, cfg, gen, nil)

	features := testFeatures(3)
	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  features,
	})
	require.NoError(t, err)

	require.Len(t, out.Scored, 3)
	seen := make(map[string]models.ScoreSource)
	for _, sc := range out.Scored {
		seen[sc.CaseID] = sc.ScoreSource
	}
	for _, cf := range features {
		require.Contains(t, seen, cf.CaseID)
		assert.Equal(t, models.ScoreSourceFallback, seen[cf.CaseID])
	}

	assert.Equal(t, 2, gen.callCount())
	assert.Equal(t, 1, out.BatchesFellBack)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, errors.ErrCodeScorerIncompleteResponse, out.Errors[0].Code)
}

func TestExecute_BatchFailureIsIsolated(t *testing.T) {
	// Two batches; the stub errors whenever case-1 is in the prompt, so
	// only the first batch falls back.
	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		for _, id := range ids {
			if id == "case-1" {
				return "", errors.NewScorerUnavailableError(fmt.Errorf("upstream 500"))
			}
		}
		return completeResponse(ids)
	}}
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.MaxRetries = 1
	cfg.ParallelThreshold = 10
	h := newTestHandler(t, cfg, gen, nil)

	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  testFeatures(4),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, out.BatchCount)
	assert.Equal(t, 1, out.BatchesScored)
	assert.Equal(t, 1, out.BatchesFellBack)
	require.Len(t, out.Scored, 4)

	sources := make(map[string]models.ScoreSource)
	for _, sc := range out.Scored {
		sources[sc.CaseID] = sc.ScoreSource
	}
	assert.Equal(t, models.ScoreSourceFallback, sources["case-1"])
	assert.Equal(t, models.ScoreSourceFallback, sources["case-2"])
	assert.Equal(t, models.ScoreSourceAI, sources["case-3"])
	assert.Equal(t, models.ScoreSourceAI, sources["case-4"])
}

func TestExecute_TimeoutSkipsRetries(t *testing.T) {
	gen := &stubGenerator{respond: func(_ int, _ []string) (string, error) {
		return "", errors.NewScorerTimeoutError()
	}}
	cfg := DefaultConfig()
	cfg.MaxRetries = 3
	h := newTestHandler(t, cfg, gen, nil)

	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  testFeatures(2),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, 1, out.BatchesFellBack)
	assert.Len(t, out.Scored, 2)
}

func TestExecute_CacheHitsSkipGenerator(t *testing.T) {
	clin := testClinician()
	features := testFeatures(3)

	mem := cache.NewMemoryCache(16)
	require.NoError(t, mem.Set(context.Background(), cache.Key(clin, &features[0]), &cache.Entry{
		CaseID:  features[0].CaseID,
		Score:   88,
		Reasons: []string{"cached"},
	}))

	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		assert.NotContains(t, ids, features[0].CaseID)
		return completeResponse(ids)
	}}
	h := newTestHandler(t, DefaultConfig(), gen, mem)

	out, err := h.Execute(context.Background(), &Input{Clinician: clin, Features: features})
	require.NoError(t, err)

	assert.Equal(t, 1, out.CacheHits)
	require.Len(t, out.Scored, 3)

	var cached *models.ScoredCase
	for i := range out.Scored {
		if out.Scored[i].CaseID == features[0].CaseID {
			cached = &out.Scored[i]
		}
	}
	require.NotNil(t, cached)
	assert.Equal(t, 88, cached.MatchScore)
	assert.Equal(t, models.ScoreSourceCache, cached.ScoreSource)

	// Successful AI scores land in the cache for the next request.
	entry, err := mem.Get(context.Background(), cache.Key(clin, &features[1]))
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, 75, entry.Score)
}

func TestExecute_ParallelBatchesScoreEverything(t *testing.T) {
	gen := &stubGenerator{respond: func(_ int, ids []string) (string, error) {
		return completeResponse(ids)
	}}
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.ParallelThreshold = 2
	cfg.PoolSize = 3
	h := newTestHandler(t, cfg, gen, nil)

	out, err := h.Execute(context.Background(), &Input{
		Clinician: testClinician(),
		Features:  testFeatures(9),
	})
	require.NoError(t, err)

	assert.Equal(t, 5, out.BatchCount)
	assert.Equal(t, 5, out.BatchesScored)
	assert.Len(t, out.Scored, 9)
}

func TestRepairJSON(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{
			name: "clean array",
			raw:  `[{"id":"1","score":10,"reason":"r"}]`,
			want: `[{"id":"1","score":10,"reason":"r"}]`,
		},
		{
			name: "code fence",
			raw:  "```json\n[{\"id\":\"1\"}]\n```",
			want: `[{"id":"1"}]`,
		},
		{
			name: "prose around array",
			raw:  `Here are the scores: [{"id":"1"}] hope that helps`,
			want: `[{"id":"1"}]`,
		},
		{
			name: "trailing comma",
			raw:  `[{"id":"1"},]`,
			want: `[{"id":"1"}]`,
		},
		{
			name: "control characters",
			raw:  "[{\"id\":\"1\"}\x00]",
			want: `[{"id":"1"}]`,
		},
		{
			name:    "no json at all",
			raw:     "I cannot score these cases.",
			wantErr: true,
		},
		{
			name:    "empty",
			raw:     "",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repairJSON(tc.raw)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestReconcileScore(t *testing.T) {
	tests := []struct {
		name   string
		stated float64
		reason string
		want   int
	}{
		{"pts contributions win", 93, "Previous provider 30pts + close 20pts + open 10pts", 60},
		{"plus-form contributions", 50, "Previous provider match (+30) + Status open/pending (+10)", 40},
		{"no contributions uses stated", 42, "good overall fit", 42},
		{"stated clamped high", 140, "excellent", 100},
		{"stated clamped low", -5, "poor", 0},
		{"contribution sum clamped", 0, "90pts + 50pts", 100},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, reconcileScore(tc.stated, tc.reason))
		})
	}
}

func TestBuildPrompt_IncludesEventFlags(t *testing.T) {
	features := testFeatures(1)
	features[0].HasAdmissionDate = true
	features[0].HasHoldDate = true

	prompt, err := buildPrompt(testClinician(), features)
	require.NoError(t, err)
	assert.Contains(t, prompt, `"Has_Admission": true`)
	assert.Contains(t, prompt, `"Has_Discharge": false`)
	assert.Contains(t, prompt, `"Has_NonAdmit": false`)
	assert.Contains(t, prompt, `"Has_Hold": true`)
}
