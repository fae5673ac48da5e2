// test/e2e/e2e_test.go
package e2e

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"caserank/internal/clients/fox"
	"caserank/internal/clients/genai"
	"caserank/internal/common/cache"
	"caserank/internal/common/config"
	"caserank/internal/common/logger"
	"caserank/internal/common/observability"
	"caserank/internal/models"
	"caserank/internal/recommender"
	"caserank/internal/server"
	buildcasefeatures "caserank/internal/stages/build-case-features"
	deduperecommendations "caserank/internal/stages/dedupe-recommendations"
	scorecasesai "caserank/internal/stages/score-cases-ai"
	scorecasesfallback "caserank/internal/stages/score-cases-fallback"
)

// newFoxStub serves the provider and case-group endpoints from canned
// JSON in the upstream's wire format (string-encoded coordinates and all).
func newFoxStub(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/providers/prov-1", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"provider_id": "prov-1",
			"first_name": "Dana",
			"last_name": "Wells",
			"discipline": "Physical Therapy",
			"discipline_name": "Physical Therapist",
			"subspecialty": "Orthopedic Clinical Specialist (OCS)",
			"specialties": ["Orthopedics"],
			"latitude": "38.0",
			"longitude": "-85.0",
			"active_case_count": 1
		}`)
	})

	mux.HandleFunc("/api/v1/providers/prov-1/case-groups", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PT", r.URL.Query().Get("discipline"))
		fmt.Fprint(w, `{
			"groups": [
				{
					"active_case": {
						"case_id": "a-1", "case_no": "PT-900",
						"patient_name": "Jo Smith",
						"latitude": 38.05, "longitude": -85.0
					},
					"nearby_cases": [
						{
							"case_id": "c-prev", "case_no": "PT-100",
							"patient_name": "Ann Young", "status": "Open issue",
							"conditions": ["recent fall"],
							"latitude": 38.06, "longitude": -85.0,
							"prev_provider_id": "prov-1"
						},
						{
							"case_id": "c-near", "case_no": "PT-101",
							"patient_name": "Max Cole", "status": "Pending Assignment",
							"latitude": "38.01", "longitude": "-85.0"
						},
						{
							"case_id": "c-hold", "case_no": "PT-102",
							"patient_name": "Sam Reed", "status": "On Hold",
							"latitude": 38.5, "longitude": -85.0
						}
					]
				}
			]
		}`)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

var stubPromptIDRe = regexp.MustCompile(`"ID": "(c-[^"]+)"`)

// newGenAIStub answers generateContent calls by scoring every case id it
// finds in the prompt.
func newGenAIStub(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		// The prompt travels as a JSON string field, so decode the request
		// before scanning for candidate ids.
		var req struct {
			Contents []struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"contents"`
		}
		require.NoError(t, json.Unmarshal(body, &req))
		var prompt strings.Builder
		for _, c := range req.Contents {
			for _, p := range c.Parts {
				prompt.WriteString(p.Text)
			}
		}

		var entries []map[string]interface{}
		for _, m := range stubPromptIDRe.FindAllStringSubmatch(prompt.String(), -1) {
			entries = append(entries, map[string]interface{}{
				"id":     m[1],
				"score":  50,
				"reason": "No prev provider 0pts + mid dist 10pts + open 10pts",
			})
		}
		scored, err := json.Marshal(entries)
		require.NoError(t, err)

		resp := map[string]interface{}{
			"candidates": []map[string]interface{}{
				{"content": map[string]interface{}{
					"parts": []map[string]string{{"text": string(scored)}},
				}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func buildStack(t *testing.T, foxURL, genaiURL string, aiEnabled bool) http.Handler {
	t.Helper()
	log := logger.NewNoOpLogger()

	cfg := &config.Config{}
	cfg.App.Name = "caserank"
	cfg.Search.DefaultRadiusMiles = 25
	cfg.Search.MaxRadiusMiles = 200
	cfg.Search.DefaultLimit = 10
	cfg.Search.MaxLimit = 50

	source := fox.NewClient(foxURL, "test-key", 5*time.Second, log)
	fallback := scorecasesfallback.NewHandler(scorecasesfallback.DefaultConfig(), log)

	var aiHandler *scorecasesai.Handler
	if aiEnabled {
		gen := genai.NewClient(genaiURL, "test-key", "gemini-2.0-flash", 5*time.Second, log)
		var err error
		aiHandler, err = scorecasesai.NewHandler(scorecasesai.DefaultConfig(), gen, fallback, cache.NewMemoryCache(64), log)
		require.NoError(t, err)
	}

	svc := recommender.NewService(
		source,
		buildcasefeatures.NewHandler(buildcasefeatures.DefaultConfig(), log),
		aiHandler,
		fallback,
		deduperecommendations.NewHandler(log),
		recommender.Options{AIEnabled: aiEnabled, AIModel: "gemini-2.0-flash"},
		log,
	)
	return server.New(cfg, svc, &observability.Observability{}, log).Handler()
}

func getRecommendations(t *testing.T, handler http.Handler, query string) (*models.RecommendationResult, int) {
	t.Helper()
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/recommendations?"+query, nil))
	if w.Code != http.StatusOK {
		return nil, w.Code
	}
	var result models.RecommendationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	return &result, w.Code
}

func TestEndToEnd_AIScoring(t *testing.T) {
	foxSrv := newFoxStub(t)
	genaiSrv := newGenAIStub(t)
	handler := buildStack(t, foxSrv.URL, genaiSrv.URL, true)

	result, code := getRecommendations(t, handler, "provider_id=prov-1&radius=50&limit=10")
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, "prov-1", result.Clinician.ProviderID)
	assert.Equal(t, models.DisciplinePT, result.Clinician.Discipline)
	require.Len(t, result.Recommendations, 3)

	// Same stub score for every case, so the canonical tie-breaks order by
	// distance from the active case.
	assert.Equal(t, "c-prev", result.Recommendations[0].CaseID)

	assert.True(t, result.AI.Enabled)
	assert.Equal(t, 1, result.AI.BatchesScored)
	assert.Equal(t, 0, result.AI.BatchesFellBack)
	for _, rec := range result.Recommendations {
		assert.Equal(t, models.ScoreSourceAI, rec.ScoreSource)
		assert.Equal(t, 20, rec.MatchScore) // 0+10+10 reconciled from reason
	}
	assert.Empty(t, result.Errors)
}

func TestEndToEnd_CacheServesRepeatRequest(t *testing.T) {
	foxSrv := newFoxStub(t)
	genaiSrv := newGenAIStub(t)
	handler := buildStack(t, foxSrv.URL, genaiSrv.URL, true)

	first, code := getRecommendations(t, handler, "provider_id=prov-1&radius=50&limit=10")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, first.AI.CacheHits)

	second, code := getRecommendations(t, handler, "provider_id=prov-1&radius=50&limit=10")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3, second.AI.CacheHits)
	for _, rec := range second.Recommendations {
		assert.Equal(t, models.ScoreSourceCache, rec.ScoreSource)
	}
}

func TestEndToEnd_AIOutageDegradesGracefully(t *testing.T) {
	foxSrv := newFoxStub(t)
	downSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(downSrv.Close)
	handler := buildStack(t, foxSrv.URL, downSrv.URL, true)

	result, code := getRecommendations(t, handler, "provider_id=prov-1&radius=50&limit=10")
	require.Equal(t, http.StatusOK, code)

	require.Len(t, result.Recommendations, 3)
	for _, rec := range result.Recommendations {
		assert.Equal(t, models.ScoreSourceFallback, rec.ScoreSource)
	}
	assert.Equal(t, 1, result.AI.BatchesFellBack)
	require.NotEmpty(t, result.Errors)

	// Previous-provider candidate still leads under the fallback rubric.
	assert.Equal(t, "c-prev", result.Recommendations[0].CaseID)
}

func TestEndToEnd_FallbackOnly(t *testing.T) {
	foxSrv := newFoxStub(t)
	handler := buildStack(t, foxSrv.URL, "", false)

	result, code := getRecommendations(t, handler, "provider_id=prov-1&radius=50&limit=2")
	require.Equal(t, http.StatusOK, code)

	require.Len(t, result.Recommendations, 2)
	assert.Equal(t, "c-prev", result.Recommendations[0].CaseID)
	assert.Equal(t, "c-near", result.Recommendations[1].CaseID)
	assert.False(t, result.AI.Enabled)
	assert.Equal(t, 3, result.Filtering.ScoredCases)
	assert.Equal(t, 2, result.Filtering.Returned)
}

func TestEndToEnd_UnknownProvider(t *testing.T) {
	foxSrv := newFoxStub(t)
	handler := buildStack(t, foxSrv.URL, "", false)

	_, code := getRecommendations(t, handler, "provider_id=prov-missing")
	assert.Equal(t, http.StatusNotFound, code)
}

// Radius narrowing drops known-distance outliers but keeps the rest.
func TestEndToEnd_RadiusNarrowing(t *testing.T) {
	foxSrv := newFoxStub(t)
	handler := buildStack(t, foxSrv.URL, "", false)

	result, code := getRecommendations(t, handler, "provider_id=prov-1&radius=10&limit=10")
	require.Equal(t, http.StatusOK, code)

	// c-hold sits ~34 miles out and falls outside the 10 mile radius.
	require.Len(t, result.Recommendations, 2)
	for _, rec := range result.Recommendations {
		assert.NotEqual(t, "c-hold", rec.CaseID)
	}
	assert.Equal(t, 2, result.Filtering.WithinRadius)
}
