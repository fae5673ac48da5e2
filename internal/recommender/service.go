// internal/recommender/service.go
package recommender

import (
	"context"
	"time"

	"caserank/internal/clients/fox"
	"caserank/internal/common/errors"
	"caserank/internal/common/logger"
	"caserank/internal/common/metrics"
	buildcasefeatures "caserank/internal/stages/build-case-features"
	deduperecommendations "caserank/internal/stages/dedupe-recommendations"
	scorecasesai "caserank/internal/stages/score-cases-ai"
	"caserank/internal/models"
	scorecasesfallback "caserank/internal/stages/score-cases-fallback"
)

// CaseSource provides clinician and candidate-case lookups. The fox client
// is the production implementation.
type CaseSource interface {
	GetClinician(ctx context.Context, providerID string) (*models.Clinician, error)
	GetCaseGroups(ctx context.Context, providerID string, discipline models.Discipline, radiusMiles float64) (*fox.CaseGroups, error)
}

// Service runs the recommendation pipeline: fetch, feature building,
// scoring, ranking, and response assembly.
type Service struct {
	source   CaseSource
	features *buildcasefeatures.Handler
	aiScorer *scorecasesai.Handler
	fallback *scorecasesfallback.Handler
	dedupe   *deduperecommendations.Handler
	logger   logger.Logger

	aiEnabled bool
	aiModel   string
}

// Options configures optional pipeline behavior.
type Options struct {
	// AIEnabled turns LLM scoring on. When false, or when aiScorer is
	// nil, every case is scored with the deterministic rubric.
	AIEnabled bool

	// AIModel names the scoring model for response metadata.
	AIModel string
}

func NewService(
	source CaseSource,
	features *buildcasefeatures.Handler,
	aiScorer *scorecasesai.Handler,
	fallback *scorecasesfallback.Handler,
	dedupe *deduperecommendations.Handler,
	opts Options,
	log logger.Logger,
) *Service {
	return &Service{
		source:    source,
		features:  features,
		aiScorer:  aiScorer,
		fallback:  fallback,
		dedupe:    dedupe,
		logger:    log.WithFields(map[string]interface{}{"component": "recommender"}),
		aiEnabled: opts.AIEnabled && aiScorer != nil,
		aiModel:   opts.AIModel,
	}
}

// GetRecommendations produces ranked case recommendations for one
// clinician. Upstream lookup failures abort the request; scoring failures
// never do, they degrade to deterministic scores and are reported in the
// result's Errors.
func (s *Service) GetRecommendations(ctx context.Context, params models.SearchParams) (*models.RecommendationResult, error) {
	start := time.Now()

	result, err := s.run(ctx, params)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	metrics.RequestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	return result, err
}

func (s *Service) run(ctx context.Context, params models.SearchParams) (*models.RecommendationResult, error) {
	if params.ProviderID == "" {
		return nil, errors.NewInvalidRequestError("provider_id is required")
	}

	clin, err := s.fetchClinician(ctx, params.ProviderID)
	if err != nil {
		return nil, err
	}
	if clin.Discipline == models.DisciplineOther {
		return nil, errors.NewUnsupportedDisciplineError(clin.DisciplineName)
	}

	groups, err := s.fetchCaseGroups(ctx, params, clin)
	if err != nil {
		return nil, err
	}

	featOut, err := s.buildFeatures(ctx, clin, groups)
	if err != nil {
		return nil, err
	}
	if len(featOut.Features) == 0 {
		return nil, errors.NewNoCandidatesError(string(clin.Discipline))
	}

	scored, aiMeta, responseErrors := s.score(ctx, clin, featOut.Features)

	dedupOut := s.rank(ctx, scored)

	ranked, withinRadius, unknownKept := filterByRadius(dedupOut.Ranked, params.RadiusMiles)

	n := params.Limit
	if n > len(ranked) {
		n = len(ranked)
	}
	if n < 1 && len(ranked) > 0 {
		n = 1
	}
	recommendations := ranked[:n]

	s.logger.Info("recommendations assembled", map[string]interface{}{
		"providerId": params.ProviderID,
		"candidates": featOut.DisciplineMatched,
		"returned":   len(recommendations),
		"aiEnabled":  s.aiEnabled,
	})

	return &models.RecommendationResult{
		SearchParams: params,
		Clinician: models.ClinicianSummary{
			ProviderID:      clin.ProviderID,
			Name:            clin.Name,
			Discipline:      clin.Discipline,
			Specialties:     clin.Specialties,
			Coordinates:     clin.ResolvedCoordinates(),
			ActiveCaseCount: clin.ActiveCaseCount,
		},
		Filtering: models.FilteringStats{
			TotalOpenCases:      featOut.TotalOpenCases,
			DisciplineMatched:   featOut.DisciplineMatched,
			DroppedBlankID:      featOut.DroppedBlankID,
			ScoredCases:         len(scored),
			AfterDeduplication:  len(dedupOut.Ranked),
			WithinRadius:        withinRadius,
			UnknownDistanceKept: unknownKept,
			Returned:            len(recommendations),
		},
		AI:              aiMeta,
		Errors:          responseErrors,
		Recommendations: recommendations,
	}, nil
}

func (s *Service) fetchClinician(ctx context.Context, providerID string) (*models.Clinician, error) {
	start := time.Now()
	clin, err := s.source.GetClinician(ctx, providerID)
	metrics.StageDuration.WithLabelValues("fetch-clinician").Observe(time.Since(start).Seconds())
	if err != nil {
		if stdErr, ok := errors.AsStandardError(err); ok {
			metrics.UpstreamErrors.WithLabelValues("fox", string(stdErr.Code)).Inc()
		}
		return nil, err
	}
	return clin, nil
}

func (s *Service) fetchCaseGroups(ctx context.Context, params models.SearchParams, clin *models.Clinician) (*fox.CaseGroups, error) {
	start := time.Now()
	groups, err := s.source.GetCaseGroups(ctx, params.ProviderID, clin.Discipline, params.RadiusMiles)
	metrics.StageDuration.WithLabelValues("fetch-cases").Observe(time.Since(start).Seconds())
	if err != nil {
		if stdErr, ok := errors.AsStandardError(err); ok {
			metrics.UpstreamErrors.WithLabelValues("fox", string(stdErr.Code)).Inc()
		}
		return nil, err
	}
	return groups, nil
}

func (s *Service) buildFeatures(ctx context.Context, clin *models.Clinician, groups *fox.CaseGroups) (*buildcasefeatures.Output, error) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(buildcasefeatures.StageName).Observe(time.Since(start).Seconds())
	}()
	return s.features.Execute(ctx, &buildcasefeatures.Input{
		Clinician:   clin,
		OpenCases:   groups.Nearby,
		ActiveCases: groups.Active,
	})
}

// score runs AI scoring when enabled, falling back wholesale to the
// deterministic rubric when the AI stage itself fails.
func (s *Service) score(ctx context.Context, clin *models.Clinician, features []models.CaseFeatures) ([]models.ScoredCase, models.AIMetadata, []models.ResponseError) {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues("score-cases").Observe(time.Since(start).Seconds())
	}()

	meta := models.AIMetadata{Enabled: s.aiEnabled, Model: s.aiModel}
	var responseErrors []models.ResponseError

	if s.aiEnabled {
		aiOut, err := s.aiScorer.Execute(ctx, &scorecasesai.Input{Clinician: clin, Features: features})
		if err == nil {
			meta.BatchCount = aiOut.BatchCount
			meta.BatchesScored = aiOut.BatchesScored
			meta.BatchesFellBack = aiOut.BatchesFellBack
			meta.CacheHits = aiOut.CacheHits
			meta.DurationMillis = time.Since(start).Milliseconds()
			for _, stdErr := range aiOut.Errors {
				responseErrors = append(responseErrors, models.ResponseError{
					Code:    string(stdErr.Code),
					Message: stdErr.Message,
				})
			}
			return aiOut.Scored, meta, responseErrors
		}

		s.logger.WithError(err).Error("ai scoring stage failed, using fallback scoring", nil)
		if stdErr, ok := errors.AsStandardError(err); ok {
			responseErrors = append(responseErrors, models.ResponseError{
				Code:    string(stdErr.Code),
				Message: stdErr.Message,
			})
		} else {
			responseErrors = append(responseErrors, models.ResponseError{
				Code:    string(errors.ErrCodeScorerUnavailable),
				Message: err.Error(),
			})
		}
	}

	fbOut, _ := s.fallback.Execute(ctx, &scorecasesfallback.Input{Clinician: clin, Features: features})
	meta.DurationMillis = time.Since(start).Milliseconds()
	return fbOut.Scored, meta, responseErrors
}

func (s *Service) rank(ctx context.Context, scored []models.ScoredCase) *deduperecommendations.Output {
	start := time.Now()
	defer func() {
		metrics.StageDuration.WithLabelValues(deduperecommendations.StageName).Observe(time.Since(start).Seconds())
	}()
	out, _ := s.dedupe.Execute(ctx, &deduperecommendations.Input{Scored: scored})
	return out
}

// filterByRadius drops cases whose known primary distance exceeds the
// search radius. Cases with no computable distance are kept; the caller
// reports how many.
func filterByRadius(ranked []models.ScoredCase, radiusMiles float64) (kept []models.ScoredCase, withinRadius, unknownKept int) {
	if radiusMiles <= 0 {
		return ranked, 0, len(ranked)
	}
	kept = make([]models.ScoredCase, 0, len(ranked))
	for _, sc := range ranked {
		if sc.PrimaryDistance == nil {
			unknownKept++
			kept = append(kept, sc)
			continue
		}
		if *sc.PrimaryDistance <= radiusMiles {
			withinRadius++
			kept = append(kept, sc)
		}
	}
	return kept, withinRadius, unknownKept
}
