// internal/stages/score-cases-ai/handler.go
package scorecasesai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"caserank/internal/clients/genai"
	"caserank/internal/common/cache"
	"caserank/internal/common/errors"
	"caserank/internal/common/logger"
	"caserank/internal/common/metrics"
	"caserank/internal/common/validation"
	"caserank/internal/models"
	scorecasesfallback "caserank/internal/stages/score-cases-fallback"
)

const StageName = "score-cases-ai"

// responseSchema constrains the model's reply: a JSON array of objects,
// each with a string id, numeric score, and string reason.
const responseSchema = `{
	"type": "array",
	"items": {
		"type": "object",
		"required": ["id", "score", "reason"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"score": {"type": "number"},
			"reason": {"type": "string"}
		}
	}
}`

// Handler orchestrates batched AI scoring with deterministic fallback.
// The model's output is untrusted: every response is schema-validated,
// checked for completeness, and has its score recomputed from the stated
// reasons before anything reaches the ranking.
type Handler struct {
	config    *Config
	logger    logger.Logger
	generator genai.Generator
	fallback  *scorecasesfallback.Handler
	cache     cache.ScoreCache
	schema    *gojsonschema.Schema
}

// NewHandler builds the scoring orchestrator. scoreCache may be nil to
// disable caching.
func NewHandler(config *Config, gen genai.Generator, fb *scorecasesfallback.Handler, scoreCache cache.ScoreCache, log logger.Logger) (*Handler, error) {
	schema, err := validation.CompileSchema(responseSchema)
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return &Handler{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"stage": StageName}),
		generator: gen,
		fallback:  fb,
		cache:     scoreCache,
		schema:    schema,
	}, nil
}

// batchResult carries one batch's scored cases plus the failure, if any,
// that forced it onto the fallback path.
type batchResult struct {
	scored   []models.ScoredCase
	fellBack bool
	err      *errors.StandardError
}

// Execute scores every input case. AI failures never surface as request
// failures: each batch that exhausts its retries is rescored with the
// deterministic rubric, and the absorbed error is reported in the output.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{Scored: make([]models.ScoredCase, 0, len(input.Features))}
	if len(input.Features) == 0 {
		return out, nil
	}

	if h.config.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.Deadline)
		defer cancel()
	}

	pending := h.drainCache(ctx, input.Clinician, input.Features, out)
	if len(pending) == 0 {
		return out, nil
	}

	batches := partition(pending, h.config.BatchSize)
	out.BatchCount = len(batches)

	results := make([]batchResult, len(batches))
	if len(batches) > h.config.ParallelThreshold {
		h.scoreParallel(ctx, input.Clinician, batches, results)
	} else {
		for i, batch := range batches {
			results[i] = h.scoreBatch(ctx, input.Clinician, batch)
		}
	}

	for _, res := range results {
		out.Scored = append(out.Scored, res.scored...)
		if res.fellBack {
			out.BatchesFellBack++
			if res.err != nil {
				out.Errors = append(out.Errors, res.err)
			}
			metrics.ScoringBatchesTotal.WithLabelValues("fallback").Inc()
		} else {
			out.BatchesScored++
			metrics.ScoringBatchesTotal.WithLabelValues("ai").Inc()
		}
	}

	h.logger.Info("ai scoring completed", map[string]interface{}{
		"batches":   out.BatchCount,
		"scored":    out.BatchesScored,
		"fellBack":  out.BatchesFellBack,
		"cacheHits": out.CacheHits,
	})
	return out, nil
}

// drainCache resolves cache hits straight into the output and returns the
// cases that still need scoring.
func (h *Handler) drainCache(ctx context.Context, clin *models.Clinician, features []models.CaseFeatures, out *Output) []models.CaseFeatures {
	if h.cache == nil {
		return features
	}

	pending := make([]models.CaseFeatures, 0, len(features))
	for _, cf := range features {
		entry, err := h.cache.Get(ctx, cache.Key(clin, &cf))
		if err != nil {
			h.logger.Warn("score cache lookup failed", map[string]interface{}{
				"caseId": cf.CaseID,
				"error":  err.Error(),
			})
		}
		if entry == nil {
			metrics.ScoreCacheOps.WithLabelValues("miss").Inc()
			pending = append(pending, cf)
			continue
		}
		metrics.ScoreCacheOps.WithLabelValues("hit").Inc()
		out.CacheHits++
		out.Scored = append(out.Scored, models.ScoredCase{
			CaseFeatures: cf,
			MatchScore:   entry.Score,
			Reasons:      entry.Reasons,
			ScoreSource:  models.ScoreSourceCache,
		})
	}
	return pending
}

func (h *Handler) scoreParallel(ctx context.Context, clin *models.Clinician, batches [][]models.CaseFeatures, results []batchResult) {
	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := h.config.PoolSize
	if workers < 1 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = h.scoreBatch(ctx, clin, batches[i])
			}
		}()
	}
	for i := range batches {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}

// scoreBatch attempts AI scoring with bounded retries, then falls back to
// the deterministic rubric for the whole batch.
func (h *Handler) scoreBatch(ctx context.Context, clin *models.Clinician, batch []models.CaseFeatures) batchResult {
	var lastErr *errors.StandardError

	for attempt := 1; attempt <= h.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			lastErr = errors.NewScorerTimeoutError()
			break
		}

		scored, err := h.scoreOnce(ctx, clin, batch)
		if err == nil {
			h.storeInCache(ctx, clin, batch, scored)
			return batchResult{scored: scored}
		}

		if stdErr, ok := errors.AsStandardError(err); ok {
			lastErr = stdErr
		} else {
			lastErr = errors.NewScorerUnavailableError(err)
		}
		metrics.ScoringRetriesTotal.WithLabelValues(string(lastErr.Code)).Inc()
		h.logger.Warn("batch scoring attempt failed", map[string]interface{}{
			"attempt": attempt,
			"cases":   len(batch),
			"code":    lastErr.Code,
		})

		if lastErr.Code == errors.ErrCodeScorerTimeout {
			break
		}
		if attempt < h.config.MaxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(time.Duration(100*(1<<(attempt-1))) * time.Millisecond):
			}
		}
	}

	scored := make([]models.ScoredCase, 0, len(batch))
	for i := range batch {
		scored = append(scored, h.fallback.ScoreOne(&batch[i]))
	}
	return batchResult{scored: scored, fellBack: true, err: lastErr}
}

// scoreOnce performs a single prompt/parse/validate/reconcile round trip.
func (h *Handler) scoreOnce(ctx context.Context, clin *models.Clinician, batch []models.CaseFeatures) ([]models.ScoredCase, error) {
	prompt, err := buildPrompt(clin, batch)
	if err != nil {
		return nil, errors.NewScorerMalformedResponseError(err.Error())
	}

	raw, err := h.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	payload, err := repairJSON(raw)
	if err != nil {
		return nil, errors.NewScorerMalformedResponseError(err.Error())
	}

	result, err := validation.ValidateJSON(h.schema, payload)
	if err != nil {
		return nil, errors.NewScorerMalformedResponseError(err.Error())
	}
	if !result.Valid {
		return nil, errors.NewScorerMalformedResponseError(strings.Join(result.GetErrorMessages(), "; "))
	}

	var entries []scoredEntry
	if err := json.Unmarshal(payload, &entries); err != nil {
		return nil, errors.NewScorerMalformedResponseError(err.Error())
	}

	byID := make(map[string]scoredEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	missing := 0
	scored := make([]models.ScoredCase, 0, len(batch))
	for _, cf := range batch {
		entry, ok := byID[cf.CaseID]
		if !ok {
			missing++
			continue
		}
		scored = append(scored, models.ScoredCase{
			CaseFeatures: cf,
			MatchScore:   reconcileScore(entry.Score, entry.Reason),
			Reasons:      []string{entry.Reason},
			ScoreSource:  models.ScoreSourceAI,
		})
	}
	if missing > 0 {
		return nil, errors.NewScorerIncompleteResponseError(missing)
	}
	return scored, nil
}

func (h *Handler) storeInCache(ctx context.Context, clin *models.Clinician, batch []models.CaseFeatures, scored []models.ScoredCase) {
	if h.cache == nil {
		return
	}
	byID := make(map[string]*models.ScoredCase, len(scored))
	for i := range scored {
		byID[scored[i].CaseID] = &scored[i]
	}
	for i := range batch {
		sc, ok := byID[batch[i].CaseID]
		if !ok {
			continue
		}
		err := h.cache.Set(ctx, cache.Key(clin, &batch[i]), &cache.Entry{
			CaseID:  sc.CaseID,
			Score:   sc.MatchScore,
			Reasons: sc.Reasons,
		})
		if err != nil {
			h.logger.Warn("score cache store failed", map[string]interface{}{
				"caseId": sc.CaseID,
				"error":  err.Error(),
			})
		}
	}
}

var (
	ptsRe    = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*pts`)
	plusPtRe = regexp.MustCompile(`\(\+(\d+)\)`)
)

// reconcileScore recomputes a score from the point contributions stated in
// the reason text. The model's arithmetic is not trusted: when the reason
// names contributions, their sum wins; otherwise the stated score is used.
// Either way the result is clamped to [0, 100].
func reconcileScore(stated float64, reason string) int {
	sum := 0.0
	found := false
	for _, m := range ptsRe.FindAllStringSubmatch(reason, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			sum += v
			found = true
		}
	}
	for _, m := range plusPtRe.FindAllStringSubmatch(reason, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			sum += v
			found = true
		}
	}

	score := stated
	if found {
		score = sum
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score + 0.5)
}

// partition splits cases into fixed-size batches, last batch possibly
// short.
func partition(features []models.CaseFeatures, size int) [][]models.CaseFeatures {
	if size < 1 {
		size = 1
	}
	var batches [][]models.CaseFeatures
	for start := 0; start < len(features); start += size {
		end := start + size
		if end > len(features) {
			end = len(features)
		}
		batches = append(batches, features[start:end])
	}
	return batches
}
