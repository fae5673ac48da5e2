// internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"caserank/internal/common/config"
	"caserank/internal/common/errors"
	"caserank/internal/common/logger"
	"caserank/internal/common/observability"
	"caserank/internal/models"
)

// Recommender is the pipeline entry point the server fronts.
type Recommender interface {
	GetRecommendations(ctx context.Context, params models.SearchParams) (*models.RecommendationResult, error)
}

// ReadinessCheck reports whether a dependency is reachable.
type ReadinessCheck func(ctx context.Context) error

// Server exposes the recommendation pipeline over HTTP.
type Server struct {
	cfg        *config.Config
	svc        Recommender
	logger     logger.Logger
	errHandler *errors.ErrorHandler
	obs        *observability.Observability
	readiness  map[string]ReadinessCheck
	httpServer *http.Server
}

func New(cfg *config.Config, svc Recommender, obs *observability.Observability, log logger.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		svc:        svc,
		logger:     log.WithFields(map[string]interface{}{"component": "server"}),
		errHandler: errors.NewErrorHandler(log),
		obs:        obs,
		readiness:  make(map[string]ReadinessCheck),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/recommendations", s.handleRecommendations)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Millisecond,
	}
	return s
}

// AddReadinessCheck registers a named dependency probe for /ready.
func (s *Server) AddReadinessCheck(name string, check ReadinessCheck) {
	s.readiness[name] = check
}

// Handler exposes the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) Start() error {
	s.logger.Info("http server starting", map[string]interface{}{"addr": s.httpServer.Addr})
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	requestID := uuid.NewString()
	w.Header().Set("X-Request-Id", requestID)

	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		s.errHandler.WriteHTTPError(w, requestID, errors.NewMethodNotAllowedError(r.Method))
		return
	}

	params, err := s.parseSearchParams(r)
	if err != nil {
		s.errHandler.WriteHTTPError(w, requestID, err)
		return
	}

	ctx := r.Context()
	if s.cfg.Server.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Server.RequestTimeout)*time.Millisecond)
		defer cancel()
	}

	start := time.Now()
	result, err := s.svc.GetRecommendations(ctx, *params)
	if err != nil {
		s.obs.RecordRequest(ctx, "error")
		s.obs.RecordRequestDuration(ctx, time.Since(start), "error")
		s.errHandler.WriteHTTPError(w, requestID, err)
		return
	}
	s.obs.RecordRequest(ctx, "success")
	s.obs.RecordRequestDuration(ctx, time.Since(start), "success")
	s.obs.RecordScoredCases(ctx, result.Filtering.ScoredCases, scoreSourceLabel(result))

	s.writeJSON(w, http.StatusOK, result)
}

// parseSearchParams validates query parameters, applying the configured
// defaults and upper bounds.
func (s *Server) parseSearchParams(r *http.Request) (*models.SearchParams, error) {
	q := r.URL.Query()

	providerID := q.Get("provider_id")
	if providerID == "" {
		return nil, errors.NewInvalidRequestError("provider_id is required")
	}

	radius := s.cfg.Search.DefaultRadiusMiles
	if raw := q.Get("radius"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v <= 0 {
			return nil, errors.NewInvalidRequestError("radius must be a positive number")
		}
		radius = v
	}
	if radius > s.cfg.Search.MaxRadiusMiles {
		radius = s.cfg.Search.MaxRadiusMiles
	}

	limit := s.cfg.Search.DefaultLimit
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.NewInvalidRequestError("limit must be an integer")
		}
		limit = v
	}
	if limit < 1 {
		limit = 1
	}
	if limit > s.cfg.Search.MaxLimit {
		limit = s.cfg.Search.MaxLimit
	}

	return &models.SearchParams{
		ProviderID:  providerID,
		RadiusMiles: radius,
		Limit:       limit,
	}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.cfg.App.Name,
		"version": s.cfg.App.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.readiness))
	for name, check := range s.readiness {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
		} else {
			checks[name] = "ok"
		}
	}
	s.writeJSON(w, status, map[string]interface{}{
		"ready":  status == http.StatusOK,
		"checks": checks,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", map[string]interface{}{"error": err.Error()})
	}
}

func scoreSourceLabel(result *models.RecommendationResult) string {
	if !result.AI.Enabled {
		return string(models.ScoreSourceFallback)
	}
	if result.AI.BatchesFellBack > 0 {
		return "mixed"
	}
	return string(models.ScoreSourceAI)
}
