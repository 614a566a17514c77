package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helpdesk-cloud/faqd/internal/domain"
	logpkg "github.com/helpdesk-cloud/faqd/internal/logger"
	"github.com/helpdesk-cloud/faqd/internal/repository/corpus"
	healthuc "github.com/helpdesk-cloud/faqd/internal/usecase/health"
)

// Router answers questions.
type Router interface {
	Route(ctx context.Context, question, collection string) (domain.Decision, error)
}

// CollectionLister reports stored collections and their sizes.
type CollectionLister interface {
	Collections(ctx context.Context) ([]corpus.CollectionInfo, error)
	Collection(ctx context.Context, name string) (corpus.CollectionInfo, error)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server is the HTTP API for question routing.
type Server struct {
	router        Router
	collections   CollectionLister
	health        *healthuc.Service
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(router Router, collections CollectionLister, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		router:      router,
		collections: collections,
		health:      health,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusBadRequest, "dimension_mismatch"),
		sentinelHandler(domain.ErrCollectionNotFound, http.StatusNotFound, "collection_not_found"),
		sentinelHandler(domain.ErrEmbeddingUnavailable, http.StatusServiceUnavailable, "embedding_unavailable"),
		sentinelHandler(domain.ErrGenerativeUnavailable, http.StatusServiceUnavailable, "generative_unavailable"),
		sentinelHandler(domain.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"),
	}
	return s
}

// Register mounts all routes on r.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/v1/ask", s.Ask)
	r.Get("/api/v1/collections", s.ListCollections)
	r.Get("/api/v1/collections/{name}", s.GetCollection)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

type askRequest struct {
	Question   string `json:"question"`
	Collection string `json:"collection,omitempty"`
}

type askResponse struct {
	Answer          string   `json:"answer"`
	Source          string   `json:"source"`
	MatchedQuestion string   `json:"matched_question,omitempty"`
	Score           *float64 `json:"score,omitempty"`
}

// Ask handles POST /api/v1/ask.
func (s *Server) Ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	decision, err := s.router.Route(r.Context(), req.Question, req.Collection)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	resp := askResponse{
		Answer: decision.Answer,
		Source: string(decision.Action),
	}
	if decision.Action == domain.ActionCorpus {
		resp.MatchedQuestion = decision.MatchedQuestion
		score := decision.Score
		resp.Score = &score
	}

	writeJSON(w, http.StatusOK, resp)
}

type collectionItem struct {
	Name    string `json:"name"`
	Entries int64  `json:"entries"`
}

// ListCollections handles GET /api/v1/collections.
func (s *Server) ListCollections(w http.ResponseWriter, r *http.Request) {
	infos, err := s.collections.Collections(r.Context())
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	items := make([]collectionItem, len(infos))
	for i, info := range infos {
		items[i] = collectionItem{Name: info.Name, Entries: info.Entries}
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetCollection handles GET /api/v1/collections/{name}.
func (s *Server) GetCollection(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	info, err := s.collections.Collection(r.Context(), name)
	if err != nil {
		s.handleDomainError(r.Context(), w, err)
		return
	}

	writeJSON(w, http.StatusOK, collectionItem{Name: info.Name, Entries: info.Entries})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrDimensionMismatch,
		domain.ErrCollectionNotFound,
		domain.ErrEmbeddingUnavailable,
		domain.ErrGenerativeUnavailable,
		domain.ErrStoreUnavailable,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(ctx context.Context, w http.ResponseWriter, err error) {
	// Prefer the per-request logger so domain errors carry the request id.
	logger := logpkg.FromContextOr(ctx, s.logger)

	logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}
