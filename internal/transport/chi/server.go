// Package chi wires the usecases into an HTTP API.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/inboxlab/styledex/internal/domain"
	healthuc "github.com/inboxlab/styledex/internal/usecase/health"
	ingestuc "github.com/inboxlab/styledex/internal/usecase/ingest"
	migrateuc "github.com/inboxlab/styledex/internal/usecase/migrate"
	queryuc "github.com/inboxlab/styledex/internal/usecase/query"
)

// Server is the HTTP API server.
type Server struct {
	query   *queryuc.Service
	ingest  *ingestuc.Service
	migrate *migrateuc.Service
	health  *healthuc.Service
	logger  *zap.Logger

	// scoreThreshold applies when a search request carries no threshold
	// of its own.
	scoreThreshold float64
}

// NewServer creates an HTTP API server. scoreThreshold is the configured
// default for search requests that omit score_threshold.
func NewServer(
	query *queryuc.Service,
	ingest *ingestuc.Service,
	migrate *migrateuc.Service,
	health *healthuc.Service,
	scoreThreshold float64,
	logger *zap.Logger,
) *Server {
	return &Server{
		query:          query,
		ingest:         ingest,
		migrate:        migrate,
		health:         health,
		logger:         logger,
		scoreThreshold: scoreThreshold,
	}
}

// RegisterRoutes mounts all API routes on the router. Middleware is the
// composition root's concern.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Post("/users/{userID}/emails", s.handleIngest)
		r.Post("/migrations/sparse", s.handleMigrate)
	})
}

type searchRequest struct {
	UserID         string   `json:"user_id"`
	Direction      string   `json:"direction"`
	Query          string   `json:"query"`
	Limit          int      `json:"limit"`
	ScoreThreshold *float64 `json:"score_threshold"`
}

// handleSearch runs a hybrid search. An unsuccessful-but-valid result (no
// corpus yet) is still HTTP 200: the downstream drafting layer inspects
// the success flag.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "user_id and query are required")
		return
	}
	dir, err := domain.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "direction must be sent or received")
		return
	}

	threshold := s.scoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}

	res, err := s.query.Search(r.Context(), req.UserID, dir, req.Query, req.Limit, threshold)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

type ingestRequest struct {
	Direction string `json:"direction"`
	Emails    []struct {
		ID          string    `json:"id"`
		Text        string    `json:"text"`
		Subject     string    `json:"subject"`
		Counterpart string    `json:"counterpart"`
		SentDate    time.Time `json:"sent_date"`
	} `json:"emails"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	dir, err := domain.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, "direction must be sent or received")
		return
	}

	emails := make([]ingestuc.Email, len(req.Emails))
	for i, e := range req.Emails {
		emails[i] = ingestuc.Email{
			ID:          e.ID,
			Text:        e.Text,
			Subject:     e.Subject,
			Counterpart: e.Counterpart,
			SentDate:    e.SentDate,
		}
	}

	n, err := s.ingest.Ingest(r.Context(), userID, dir, emails)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"ingested": n})
}

// handleMigrate triggers a full sparse re-indexing run. No parameters
// beyond "run now"; the response body is the summary report.
func (s *Server) handleMigrate(w http.ResponseWriter, r *http.Request) {
	report, err := s.migrate.Run(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"users_processed": report.UsersProcessed,
		"points_updated":  report.PointsUpdated,
		"errors":          report.Errors,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

// handleDomainError maps domain sentinels to HTTP statuses.
func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidUserID), errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrVectorDimMismatch):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrCollectionNotFound), errors.Is(err, domain.ErrPointNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrEmbeddingProviderError):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
