// Package web exposes the study service over a JSON HTTP API.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/duedeck/internal/deckimport"
	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/gitsource"
	"github.com/conorfennell/duedeck/internal/quota"
)

// Study is the part of study.Service the server calls.
type Study interface {
	GetCollectionQueue(ctx context.Context, learnerID, collectionID string, now time.Time) ([]domain.Card, error)
	Preview(ctx context.Context, learnerID, cardID string, now time.Time) (domain.Card, map[domain.Rating]domain.CardState, error)
	SubmitReview(ctx context.Context, cardID, learnerID string, rating domain.Rating, now time.Time) (domain.Card, domain.ReviewHistory, error)
	Limits(ctx context.Context, learnerID string, now time.Time) (quota.Status, error)
	QuotaConfig(ctx context.Context, learnerID string) (domain.QuotaConfig, *time.Location, error)
}

// SettingsStore persists learner settings.
type SettingsStore interface {
	SaveQuotaConfig(ctx context.Context, learnerID string, cfg domain.QuotaConfig) error
}

// Importer loads a deck source into a collection.
type Importer interface {
	Import(ctx context.Context, src deckimport.Source) (deckimport.Result, error)
}

// Options configures a Server.
type Options struct {
	// ImportRoot is the only directory local deck paths may name. Paths are
	// taken relative to it. When empty, only git remotes can be imported.
	ImportRoot string
	Logger     *slog.Logger
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	study      Study
	settings   SettingsStore
	importer   Importer
	importRoot string
	router     *http.ServeMux
	validate   *validator.Validate
	logger     *slog.Logger
	now        func() time.Time
}

// NewServer creates and configures a new server. importer may be nil, in
// which case the import route answers 501.
func NewServer(study Study, settings SettingsStore, importer Importer, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		study:      study,
		settings:   settings,
		importer:   importer,
		importRoot: opts.ImportRoot,
		router:     http.NewServeMux(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger,
		now:        time.Now,
	}
	s.routes()
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.HandleFunc("GET /learners/{learner}/queue", s.handleGetQueue())
	s.router.HandleFunc("GET /learners/{learner}/cards/{card}/preview", s.handleGetPreview())
	s.router.HandleFunc("POST /learners/{learner}/reviews", s.handlePostReview())
	s.router.HandleFunc("GET /learners/{learner}/limits", s.handleGetLimits())
	s.router.HandleFunc("GET /learners/{learner}/settings", s.handleGetSettings())
	s.router.HandleFunc("PUT /learners/{learner}/settings", s.handlePutSettings())
	s.router.HandleFunc("POST /learners/{learner}/imports", s.handlePostImport())
}

// handleGetQueue returns today's queue, due cards first. The optional
// collection query parameter narrows it to one collection.
func (s *Server) handleGetQueue() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		learner := r.PathValue("learner")
		collection := r.URL.Query().Get("collection")
		cards, err := s.study.GetCollectionQueue(r.Context(), learner, collection, s.now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out := make([]cardJSON, 0, len(cards))
		for _, c := range cards {
			out = append(out, toCardJSON(c))
		}
		writeJSON(w, http.StatusOK, queueJSON{LearnerID: learner, CollectionID: collection, Count: len(out), Cards: out})
	}
}

// handleGetPreview shows where each rating would send the card.
func (s *Server) handleGetPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, options, err := s.study.Preview(r.Context(), r.PathValue("learner"), r.PathValue("card"), s.now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toPreviewJSON(card, options))
	}
}

// handlePostReview records a rating and returns the rescheduled card.
func (s *Server) handlePostReview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if !s.decode(w, r, &req) {
			return
		}
		card, h, err := s.study.SubmitReview(r.Context(), req.CardID, r.PathValue("learner"), domain.Rating(req.Rating), s.now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reviewResponse{Card: toCardJSON(card), Review: toReviewJSON(h)})
	}
}

func (s *Server) handleGetLimits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := s.study.Limits(r.Context(), r.PathValue("learner"), s.now())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func (s *Server) handleGetSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, _, err := s.study.QuotaConfig(r.Context(), r.PathValue("learner"))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsJSON(cfg))
	}
}

func (s *Server) handlePutSettings() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if !s.decode(w, r, &req) {
			return
		}
		cfg := domain.QuotaConfig{
			DailyNewLimit:    *req.DailyNewLimit,
			DailyReviewLimit: *req.DailyReviewLimit,
			TimeZone:         req.TimeZone,
		}
		if cfg.TimeZone == "" {
			cfg.TimeZone = "UTC"
		}
		if err := s.settings.SaveQuotaConfig(r.Context(), r.PathValue("learner"), cfg); err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toSettingsJSON(cfg))
	}
}

// handlePostImport reconciles a deck source with one of the learner's
// collections. It runs in the foreground.
func (s *Server) handlePostImport() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.importer == nil {
			writeJSON(w, http.StatusNotImplemented, errorJSON{Error: "import is not enabled"})
			return
		}
		var req importRequest
		if !s.decode(w, r, &req) {
			return
		}
		location, err := s.importLocation(req.Location)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorJSON{Error: err.Error()})
			return
		}
		res, err := s.importer.Import(r.Context(), deckimport.Source{
			LearnerID:    r.PathValue("learner"),
			CollectionID: req.CollectionID,
			Location:     location,
		})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toImportJSON(res))
	}
}

var errLocalImport = errors.New("local deck paths must stay inside the import root")

// importLocation accepts git remotes as given and resolves any other
// location below the import root.
func (s *Server) importLocation(location string) (string, error) {
	if gitsource.IsURL(location) {
		return location, nil
	}
	if s.importRoot == "" {
		return "", errors.New("only git remotes can be imported")
	}
	if filepath.IsAbs(location) {
		return "", errLocalImport
	}
	p := filepath.Join(s.importRoot, location)
	rel, err := filepath.Rel(s.importRoot, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errLocalImport
	}
	return p, nil
}

// decode reads a JSON body into dst and validates it, answering 400 on
// failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorJSON{Error: validationMessage(err)})
		return false
	}
	return true
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and hidden behind a 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeJSON(w, status, errorJSON{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorJSON{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRating), errors.Is(err, domain.ErrInvalidCardState),
		errors.Is(err, deckimport.ErrEmptySource), errors.Is(err, gitsource.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCardNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to write response", "error", err)
	}
}
