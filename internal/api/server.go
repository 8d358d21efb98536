// Package api exposes session control over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/publisher"
	"enforcement_scraper/internal/service"
)

type Sessions interface {
	Start(ctx context.Context, req service.StartRequest) (*domain.Session, error)
	Cancel(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, limit int) ([]domain.Session, error)
	Logs(ctx context.Context, id string) ([]domain.ProcessingLogEntry, error)
}

type Server struct {
	sessions Sessions
	broker   *publisher.Broker
	defaults domain.SessionConfig
	logger   *slog.Logger
}

func New(sessions Sessions, broker *publisher.Broker, defaults domain.SessionConfig, logger *slog.Logger) *Server {
	return &Server{sessions: sessions, broker: broker, defaults: defaults, logger: logger}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthz)
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.startSession)
		r.Get("/", s.listSessions)
		r.Get("/{id}", s.getSession)
		r.Post("/{id}/cancel", s.cancelSession)
		r.Get("/{id}/logs", s.sessionLogs)
		r.Get("/{id}/events", s.sessionEvents)
	})
	return r
}

// startRequest overrides the configured session defaults.
type startRequest struct {
	Agency                 string  `json:"agency"`
	DataType               string  `json:"data_type"`
	StartPage              *int    `json:"start_page"`
	MaxPages               *int    `json:"max_pages"`
	BatchSize              *int    `json:"batch_size"`
	MaxPageErrors          *int    `json:"max_page_errors"`
	StopAfterExistingPages *int    `json:"stop_after_existing_pages"`
	FetchDetails           *bool   `json:"fetch_details"`
	DateFrom               *string `json:"date_from"`
	DateTo                 *string `json:"date_to"`
}

func (req startRequest) toService(defaults domain.SessionConfig) (service.StartRequest, error) {
	agency, err := domain.ParseAgency(req.Agency)
	if err != nil {
		return service.StartRequest{}, err
	}
	dataType, err := domain.ParseDataType(req.DataType)
	if err != nil {
		return service.StartRequest{}, err
	}

	cfg := defaults
	setInt(&cfg.StartPage, req.StartPage)
	setInt(&cfg.MaxPages, req.MaxPages)
	setInt(&cfg.BatchSize, req.BatchSize)
	setInt(&cfg.MaxPageErrors, req.MaxPageErrors)
	setInt(&cfg.StopAfterExistingPages, req.StopAfterExistingPages)
	if req.FetchDetails != nil {
		cfg.FetchDetails = *req.FetchDetails
	}
	if cfg.DateFrom, err = parseDate(req.DateFrom, cfg.DateFrom); err != nil {
		return service.StartRequest{}, fmt.Errorf("date_from: %w", err)
	}
	if cfg.DateTo, err = parseDate(req.DateTo, cfg.DateTo); err != nil {
		return service.StartRequest{}, fmt.Errorf("date_to: %w", err)
	}

	return service.StartRequest{Agency: agency, DataType: dataType, Config: cfg}, nil
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func parseDate(s *string, fallback *time.Time) (*time.Time, error) {
	if s == nil {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	var body startRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}
	req, err := body.toService(s.defaults)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Config.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := s.sessions.Start(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, session)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("limit must be between 1 and 500"))
			return
		}
		limit = n
	}
	sessions, err := s.sessions.List(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) cancelSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) sessionLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sessions.Logs(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.ProcessingLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// sessionEvents streams progress events for one session as server-sent
// events. Use "all" as the id to follow every session.
func (s *Server) sessionEvents(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, http.StatusNotImplemented, errors.New("progress streaming disabled"))
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	id := chi.URLParam(r, "id")
	topic := id
	if id == "all" {
		topic = publisher.AllSessions
	}
	sub := s.broker.Subscribe(topic)
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err)
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
