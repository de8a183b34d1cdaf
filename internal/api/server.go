// Package api serves read-only queries over the canonical papers.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/bibmerge/internal/engine"
	"github.com/sells-group/bibmerge/internal/model"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Engine is the read side of the match engine.
type Engine interface {
	FindPapers(f engine.Filter) []model.Paper
	Paper(id int64) (*model.Paper, error)
	Author(id int64) (*model.Author, error)
	Reviews() []model.Review
	Stats() engine.Stats
}

// Server routes HTTP queries to an Engine.
type Server struct {
	eng     Engine
	origins []string
	log     *zap.Logger
}

// New creates a Server. allowedOrigins configures CORS; empty allows any.
func New(eng Engine, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	return &Server{
		eng:     eng,
		origins: allowedOrigins,
		log:     zap.L().With(zap.String("component", "api")),
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Get("/stats", s.stats)
	r.Get("/papers", s.findPapers)
	r.Get("/papers/{id}", s.getPaper)
	r.Get("/authors/{id}", s.getAuthor)
	r.Get("/reviews", s.listReviews)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.eng.Stats())
}

type papersResponse struct {
	Papers []model.Paper `json:"papers"`
	Count  int           `json:"count"`
}

func (s *Server) findPapers(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	papers := s.eng.FindPapers(f)
	if papers == nil {
		papers = []model.Paper{}
	}
	s.writeJSON(w, http.StatusOK, papersResponse{Papers: papers, Count: len(papers)})
}

func parseFilter(r *http.Request) (engine.Filter, error) {
	q := r.URL.Query()
	f := engine.Filter{
		Title:    q.Get("title"),
		Author:   q.Get("author"),
		LinkType: q.Get("link_type"),
		Link:     q.Get("link"),
		Topic:    q.Get("topic"),
		Venue:    q.Get("venue"),
		Source:   q.Get("source"),
		Limit:    defaultLimit,
	}
	if v := q.Get("author_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, &model.ValidationError{Field: "author_id", Reason: "must be a positive integer"}
		}
		f.AuthorID = id
	}
	if v := q.Get("min_quality"); v != "" {
		mq, err := strconv.ParseFloat(v, 64)
		if err != nil || !model.Quality(mq).Valid() {
			return f, &model.ValidationError{Field: "min_quality", Reason: "must be in [0, 1]"}
		}
		f.MinQuality = model.Quality(mq)
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return f, &model.ValidationError{Field: "limit", Reason: "must be a positive integer"}
		}
		f.Limit = min(n, maxLimit)
	}
	if f.Link != "" && f.LinkType == "" {
		return f, &model.ValidationError{Field: "link", Reason: "requires link_type"}
	}
	return f, nil
}

func (s *Server) getPaper(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	p, err := s.eng.Paper(id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

func (s *Server) getAuthor(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	a, err := s.eng.Author(id)
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, a)
}

func (s *Server) listReviews(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"reviews": s.eng.Reviews()})
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (s *Server) writeLookupError(w http.ResponseWriter, err error) {
	if model.IsNotFound(err) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.log.Error("lookup failed", zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn("encode response", zap.Error(err))
	}
}
