package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nstogner/coursemate/pkg/store"
)

// queryRequest is the body of POST /api/query and of websocket chat
// messages. Query is a pointer so a missing field can be told apart from
// an empty one.
type queryRequest struct {
	Query     *string `json:"query"`
	SessionID string  `json:"session_id,omitempty"`
}

var errMissingQuery = errors.New("field required: query")

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Course Materials RAG System",
	})
}

// --- Questions ---

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err)
		return
	}
	if req.Query == nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, errMissingQuery)
		return
	}

	ctx, cancel := s.queryContext(r.Context())
	defer cancel()

	res, err := s.assistant.Query(ctx, *req.Query, req.SessionID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// --- Catalog ---

func (s *Server) handleCourseStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.assistant.CourseAnalytics(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, stats)
}

func (s *Server) handleCourseOutline(w http.ResponseWriter, r *http.Request) {
	outline, err := s.assistant.Outline(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{"outline": outline})
}

// --- Sessions ---

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.assistant.CreateSession(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, map[string]string{"session_id": id})
}

func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	msgs, err := s.assistant.SessionHistory(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		s.errorResponse(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"session_id": id,
		"history":    msgs,
	})
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.assistant.Models(r.Context())
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, models)
}
