package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/gambit/core"
)

func (s *Server) agentRoutes() http.Handler {
	r := chi.NewRouter()
	t := s.timeout(r)
	t.Get("/", s.HandleListAgents)
	t.Post("/", s.HandleUploadAgent)
	t.Get("/{id}", s.HandleGetAgent)
	t.Delete("/{id}", s.HandleDeleteAgent)
	return r
}

// HandleListAgents handles GET /api/agents.
func (s *Server) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listResponse[core.AgentDescriptor]{Data: s.g.Agents()})
}

// HandleUploadAgent handles POST /api/agents?filename=. The body is the raw
// agent payload.
func (s *Server) HandleUploadAgent(w http.ResponseWriter, r *http.Request) {
	filename := r.URL.Query().Get("filename")
	if filename == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "missing filename")
		return
	}

	// One byte past the ceiling is enough for the loader to reject the upload.
	limit := int64(s.g.Registry().Policy().MaxPayloadBytes)
	body := io.Reader(r.Body)
	if limit > 0 {
		body = io.LimitReader(r.Body, limit+1)
	}
	payload, err := io.ReadAll(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", fmt.Sprintf("read body: %v", err))
		return
	}

	desc, err := s.g.LoadAgent(r.Context(), filename, payload)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

// HandleGetAgent handles GET /api/agents/{id}. The id may also be a
// built-in key or an agent name.
func (s *Server) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	id, err := s.g.ResolveAgent(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	desc, err := s.g.Agent(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// HandleDeleteAgent handles DELETE /api/agents/{id}.
func (s *Server) HandleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.g.Agent(id); err != nil {
		s.handleError(w, err)
		return
	}
	if err := s.g.UnloadAgent(r.Context(), id); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listResponse[T any] struct {
	Data []T `json:"data"`
}
