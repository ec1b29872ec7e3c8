package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/session"
)

func (s *Server) sessionRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/{id}/events", s.HandleEvents)

	t := s.timeout(r)
	t.Get("/", s.HandleListSessions)
	t.Post("/", s.HandleCreateSession)
	t.Get("/{id}", s.HandleGetSession)
	t.Delete("/{id}", s.HandleDeleteSession)
	t.Put("/{id}/config", s.HandleConfigure)
	t.Post("/{id}/start", s.HandleStart)
	t.Post("/{id}/pause", s.HandlePause)
	t.Post("/{id}/step", s.HandleStep)
	t.Post("/{id}/suggest", s.HandleSuggest)
	t.Post("/{id}/reset", s.HandleReset)
	t.Post("/{id}/undo", s.HandleUndo)
	t.Post("/{id}/moves", s.HandleMove)
	return r
}

type createSessionRequest struct {
	FEN string `json:"fen"`
}

type seatRequest struct {
	Mode core.SeatMode `json:"mode"`
	// Agent is an agent id, a built-in key or an agent name.
	Agent string `json:"agent,omitempty"`
}

type configRequest struct {
	White       *seatRequest `json:"white,omitempty"`
	Black       *seatRequest `json:"black,omitempty"`
	MoveDelayMS *int64       `json:"move_delay_ms,omitempty"`
	Paused      *bool        `json:"paused,omitempty"`
}

type moveRequest struct {
	Move string `json:"move"`
}

type suggestionResponse struct {
	Move string `json:"move"`
}

type generationResponse struct {
	Generation uint64 `json:"generation"`
}

// HandleListSessions handles GET /api/sessions.
func (s *Server) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.g.Engine().Sessions()
	out := make([]core.SessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, sess.Snapshot())
	}
	writeJSON(w, http.StatusOK, listResponse[core.SessionSnapshot]{Data: out})
}

// HandleCreateSession handles POST /api/sessions. An empty body starts from
// the standard position.
func (s *Server) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeOptional(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	sess, err := s.g.NewSession(req.FEN)
	if err != nil {
		if errors.Is(err, session.ErrTooManySessions) {
			s.handleError(w, err)
			return
		}
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}
	s.writeState(w, http.StatusCreated, sess.ID)
}

// HandleGetSession handles GET /api/sessions/{id}.
func (s *Server) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s.writeState(w, http.StatusOK, chi.URLParam(r, "id"))
}

// HandleDeleteSession handles DELETE /api/sessions/{id}.
func (s *Server) HandleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.g.Engine().Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleConfigure handles PUT /api/sessions/{id}/config. Omitted fields keep
// their current values.
func (s *Server) HandleConfigure(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid request body")
		return
	}
	st, err := s.g.Engine().State(id)
	if err != nil {
		s.handleError(w, err)
		return
	}

	cfg := st.Config
	if req.White != nil {
		if cfg.White, err = s.seat(*req.White); err != nil {
			s.handleError(w, err)
			return
		}
	}
	if req.Black != nil {
		if cfg.Black, err = s.seat(*req.Black); err != nil {
			s.handleError(w, err)
			return
		}
	}
	if req.MoveDelayMS != nil {
		cfg.MoveDelay = time.Duration(*req.MoveDelayMS) * time.Millisecond
	}
	if req.Paused != nil {
		cfg.Paused = *req.Paused
	}

	if err := s.g.Engine().Configure(r.Context(), id, cfg); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeState(w, http.StatusOK, id)
}

// seat resolves a seat request. Human seats carry no agent.
func (s *Server) seat(req seatRequest) (core.Seat, error) {
	if req.Mode == core.SeatHuman || req.Agent == "" {
		return core.Seat{Mode: req.Mode}, nil
	}
	id, err := s.g.ResolveAgent(req.Agent)
	if err != nil {
		return core.Seat{}, err
	}
	return core.Seat{Mode: req.Mode, AgentID: id}, nil
}

// HandleStart handles POST /api/sessions/{id}/start.
func (s *Server) HandleStart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.g.Engine().Start(r.Context(), id); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeState(w, http.StatusOK, id)
}

// HandlePause handles POST /api/sessions/{id}/pause.
func (s *Server) HandlePause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.g.Engine().Pause(id); err != nil {
		s.handleError(w, err)
		return
	}
	s.writeState(w, http.StatusOK, id)
}

// HandleStep handles POST /api/sessions/{id}/step and blocks until the
// decision completes.
func (s *Server) HandleStep(w http.ResponseWriter, r *http.Request) {
	res, err := s.g.Engine().Step(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleSuggest handles POST /api/sessions/{id}/suggest.
func (s *Server) HandleSuggest(w http.ResponseWriter, r *http.Request) {
	mv, err := s.g.Engine().Suggest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestionResponse{Move: mv})
}

// HandleReset handles POST /api/sessions/{id}/reset.
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	gen, err := s.g.Engine().Reset(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generationResponse{Generation: gen})
}

// HandleUndo handles POST /api/sessions/{id}/undo.
func (s *Server) HandleUndo(w http.ResponseWriter, r *http.Request) {
	gen, err := s.g.Engine().Undo(chi.URLParam(r, "id"))
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generationResponse{Generation: gen})
}

// HandleMove handles POST /api/sessions/{id}/moves.
func (s *Server) HandleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Move == "" {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "expected {\"move\": \"<uci>\"}")
		return
	}
	rec, err := s.g.Engine().PlayMove(r.Context(), chi.URLParam(r, "id"), req.Move)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) writeState(w http.ResponseWriter, status int, id string) {
	st, err := s.g.Engine().State(id)
	if err != nil {
		s.handleError(w, err)
		return
	}
	writeJSON(w, status, st)
}

// decodeOptional decodes a JSON body, accepting an empty one.
func decodeOptional(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}
