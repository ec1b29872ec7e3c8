package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hupe1980/gambit/engine"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 16 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const pongWait = 60 * time.Second

// HandleEvents handles GET /api/sessions/{id}/events. Each websocket text
// message is one JSON encoded core.Event of the session, or an agent
// lifecycle event. Events are dropped for clients that fall behind.
func (s *Server) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.g.Engine().Session(id); err != nil {
		s.handleError(w, err)
		return
	}

	events, unsubscribe := s.g.Events().Subscribe(s.opts.Config.EventBuffer, engine.ForSession(id))
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		return
	}
	defer conn.Close()

	s.opts.Logger.Debug("Event stream opened", "session_id", id, "remote", r.RemoteAddr)

	// The reader only drains control frames and notices the client leaving.
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pongWait / 2)
	defer ping.Stop()

	for {
		select {
		case <-done:
			s.opts.Logger.Debug("Event stream closed by client", "session_id", id)
			return
		case <-r.Context().Done():
			return
		case <-ping.C:
			deadline := time.Now().Add(s.opts.Config.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(time.Second))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(s.opts.Config.WriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.opts.Logger.Debug("Event stream write failed", "session_id", id, "error", err)
				return
			}
		}
	}
}
