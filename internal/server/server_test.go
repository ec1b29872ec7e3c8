package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/gambit"
	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/engine"
	"github.com/hupe1980/gambit/internal/testutil"
)

func newTestServer(t *testing.T, optFns ...func(o *gambit.Options)) (*httptest.Server, *gambit.Gambit) {
	t.Helper()
	g, err := gambit.New(context.Background(), optFns...)
	require.NoError(t, err)
	srv := httptest.NewServer(New(g).Routes())
	t.Cleanup(func() {
		srv.Close()
		_ = g.Close(context.Background())
	})
	return srv, g
}

func manual(sched *testutil.ManualScheduler) func(o *gambit.Options) {
	return func(o *gambit.Options) { o.Scheduler = sched }
}

func do(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		rd = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, url, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func createSession(t *testing.T, base, fen string) engine.MatchState {
	t.Helper()
	resp := do(t, http.MethodPost, base+"/api/sessions", map[string]string{"fen": fen})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[engine.MatchState](t, resp)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]string](t, resp)["status"])

	resp = do(t, http.MethodGet, srv.URL+"/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "gambit_agents_registered")
}

func TestAgents_ListUploadDelete(t *testing.T) {
	srv, g := newTestServer(t)

	list := decode[listResponse[core.AgentDescriptor]](t, do(t, http.MethodGet, srv.URL+"/api/agents", nil))
	require.Len(t, list.Data, 2)

	resp := do(t, http.MethodPost, srv.URL+"/api/agents?filename=opener.js", testutil.StaticScriptAgent("Opener", "e2e4"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	desc := decode[core.AgentDescriptor](t, resp)
	assert.Equal(t, "Opener", desc.Name)
	assert.Equal(t, core.OriginUploaded, desc.Origin)

	resp = do(t, http.MethodGet, srv.URL+"/api/agents/"+desc.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, desc.ID, decode[core.AgentDescriptor](t, resp).ID)

	resp = do(t, http.MethodGet, srv.URL+"/api/agents/random", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Random Bot", decode[core.AgentDescriptor](t, resp).Name)

	resp = do(t, http.MethodDelete, srv.URL+"/api/agents/"+desc.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodDelete, srv.URL+"/api/agents/"+desc.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	random, ok := g.BuiltinID("random")
	require.True(t, ok)
	resp = do(t, http.MethodDelete, srv.URL+"/api/agents/"+random, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "CONFLICT", decode[errorBody](t, resp).Error.Code)

	list = decode[listResponse[core.AgentDescriptor]](t, do(t, http.MethodGet, srv.URL+"/api/agents", nil))
	assert.Len(t, list.Data, 2)
}

func TestAgents_UploadRejections(t *testing.T) {
	srv, g := newTestServer(t, func(o *gambit.Options) {
		o.Policy = core.UploadPolicy{MaxPayloadBytes: 64, MaxUploadedAgents: 4}
	})

	tests := []struct {
		name   string
		url    string
		body   []byte
		status int
		code   string
	}{
		{"missing filename", "/api/agents", []byte("x"), http.StatusBadRequest, "BAD_REQUEST"},
		{"empty", "/api/agents?filename=a.js", []byte{}, http.StatusBadRequest, "BAD_REQUEST"},
		{"binary garbage", "/api/agents?filename=a.bin", []byte{0x00, 0xff, 0x01}, http.StatusBadRequest, "BAD_REQUEST"},
		{"too large", "/api/agents?filename=a.js", bytes.Repeat([]byte("a"), 100), http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE"},
		{"no selectMove", "/api/agents?filename=a.js", []byte(`function getName() { return "x"; }`), http.StatusUnprocessableEntity, "LOAD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+tt.url, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decode[errorBody](t, resp).Error.Code)
		})
	}
	assert.Len(t, g.Agents(), 2)
}

func TestSessions_CreateGetDelete(t *testing.T) {
	srv, _ := newTestServer(t)

	st := createSession(t, srv.URL, "")
	assert.Equal(t, core.SideWhite, st.Session.Turn)
	assert.Len(t, st.Session.LegalMoves, 20)
	assert.True(t, st.Config.Paused)
	assert.Equal(t, engine.StateIdle, st.State)

	resp := do(t, http.MethodGet, srv.URL+"/api/sessions/"+st.Session.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, st.Session.ID, decode[engine.MatchState](t, resp).Session.ID)

	list := decode[listResponse[core.SessionSnapshot]](t, do(t, http.MethodGet, srv.URL+"/api/sessions", nil))
	assert.Len(t, list.Data, 1)

	resp = do(t, http.MethodDelete, srv.URL+"/api/sessions/"+st.Session.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/sessions/"+st.Session.ID, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", decode[errorBody](t, resp).Error.Code)
}

func TestSessions_InvalidFEN(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/sessions", map[string]string{"fen": "not a position"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessions_HumanMoves(t *testing.T) {
	srv, _ := newTestServer(t)
	st := createSession(t, srv.URL, "")
	base := srv.URL + "/api/sessions/" + st.Session.ID

	resp := do(t, http.MethodPost, base+"/moves", moveRequest{Move: "e2e4"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rec := decode[core.MoveRecord](t, resp)
	assert.Equal(t, "e2e4", rec.Move)

	resp = do(t, http.MethodPost, base+"/moves", moveRequest{Move: "e2e4"})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, core.ClassIllegal, decode[errorBody](t, resp).Error.Class)

	resp = do(t, http.MethodPost, base+"/moves", []byte(`{}`))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/undo", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	gen := decode[generationResponse](t, resp)
	assert.Greater(t, gen.Generation, st.Session.Generation)

	resp = do(t, http.MethodPost, base+"/undo", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessions_ConfigureAndStep(t *testing.T) {
	sched := &testutil.ManualScheduler{}
	srv, g := newTestServer(t, manual(sched))
	desc, err := g.LoadAgent(context.Background(), "opener.js", testutil.StaticScriptAgent("Opener", "e2e4"))
	require.NoError(t, err)

	st := createSession(t, srv.URL, "")
	base := srv.URL + "/api/sessions/" + st.Session.ID

	resp := do(t, http.MethodPost, base+"/step", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	delay := int64(0)
	resp = do(t, http.MethodPut, base+"/config", configRequest{
		White:       &seatRequest{Mode: core.SeatAuto, Agent: "Opener"},
		MoveDelayMS: &delay,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cfg := decode[engine.MatchState](t, resp).Config
	assert.Equal(t, desc.ID, cfg.White.AgentID)
	assert.Equal(t, core.SeatHuman, cfg.Black.Mode)
	assert.True(t, cfg.Paused)

	resp = do(t, http.MethodPost, base+"/step", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[engine.StepResult](t, resp)
	assert.Equal(t, engine.OutcomeApplied, res.Outcome)
	assert.Equal(t, "e2e4", res.Move)
	assert.Equal(t, desc.ID, res.AgentID)

	resp = do(t, http.MethodPost, base+"/reset", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPut, base+"/config", configRequest{White: &seatRequest{Mode: core.SeatAuto, Agent: "nobody"}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodPut, base+"/config", configRequest{White: &seatRequest{Mode: "robot"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessions_Suggest(t *testing.T) {
	srv, g := newTestServer(t, manual(&testutil.ManualScheduler{}))
	_, err := g.LoadAgent(context.Background(), "coach.js", testutil.StaticScriptAgent("Coach", "d2d4"))
	require.NoError(t, err)

	st := createSession(t, srv.URL, "")
	base := srv.URL + "/api/sessions/" + st.Session.ID

	resp := do(t, http.MethodPut, base+"/config", configRequest{White: &seatRequest{Mode: core.SeatAdvisory, Agent: "coach"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, base+"/suggest", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "d2d4", decode[suggestionResponse](t, resp).Move)

	st = decode[engine.MatchState](t, do(t, http.MethodGet, base, nil))
	assert.Empty(t, st.Session.History)
}

func TestEvents_StreamsSessionEvents(t *testing.T) {
	srv, g := newTestServer(t)
	_, err := g.LoadAgent(context.Background(), "opener.js", testutil.StaticScriptAgent("Opener", "e2e4"))
	require.NoError(t, err)
	st := createSession(t, srv.URL, "")

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/sessions/" + st.Session.ID + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	delay, paused := int64(0), false
	resp := do(t, http.MethodPut, srv.URL+"/api/sessions/"+st.Session.ID+"/config", configRequest{
		White:       &seatRequest{Mode: core.SeatAuto, Agent: "opener"},
		MoveDelayMS: &delay,
		Paused:      &paused,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var seen []core.EventType
	for {
		var ev core.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.SessionID != "" {
			assert.Equal(t, st.Session.ID, ev.SessionID)
		}
		seen = append(seen, ev.Type)
		if ev.Type == core.EventMoveApplied {
			assert.Equal(t, "e2e4", ev.Move)
			assert.Equal(t, core.SideWhite, ev.Side)
			break
		}
	}
	assert.Contains(t, seen, core.EventMatchStarted)
}

func TestEvents_UnknownSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/sessions/nope/events", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
