package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New()

	m.ObserveLoad("interpreted-script", "ok")
	m.ObserveLoad("interpreted-script", "ok")
	m.ObserveDecision("select_move", "compiled-module", "ok", 5*time.Millisecond)
	m.PlyApplied()
	m.StaleDiscarded()
	m.GameFinished("checkmate")
	m.SetRegistered(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.agentLoads.WithLabelValues("interpreted-script", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.decisions.WithLabelValues("select_move", "compiled-module", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pliesApplied))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.staleDiscarded))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.agentsRegistered))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gambit_plies_applied_total 1")
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLoad("k", "ok")
	m.ObserveDecision("op", "k", "ok", time.Second)
	m.PlyApplied()
	m.StaleDiscarded()
	m.GameFinished("draw")
	m.SetRegistered(1)
	assert.Nil(t, m.Registry())
}
