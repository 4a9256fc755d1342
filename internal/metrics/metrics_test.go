package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveUpstreamCountsOutcomes(t *testing.T) {
	m := New()
	m.ObserveUpstream("narrative", "ok", 1, 200*time.Millisecond)
	m.ObserveUpstream("narrative", "unavailable", 3, 3*time.Second)
	m.ObserveUpstream("culture", "ok", 2, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("narrative", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("narrative", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamCalls.WithLabelValues("culture", "ok")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordTurn("opener")
	m.RecordNotice("narrative_unavailable")
	m.SetSessions(3)
	m.ObserveHTTP(http.MethodGet, "/api/starters", http.StatusOK, time.Millisecond)
}

func TestHandlerServesTextFormat(t *testing.T) {
	m := New()
	m.RecordTurn("opener")
	m.SetSessions(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `narravox_turns_total{kind="opener"} 1`), body)
	assert.True(t, strings.Contains(body, "narravox_active_sessions 2"), body)
}
