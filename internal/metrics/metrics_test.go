package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_HandlerExposesRecordedMetrics(t *testing.T) {
	r := NewRegistry()
	r.RecordDropped("BTC/USD", "stale")
	r.AddSuspect("BTC/USD", 3)
	r.SetQuarantined("BTC/USD", true)
	r.RecordSignalEmitted("BTC/USD", 1)
	r.RecordSignalDeduplicated("BTC/USD")
	r.SetRegimePosterior("BTC/USD", 0.5, 0.8)
	r.SetDispatchQueueDepth("BTC/USD", 4)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "qrse_ticks_dropped_total")
	assert.Contains(t, body, `instrument="BTC/USD"`)
	assert.Contains(t, body, "qrse_ticks_suspect_total")
	assert.Contains(t, body, "qrse_hmm_quarantined")
	assert.Contains(t, body, "qrse_signals_emitted_total")
	assert.Contains(t, body, "qrse_signals_deduplicated_total")
	assert.Contains(t, body, "qrse_regime_posterior_entropy")
	assert.Contains(t, body, "qrse_regime_posterior_max")
	assert.Contains(t, body, "qrse_dispatch_queue_depth")
}

func TestRegistry_AddHelpersSkipNonPositiveDeltas(t *testing.T) {
	r := NewRegistry()
	r.AddDropped("ETH/USD", "merger", 0)
	r.AddSuspect("ETH/USD", -1)
	r.AddEMFailures("ETH/USD", 0)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, req)

	body := rec.Body.String()
	assert.False(t, strings.Contains(body, `instrument="ETH/USD"`),
		"non-positive deltas should not create a labeled series")
}

func TestNewRegistry_TwoInstancesDoNotCollide(t *testing.T) {
	a := NewRegistry()
	b := NewRegistry()
	a.RecordSuspect("BTC/USD")
	b.RecordSuspect("ETH/USD")

	reqA := httptest.NewRequest("GET", "/metrics", nil)
	recA := httptest.NewRecorder()
	a.Handler().ServeHTTP(recA, reqA)
	assert.Contains(t, recA.Body.String(), `instrument="BTC/USD"`)
	assert.NotContains(t, recA.Body.String(), `instrument="ETH/USD"`)
}
