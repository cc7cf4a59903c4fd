package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeTempConfig(t, `
instruments: [BTCUSDT, ETHUSDT]
venues:
  - name: primary
    endpoint: wss://example.com/ws
    priority: 0
hmm:
  K: 6
  window_T: 1000
  update_every_S: 500
  forgetting_gamma: 0.99
  nu_min: 2.5
  nu_max: 30
decision:
  alpha: 0.05
  beta: 0.2
  cost_bps: 5
  kelly_multiplier: 0.2
  position_cap: 0.08
  horizon_ticks_default: 200
limits:
  ingest_queue_cap: 512
  feature_queue_cap: 256
  hmm_queue_cap: 256
  evaluator_queue_cap: 256
  decision_queue_cap: 64
  sizer_queue_cap: 128
  dispatch_queue_cap: 128
  sink_queue_cap: 10000
  handshake_timeout_ms: 10000
  tick_budget_ms: 50
  shutdown_grace_ms: 5000
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Instruments)
	assert.Equal(t, 6, cfg.HMM.K)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeTempConfig(t, `
instruments: [BTCUSDT]
venues:
  - name: primary
    endpoint: wss://example.com/ws
totally_unknown_key: true
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingInstrumentsIsFatal(t *testing.T) {
	path := writeTempConfig(t, `
venues:
  - name: primary
    endpoint: wss://example.com/ws
`)
	_, err := Load(path)
	assert.ErrorContains(t, err, "instruments")
}

func TestHMMConfig_ValidateRanges(t *testing.T) {
	h := Default().HMM
	h.NuMin = 1
	assert.Error(t, h.Validate())

	h = Default().HMM
	h.ForgettingGama = 1.5
	assert.Error(t, h.Validate())

	assert.NoError(t, Default().HMM.Validate())
}

func TestEntanglementFor_ZeroDiagonalAndSymmetricLookup(t *testing.T) {
	cfg := Default()
	cfg.EntanglementMatrix.Matrix = map[string]map[string]float64{
		"BTCUSDT": {"ETHUSDT": 0.4},
	}
	assert.Equal(t, 0.0, cfg.EntanglementFor("BTCUSDT", "BTCUSDT"))
	assert.Equal(t, 0.4, cfg.EntanglementFor("BTCUSDT", "ETHUSDT"))
	assert.Equal(t, 0.4, cfg.EntanglementFor("ETHUSDT", "BTCUSDT"))
	assert.Equal(t, 0.0, cfg.EntanglementFor("ETHUSDT", "SOLUSDT"))
}
