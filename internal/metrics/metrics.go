// Package metrics exposes the engine's Prometheus registry: tick-ingestion
// health, regime-engine stability, and signal throughput, grounded on the
// teacher's internal/interfaces/http metrics registry shape but scoped to
// this engine's own counters and gauges rather than scan-pipeline ones.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric this engine exports.
type Registry struct {
	TicksDropped  *prometheus.CounterVec
	TicksSuspect  *prometheus.CounterVec
	EMFailures    *prometheus.CounterVec
	Quarantined   *prometheus.GaugeVec
	SignalsEmitted      *prometheus.CounterVec
	SignalsDeduplicated *prometheus.CounterVec
	RegimeEntropy       *prometheus.GaugeVec
	PosteriorMax        *prometheus.GaugeVec
	DispatchQueueDepth  *prometheus.GaugeVec

	reg *prometheus.Registry
}

// NewRegistry builds and registers every metric against a fresh
// (non-global) Prometheus registry, so multiple Registry instances can
// coexist in tests without a "duplicate metrics collector" panic.
func NewRegistry() *Registry {
	r := &Registry{
		TicksDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrse_ticks_dropped_total",
				Help: "Total ticks hard-dropped by the Ingestor, by instrument and drop reason.",
			},
			[]string{"instrument", "reason"},
		),
		TicksSuspect: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrse_ticks_suspect_total",
				Help: "Total ticks marked suspect on cross-venue disagreement, by instrument.",
			},
			[]string{"instrument"},
		),
		EMFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrse_hmm_em_failures_total",
				Help: "Total online EM update failures, by instrument.",
			},
			[]string{"instrument"},
		),
		Quarantined: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qrse_hmm_quarantined",
				Help: "1 if the instrument's HMM updater is quarantined (3 consecutive EM failures), else 0.",
			},
			[]string{"instrument"},
		),
		SignalsEmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrse_signals_emitted_total",
				Help: "Total EXECUTE signals dispatched, by instrument and direction.",
			},
			[]string{"instrument", "direction"},
		),
		SignalsDeduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrse_signals_deduplicated_total",
				Help: "Total signals suppressed as duplicates by the Dispatcher, by instrument.",
			},
			[]string{"instrument"},
		),
		RegimeEntropy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qrse_regime_posterior_entropy",
				Help: "Shannon entropy of the filtered regime posterior, by instrument.",
			},
			[]string{"instrument"},
		),
		PosteriorMax: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qrse_regime_posterior_max",
				Help: "Max component of the filtered regime posterior, by instrument.",
			},
			[]string{"instrument"},
		),
		DispatchQueueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qrse_dispatch_queue_depth",
				Help: "Current depth of the shared Dispatcher outbound queue.",
			},
			[]string{"instrument"},
		),
		reg: prometheus.NewRegistry(),
	}

	r.reg.MustRegister(
		r.TicksDropped,
		r.TicksSuspect,
		r.EMFailures,
		r.Quarantined,
		r.SignalsEmitted,
		r.SignalsDeduplicated,
		r.RegimeEntropy,
		r.PosteriorMax,
		r.DispatchQueueDepth,
	)
	return r
}

// Handler returns the HTTP handler serving this registry's metrics at
// /metrics (spec.md §7 "observability").
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// RecordDropped increments the dropped-tick counter for instrument/reason.
func (r *Registry) RecordDropped(instrument, reason string) {
	r.TicksDropped.WithLabelValues(instrument, reason).Inc()
}

// AddDropped increments the dropped-tick counter by n, for callers polling a
// running total (e.g. the Merger's Dropped() counter) rather than observing
// each drop individually.
func (r *Registry) AddDropped(instrument, reason string, n int64) {
	if n <= 0 {
		return
	}
	r.TicksDropped.WithLabelValues(instrument, reason).Add(float64(n))
}

// RecordSuspect increments the suspect-tick counter for instrument.
func (r *Registry) RecordSuspect(instrument string) {
	r.TicksSuspect.WithLabelValues(instrument).Inc()
}

// AddSuspect increments the suspect-tick counter by n; see AddDropped.
func (r *Registry) AddSuspect(instrument string, n int64) {
	if n <= 0 {
		return
	}
	r.TicksSuspect.WithLabelValues(instrument).Add(float64(n))
}

// RecordEMFailure increments the EM-failure counter for instrument.
func (r *Registry) RecordEMFailure(instrument string) {
	r.EMFailures.WithLabelValues(instrument).Inc()
}

// AddEMFailures increments the EM-failure counter by n; see AddDropped.
func (r *Registry) AddEMFailures(instrument string, n int) {
	if n <= 0 {
		return
	}
	r.EMFailures.WithLabelValues(instrument).Add(float64(n))
}

// SetQuarantined sets the quarantine gauge for instrument.
func (r *Registry) SetQuarantined(instrument string, quarantined bool) {
	v := 0.0
	if quarantined {
		v = 1.0
	}
	r.Quarantined.WithLabelValues(instrument).Set(v)
}

// RecordSignalEmitted increments the emitted-signal counter for
// instrument/direction ("long" or "short").
func (r *Registry) RecordSignalEmitted(instrument string, direction int) {
	dir := "short"
	if direction > 0 {
		dir = "long"
	}
	r.SignalsEmitted.WithLabelValues(instrument, dir).Inc()
}

// RecordSignalDeduplicated increments the deduplicated-signal counter.
func (r *Registry) RecordSignalDeduplicated(instrument string) {
	r.SignalsDeduplicated.WithLabelValues(instrument).Inc()
}

// SetRegimePosterior updates the entropy and max-component gauges from a
// filtered posterior alpha.
func (r *Registry) SetRegimePosterior(instrument string, entropy, max float64) {
	r.RegimeEntropy.WithLabelValues(instrument).Set(entropy)
	r.PosteriorMax.WithLabelValues(instrument).Set(max)
}

// SetDispatchQueueDepth updates the shared dispatcher queue-depth gauge.
func (r *Registry) SetDispatchQueueDepth(instrument string, depth int) {
	r.DispatchQueueDepth.WithLabelValues(instrument).Set(float64(depth))
}
