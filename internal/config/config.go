// Package config loads and validates the pipeline's schema-validated YAML
// configuration. Unknown keys are rejected; every section validates its own
// ranges so a bad value fails fast at startup rather than surfacing as a
// silent NaN three components downstream.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration document (§6).
type Config struct {
	Instruments        []string           `yaml:"instruments"`
	Venues             []Venue            `yaml:"venues"`
	HMM                HMMConfig          `yaml:"hmm"`
	Decision           DecisionConfig     `yaml:"decision"`
	EntanglementMatrix EntanglementConfig `yaml:"entanglement_matrix"`
	Limits             LimitsConfig       `yaml:"limits"`

	// Version is bumped on every successful reload and handed to readers
	// as part of the versioned snapshot (§5 Shared-resource policy).
	Version int `yaml:"-"`
}

// Venue describes one exchange connection endpoint (§6). A Venue named
// "replay" is handled specially: Endpoint is a recorded tick-log path
// instead of a URL, and ReplaySpeed scales playback pacing (see
// internal/orchestrator's buildSources and internal/replay.Source).
type Venue struct {
	Name        string  `yaml:"name"`
	Endpoint    string  `yaml:"endpoint"`
	Priority    int     `yaml:"priority"`
	ReplaySpeed float64 `yaml:"replay_speed"`
}

// HMMConfig configures the regime engine (§4.3, §6).
type HMMConfig struct {
	K              int     `yaml:"K"`
	WindowT        int     `yaml:"window_T"`
	UpdateEveryS   int     `yaml:"update_every_S"`
	ForgettingGama float64 `yaml:"forgetting_gamma"`
	NuMin          float64 `yaml:"nu_min"`
	NuMax          float64 `yaml:"nu_max"`
}

// DecisionConfig configures SPRT and Kelly sizing (§4.5, §4.6, §6).
type DecisionConfig struct {
	Alpha               float64 `yaml:"alpha"`
	Beta                float64 `yaml:"beta"`
	CostBps             float64 `yaml:"cost_bps"`
	KellyMultiplier     float64 `yaml:"kelly_multiplier"`
	PositionCap         float64 `yaml:"position_cap"`
	HorizonTicksDefault int     `yaml:"horizon_ticks_default"`
}

// EntanglementConfig holds the cross-instrument correlation table (§4.4, §6).
// Either Matrix is given inline or Path points at a file holding the same shape.
type EntanglementConfig struct {
	Path   string               `yaml:"path"`
	Matrix map[string]map[string]float64 `yaml:"matrix"`
}

// LimitsConfig holds per-channel caps and timeouts (§5, §6).
type LimitsConfig struct {
	IngestQueueCap      int `yaml:"ingest_queue_cap"`
	FeatureQueueCap     int `yaml:"feature_queue_cap"`
	HMMQueueCap         int `yaml:"hmm_queue_cap"`
	EvaluatorQueueCap   int `yaml:"evaluator_queue_cap"`
	DecisionQueueCap    int `yaml:"decision_queue_cap"`
	SizerQueueCap       int `yaml:"sizer_queue_cap"`
	DispatchQueueCap    int `yaml:"dispatch_queue_cap"`
	SinkQueueCap        int `yaml:"sink_queue_cap"`
	HandshakeTimeoutMs  int `yaml:"handshake_timeout_ms"`
	TickBudgetMs        int `yaml:"tick_budget_ms"`
	ShutdownGraceMs     int `yaml:"shutdown_grace_ms"`
}

// Default returns a weakly informative default configuration; Load decodes
// the config file over it, and tests use it directly.
func Default() Config {
	return Config{
		HMM: HMMConfig{
			K:              6,
			WindowT:        1000,
			UpdateEveryS:   500,
			ForgettingGama: 0.99,
			NuMin:          2.5,
			NuMax:          30,
		},
		Decision: DecisionConfig{
			Alpha:               0.05,
			Beta:                0.20,
			CostBps:             5,
			KellyMultiplier:     0.2,
			PositionCap:         0.08,
			HorizonTicksDefault: 200,
		},
		Limits: LimitsConfig{
			IngestQueueCap:     512,
			FeatureQueueCap:    256,
			HMMQueueCap:        256,
			EvaluatorQueueCap:  256,
			DecisionQueueCap:   64,
			SizerQueueCap:      128,
			DispatchQueueCap:   128,
			SinkQueueCap:       10000,
			HandshakeTimeoutMs: 10000,
			TickBudgetMs:       50,
			ShutdownGraceMs:    5000,
		},
	}
}

// Load reads, strictly decodes (unknown keys are errors), and validates a
// configuration file.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section's ranges. A configuration error here is
// fatal at startup (exit code 1, §7) and rejected (not applied) at reload.
func (c Config) Validate() error {
	if len(c.Instruments) == 0 {
		return fmt.Errorf("instruments: at least one instrument is required")
	}
	if len(c.Venues) == 0 {
		return fmt.Errorf("venues: at least one venue is required")
	}
	seen := make(map[string]bool, len(c.Venues))
	for _, v := range c.Venues {
		if v.Name == "" {
			return fmt.Errorf("venues: name is required")
		}
		if v.Endpoint == "" {
			return fmt.Errorf("venues[%s]: endpoint is required", v.Name)
		}
		if seen[v.Name] {
			return fmt.Errorf("venues[%s]: duplicate venue name", v.Name)
		}
		seen[v.Name] = true
	}
	if err := c.HMM.Validate(); err != nil {
		return fmt.Errorf("hmm: %w", err)
	}
	if err := c.Decision.Validate(); err != nil {
		return fmt.Errorf("decision: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	return nil
}

// Validate checks HMM configuration ranges (§3 Invariants, §6).
func (h HMMConfig) Validate() error {
	if h.K < 2 {
		return fmt.Errorf("K must be >= 2, got %d", h.K)
	}
	if h.WindowT < 1 {
		return fmt.Errorf("window_T must be positive, got %d", h.WindowT)
	}
	if h.UpdateEveryS < 1 {
		return fmt.Errorf("update_every_S must be positive, got %d", h.UpdateEveryS)
	}
	if h.ForgettingGama < 0 || h.ForgettingGama > 1 {
		return fmt.Errorf("forgetting_gamma must be in [0,1], got %f", h.ForgettingGama)
	}
	if h.NuMin < 2 || h.NuMin > h.NuMax {
		return fmt.Errorf("nu_min must be >= 2 and <= nu_max, got nu_min=%f nu_max=%f", h.NuMin, h.NuMax)
	}
	if h.NuMax > 1000 {
		return fmt.Errorf("nu_max unreasonably large: %f", h.NuMax)
	}
	return nil
}

// Validate checks decision engine configuration ranges (§4.5, §4.6, §6).
func (d DecisionConfig) Validate() error {
	if d.Alpha <= 0 || d.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0,1), got %f", d.Alpha)
	}
	if d.Beta <= 0 || d.Beta >= 1 {
		return fmt.Errorf("beta must be in (0,1), got %f", d.Beta)
	}
	if d.CostBps < 0 {
		return fmt.Errorf("cost_bps must be >= 0, got %f", d.CostBps)
	}
	if d.KellyMultiplier <= 0 || d.KellyMultiplier > 1 {
		return fmt.Errorf("kelly_multiplier must be in (0,1], got %f", d.KellyMultiplier)
	}
	if d.PositionCap <= 0 || d.PositionCap > 1 {
		return fmt.Errorf("position_cap must be in (0,1], got %f", d.PositionCap)
	}
	if d.HorizonTicksDefault < 1 {
		return fmt.Errorf("horizon_ticks_default must be positive, got %d", d.HorizonTicksDefault)
	}
	return nil
}

// Validate checks channel/timeout limits (§5, §6).
func (l LimitsConfig) Validate() error {
	caps := map[string]int{
		"ingest_queue_cap":    l.IngestQueueCap,
		"feature_queue_cap":   l.FeatureQueueCap,
		"hmm_queue_cap":       l.HMMQueueCap,
		"evaluator_queue_cap": l.EvaluatorQueueCap,
		"decision_queue_cap":  l.DecisionQueueCap,
		"sizer_queue_cap":     l.SizerQueueCap,
		"dispatch_queue_cap":  l.DispatchQueueCap,
		"sink_queue_cap":      l.SinkQueueCap,
	}
	for name, v := range caps {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}
	if l.HandshakeTimeoutMs <= 0 {
		return fmt.Errorf("handshake_timeout_ms must be positive, got %d", l.HandshakeTimeoutMs)
	}
	if l.TickBudgetMs <= 0 {
		return fmt.Errorf("tick_budget_ms must be positive, got %d", l.TickBudgetMs)
	}
	if l.ShutdownGraceMs <= 0 {
		return fmt.Errorf("shutdown_grace_ms must be positive, got %d", l.ShutdownGraceMs)
	}
	return nil
}

// EntanglementFor returns the symmetric cross-instrument weight E[i][j],
// defaulting to 0 for unconfigured pairs and forcing the diagonal to 0
// regardless of configuration (§3 invariant: zero diagonal).
func (c Config) EntanglementFor(i, j string) float64 {
	if i == j {
		return 0
	}
	if row, ok := c.EntanglementMatrix.Matrix[i]; ok {
		if w, ok := row[j]; ok {
			return w
		}
	}
	if row, ok := c.EntanglementMatrix.Matrix[j]; ok {
		if w, ok := row[i]; ok {
			return w
		}
	}
	return 0
}
