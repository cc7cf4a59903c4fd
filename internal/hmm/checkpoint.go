package hmm

import (
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// Snapshot is the serializable form of Θ used for warm restart (spec.md §6
// "Persisted state" and §8 scenario S6).
type Snapshot struct {
	K     int         `yaml:"k"`
	Mu    [][]float64 `yaml:"mu"`
	Sigma [][]float64 `yaml:"sigma"` // flattened K x (ObsDim*ObsDim)
	Nu    []float64   `yaml:"nu"`
	B     [][]float64 `yaml:"b"`
	W     [][][]float64 `yaml:"w"`
	Pi    []float64   `yaml:"pi"`
	NuMin float64     `yaml:"nu_min"`
	NuMax float64     `yaml:"nu_max"`
}

// Checkpoint captures the current Θ as a Snapshot.
func (p *Params) Checkpoint() Snapshot {
	s := Snapshot{
		K:     p.K,
		Mu:    make([][]float64, p.K),
		Sigma: make([][]float64, p.K),
		Nu:    append([]float64(nil), p.Nu...),
		B:     make([][]float64, p.K),
		W:     make([][][]float64, p.K),
		Pi:    append([]float64(nil), p.Pi...),
		NuMin: p.NuMin,
		NuMax: p.NuMax,
	}
	for h := 0; h < p.K; h++ {
		s.Mu[h] = append([]float64(nil), p.Mu[h]...)
		s.Sigma[h] = make([]float64, ObsDim*ObsDim)
		for i := 0; i < ObsDim; i++ {
			for j := 0; j < ObsDim; j++ {
				s.Sigma[h][i*ObsDim+j] = p.Sigma[h].At(i, j)
			}
		}
		s.B[h] = append([]float64(nil), p.B[h]...)
		s.W[h] = make([][]float64, p.K)
		for j := 0; j < p.K; j++ {
			s.W[h][j] = append([]float64(nil), p.W[h][j]...)
		}
	}
	return s
}

// Restore reconstructs Θ from a Snapshot, recomputing the Cholesky cache.
func Restore(s Snapshot) (*Params, error) {
	p := &Params{
		K:     s.K,
		Mu:    s.Mu,
		Sigma: make([]*mat.SymDense, s.K),
		Nu:    s.Nu,
		B:     s.B,
		W:     s.W,
		Pi:    s.Pi,
		NuMin: s.NuMin,
		NuMax: s.NuMax,
	}
	for h := 0; h < s.K; h++ {
		if len(s.Sigma[h]) != ObsDim*ObsDim {
			return nil, fmt.Errorf("checkpoint regime %d: sigma has %d entries, want %d", h, len(s.Sigma[h]), ObsDim*ObsDim)
		}
		p.Sigma[h] = mat.NewSymDense(ObsDim, s.Sigma[h])
	}
	if err := p.rebuildCholesky(); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return p, nil
}

// MarshalCheckpoint encodes p's Snapshot as YAML, the wire shape every
// checkpoint backend (file, Redis, ...) stores (spec.md §6 "Persisted
// state").
func MarshalCheckpoint(p *Params) ([]byte, error) {
	data, err := yaml.Marshal(p.Checkpoint())
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	return data, nil
}

// UnmarshalCheckpoint decodes and restores Θ from YAML produced by
// MarshalCheckpoint.
func UnmarshalCheckpoint(data []byte) (*Params, error) {
	var s Snapshot
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	return Restore(s)
}

// SaveCheckpointFile writes the instrument's current Θ to a YAML file.
func SaveCheckpointFile(path string, p *Params) error {
	data, err := MarshalCheckpoint(p)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", path, err)
	}
	return nil
}

// LoadCheckpointFile reads and restores Θ from a YAML file written by
// SaveCheckpointFile.
func LoadCheckpointFile(path string) (*Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", path, err)
	}
	return UnmarshalCheckpoint(data)
}
