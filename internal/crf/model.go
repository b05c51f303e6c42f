// Package crf implements the linear-chain conditional random field used to
// label citation tokens.
//
// A Model is immutable once built: inference only reads it, so one Model can
// serve any number of concurrent decodes. Training (Train) is offline and
// produces a new Model rather than updating an existing one.
package crf

import (
	"errors"
	"fmt"

	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
)

// Errors returned by the labeler.
var (
	ErrModelMismatch = errors.New("model mismatch")
	ErrDecodeFailure = errors.New("decode failure")
)

// startRow is the transition row used for the first token.
const startRow = label.Count

// Params is the mutable, serializable description of a model. Emission is
// row-major: Emission[f*label.Count+l] is the weight of feature f for label
// l. Transition has label.Count+1 rows (the last is the start row) of
// label.Count columns.
type Params struct {
	Name       string
	Version    string
	Schema     int
	Features   []string
	Emission   []float64
	Transition []float64
	Forbidden  []bool // same shape as Transition, nil when nothing is forbidden
}

// TransitionLen is the number of transition weights.
const TransitionLen = (label.Count + 1) * label.Count

// WeightCount returns the number of float64 weights in p.
func (p *Params) WeightCount() int {
	return len(p.Transition) + len(p.Emission)
}

// Validate checks the shape of p.
func (p *Params) Validate() error {
	if len(p.Transition) != TransitionLen {
		return fmt.Errorf("transition weights: got %d, want %d", len(p.Transition), TransitionLen)
	}
	if len(p.Emission) != len(p.Features)*label.Count {
		return fmt.Errorf("emission weights: got %d, want %d", len(p.Emission), len(p.Features)*label.Count)
	}
	if p.Forbidden != nil && len(p.Forbidden) != TransitionLen {
		return fmt.Errorf("forbidden transitions: got %d, want %d", len(p.Forbidden), TransitionLen)
	}
	seen := make(map[string]bool, len(p.Features))
	for _, f := range p.Features {
		if seen[f] {
			return fmt.Errorf("duplicate feature %q", f)
		}
		seen[f] = true
	}
	return nil
}

// Model is an immutable set of learned weights.
type Model struct {
	name       string
	version    string
	schema     int
	index      map[string]int
	features   []string
	emission   []float64
	transition []float64
	forbidden  []bool
}

// New builds a Model from p. The slices are copied, so p may be reused.
func New(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid model parameters: %w", err)
	}

	m := &Model{
		name:       p.Name,
		version:    p.Version,
		schema:     p.Schema,
		index:      make(map[string]int, len(p.Features)),
		features:   append([]string(nil), p.Features...),
		emission:   append([]float64(nil), p.Emission...),
		transition: append([]float64(nil), p.Transition...),
	}
	if p.Forbidden != nil {
		m.forbidden = append([]bool(nil), p.Forbidden...)
	}
	for i, f := range m.features {
		m.index[f] = i
	}
	return m, nil
}

// Params returns a deep copy of the model's parameters.
func (m *Model) Params() Params {
	p := Params{
		Name:       m.name,
		Version:    m.version,
		Schema:     m.schema,
		Features:   append([]string(nil), m.features...),
		Emission:   append([]float64(nil), m.emission...),
		Transition: append([]float64(nil), m.transition...),
	}
	if m.forbidden != nil {
		p.Forbidden = append([]bool(nil), m.forbidden...)
	}
	return p
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Version returns the model version string.
func (m *Model) Version() string { return m.version }

// Schema returns the feature schema version the model was trained against.
func (m *Model) Schema() int { return m.schema }

// FeatureCount returns the number of features with weights.
func (m *Model) FeatureCount() int { return len(m.features) }

// WeightCount returns the number of float64 weights.
func (m *Model) WeightCount() int { return len(m.transition) + len(m.emission) }

// Weight returns the emission weight of a feature for a label (0 if unknown).
func (m *Model) Weight(feat string, l label.Label) float64 {
	f, ok := m.index[feat]
	if !ok {
		return 0
	}
	return m.emission[f*label.Count+int(l)]
}

// TransitionWeight returns the weight of moving from one label to another.
func (m *Model) TransitionWeight(from, to label.Label) float64 {
	return m.transition[int(from)*label.Count+int(to)]
}

// StartWeight returns the weight of starting a sequence with l.
func (m *Model) StartWeight(l label.Label) float64 {
	return m.transition[startRow*label.Count+int(l)]
}

// emissions scores every label for every vector.
func (m *Model) emissions(seq feature.Sequence) [][label.Count]float64 {
	out := make([][label.Count]float64, seq.Len())
	for i, v := range seq.Vectors {
		for name, val := range v {
			f, ok := m.index[name]
			if !ok {
				continue
			}
			row := m.emission[f*label.Count : (f+1)*label.Count]
			for l := 0; l < label.Count; l++ {
				out[i][l] += val * row[l]
			}
		}
	}
	return out
}

func (m *Model) isForbidden(row, to int) bool {
	return m.forbidden != nil && m.forbidden[row*label.Count+to]
}
