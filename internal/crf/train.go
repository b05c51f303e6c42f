package crf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
)

// ErrNoTrainingData is returned by Train when given no instances.
var ErrNoTrainingData = errors.New("no training data")

// Instance is one labelled token sequence.
type Instance struct {
	Seq    feature.Sequence
	Labels []label.Label
}

// TrainOptions configures Train.
type TrainOptions struct {
	Name         string
	Version      string
	Epochs       int
	LearningRate float64
	L2           float64
	Seed         int64
	// ForbidUnseen marks transitions never observed in the gold labels as
	// forbidden in the resulting model.
	ForbidUnseen bool
	// Init seeds the weights, typically with DefaultModel().
	Init *Model
	// Progress, if set, is called after every epoch.
	Progress func(epoch int, loss float64)
}

// DefaultTrainOptions returns the options used by the train command.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Name:         "custom",
		Version:      "1",
		Epochs:       30,
		LearningRate: 0.1,
		L2:           1e-4,
		Seed:         1,
	}
}

// Train fits a model to data by stochastic gradient descent on the
// conditional log-likelihood with L2 regularisation.
func Train(ctx context.Context, data []Instance, opts TrainOptions) (*Model, error) {
	if len(data) == 0 {
		return nil, ErrNoTrainingData
	}
	schema := data[0].Seq.Schema
	for i, inst := range data {
		if inst.Seq.Schema != schema {
			return nil, fmt.Errorf("%w: instance %d uses schema %d, instance 0 uses %d",
				ErrModelMismatch, i, inst.Seq.Schema, schema)
		}
		if len(inst.Labels) != inst.Seq.Len() {
			return nil, fmt.Errorf("instance %d: %d labels for %d tokens", i, len(inst.Labels), inst.Seq.Len())
		}
		for j, l := range inst.Labels {
			if !l.Valid() {
				return nil, fmt.Errorf("instance %d token %d: invalid label %d", i, j, l)
			}
		}
	}
	if opts.Init != nil && opts.Init.schema != schema {
		return nil, fmt.Errorf("%w: initial model expects schema %d, data uses %d",
			ErrModelMismatch, opts.Init.schema, schema)
	}
	if opts.Epochs <= 0 {
		opts.Epochs = 1
	}

	w := newWorkspace(data, opts.Init, schema)
	rng := rand.New(rand.NewSource(opts.Seed))
	var gradT [TransitionLen]float64

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		lr := opts.LearningRate / (1 + 0.1*float64(epoch))
		var loss float64

		for _, idx := range rng.Perm(len(data)) {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("training interrupted: %w", err)
			}
			inst := data[idx]
			if inst.Seq.Len() == 0 {
				continue
			}

			em := w.view.emissions(inst.Seq)
			alpha, beta, logZ := w.view.forwardBackward(em)
			loss += logZ - w.view.goldScore(em, inst.Labels)

			for k := range gradT {
				gradT[k] = 0
			}

			for i, v := range inst.Seq.Vectors {
				gold := int(inst.Labels[i])
				var marg [label.Count]float64
				for l := 0; l < label.Count; l++ {
					marg[l] = math.Exp(alpha[i][l] + beta[i][l] - logZ)
				}

				for name, val := range v {
					f := w.view.index[name]
					row := w.view.emission[f*label.Count : (f+1)*label.Count]
					row[gold] += lr * val
					for l := 0; l < label.Count; l++ {
						row[l] -= lr * val * marg[l]
					}
				}

				if i == 0 {
					gradT[startRow*label.Count+gold]++
					for l := 0; l < label.Count; l++ {
						gradT[startRow*label.Count+l] -= marg[l]
					}
					continue
				}
				prev := int(inst.Labels[i-1])
				gradT[prev*label.Count+gold]++
				for p := 0; p < label.Count; p++ {
					for l := 0; l < label.Count; l++ {
						pair := alpha[i-1][p] + w.view.trans(p, l) + em[i][l] + beta[i][l] - logZ
						gradT[p*label.Count+l] -= math.Exp(pair)
					}
				}
			}

			for k, g := range gradT {
				w.view.transition[k] += lr * g
			}
		}

		decay := math.Max(0, 1-lr*opts.L2*float64(len(data)))
		for k := range w.view.emission {
			w.view.emission[k] *= decay
		}
		for k := range w.view.transition {
			w.view.transition[k] *= decay
		}

		if opts.Progress != nil {
			opts.Progress(epoch+1, loss)
		}
	}

	p := Params{
		Name:       opts.Name,
		Version:    opts.Version,
		Schema:     schema,
		Features:   w.view.features,
		Emission:   w.view.emission,
		Transition: w.view.transition,
	}
	if opts.ForbidUnseen {
		p.Forbidden = unseenTransitions(data)
	}
	return New(p)
}

// workspace holds mutable weights during training behind a Model view so
// the inference code paths can be reused.
type workspace struct {
	view *Model
}

func newWorkspace(data []Instance, init *Model, schema int) *workspace {
	m := &Model{schema: schema, index: make(map[string]int)}

	if init != nil {
		m.features = append(m.features, init.features...)
		m.emission = append(m.emission, init.emission...)
		m.transition = append([]float64(nil), init.transition...)
	} else {
		m.transition = make([]float64, TransitionLen)
	}
	for i, f := range m.features {
		m.index[f] = i
	}

	var fresh []string
	seen := make(map[string]bool)
	for _, inst := range data {
		for _, v := range inst.Seq.Vectors {
			for name := range v {
				if _, ok := m.index[name]; ok || seen[name] {
					continue
				}
				seen[name] = true
				fresh = append(fresh, name)
			}
		}
	}
	sort.Strings(fresh)
	for _, f := range fresh {
		m.index[f] = len(m.features)
		m.features = append(m.features, f)
		m.emission = append(m.emission, make([]float64, label.Count)...)
	}

	return &workspace{view: m}
}

// goldScore is the unnormalised log score of the gold label sequence.
func (m *Model) goldScore(em [][label.Count]float64, gold []label.Label) float64 {
	s := m.trans(startRow, int(gold[0])) + em[0][gold[0]]
	for i := 1; i < len(gold); i++ {
		s += m.trans(int(gold[i-1]), int(gold[i])) + em[i][gold[i]]
	}
	return s
}

func unseenTransitions(data []Instance) []bool {
	forbidden := make([]bool, TransitionLen)
	for k := range forbidden {
		forbidden[k] = true
	}
	for _, inst := range data {
		for i, l := range inst.Labels {
			row := startRow
			if i > 0 {
				row = int(inst.Labels[i-1])
			}
			forbidden[row*label.Count+int(l)] = false
		}
	}
	return forbidden
}

// Accuracy decodes every instance and returns the fraction of correctly
// labelled tokens. Instances that fail to decode count as fully wrong.
func (m *Model) Accuracy(data []Instance) float64 {
	var correct, total int
	for _, inst := range data {
		total += len(inst.Labels)
		got, _, err := m.Decode(inst.Seq)
		if err != nil {
			continue
		}
		for i, l := range got {
			if l == inst.Labels[i] {
				correct++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
