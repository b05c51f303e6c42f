package crf

import (
	"fmt"
	"math"

	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
)

// Constraint is a hard structural rule applied during decoding.
type Constraint uint8

const (
	// YearOnYearTokens allows the year label only on four-digit numbers in
	// the plausible year range and on punctuation delimiters around them.
	YearOnYearTokens Constraint = iota
	// NoNumericStopWords keeps pages and volume off lowercase stop words.
	NoNumericStopWords
)

// Constraints is the set applied by Decode.
var Constraints = []Constraint{YearOnYearTokens, NoNumericStopWords}

var (
	featYear  = feature.Key(feature.KindYear, "")
	featStop  = feature.Key(feature.KindDict, feature.DictStop.String())
	featPunct = feature.Key(feature.KindClass, "punct")
	featOpen  = feature.Key(feature.KindClass, "open")
	featClose = feature.Key(feature.KindClass, "close")
	featLower = feature.Key(feature.KindCase, "lower")
)

// Allows reports whether the constraint admits label l for vector v.
func (c Constraint) Allows(v feature.Vector, l label.Label) bool {
	switch c {
	case YearOnYearTokens:
		if l != label.Year {
			return true
		}
		return v.Has(featYear) || v.Has(featPunct) || v.Has(featOpen) || v.Has(featClose)
	case NoNumericStopWords:
		if l != label.Pages && l != label.Volume {
			return true
		}
		return !(v.Has(featStop) && v.Has(featLower))
	}
	return true
}

func (c Constraint) String() string {
	switch c {
	case YearOnYearTokens:
		return "year-on-year-tokens"
	case NoNumericStopWords:
		return "no-numeric-stop-words"
	}
	return fmt.Sprintf("constraint(%d)", uint8(c))
}

// Decode assigns exactly one label to every vector of seq, choosing the
// sequence with the highest score that satisfies the constraints, and
// returns each label's marginal probability as its confidence.
func (m *Model) Decode(seq feature.Sequence) ([]label.Label, []float64, error) {
	if seq.Schema != m.schema {
		return nil, nil, fmt.Errorf("%w: features use schema %d, model %q expects %d",
			ErrModelMismatch, seq.Schema, m.name, m.schema)
	}
	n := seq.Len()
	if n == 0 {
		return []label.Label{}, []float64{}, nil
	}

	em := m.emissions(seq)
	for i, v := range seq.Vectors {
		for l := 0; l < label.Count; l++ {
			for _, c := range Constraints {
				if !c.Allows(v, label.Label(l)) {
					em[i][l] = math.Inf(-1)
					break
				}
			}
		}
	}

	labels, err := m.viterbi(em)
	if err != nil {
		return nil, nil, err
	}

	marg := m.marginals(em)
	conf := make([]float64, n)
	for i, l := range labels {
		conf[i] = marg[i][l]
	}
	return labels, conf, nil
}

// trans returns the transition score, -Inf when forbidden.
func (m *Model) trans(row, to int) float64 {
	if m.isForbidden(row, to) {
		return math.Inf(-1)
	}
	return m.transition[row*label.Count+to]
}

func (m *Model) viterbi(em [][label.Count]float64) ([]label.Label, error) {
	n := len(em)
	score := make([][label.Count]float64, n)
	back := make([][label.Count]int, n)

	for l := 0; l < label.Count; l++ {
		score[0][l] = m.trans(startRow, l) + em[0][l]
	}

	for i := 1; i < n; i++ {
		for l := 0; l < label.Count; l++ {
			best, arg := math.Inf(-1), -1
			for p := 0; p < label.Count; p++ {
				s := score[i-1][p] + m.trans(p, l)
				if s > best {
					best, arg = s, p
				}
			}
			score[i][l] = best + em[i][l]
			back[i][l] = arg
		}
	}

	best, arg := math.Inf(-1), -1
	for l := 0; l < label.Count; l++ {
		if score[n-1][l] > best {
			best, arg = score[n-1][l], l
		}
	}
	if arg < 0 || math.IsInf(best, -1) {
		return nil, fmt.Errorf("%w: no label sequence satisfies the constraints (%d tokens)", ErrDecodeFailure, n)
	}

	labels := make([]label.Label, n)
	for i := n - 1; i >= 0; i-- {
		labels[i] = label.Label(arg)
		arg = back[i][arg]
	}
	return labels, nil
}

// forwardBackward returns log alpha, log beta and log Z.
func (m *Model) forwardBackward(em [][label.Count]float64) (alpha, beta [][label.Count]float64, logZ float64) {
	n := len(em)
	alpha = make([][label.Count]float64, n)
	beta = make([][label.Count]float64, n)
	var buf [label.Count]float64

	for l := 0; l < label.Count; l++ {
		alpha[0][l] = m.trans(startRow, l) + em[0][l]
	}
	for i := 1; i < n; i++ {
		for l := 0; l < label.Count; l++ {
			for p := 0; p < label.Count; p++ {
				buf[p] = alpha[i-1][p] + m.trans(p, l)
			}
			alpha[i][l] = logSumExp(buf[:]) + em[i][l]
		}
	}

	// beta[n-1] is zero.
	for i := n - 2; i >= 0; i-- {
		for p := 0; p < label.Count; p++ {
			for l := 0; l < label.Count; l++ {
				buf[l] = m.trans(p, l) + em[i+1][l] + beta[i+1][l]
			}
			beta[i][p] = logSumExp(buf[:])
		}
	}

	logZ = logSumExp(alpha[n-1][:])
	return alpha, beta, logZ
}

// marginals returns P(label_i = l | sequence).
func (m *Model) marginals(em [][label.Count]float64) [][label.Count]float64 {
	alpha, beta, logZ := m.forwardBackward(em)
	out := make([][label.Count]float64, len(em))
	if math.IsInf(logZ, -1) {
		return out
	}
	for i := range em {
		for l := 0; l < label.Count; l++ {
			out[i][l] = math.Exp(alpha[i][l] + beta[i][l] - logZ)
		}
	}
	return out
}

func logSumExp(xs []float64) float64 {
	mx := math.Inf(-1)
	for _, x := range xs {
		if x > mx {
			mx = x
		}
	}
	if math.IsInf(mx, -1) {
		return mx
	}
	var sum float64
	for _, x := range xs {
		sum += math.Exp(x - mx)
	}
	return mx + math.Log(sum)
}
