package crf

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
	"github.com/matsen/citeparse/internal/token"
)

func sequence(t *testing.T, s string) ([]token.Token, feature.Sequence) {
	t.Helper()
	toks, err := token.Tokenize(s)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", s, err)
	}
	return toks, feature.Extract(toks)
}

type seg struct {
	l    label.Label
	text string
}

// instance joins the segments with spaces and labels every token of each
// segment with its label.
func instance(t *testing.T, segs ...seg) Instance {
	t.Helper()
	var texts []string
	var labels []label.Label
	for _, s := range segs {
		toks, err := token.Tokenize(s.text)
		if err != nil {
			t.Fatalf("Tokenize(%q): %v", s.text, err)
		}
		for range toks {
			labels = append(labels, s.l)
		}
		texts = append(texts, s.text)
	}
	toks, seq := sequence(t, strings.Join(texts, " "))
	if len(toks) != len(labels) {
		t.Fatalf("segments tokenize to %d tokens, joined text to %d", len(labels), len(toks))
	}
	return Instance{Seq: seq, Labels: labels}
}

func TestDefaultModel_AuthorDateReference(t *testing.T) {
	_, seq := sequence(t, "Smith, J. (2020). Title of Work. Journal Name.")
	got, conf, err := DefaultModel().Decode(seq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	A, Y, T, J := label.Author, label.Year, label.Title, label.Journal
	want := []label.Label{A, A, A, A, A, Y, Y, Y, T, T, T, T, J, J, J}
	if len(got) != len(want) {
		t.Fatalf("got %d labels, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %s, want %s", i, got[i], want[i])
		}
	}
	for i, c := range conf {
		if c <= 0 || c > 1 {
			t.Errorf("token %d: confidence %v outside (0, 1]", i, c)
		}
	}
}

func TestDecode_EveryTokenLabelled(t *testing.T) {
	inputs := []string{
		"Smith, J. (2020). Title of Work. Journal Name.",
		"Doe, A., & Roe, B. 1999. On things. Nature, 12(3), 45-67.",
		"van der Berg, P. Press release. Oxford University Press, 2011.",
		"https://doi.org/10.1000/xyz123",
		"2020",
		"张三. 论文标题. 期刊, 2019.",
	}
	m := DefaultModel()
	for _, in := range inputs {
		toks, seq := sequence(t, in)
		labels, conf, err := m.Decode(seq)
		if err != nil {
			t.Errorf("Decode(%q): %v", in, err)
			continue
		}
		if len(labels) != len(toks) || len(conf) != len(toks) {
			t.Errorf("Decode(%q): %d labels, %d confidences for %d tokens", in, len(labels), len(conf), len(toks))
			continue
		}
		for i, l := range labels {
			if !l.Valid() {
				t.Errorf("Decode(%q) token %d: invalid label %d", in, i, l)
			}
			if math.IsNaN(conf[i]) || conf[i] < 0 || conf[i] > 1 {
				t.Errorf("Decode(%q) token %d: confidence %v", in, i, conf[i])
			}
		}
	}
}

func TestDecode_Empty(t *testing.T) {
	labels, conf, err := DefaultModel().Decode(feature.Sequence{Schema: feature.SchemaVersion})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(labels) != 0 || len(conf) != 0 {
		t.Errorf("got %d labels, %d confidences; want none", len(labels), len(conf))
	}
}

func TestDecode_SchemaMismatch(t *testing.T) {
	_, seq := sequence(t, "Smith 2020")
	seq.Schema = feature.SchemaVersion + 1
	_, _, err := DefaultModel().Decode(seq)
	if !errors.Is(err, ErrModelMismatch) {
		t.Errorf("got %v, want ErrModelMismatch", err)
	}
}

func TestDecode_NoAdmissiblePath(t *testing.T) {
	p := DefaultModel().Params()
	p.Forbidden = make([]bool, TransitionLen)
	for i := range p.Forbidden {
		p.Forbidden[i] = true
	}
	m, err := New(p)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, seq := sequence(t, "Smith 2020")
	if _, _, err := m.Decode(seq); !errors.Is(err, ErrDecodeFailure) {
		t.Errorf("got %v, want ErrDecodeFailure", err)
	}
}

func TestDecode_YearOnlyOnYearTokens(t *testing.T) {
	emission := make([]float64, label.Count)
	emission[label.Year] = 100
	m, err := New(Params{
		Name:       "greedy-year",
		Schema:     feature.SchemaVersion,
		Features:   []string{feature.Key(feature.KindBias, "")},
		Emission:   emission,
		Transition: make([]float64, TransitionLen),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	toks, seq := sequence(t, "Smith, J. Title 20 1999")
	labels, _, err := m.Decode(seq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, tok := range toks {
		isYearTok := feature.IsYear(tok.Text) || tok.Class.IsPunctuation()
		if labels[i] == label.Year && !isYearTok {
			t.Errorf("token %q labelled year", tok.Text)
		}
		if isYearTok && labels[i] != label.Year {
			t.Errorf("token %q: got %s, want year", tok.Text, labels[i])
		}
	}
}

func TestDecode_StopWordsNeverPages(t *testing.T) {
	emission := make([]float64, label.Count)
	emission[label.Pages] = 100
	m, err := New(Params{
		Schema:     feature.SchemaVersion,
		Features:   []string{feature.Key(feature.KindBias, "")},
		Emission:   emission,
		Transition: make([]float64, TransitionLen),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	toks, seq := sequence(t, "the 12 of")
	labels, _, err := m.Decode(seq)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	for i, tok := range toks {
		if tok.Text != "12" && labels[i] == label.Pages {
			t.Errorf("stop word %q labelled pages", tok.Text)
		}
	}
	if labels[1] != label.Pages {
		t.Errorf("12: got %s, want pages", labels[1])
	}
}

func TestNew_RejectsBadShape(t *testing.T) {
	tests := []struct {
		name string
		p    Params
	}{
		{"short transition", Params{Transition: make([]float64, 3)}},
		{"emission mismatch", Params{Transition: make([]float64, TransitionLen), Features: []string{"bias"}}},
		{"duplicate feature", Params{
			Transition: make([]float64, TransitionLen),
			Features:   []string{"bias", "bias"},
			Emission:   make([]float64, 2*label.Count),
		}},
		{"forbidden mismatch", Params{Transition: make([]float64, TransitionLen), Forbidden: make([]bool, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.p); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestParams_DeepCopy(t *testing.T) {
	m := DefaultModel()
	p := m.Params()
	before := m.Weight(feature.Key(feature.KindYear, ""), label.Year)
	for i := range p.Emission {
		p.Emission[i] = 0
	}
	p.Features[0] = "mutated"

	if got := m.Weight(feature.Key(feature.KindYear, ""), label.Year); got != before {
		t.Errorf("mutating Params changed the model: %v -> %v", before, got)
	}
	if m.Params().Features[0] == "mutated" {
		t.Error("mutating Params changed the feature list")
	}
	if p.WeightCount() != m.WeightCount() {
		t.Errorf("WeightCount = %d, model has %d", p.WeightCount(), m.WeightCount())
	}
}

func trainingSet(t *testing.T) []Instance {
	A, Y, T, J, V, P := label.Author, label.Year, label.Title, label.Journal, label.Volume, label.Pages
	return []Instance{
		instance(t, seg{A, "Doe, A."}, seg{Y, "(1999)."}, seg{T, "Counting sheep."}, seg{J, "Farm Letters,"}, seg{V, "4,"}, seg{P, "1-9."}),
		instance(t, seg{A, "Roe, B."}, seg{Y, "(2004)."}, seg{T, "Sleep and dreams."}, seg{J, "Night Review,"}, seg{V, "11,"}, seg{P, "20-31."}),
		instance(t, seg{A, "Poe, C."}, seg{Y, "(2012)."}, seg{T, "Ravens."}, seg{J, "Bird Quarterly,"}, seg{V, "7,"}, seg{P, "100-120."}),
		instance(t, seg{A, "Moe, D."}, seg{Y, "(1987)."}, seg{T, "On taverns."}, seg{J, "Springfield Journal,"}, seg{V, "2,"}, seg{P, "5-6."}),
	}
}

func TestTrain_FitsTrainingData(t *testing.T) {
	data := trainingSet(t)
	opts := DefaultTrainOptions()
	opts.Epochs = 50

	var epochs int
	var losses []float64
	opts.Progress = func(epoch int, loss float64) {
		epochs = epoch
		losses = append(losses, loss)
	}

	m, err := Train(context.Background(), data, opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if epochs != opts.Epochs {
		t.Errorf("progress reported %d epochs, want %d", epochs, opts.Epochs)
	}
	if losses[len(losses)-1] >= losses[0] {
		t.Errorf("loss did not decrease: first %v, last %v", losses[0], losses[len(losses)-1])
	}
	if acc := m.Accuracy(data); acc < 0.9 {
		t.Errorf("training accuracy = %.2f, want >= 0.9", acc)
	}
	if m.Name() != opts.Name || m.Version() != opts.Version {
		t.Errorf("got name %q version %q", m.Name(), m.Version())
	}
	if m.Schema() != feature.SchemaVersion {
		t.Errorf("Schema = %d", m.Schema())
	}
}

func TestTrain_FromDefaultKeepsPriorFeatures(t *testing.T) {
	opts := DefaultTrainOptions()
	opts.Epochs = 2
	opts.Init = DefaultModel()

	m, err := Train(context.Background(), trainingSet(t), opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if m.FeatureCount() <= opts.Init.FeatureCount() {
		t.Errorf("FeatureCount = %d, prior has %d", m.FeatureCount(), opts.Init.FeatureCount())
	}
	if m.Weight(feature.Key(feature.KindYear, ""), label.Year) <= 0 {
		t.Error("prior year weight lost during training")
	}
}

func TestTrain_ForbidUnseen(t *testing.T) {
	opts := DefaultTrainOptions()
	opts.Epochs = 1
	opts.ForbidUnseen = true

	m, err := Train(context.Background(), trainingSet(t), opts)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}
	if !m.isForbidden(startRow, int(label.Year)) {
		t.Error("start -> year never occurs and should be forbidden")
	}
	if m.isForbidden(startRow, int(label.Author)) {
		t.Error("start -> author occurs and should be allowed")
	}
	if m.isForbidden(int(label.Author), int(label.Year)) {
		t.Error("author -> year occurs and should be allowed")
	}
}

func TestTrain_Errors(t *testing.T) {
	if _, err := Train(context.Background(), nil, DefaultTrainOptions()); !errors.Is(err, ErrNoTrainingData) {
		t.Errorf("empty data: got %v, want ErrNoTrainingData", err)
	}

	data := trainingSet(t)
	data[1].Seq.Schema = feature.SchemaVersion + 1
	if _, err := Train(context.Background(), data, DefaultTrainOptions()); !errors.Is(err, ErrModelMismatch) {
		t.Errorf("mixed schemas: got %v, want ErrModelMismatch", err)
	}

	data = trainingSet(t)
	data[0].Labels = data[0].Labels[1:]
	if _, err := Train(context.Background(), data, DefaultTrainOptions()); err == nil {
		t.Error("label count mismatch: expected error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Train(ctx, trainingSet(t), DefaultTrainOptions()); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled context: got %v, want context.Canceled", err)
	}
}
