package crf

import (
	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
)

// DefaultName and DefaultVersion identify the built-in model.
const (
	DefaultName    = "default"
	DefaultVersion = "prior-1"
)

type prior struct {
	feat   string
	label  label.Label
	weight float64
}

func key(k feature.Kind, v string) string { return feature.Key(k, v) }

func win(k feature.Kind, off int, v string) string { return feature.WindowKey(k, off, v) }

func dict(d feature.Dictionary) string { return feature.Key(feature.KindDict, d.String()) }

// priorEmissions encode the usual shape of author-date references: names
// first, a year, a title sentence, then the container and its numbering.
var priorEmissions = []prior{
	{key(feature.KindBias, ""), label.Other, -0.5},

	{key(feature.KindSegment, "0"), label.Author, 2},
	{key(feature.KindSegment, "1"), label.Title, 2},
	{key(feature.KindSegment, "2"), label.Journal, 2},
	{key(feature.KindSegment, "3"), label.Publisher, 1.5},
	{key(feature.KindSegment, "3"), label.Journal, 0.5},

	{key(feature.KindAfterYear, ""), label.Author, -3},
	{key(feature.KindAfterYear, ""), label.Title, 1},
	{key(feature.KindAfterYear, ""), label.Journal, 1},
	{key(feature.KindAfterYear, ""), label.Pages, 0.5},
	{key(feature.KindAfterYear, ""), label.Volume, 0.5},

	{key(feature.KindYear, ""), label.Year, 5},
	{key(feature.KindInParen, ""), label.Year, 2},
	{key(feature.KindInParen, ""), label.Volume, 0.5},
	{win(feature.KindWindowWord, -1, ")"), label.Year, 1.5},

	{key(feature.KindPosition, "first"), label.Author, 1},
	{key(feature.KindInitial, ""), label.Author, 1.5},
	{dict(feature.DictParticle), label.Author, 1},
	{key(feature.KindPunct, "&"), label.Author, 1.5},

	{dict(feature.DictStop), label.Title, 0.5},
	{dict(feature.DictJournal), label.Journal, 2},
	{dict(feature.DictPublisher), label.Publisher, 3},
	{dict(feature.DictPages), label.Pages, 3},
	{dict(feature.DictVolume), label.Volume, 3},
	{dict(feature.DictEditor), label.Other, 1},
	{dict(feature.DictMonth), label.Other, 1},
	{win(feature.KindWindowWord, -1, "in"), label.Journal, 1},

	{key(feature.KindNumber, ""), label.Pages, 1},
	{key(feature.KindNumber, ""), label.Volume, 1},
	{win(feature.KindWindowClass, 1, "open"), label.Volume, 1},
	{win(feature.KindWindowWord, -1, "pp"), label.Pages, 2},
	{win(feature.KindWindowWord, -1, "p"), label.Pages, 2},
	{win(feature.KindWindowWord, -1, "pages"), label.Pages, 2},
	{win(feature.KindWindowWord, -1, "vol"), label.Volume, 2},
	{win(feature.KindWindowWord, -1, "volume"), label.Volume, 2},
	{win(feature.KindWindowWord, -1, "no"), label.Volume, 2},
	{win(feature.KindWindowWord, -1, "-"), label.Pages, 1.5},
	{win(feature.KindWindowWord, -1, "–"), label.Pages, 1.5},
	{win(feature.KindWindowWord, 1, "-"), label.Pages, 1.5},
	{win(feature.KindWindowWord, 1, "–"), label.Pages, 1.5},

	{key(feature.KindClass, "url"), label.Other, 5},
	{key(feature.KindClass, "doi"), label.Other, 5},
}

type priorTransition struct {
	from, to label.Label
	weight   float64
}

var priorTransitions = []priorTransition{
	{label.Year, label.Title, 1},
	{label.Year, label.Author, -2},
	{label.Title, label.Author, -1},
	{label.Journal, label.Title, -1},
	{label.Journal, label.Author, -1},
	{label.Journal, label.Volume, 0.5},
	{label.Journal, label.Pages, 0.3},
	{label.Volume, label.Pages, 0.5},
}

var priorStart = map[label.Label]float64{
	label.Author: 1,
	label.Title:  0.5,
}

// selfTransition rewards staying in the same label so fields form runs.
const selfTransition = 1.0

// DefaultModel returns the built-in prior model. It needs no training data
// and is what the CLI uses when no model file is configured.
func DefaultModel() *Model {
	p := Params{
		Name:       DefaultName,
		Version:    DefaultVersion,
		Schema:     feature.SchemaVersion,
		Transition: make([]float64, TransitionLen),
	}

	index := make(map[string]int)
	for _, e := range priorEmissions {
		f, ok := index[e.feat]
		if !ok {
			f = len(p.Features)
			index[e.feat] = f
			p.Features = append(p.Features, e.feat)
			p.Emission = append(p.Emission, make([]float64, label.Count)...)
		}
		p.Emission[f*label.Count+int(e.label)] += e.weight
	}

	for l := 0; l < label.Count; l++ {
		p.Transition[l*label.Count+l] = selfTransition
	}
	for _, t := range priorTransitions {
		p.Transition[int(t.from)*label.Count+int(t.to)] = t.weight
	}
	for l, w := range priorStart {
		p.Transition[startRow*label.Count+int(l)] = w
	}

	m, err := New(p)
	if err != nil {
		panic("crf: invalid default model: " + err.Error())
	}
	return m
}
