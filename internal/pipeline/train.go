package pipeline

import (
	"fmt"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
	"github.com/matsen/citeparse/internal/storage"
	"github.com/matsen/citeparse/internal/token"
)

// BuildInstance tokenizes a labelled example the way ParseLine tokenizes
// input and gives every token the label of the segment it falls in.
func BuildInstance(ex storage.Example) (crf.Instance, error) {
	type span struct {
		start, end int
		l          label.Label
	}
	spans := make([]span, 0, len(ex.Segments))
	pos := 0
	for i, seg := range ex.Segments {
		l, err := label.Parse(seg.Label)
		if err != nil {
			return crf.Instance{}, fmt.Errorf("segment %d: %w", i, err)
		}
		if i > 0 {
			pos++ // joining space
		}
		spans = append(spans, span{start: pos, end: pos + len(seg.Text), l: l})
		pos += len(seg.Text)
	}

	toks, err := token.Tokenize(ex.Text())
	if err != nil {
		return crf.Instance{}, err
	}
	labels := make([]label.Label, len(toks))
	j := 0
	for i, t := range toks {
		for j < len(spans)-1 && t.Start >= spans[j].end {
			j++
		}
		if t.End > spans[j].end {
			return crf.Instance{}, fmt.Errorf("token %q crosses a segment boundary", t.Text)
		}
		labels[i] = spans[j].l
	}
	return crf.Instance{Seq: feature.Extract(toks), Labels: labels}, nil
}

// BuildInstances converts examples into training instances.
func BuildInstances(exs []storage.Example) ([]crf.Instance, error) {
	out := make([]crf.Instance, 0, len(exs))
	for i, ex := range exs {
		inst, err := BuildInstance(ex)
		if err != nil {
			return nil, fmt.Errorf("example %d: %w", i+1, err)
		}
		out = append(out, inst)
	}
	return out, nil
}
