// Package pipeline runs citation strings through tokenizing, labelling and
// assembly, one request at a time or as a concurrent batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/matsen/citeparse/internal/assemble"
	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/normalize"
	"github.com/matsen/citeparse/internal/reference"
	"github.com/matsen/citeparse/internal/token"
)

// Result is the outcome of parsing one citation string. Exactly one of
// Parsed and Error is set.
type Result struct {
	Index     int                  `json:"index" yaml:"index"`
	Text      string               `json:"text" yaml:"text"`
	Parsed    *reference.Parsed    `json:"parsed,omitempty" yaml:"parsed,omitempty"`
	Reference *reference.Reference `json:"reference,omitempty" yaml:"reference,omitempty"`
	Error     string               `json:"error,omitempty" yaml:"error,omitempty"`

	// Err is the underlying error, for errors.Is checks.
	Err error `json:"-" yaml:"-"`
}

// OK reports whether the string was parsed.
func (r Result) OK() bool {
	return r.Err == nil && r.Parsed != nil
}

// Parser labels citation strings with the models held by a Store.
type Parser struct {
	store   *modelstore.Store
	workers int
}

// NewParser creates a parser reading models from store. workers bounds
// ParseAll's concurrency; zero or less means one per CPU.
func NewParser(store *modelstore.Store, workers int) *Parser {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Parser{store: store, workers: workers}
}

// Workers returns the batch concurrency.
func (p *Parser) Workers() int {
	return p.workers
}

// Store returns the parser's model store.
func (p *Parser) Store() *modelstore.Store {
	return p.store
}

// modelFor picks the cjk slot for text with Han characters when that slot
// is loaded, the default slot otherwise.
func (p *Parser) modelFor(text string) *crf.Model {
	if normalize.ContainsHan(text) {
		if m, ok := p.store.Lookup(modelstore.SlotCJK); ok {
			return m
		}
	}
	return p.store.Current()
}

// ParseLine parses a single citation string. The model is read once, so a
// concurrent reload never mixes two models within one request.
func (p *Parser) ParseLine(text string) (reference.Parsed, error) {
	toks, err := token.Tokenize(text)
	if err != nil {
		return reference.Parsed{}, err
	}
	m := p.modelFor(text)
	labels, conf, err := m.Decode(feature.Extract(toks))
	if err != nil {
		return reference.Parsed{}, fmt.Errorf("decoding with model %s: %w", m.Name(), err)
	}
	parsed := assemble.Assemble(text, toks, labels, conf)
	parsed.Model = m.Name() + "@" + m.Version()
	return parsed, nil
}

// Parse parses text and normalizes the result. Failures are reported in the
// Result rather than returned.
func (p *Parser) Parse(index int, text string) Result {
	res := Result{Index: index, Text: text}
	parsed, err := p.ParseLine(text)
	if err != nil {
		res.Err = err
		res.Error = err.Error()
		logger.Debug("parse failed", "index", index, "error", err)
		return res
	}
	ref := normalize.Refine(parsed)
	res.Parsed = &parsed
	res.Reference = &ref
	return res
}

// ParseAll parses lines with at most Workers goroutines and returns results
// in input order. Per-line failures are carried in the results; the returned
// error is only set when ctx ends before every line was parsed.
func (p *Parser) ParseAll(ctx context.Context, lines []string) ([]Result, error) {
	results := make([]Result, len(lines))
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.workers)

	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return results, err
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return results, ctx.Err()
		case sem <- struct{}{}: // acquire semaphore
		}
		wg.Add(1)
		go func(idx int, text string) {
			defer wg.Done()
			defer func() { <-sem }() // release semaphore
			results[idx] = p.Parse(idx+1, text)
		}(i, line)
	}

	wg.Wait()
	return results, nil
}

// Summary counts batch outcomes.
type Summary struct {
	Total         int `json:"total"`
	Parsed        int `json:"parsed"`
	InvalidInput  int `json:"invalid_input"`
	DecodeFailure int `json:"decode_failure"`
	OtherFailure  int `json:"other_failure"`
}

// Summarize counts results by outcome.
func Summarize(results []Result) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.OK():
			s.Parsed++
		case errors.Is(r.Err, token.ErrInvalidInput):
			s.InvalidInput++
		case errors.Is(r.Err, crf.ErrDecodeFailure):
			s.DecodeFailure++
		default:
			s.OtherFailure++
		}
	}
	return s
}

// Failed is the number of results that were not parsed.
func (s Summary) Failed() int {
	return s.Total - s.Parsed
}
