// Package verify looks parsed references up in known sources: the local
// title catalog, Crossref, Semantic Scholar when a key is configured, and
// finally the reference's own URL.
package verify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/matsen/citeparse/internal/crossref"
	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/normalize"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/reference"
	"github.com/matsen/citeparse/internal/s2"
	"github.com/matsen/citeparse/internal/storage"
)

// Steps at which a reference can be found, in the order they are tried.
const (
	StepCatalog        = "catalog"
	StepCrossrefDOI    = "crossref-doi"
	StepCrossrefSearch = "crossref-search"
	StepS2             = "s2"
	StepURL            = "url"
	StepURLDead        = "url-dead"
)

// URLTimeout bounds one liveness check.
const URLTimeout = 5 * time.Second

// Catalog matches titles against known ones.
type Catalog interface {
	Match(title string, threshold float64) (storage.CatalogMatch, bool, error)
}

// Finder looks references up remotely.
type Finder interface {
	Find(ctx context.Context, ref reference.Reference, threshold float64) (crossref.Match, bool, error)
}

// PaperFinder looks references up by title and first author.
type PaperFinder interface {
	Find(ctx context.Context, ref reference.Reference, threshold float64) (*s2.Paper, bool, error)
}

// Outcome is the verification result for one parsed reference.
type Outcome struct {
	Index  int                  `json:"index"`
	Text   string               `json:"text"`
	Title  string               `json:"title,omitempty"`
	Step   string               `json:"step,omitempty"`
	Source string               `json:"source,omitempty"`
	Score  float64              `json:"score,omitempty"`
	Work   *crossref.Work       `json:"work,omitempty" yaml:"-"`
	Paper  *s2.Paper            `json:"paper,omitempty" yaml:"-"`
	Ref    *reference.Reference `json:"reference,omitempty" yaml:"reference,omitempty"`
	Error  string               `json:"error,omitempty" yaml:"error,omitempty"`
}

// Found reports whether the reference was found in a bibliographic source.
// A live URL alone does not count.
func (o Outcome) Found() bool {
	switch o.Step {
	case StepCatalog, StepCrossrefDOI, StepCrossrefSearch, StepS2:
		return true
	}
	return false
}

// Verifier runs the lookup chain. Any of Catalog, Finder, Papers and HTTP
// may be nil to skip that step.
type Verifier struct {
	Catalog   Catalog
	Finder    Finder
	Papers    PaperFinder
	HTTP      *http.Client
	Threshold float64
	Workers   int
}

// Verify tries each source in turn and stops at the first that accepts ref.
// The catalog is only consulted for titles with Han characters. Lookup
// errors other than a cancelled context are recorded in the outcome and the
// chain moves on.
func (v *Verifier) Verify(ctx context.Context, index int, ref reference.Reference) (Outcome, error) {
	out := Outcome{Index: index, Text: ref.Raw, Title: ref.Title, Ref: &ref}
	threshold := v.Threshold
	if threshold <= 0 {
		threshold = normalize.DefaultMatchThreshold
	}

	if v.Catalog != nil && ref.Title != "" && normalize.ContainsHan(ref.Title) {
		m, ok, err := v.Catalog.Match(ref.Title, threshold)
		if err != nil {
			out.Error = fmt.Sprintf("catalog: %v", err)
		} else if ok {
			out.Step, out.Source, out.Score = StepCatalog, m.Title, m.Score
			return out, nil
		}
	}

	if v.Finder != nil {
		m, ok, err := v.Finder.Find(ctx, ref, threshold)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Error = joinError(out.Error, fmt.Sprintf("crossref: %v", err))
		case ok:
			out.Step, out.Source, out.Work = StepCrossrefDOI, m.URL, m.Work
			if m.Via == crossref.ViaSearch {
				out.Step = StepCrossrefSearch
			}
			out.Error = ""
			return out, nil
		}
	}

	if v.Papers != nil {
		p, ok, err := v.Papers.Find(ctx, ref, threshold)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return out, ctx.Err()
			}
			out.Error = joinError(out.Error, fmt.Sprintf("s2: %v", err))
		case ok:
			out.Step, out.Source, out.Paper = StepS2, p.Link(), p
			out.Error = ""
			return out, nil
		}
	}

	if v.HTTP != nil && ref.URL != "" {
		out.Source = ref.URL
		if URLAlive(ctx, v.HTTP, ref.URL) {
			out.Step = StepURL
		} else {
			out.Step = StepURLDead
		}
	}
	return out, nil
}

func joinError(prev, msg string) string {
	if prev == "" {
		return msg
	}
	return prev + "; " + msg
}

// VerifyAll verifies every successfully parsed result on a bounded pool.
// Failed parses come back with their parse error. Outcomes keep the order
// of results.
func (v *Verifier) VerifyAll(ctx context.Context, results []pipeline.Result) ([]Outcome, error) {
	out := make([]Outcome, len(results))
	workers := v.Workers
	if workers <= 0 {
		workers = 4
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	var firstErr error
	var errOnce sync.Once

	for i, r := range results {
		if !r.OK() {
			out[i] = Outcome{Index: r.Index, Text: r.Text, Error: r.Error}
			continue
		}
		if err := ctx.Err(); err != nil {
			errOnce.Do(func() { firstErr = err })
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int, r pipeline.Result) {
			defer wg.Done()
			defer func() { <-sem }()

			o, err := v.Verify(ctx, r.Index, *r.Reference)
			if err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			out[i] = o
		}(i, r)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}

// URLAlive reports whether url looks like a document link and answers a
// HEAD request with a 2xx or 3xx status. Bare site roots such as
// https://example.org are not documents and are rejected.
func URLAlive(ctx context.Context, client *http.Client, url string) bool {
	if !strings.HasPrefix(url, "http") || strings.Count(url, "/") < 3 {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, URLTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Debug("url check failed", "url", url, "error", err)
		return false
	}
	resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 400
}

// Tally counts outcomes by step. Outcomes with no step are counted under "".
func Tally(outcomes []Outcome) map[string]int {
	counts := make(map[string]int)
	for _, o := range outcomes {
		counts[o.Step]++
	}
	return counts
}
