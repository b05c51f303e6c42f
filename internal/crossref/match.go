package crossref

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/normalize"
	"github.com/matsen/citeparse/internal/reference"
)

// Ways a reference can be found.
const (
	ViaDOI    = "doi"
	ViaSearch = "search"
)

// Query sizes: titles of this many runes or fewer are too short to search
// on and the raw text is used instead, truncated to maxQueryRunes.
const (
	minTitleQuery = 8
	maxQueryRunes = 120
)

// Match is a Crossref work accepted as the record of a reference.
type Match struct {
	Via  string `json:"via"`
	URL  string `json:"url"`
	Work *Work  `json:"work"`
}

// Find looks ref up in Crossref: first by DOI when it has one and the
// registered title agrees, then by bibliographic search narrowed to the
// first author. A hit must have a matching title and include the first
// author's family name. It reports false when nothing was accepted.
func (c *Client) Find(ctx context.Context, ref reference.Reference, threshold float64) (Match, bool, error) {
	if threshold <= 0 {
		threshold = normalize.DefaultMatchThreshold
	}

	if ref.DOI != "" {
		w, err := c.ByDOI(ctx, ref.DOI)
		switch {
		case err == nil:
			if ref.Title == "" || normalize.TitlesMatch(ref.Title, w.FirstTitle(), threshold) {
				return Match{Via: ViaDOI, URL: w.Link(), Work: w}, true, nil
			}
			logger.Debug("doi title mismatch", "doi", ref.DOI, "title", ref.Title, "crossref", w.FirstTitle())
		case IsNotFound(err):
		default:
			return Match{}, false, err
		}
	}

	query := SearchQuery(ref)
	if query == "" {
		return Match{}, false, nil
	}
	var family string
	if a, ok := ref.FirstAuthor(); ok {
		family = a.Last
	}

	works, err := c.Search(ctx, query, family, DefaultRows)
	if err != nil {
		return Match{}, false, err
	}
	for i := range works {
		w := &works[i]
		if !normalize.TitlesMatch(query, w.FirstTitle(), threshold) {
			continue
		}
		// Same title, different people: keep looking.
		if !AuthorMatches(family, w.Author) {
			continue
		}
		return Match{Via: ViaSearch, URL: w.Link(), Work: w}, true, nil
	}
	return Match{}, false, nil
}

// SearchQuery is the text searched for a reference: its title when long
// enough, else the start of the raw citation.
func SearchQuery(ref reference.Reference) string {
	if utf8.RuneCountInString(ref.Title) > minTitleQuery {
		return ref.Title
	}
	raw := strings.TrimSpace(ref.Raw)
	if utf8.RuneCountInString(raw) > maxQueryRunes {
		raw = string([]rune(raw)[:maxQueryRunes])
	}
	return raw
}

// AuthorMatches reports whether family appears in any of the authors'
// names. An empty or one-letter family name is not checked.
func AuthorMatches(family string, authors []Author) bool {
	q := strings.ToLower(strings.TrimSpace(family))
	if f := strings.FieldsFunc(q, func(r rune) bool { return r == ',' || r == ' ' }); len(f) > 0 {
		q = f[0]
	}
	if utf8.RuneCountInString(q) < 2 {
		return true
	}
	for _, a := range authors {
		if strings.Contains(strings.ToLower(a.Family), q) || strings.Contains(strings.ToLower(a.Name), q) {
			return true
		}
	}
	return false
}
