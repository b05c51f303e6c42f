package s2

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/matsen/citeparse/internal/normalize"
	"github.com/matsen/citeparse/internal/reference"
)

// Find searches Semantic Scholar for ref's title and accepts the top hit
// when its title matches and, if ref names a first author, that family
// name appears among the hit's authors. References without a title are
// not searched.
func (c *Client) Find(ctx context.Context, ref reference.Reference, threshold float64) (*Paper, bool, error) {
	if strings.TrimSpace(ref.Title) == "" {
		return nil, false, nil
	}
	if threshold <= 0 {
		threshold = normalize.DefaultMatchThreshold
	}

	papers, err := c.Search(ctx, ref.Title, DefaultLimit)
	if err != nil {
		if IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var family string
	if a, ok := ref.FirstAuthor(); ok {
		family = a.Last
	}
	for i := range papers {
		p := &papers[i]
		if !normalize.TitlesMatch(ref.Title, p.Title, threshold) {
			continue
		}
		if !AuthorMatches(family, p.Authors) {
			continue
		}
		return p, true, nil
	}
	return nil, false, nil
}

// AuthorMatches reports whether family appears in any author's full name.
// An empty or one-letter family name is not checked.
func AuthorMatches(family string, authors []Author) bool {
	q := strings.ToLower(strings.TrimSpace(family))
	if f := strings.FieldsFunc(q, func(r rune) bool { return r == ',' || r == ' ' }); len(f) > 0 {
		q = f[0]
	}
	if utf8.RuneCountInString(q) < 2 {
		return true
	}
	for _, a := range authors {
		if strings.Contains(strings.ToLower(a.Name), q) {
			return true
		}
	}
	return false
}
