// Package reference defines the parsed and normalized forms of a citation.
package reference

import "github.com/matsen/citeparse/internal/label"

// Extra field names that are not labels.
const (
	FieldDOI = "doi"
	FieldURL = "url"
)

// Parsed is the assembler's output: each field holds the text spans that
// received its label, in source order. It is built once and not modified
// afterwards.
type Parsed struct {
	Text       string              `json:"text" yaml:"text"`
	Fields     map[string][]string `json:"fields" yaml:"fields"`
	Confidence map[string]float64  `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	Model      string              `json:"model,omitempty" yaml:"model,omitempty"`
}

// First returns the first value of a field, or "".
func (p *Parsed) First(field string) string {
	if v := p.Fields[field]; len(v) > 0 {
		return v[0]
	}
	return ""
}

// Get returns the first value stored under a label.
func (p *Parsed) Get(l label.Label) string {
	return p.First(l.String())
}

// Reference is the normalized record built from a Parsed citation.
type Reference struct {
	// Identity
	DOI string `json:"doi,omitempty" yaml:"doi,omitempty"`
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Metadata
	Title     string   `json:"title" yaml:"title"`
	Authors   []Author `json:"authors" yaml:"authors"`
	Venue     string   `json:"venue,omitempty" yaml:"venue,omitempty"` // journal, proceedings or preprint server
	Publisher string   `json:"publisher,omitempty" yaml:"publisher,omitempty"`
	Volume    string   `json:"volume,omitempty" yaml:"volume,omitempty"`
	Pages     string   `json:"pages,omitempty" yaml:"pages,omitempty"`

	Published PublicationDate `json:"published" yaml:"published"`

	// Raw is the citation text the record was parsed from.
	Raw string `json:"raw" yaml:"raw"`
}

// PublicationDate is a publication date with optional month and day.
type PublicationDate struct {
	Year  int `json:"year,omitempty" yaml:"year,omitempty"`
	Month int `json:"month,omitempty" yaml:"month,omitempty"` // 1-12, 0 if unknown
	Day   int `json:"day,omitempty" yaml:"day,omitempty"`     // 1-31, 0 if unknown
}

// FirstAuthor returns the first author, if any.
func (r *Reference) FirstAuthor() (Author, bool) {
	if len(r.Authors) == 0 {
		return Author{}, false
	}
	return r.Authors[0], true
}
