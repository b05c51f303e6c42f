// Package s2 looks references up in the Semantic Scholar Academic Graph.
package s2

// Paper is a search hit from the Graph API.
type Paper struct {
	PaperID     string      `json:"paperId"`
	ExternalIDs ExternalIDs `json:"externalIds,omitempty"`
	Title       string      `json:"title"`
	URL         string      `json:"url,omitempty"`
	Authors     []Author    `json:"authors,omitempty"`
	Year        int         `json:"year,omitempty"`
	Venue       string      `json:"venue,omitempty"`
}

// ExternalIDs holds the identifiers Semantic Scholar knows for a paper.
type ExternalIDs struct {
	DOI   string `json:"DOI,omitempty"`
	ArXiv string `json:"ArXiv,omitempty"`
}

// Author is a paper author as Semantic Scholar names them.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// Link is the paper's resolvable address: its DOI when known, else its
// Semantic Scholar page.
func (p *Paper) Link() string {
	if p.ExternalIDs.DOI != "" {
		return "https://doi.org/" + p.ExternalIDs.DOI
	}
	return p.URL
}

type searchResponse struct {
	Total int     `json:"total"`
	Data  []Paper `json:"data"`
}
