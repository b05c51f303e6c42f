// Package crossref provides a rate-limited client for the Crossref REST API
// and checks parsed references against it.
package crossref

import "strings"

// Work is the subset of a Crossref work record used for verification.
type Work struct {
	DOI            string    `json:"DOI"`
	URL            string    `json:"URL,omitempty"`
	Title          []string  `json:"title,omitempty"`
	Author         []Author  `json:"author,omitempty"`
	ContainerTitle []string  `json:"container-title,omitempty"`
	Publisher      string    `json:"publisher,omitempty"`
	Volume         string    `json:"volume,omitempty"`
	Page           string    `json:"page,omitempty"`
	Issued         DateParts `json:"issued,omitempty"`
}

// Author is a Crossref contributor. Organisations only carry Name.
type Author struct {
	Given  string `json:"given,omitempty"`
	Family string `json:"family,omitempty"`
	Name   string `json:"name,omitempty"`
}

// DateParts is Crossref's {"date-parts": [[year, month, day]]} date.
type DateParts struct {
	Parts [][]int `json:"date-parts,omitempty"`
}

// Year returns the first date's year, or 0.
func (d DateParts) Year() int {
	if len(d.Parts) > 0 && len(d.Parts[0]) > 0 {
		return d.Parts[0][0]
	}
	return 0
}

// FirstTitle returns the work's main title.
func (w *Work) FirstTitle() string {
	if len(w.Title) > 0 {
		return strings.TrimSpace(w.Title[0])
	}
	return ""
}

// Link returns the work's landing URL, falling back to its doi.org link.
func (w *Work) Link() string {
	if w.URL != "" {
		return w.URL
	}
	if w.DOI != "" {
		return "https://doi.org/" + w.DOI
	}
	return ""
}

// workResponse wraps /works/{doi}.
type workResponse struct {
	Status  string `json:"status"`
	Message Work   `json:"message"`
}

// searchResponse wraps /works?query...
type searchResponse struct {
	Status  string `json:"status"`
	Message struct {
		TotalResults int    `json:"total-results"`
		Items        []Work `json:"items"`
	} `json:"message"`
}
