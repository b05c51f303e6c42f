package crossref

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/matsen/citeparse/internal/reference"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
		WithBackoff(0),
		WithMailto("test@example.org"),
	)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func work(doi, title string, families ...string) Work {
	w := Work{DOI: doi, Title: []string{title}, URL: "https://doi.org/" + doi}
	for _, f := range families {
		w.Author = append(w.Author, Author{Family: f, Given: "A."})
	}
	return w
}

func TestByDOI(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("mailto") != "test@example.org" {
			t.Errorf("mailto = %q", r.URL.Query().Get("mailto"))
		}
		if r.URL.Path != "/works/10.1000/xyz" {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, workResponse{Status: "ok", Message: work("10.1000/xyz", "Title of Work", "Smith")})
	})

	got, err := c.ByDOI(context.Background(), "10.1000/xyz.")
	if err != nil {
		t.Fatalf("ByDOI() error = %v", err)
	}
	if got.FirstTitle() != "Title of Work" {
		t.Errorf("FirstTitle() = %q", got.FirstTitle())
	}
	if got.Link() != "https://doi.org/10.1000/xyz" {
		t.Errorf("Link() = %q", got.Link())
	}

	_, err = c.ByDOI(context.Background(), "10.1000/missing")
	if !IsNotFound(err) {
		t.Errorf("ByDOI(missing) error = %v, want not found", err)
	}
}

func TestGet_Retries(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		check     func(error) bool
	}{
		{"server error then ok", []int{503, 200}, 2, func(err error) bool { return err == nil }},
		{"rate limited twice", []int{429, 429}, 2, IsRateLimited},
		{"bad request not retried", []int{400}, 1, func(err error) bool {
			var apiErr *APIError
			return err != nil && !IsNotFound(err) && errors.As(err, &apiErr) && apiErr.StatusCode == 400
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[len(tt.statuses)-1]
				if int(n) <= len(tt.statuses) {
					status = tt.statuses[n-1]
				}
				if status != 200 {
					w.WriteHeader(status)
					return
				}
				writeJSON(t, w, workResponse{Message: work("10.1/a", "A")})
			})
			_, err := c.ByDOI(context.Background(), "10.1/a")
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestSearch_Params(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/works" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if q.Get("query.bibliographic") != "Title of Work" || q.Get("query.author") != "Smith" || q.Get("rows") != "2" {
			t.Errorf("query = %v", q)
		}
		var resp searchResponse
		resp.Message.Items = []Work{work("10.1/a", "Title of Work", "Smith")}
		writeJSON(t, w, resp)
	})

	works, err := c.Search(context.Background(), "Title of Work", "Smith", 0)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(works) != 1 || works[0].DOI != "10.1/a" {
		t.Errorf("Search() = %+v", works)
	}

	if works, err := c.Search(context.Background(), "  ", "", 2); err != nil || works != nil {
		t.Errorf("blank Search() = %v, %v", works, err)
	}
}

func TestFind(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/works/10.1000/right":
			writeJSON(t, w, workResponse{Message: work("10.1000/right", "Deep Learning for Protein Structure", "Smith")})
		case r.URL.Path == "/works/10.1000/wrong":
			writeJSON(t, w, workResponse{Message: work("10.1000/wrong", "Ravens and Writing Desks", "Carroll")})
		case r.URL.Path == "/works":
			var resp searchResponse
			switch r.URL.Query().Get("query.bibliographic") {
			case "Deep Learning for Protein Structure":
				resp.Message.Items = []Work{
					work("10.1/other", "Deep Learning for Protein Structure", "Jones"),
					work("10.1/found", "Deep learning for protein structure", "Smith", "Doe"),
				}
			default:
				resp.Message.Items = []Work{work("10.1/x", "Something Else Entirely", "Smith")}
			}
			writeJSON(t, w, resp)
		default:
			http.NotFound(w, r)
		}
	})

	smith := []reference.Author{{First: "J.", Last: "Smith"}}
	tests := []struct {
		name    string
		ref     reference.Reference
		wantOK  bool
		wantVia string
		wantDOI string
	}{
		{
			name:    "doi with matching title",
			ref:     reference.Reference{DOI: "10.1000/right", Title: "Deep learning for protein structure.", Authors: smith},
			wantOK:  true,
			wantVia: ViaDOI,
			wantDOI: "10.1000/right",
		},
		{
			name:    "doi title mismatch falls back to search",
			ref:     reference.Reference{DOI: "10.1000/wrong", Title: "Deep Learning for Protein Structure", Authors: smith},
			wantOK:  true,
			wantVia: ViaSearch,
			wantDOI: "10.1/found",
		},
		{
			name:    "unknown doi falls back to search",
			ref:     reference.Reference{DOI: "10.1000/missing", Title: "Deep Learning for Protein Structure", Authors: smith},
			wantOK:  true,
			wantVia: ViaSearch,
			wantDOI: "10.1/found",
		},
		{
			name:   "no title match",
			ref:    reference.Reference{Title: "Statistical Methods in Genomics", Authors: smith},
			wantOK: false,
		},
		{
			name:   "author mismatch",
			ref:    reference.Reference{Title: "Deep Learning for Protein Structure", Authors: []reference.Author{{Last: "Nobody"}}},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok, err := c.Find(context.Background(), tt.ref, 0)
			if err != nil {
				t.Fatalf("Find() error = %v", err)
			}
			if ok != tt.wantOK {
				t.Fatalf("Find() ok = %v, want %v (%+v)", ok, tt.wantOK, m)
			}
			if !ok {
				return
			}
			if m.Via != tt.wantVia || m.Work.DOI != tt.wantDOI {
				t.Errorf("Find() = %s %s, want %s %s", m.Via, m.Work.DOI, tt.wantVia, tt.wantDOI)
			}
		})
	}
}

func TestFind_PropagatesErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, _, err := c.Find(context.Background(), reference.Reference{Title: "Some Long Enough Title"}, 0)
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestAuthorMatches(t *testing.T) {
	authors := []Author{{Given: "John", Family: "Smith"}, {Name: "World Health Organization"}}
	tests := []struct {
		family string
		want   bool
	}{
		{"Smith", true},
		{"smith, j.", true},
		{"Health", true},
		{"Jones", false},
		{"", true},
		{"X", true},
	}
	for _, tt := range tests {
		if got := AuthorMatches(tt.family, authors); got != tt.want {
			t.Errorf("AuthorMatches(%q) = %v, want %v", tt.family, got, tt.want)
		}
	}
}

func TestSearchQuery(t *testing.T) {
	long := strings.Repeat("word ", 40)
	tests := []struct {
		name string
		ref  reference.Reference
		want string
	}{
		{"title", reference.Reference{Title: "A Long Enough Title", Raw: "raw"}, "A Long Enough Title"},
		{"short title uses raw", reference.Reference{Title: "Short", Raw: " Smith 2020 Short "}, "Smith 2020 Short"},
		{"raw truncated", reference.Reference{Raw: long}, long[:maxQueryRunes]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SearchQuery(tt.ref); got != tt.want {
				t.Errorf("SearchQuery() = %q, want %q", got, tt.want)
			}
		})
	}
}
