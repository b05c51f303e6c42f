package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/reference"
	"github.com/matsen/citeparse/internal/token"
)

func sampleResults() []pipeline.Result {
	parsed := reference.Parsed{
		Text: "Smith, J. (2020). Title of Work. Journal Name. https://doi.org/10.1/x",
		Fields: map[string][]string{
			"author":  {"Smith, J."},
			"year":    {"2020"},
			"title":   {"Title of Work"},
			"journal": {"Journal Name"},
			"url":     {"https://doi.org/10.1/x"},
			"other":   {"a", "b"},
		},
	}
	ref := reference.Reference{
		Title:     "Title of Work",
		Authors:   []reference.Author{{First: "J.", Last: "Smith"}},
		Venue:     "Journal Name",
		DOI:       "10.1/x",
		Published: reference.PublicationDate{Year: 2020},
	}
	return []pipeline.Result{
		{Index: 1, Text: parsed.Text, Parsed: &parsed, Reference: &ref},
		{Index: 2, Text: "", Err: token.ErrInvalidInput, Error: token.ErrInvalidInput.Error()},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" CSV ", FormatCSV, false},
		{"yml", FormatYAML, false},
		{"bib", FormatBibTeX, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestWriteResults_CSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, FormatCSV, sampleResults()); err != nil {
		t.Fatalf("WriteResults() error = %v", err)
	}
	recs, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"index", "text", "author", "title", "year", "journal", "publisher", "pages", "volume", "doi", "url", "other", "error"}
	if strings.Join(recs[0], ",") != strings.Join(want, ",") {
		t.Fatalf("header = %v", recs[0])
	}
	if len(recs) != 3 {
		t.Fatalf("got %d rows, want 3", len(recs))
	}
	row := map[string]string{}
	for i, c := range recs[0] {
		row[c] = recs[1][i]
	}
	if row["author"] != "Smith, J." || row["url"] != "https://doi.org/10.1/x" || row["other"] != "a | b" || row["error"] != "" {
		t.Errorf("row 1 = %v", row)
	}
	if recs[2][0] != "2" || recs[2][len(want)-1] == "" {
		t.Errorf("row 2 = %v", recs[2])
	}
}

func TestWriteResults_JSONAndJSONL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, FormatJSON, sampleResults()); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if len(decoded) != 2 || decoded[1]["error"] == nil || decoded[0]["error"] != nil {
		t.Errorf("decoded = %v", decoded)
	}

	buf.Reset()
	if err := WriteResults(&buf, FormatJSONL, sampleResults()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines", len(lines))
	}
	var first pipeline.Result
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatal(err)
	}
	if first.Reference == nil || first.Reference.Title != "Title of Work" {
		t.Errorf("first = %+v", first)
	}
}

func TestWriteResults_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, FormatYAML, sampleResults()); err != nil {
		t.Fatal(err)
	}
	var decoded []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid YAML: %v\n%s", err, buf.String())
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded = %v", decoded)
	}
	if strings.Contains(buf.String(), "err:") {
		t.Errorf("YAML leaks the error value:\n%s", buf.String())
	}
}

func TestWriteResults_BibTeXSkipsFailures(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, FormatBibTeX, sampleResults()); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if strings.Count(got, "@") != 1 || !strings.Contains(got, "@article{Smith2020,") {
		t.Errorf("BibTeX =\n%s", got)
	}
}

func TestWriteResults_UnknownFormat(t *testing.T) {
	err := WriteResults(&bytes.Buffer{}, Format("xml"), nil)
	if err == nil || errors.Is(err, token.ErrInvalidInput) {
		t.Errorf("error = %v", err)
	}
}
