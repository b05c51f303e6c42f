package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/matsen/citeparse/internal/label"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/reference"
)

// Format is an output format for parse results.
type Format string

// Supported formats.
const (
	FormatJSON   Format = "json"
	FormatJSONL  Format = "jsonl"
	FormatCSV    Format = "csv"
	FormatYAML   Format = "yaml"
	FormatBibTeX Format = "bibtex"
)

// Formats lists the supported format names.
func Formats() []string {
	return []string{string(FormatJSON), string(FormatJSONL), string(FormatCSV), string(FormatYAML), string(FormatBibTeX)}
}

// ParseFormat validates a format name. "yml" and "bib" are accepted as
// aliases.
func ParseFormat(s string) (Format, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "json", "jsonl", "csv", "yaml", "bibtex":
		return Format(f), nil
	case "yml":
		return FormatYAML, nil
	case "bib":
		return FormatBibTeX, nil
	}
	return "", fmt.Errorf("unknown format %q (want one of %s)", s, strings.Join(Formats(), ", "))
}

// valueSep joins several values of one field in a CSV cell.
const valueSep = " | "

// ResultColumns is the CSV header: index and text, one column per label
// except other, then doi, url, other and error.
func ResultColumns() []string {
	cols := []string{"index", "text"}
	for _, l := range label.All() {
		if l != label.Other {
			cols = append(cols, l.String())
		}
	}
	return append(cols, reference.FieldDOI, reference.FieldURL, label.Other.String(), "error")
}

// WriteResults writes parse results to w in format f.
func WriteResults(w io.Writer, f Format, results []pipeline.Result) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, results)
	case FormatJSONL:
		return WriteJSONL(w, results)
	case FormatYAML:
		return WriteYAML(w, results)
	case FormatCSV:
		return writeResultsCSV(w, results)
	case FormatBibTeX:
		var refs []reference.Reference
		for _, r := range results {
			if r.Reference != nil {
				refs = append(refs, *r.Reference)
			}
		}
		_, err := io.WriteString(w, ToBibTeXList(refs))
		return err
	}
	return fmt.Errorf("unknown format %q", f)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteJSONL writes each element of items as one JSON line.
func WriteJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for i := range items {
		if err := enc.Encode(items[i]); err != nil {
			return fmt.Errorf("encoding item %d: %w", i, err)
		}
	}
	return nil
}

// WriteYAML writes v as a YAML document.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// WriteCSV writes a header row and records.
func WriteCSV(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

func writeResultsCSV(w io.Writer, results []pipeline.Result) error {
	cols := ResultColumns()
	records := make([][]string, 0, len(results))
	for _, r := range results {
		rec := make([]string, len(cols))
		rec[0] = strconv.Itoa(r.Index)
		rec[1] = r.Text
		for i, c := range cols[2 : len(cols)-1] {
			if r.Parsed != nil {
				rec[i+2] = strings.Join(r.Parsed.Fields[c], valueSep)
			}
		}
		rec[len(cols)-1] = r.Error
		records = append(records, rec)
	}
	return WriteCSV(w, cols, records)
}
