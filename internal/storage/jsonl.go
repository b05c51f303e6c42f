// Package storage persists training examples as JSONL and known titles in a
// SQLite catalog.
package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// MaxJSONLLineCapacity is the maximum buffer size for reading JSONL lines (1MB per line).
const MaxJSONLLineCapacity = 1024 * 1024

// Segment is a labelled stretch of citation text.
type Segment struct {
	Label string `json:"label"`
	Text  string `json:"text"`
}

// Example is one hand-labelled citation, stored as one JSONL line:
//
//	{"segments":[{"label":"author","text":"Smith, J."},{"label":"year","text":"(2020)."}]}
type Example struct {
	Segments []Segment `json:"segments"`
}

// Text joins the segment texts with single spaces.
func (e Example) Text() string {
	parts := make([]string, len(e.Segments))
	for i, s := range e.Segments {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// ReadExamples reads all examples from a JSONL file. A missing file yields
// no examples.
func ReadExamples(path string) ([]Example, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening examples file: %w", err)
	}
	defer f.Close()

	out, err := DecodeExamples(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return out, nil
}

// DecodeExamples reads JSONL examples from r.
func DecodeExamples(r io.Reader) ([]Example, error) {
	var out []Example
	scanner := bufio.NewScanner(r)
	buf := make([]byte, MaxJSONLLineCapacity)
	scanner.Buffer(buf, MaxJSONLLineCapacity)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}

		var ex Example
		if err := json.Unmarshal(line, &ex); err != nil {
			return nil, fmt.Errorf("parsing line %d: %w", lineNum, err)
		}
		if len(ex.Segments) == 0 {
			return nil, fmt.Errorf("line %d: example has no segments", lineNum)
		}
		out = append(out, ex)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading examples: %w", err)
	}
	return out, nil
}

// AppendExample adds an example to the end of a JSONL file.
func AppendExample(path string, ex Example) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("opening examples file for append: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("encoding example: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing example: %w", err)
	}
	return nil
}

// WriteExamples replaces the file's content with exs.
func WriteExamples(path string, exs []Example) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating examples file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i, ex := range exs {
		if err := enc.Encode(ex); err != nil {
			return fmt.Errorf("encoding example %d: %w", i, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing examples file: %w", err)
	}
	return nil
}
