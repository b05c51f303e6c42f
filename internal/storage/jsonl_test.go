package storage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestReadExamples_NonExistentFile(t *testing.T) {
	exs, err := ReadExamples("/nonexistent/path/examples.jsonl")
	if err != nil {
		t.Fatalf("ReadExamples() error = %v (should return nil for nonexistent file)", err)
	}
	if len(exs) != 0 {
		t.Errorf("ReadExamples() returned %v, want none", exs)
	}
}

func TestReadExamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.jsonl")
	content := `{"segments":[{"label":"author","text":"Smith, J."},{"label":"year","text":"(2020)."}]}

{"segments":[{"label":"title","text":"On things."}]}
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	exs, err := ReadExamples(path)
	if err != nil {
		t.Fatalf("ReadExamples() error = %v", err)
	}
	if len(exs) != 2 {
		t.Fatalf("got %d examples, want 2", len(exs))
	}
	if got := exs[0].Text(); got != "Smith, J. (2020)." {
		t.Errorf("Text() = %q", got)
	}
	if exs[1].Segments[0].Label != "title" {
		t.Errorf("label = %q", exs[1].Segments[0].Label)
	}
}

func TestReadExamples_Errors(t *testing.T) {
	tests := map[string]string{
		"invalid json": "{not json}\n",
		"no segments":  `{"segments":[]}` + "\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "examples.jsonl")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := ReadExamples(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestWriteAppendExamples(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examples.jsonl")
	first := []Example{
		{Segments: []Segment{{Label: "author", Text: "Doe, A."}}},
		{Segments: []Segment{{Label: "title", Text: "Counting sheep."}}},
	}
	if err := WriteExamples(path, first); err != nil {
		t.Fatalf("WriteExamples() error = %v", err)
	}
	extra := Example{Segments: []Segment{{Label: "journal", Text: "Farm Letters"}}}
	if err := AppendExample(path, extra); err != nil {
		t.Fatalf("AppendExample() error = %v", err)
	}

	got, err := ReadExamples(path)
	if err != nil {
		t.Fatalf("ReadExamples() error = %v", err)
	}
	want := append(first, extra)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}
