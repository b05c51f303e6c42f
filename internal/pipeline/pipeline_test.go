package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/feature"
	"github.com/matsen/citeparse/internal/label"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/storage"
	"github.com/matsen/citeparse/internal/token"
)

const scenario = "Smith, J. (2020). Title of Work. Journal Name."

func newTestParser(t *testing.T, workers int) *Parser {
	t.Helper()
	return NewParser(modelstore.NewStore(crf.DefaultModel()), workers)
}

func TestParseLine_Scenario(t *testing.T) {
	p := newTestParser(t, 1)
	got, err := p.ParseLine(scenario)
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}
	want := map[string]string{
		"author":  "Smith, J.",
		"year":    "2020",
		"title":   "Title of Work",
		"journal": "Journal Name",
	}
	for f, v := range want {
		if got.First(f) != v {
			t.Errorf("%s = %q, want %q", f, got.First(f), v)
		}
	}
	if got.Model != crf.DefaultName+"@"+crf.DefaultVersion {
		t.Errorf("Model = %q", got.Model)
	}
}

func TestParse_Normalizes(t *testing.T) {
	res := newTestParser(t, 1).Parse(1, scenario)
	if !res.OK() {
		t.Fatalf("Parse() failed: %v", res.Err)
	}
	ref := res.Reference
	if ref.Title != "Title of Work" || ref.Venue != "Journal Name" || ref.Published.Year != 2020 {
		t.Errorf("Reference = %+v", ref)
	}
	if len(ref.Authors) != 1 || ref.Authors[0].Last != "Smith" || ref.Authors[0].First != "J." {
		t.Errorf("Authors = %+v", ref.Authors)
	}
}

func TestParse_InvalidInput(t *testing.T) {
	for _, in := range []string{"", "   \t "} {
		res := newTestParser(t, 1).Parse(3, in)
		if res.OK() {
			t.Errorf("Parse(%q) succeeded", in)
		}
		if !errors.Is(res.Err, token.ErrInvalidInput) {
			t.Errorf("Parse(%q) error = %v, want ErrInvalidInput", in, res.Err)
		}
		if res.Error == "" || res.Index != 3 {
			t.Errorf("Result = %+v", res)
		}
	}
}

func TestParseAll_KeepsOrderAndContinuesPastFailures(t *testing.T) {
	lines := []string{
		scenario,
		"",
		"Doe, A. (1999). Counting sheep. Farm Letters.",
	}
	for i := 0; i < 20; i++ {
		lines = append(lines, scenario)
	}

	for _, workers := range []int{1, 4, 32} {
		results, err := newTestParser(t, workers).ParseAll(context.Background(), lines)
		if err != nil {
			t.Fatalf("ParseAll() error = %v", err)
		}
		if len(results) != len(lines) {
			t.Fatalf("got %d results, want %d", len(results), len(lines))
		}
		for i, r := range results {
			if r.Index != i+1 || r.Text != lines[i] {
				t.Errorf("workers=%d: result %d = (%d, %q)", workers, i, r.Index, r.Text)
			}
		}
		if results[1].OK() || !errors.Is(results[1].Err, token.ErrInvalidInput) {
			t.Errorf("workers=%d: empty line result = %+v", workers, results[1])
		}
		if !results[2].OK() {
			t.Errorf("workers=%d: line after failure not parsed: %v", workers, results[2].Err)
		}

		s := Summarize(results)
		if s.Total != len(lines) || s.Parsed != len(lines)-1 || s.InvalidInput != 1 || s.Failed() != 1 {
			t.Errorf("workers=%d: Summarize() = %+v", workers, s)
		}
	}
}

func TestParseAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestParser(t, 2).ParseAll(ctx, []string{scenario, scenario})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("ParseAll() error = %v, want context.Canceled", err)
	}
}

func TestParseLine_RoutesHanToCJKSlot(t *testing.T) {
	store := modelstore.NewStore(crf.DefaultModel())
	p := NewParser(store, 1)
	han := "王小明（2019）。人工智慧研究。教育學報。"

	got, err := p.ParseLine(han)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got.Model, crf.DefaultName+"@") {
		t.Errorf("without cjk slot Model = %q", got.Model)
	}

	params := crf.DefaultModel().Params()
	params.Name = "cjk-test"
	cjk, err := crf.New(params)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set(modelstore.SlotCJK, cjk); err != nil {
		t.Fatal(err)
	}

	if got, _ = p.ParseLine(han); !strings.HasPrefix(got.Model, "cjk-test@") {
		t.Errorf("Han text Model = %q, want cjk-test", got.Model)
	}
	if got, _ = p.ParseLine(scenario); !strings.HasPrefix(got.Model, crf.DefaultName+"@") {
		t.Errorf("Latin text Model = %q, want default", got.Model)
	}
}

func TestSplitReferences(t *testing.T) {
	in := "  [1] Smith, J. (2020). A.\r\n\n2. Doe, A. B.\n   \n1999. Year first.\n"
	want := []string{"Smith, J. (2020). A.", "Doe, A. B.", "1999. Year first."}
	if got := SplitReferences(in); !reflect.DeepEqual(got, want) {
		t.Errorf("SplitReferences() = %q, want %q", got, want)
	}
}

func TestCleanLines_DropsBareMarkers(t *testing.T) {
	// Extracted PDF lines: markers alone on a line, and blank lines.
	in := []string{"[1]", "Smith, J. (2020). Title of Work. Journal Name.", "  12.  ", "", "[2] Doe, A. (1999). Counting sheep."}
	want := []string{"Smith, J. (2020). Title of Work. Journal Name.", "Doe, A. (1999). Counting sheep."}
	if got := cleanLines(in); !reflect.DeepEqual(got, want) {
		t.Errorf("cleanLines() = %q, want %q", got, want)
	}
	if got := cleanLines([]string{"[3]", " "}); len(got) != 0 {
		t.Errorf("cleanLines() = %q, want none", got)
	}
}

func TestReadInput(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, data []byte) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, data, 0644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	big5, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte("王小明（2019）。研究。\n"))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		want    []string
		wantErr error
	}{
		{"text", write("refs.txt", []byte("\ufeffA one.\nB two.\n")), []string{"A one.", "B two."}, nil},
		{"big5", write("big5.txt", big5), []string{"王小明（2019）。研究。"}, nil},
		{"empty", write("empty.txt", []byte("\n \n")), nil, token.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadInput(context.Background(), tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ReadInput() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	if _, err := ReadInput(context.Background(), filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestBuildInstance(t *testing.T) {
	ex := storage.Example{Segments: []storage.Segment{
		{Label: "author", Text: "Smith, J."},
		{Label: "year", Text: "(2020)."},
		{Label: "title", Text: "Title of Work."},
	}}
	inst, err := BuildInstance(ex)
	if err != nil {
		t.Fatalf("BuildInstance() error = %v", err)
	}
	A, Y, T := label.Author, label.Year, label.Title
	want := []label.Label{A, A, A, A, Y, Y, Y, Y, T, T, T, T}
	if !reflect.DeepEqual(inst.Labels, want) {
		t.Errorf("Labels = %v, want %v", inst.Labels, want)
	}
	if inst.Seq.Len() != len(want) {
		t.Errorf("Seq.Len() = %d", inst.Seq.Len())
	}

	bad := storage.Example{Segments: []storage.Segment{{Label: "editor", Text: "X"}}}
	if _, err := BuildInstances([]storage.Example{ex, bad}); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestBuildInstances_Trains(t *testing.T) {
	exs := []storage.Example{
		{Segments: []storage.Segment{{Label: "author", Text: "Smith, J."}, {Label: "year", Text: "(2020)."}, {Label: "title", Text: "Title of Work."}, {Label: "journal", Text: "Journal Name."}}},
		{Segments: []storage.Segment{{Label: "author", Text: "Doe, A."}, {Label: "year", Text: "(1999)."}, {Label: "title", Text: "Counting sheep."}, {Label: "journal", Text: "Farm Letters."}}},
	}
	data, err := BuildInstances(exs)
	if err != nil {
		t.Fatal(err)
	}
	opts := crf.DefaultTrainOptions()
	opts.Epochs = 5
	m, err := crf.Train(context.Background(), data, opts)
	if err != nil {
		t.Fatalf("Train() error = %v", err)
	}
	if m.Name() != opts.Name {
		t.Errorf("Name() = %q", m.Name())
	}
}

func TestBuiltinModel_JournalNumbering(t *testing.T) {
	p := NewParser(modelstore.NewStore(BuiltinModel()), 1)
	tests := []struct {
		line                         string
		journal, volume, pages, year string
	}{
		{
			line:    "Smith, J., & Doe, A. (2019). A study of things. Nature, 12(3), 45-67.",
			journal: "Nature", volume: "12(3)", pages: "45-67", year: "2019",
		},
		{
			line:    "Brown, K. (2018). Why do birds sing? Animal Behaviour, 5, 1-10.",
			journal: "Animal Behaviour", volume: "5", pages: "1-10", year: "2018",
		},
	}
	for _, tt := range tests {
		t.Run(tt.journal, func(t *testing.T) {
			got, err := p.ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine() error = %v", err)
			}
			for f, want := range map[string]string{
				"journal": tt.journal, "volume": tt.volume, "pages": tt.pages, "year": tt.year,
			} {
				if got.First(f) != want {
					t.Errorf("%s = %q, want %q (fields %v)", f, got.First(f), want, got.Fields)
				}
			}
		})
	}
}

func TestBuiltinModel_Scenario(t *testing.T) {
	m := BuiltinModel()
	if m != BuiltinModel() {
		t.Error("BuiltinModel() trained twice")
	}
	if m.Name() != crf.DefaultName || m.Version() != BuiltinVersion || m.Schema() != feature.SchemaVersion {
		t.Errorf("model = %s@%s schema %d", m.Name(), m.Version(), m.Schema())
	}

	got, err := NewParser(modelstore.NewStore(m), 1).ParseLine(scenario)
	if err != nil {
		t.Fatal(err)
	}
	for f, v := range map[string]string{"author": "Smith, J.", "year": "2020", "title": "Title of Work", "journal": "Journal Name"} {
		if got.First(f) != v {
			t.Errorf("%s = %q, want %q", f, got.First(f), v)
		}
	}
}

func TestBuiltinExamples_Build(t *testing.T) {
	exs, err := storage.DecodeExamples(bytes.NewReader(builtinExamples))
	if err != nil {
		t.Fatal(err)
	}
	if len(exs) < 30 {
		t.Errorf("only %d built-in examples", len(exs))
	}
	if _, err := BuildInstances(exs); err != nil {
		t.Errorf("BuildInstances() error = %v", err)
	}
}
