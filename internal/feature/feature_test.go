package feature

import (
	"testing"

	"github.com/matsen/citeparse/internal/token"
)

func extract(t *testing.T, s string) ([]token.Token, Sequence) {
	t.Helper()
	toks, err := token.Tokenize(s)
	if err != nil {
		t.Fatalf("Tokenize(%q): %v", s, err)
	}
	return toks, Extract(toks)
}

func TestExtract_OneVectorPerToken(t *testing.T) {
	toks, seq := extract(t, "Smith, J. (2020). Title of Work. Journal Name.")
	if seq.Len() != len(toks) {
		t.Fatalf("got %d vectors for %d tokens", seq.Len(), len(toks))
	}
	if seq.Schema != SchemaVersion {
		t.Errorf("Schema = %d, want %d", seq.Schema, SchemaVersion)
	}
}

func TestExtract_SegmentsAndContext(t *testing.T) {
	// 0 Smith 1 , 2 J 3 . 4 ( 5 2020 6 ) 7 . 8 Title 9 of 10 Work 11 . 12 Journal 13 Name 14 .
	_, seq := extract(t, "Smith, J. (2020). Title of Work. Journal Name.")

	tests := []struct {
		idx  int
		name string
		want bool
	}{
		{0, Key(KindSegment, "0"), true},
		{0, Key(KindPosition, "first"), true},
		{2, Key(KindInitial, ""), true},
		{4, Key(KindSegment, "0"), true}, // period after an initial does not end a segment
		{4, Key(KindInParen, ""), false},
		{5, Key(KindYear, ""), true},
		{5, Key(KindInParen, ""), true},
		{6, Key(KindInParen, ""), true},
		{7, Key(KindAfterYear, ""), true},
		{7, WindowKey(KindWindowWord, -1, ")"), true},
		{7, Key(KindSegment, "0"), true},
		{8, Key(KindSegment, "1"), true},
		{8, Key(KindAfterYear, ""), true},
		{9, Key(KindDict, "stop"), true},
		{12, Key(KindSegment, "2"), true},
		{12, Key(KindDict, "journal"), true},
		{14, Key(KindPosition, "last"), true},
		{14, WindowKey(KindWindowWord, 1, "</s>"), true},
		{0, WindowKey(KindWindowWord, -1, "<s>"), true},
		{5, Key(KindAfterYear, ""), false},
	}

	for _, tt := range tests {
		if got := seq.Vectors[tt.idx].Has(tt.name); got != tt.want {
			t.Errorf("token %d feature %q = %v, want %v", tt.idx, tt.name, got, tt.want)
		}
	}
}

func TestExtract_AbbreviationDoesNotEndSegment(t *testing.T) {
	// 0 Nature 1 , 2 vol 3 . 4 5 5 , 6 pp 7 . 8 1 9 . 10 Next
	_, seq := extract(t, "Nature, vol. 5, pp. 1. Next")
	if !seq.Vectors[4].Has(Key(KindSegment, "0")) {
		t.Error("period after 'vol' should not end the segment")
	}
	if !seq.Vectors[10].Has(Key(KindSegment, "1")) {
		t.Error("period after a number should end the segment")
	}
}

func TestExtract_InitialsSkipDictionaries(t *testing.T) {
	_, seq := extract(t, "P. Smith")
	if seq.Vectors[0].Has(Key(KindDict, "pages")) {
		t.Error("initial P should not be treated as a page marker")
	}
	if !seq.Vectors[0].Has(Key(KindInitial, "")) {
		t.Error("P should be an initial")
	}
}

func TestExtract_Pure(t *testing.T) {
	toks, first := extract(t, "Doe, A. 1999. On things. Press.")
	second := Extract(toks)
	for i := range first.Vectors {
		if len(first.Vectors[i]) != len(second.Vectors[i]) {
			t.Fatalf("vector %d differs between calls", i)
		}
		for k, v := range first.Vectors[i] {
			if second.Vectors[i][k] != v {
				t.Errorf("vector %d feature %q differs", i, k)
			}
		}
	}
}

func TestIsYear(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"2020", true},
		{"1500", true},
		{"2100", true},
		{"1499", false},
		{"2101", false},
		{"202", false},
		{"20201", false},
		{"20a0", false},
	}
	for _, tt := range tests {
		if got := IsYear(tt.in); got != tt.want {
			t.Errorf("IsYear(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestShape(t *testing.T) {
	tests := map[string]string{
		"Smith":   "Xx",
		"IEEE":    "X",
		"2020a":   "dx",
		"O'Brien": "X'Xx",
		"of":      "x",
	}
	for in, want := range tests {
		if got := Shape(in); got != want {
			t.Errorf("Shape(%q) = %q, want %q", in, got, want)
		}
	}
}
