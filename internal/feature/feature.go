// Package feature computes per-token feature vectors for the sequence labeler.
//
// The feature schema is closed and versioned: every feature belongs to one of
// the Kind values below, and any change to how features are named or computed
// must bump SchemaVersion so models trained against the old schema are
// rejected instead of silently mislabeling.
package feature

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/matsen/citeparse/internal/token"
)

// SchemaVersion identifies the feature schema produced by Extract.
const SchemaVersion = 1

// Plausible publication years.
const (
	MinYear = 1500
	MaxYear = 2100
)

// positionBuckets is the number of relative-position buckets.
const positionBuckets = 5

// maxSegment caps the segment index feature.
const maxSegment = 3

// Kind tags a feature computation.
type Kind uint8

const (
	KindBias Kind = iota
	KindWord
	KindShape
	KindClass
	KindCase
	KindInitial
	KindYear
	KindNumber
	KindPunct
	KindDict
	KindPosition
	KindSegment
	KindAfterYear
	KindInParen
	KindWindowWord
	KindWindowClass
)

var kindNames = [...]string{
	"bias", "word", "shape", "class", "case", "initial", "year", "num", "punct",
	"dict", "pos", "seg", "afteryear", "inparen", "w", "c",
}

func (k Kind) String() string {
	return kindNames[k]
}

// Key returns the feature name for a kind and value. Valueless kinds use
// an empty value.
func Key(k Kind, value string) string {
	if value == "" {
		return kindNames[k]
	}
	return kindNames[k] + "=" + value
}

// WindowKey returns the name of a neighbour feature at offset (±1, ±2).
func WindowKey(k Kind, offset int, value string) string {
	return kindNames[k] + "[" + strconv.Itoa(offset) + "]=" + value
}

// Vector maps feature names to values.
type Vector map[string]float64

// Has reports whether the named feature is set.
func (v Vector) Has(name string) bool {
	_, ok := v[name]
	return ok
}

// Sequence is the feature vectors of one token sequence, tagged with the
// schema version that produced them.
type Sequence struct {
	Schema  int
	Vectors []Vector
}

// Len returns the number of vectors.
func (s Sequence) Len() int {
	return len(s.Vectors)
}

// Extract computes one feature vector per token.
func Extract(toks []token.Token) Sequence {
	n := len(toks)
	seq := Sequence{Schema: SchemaVersion, Vectors: make([]Vector, n)}

	lower := make([]string, n)
	for i, t := range toks {
		lower[i] = strings.ToLower(t.Text)
	}

	segment := 0
	depth := 0
	seenYear := false

	for i, t := range toks {
		v := Vector{Key(KindBias, ""): 1}

		v[Key(KindClass, t.Class.String())] = 1

		switch t.Class {
		case token.Word:
			v[Key(KindWord, lower[i])] = 1
			v[Key(KindShape, Shape(t.Text))] = 1
			if c := caseOf(t.Text); c != "" {
				v[Key(KindCase, c)] = 1
			}
			if IsInitial(t) {
				v[Key(KindInitial, "")] = 1
			} else {
				for d := range dictionaries {
					if dictionaries[d][lower[i]] {
						v[Key(KindDict, Dictionary(d).String())] = 1
					}
				}
			}
		case token.Number:
			v[Key(KindNumber, "")] = 1
			v[Key(KindNumber, digitBucket(t.Text))] = 1
			if IsYear(t.Text) {
				v[Key(KindYear, "")] = 1
			}
		case token.Punct, token.Open, token.Close:
			v[Key(KindPunct, t.Text)] = 1
		}

		v[Key(KindPosition, strconv.Itoa(i*positionBuckets/n))] = 1
		if i == 0 {
			v[Key(KindPosition, "first")] = 1
		}
		if i == n-1 {
			v[Key(KindPosition, "last")] = 1
		}

		v[Key(KindSegment, strconv.Itoa(min(segment, maxSegment)))] = 1
		if seenYear {
			v[Key(KindAfterYear, "")] = 1
		}

		// A closing bracket still belongs to the group it closes.
		if depth > 0 {
			v[Key(KindInParen, "")] = 1
		}

		for _, off := range []int{-2, -1, 1, 2} {
			j := i + off
			switch {
			case j < 0:
				v[WindowKey(KindWindowClass, off, "<s>")] = 1
				if off == -1 {
					v[WindowKey(KindWindowWord, off, "<s>")] = 1
				}
			case j >= n:
				v[WindowKey(KindWindowClass, off, "</s>")] = 1
				if off == 1 {
					v[WindowKey(KindWindowWord, off, "</s>")] = 1
				}
			default:
				v[WindowKey(KindWindowClass, off, toks[j].Class.String())] = 1
				if off == -1 || off == 1 {
					v[WindowKey(KindWindowWord, off, lower[j])] = 1
				}
			}
		}

		seq.Vectors[i] = v

		// State updates apply to the tokens after i.
		switch t.Class {
		case token.Open:
			depth++
		case token.Close:
			if depth > 0 {
				depth--
			}
		case token.Number:
			if IsYear(t.Text) {
				seenYear = true
			}
		}
		if isSegmentEnd(toks, lower, i) {
			segment++
		}
	}

	return seq
}

// IsYear reports whether s is a four-digit year in the plausible range.
func IsYear(s string) bool {
	if len(s) != 4 {
		return false
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return false
	}
	return y >= MinYear && y <= MaxYear
}

// IsInitial reports whether the token is a single uppercase letter.
func IsInitial(t token.Token) bool {
	if t.Class != token.Word || utf8.RuneCountInString(t.Text) != 1 {
		return false
	}
	r, _ := utf8.DecodeRuneInString(t.Text)
	return unicode.IsUpper(r)
}

// isSegmentEnd reports whether token i closes a sentence-like segment.
// Periods after initials and known abbreviations do not.
func isSegmentEnd(toks []token.Token, lower []string, i int) bool {
	switch toks[i].Text {
	case "?", "!", "。":
		return true
	case ".":
		if i == 0 {
			return false
		}
		prev := toks[i-1]
		if IsInitial(prev) {
			return false
		}
		if prev.Class == token.Word && dictionaries[DictAbbrev][lower[i-1]] {
			return false
		}
		return true
	}
	return false
}

// Shape maps upper to X, lower to x, digits to d and collapses repeats.
func Shape(s string) string {
	var b strings.Builder
	var last rune
	for _, r := range s {
		var c rune
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLower(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		case unicode.IsLetter(r):
			c = 'L'
		default:
			c = r
		}
		if c != last {
			b.WriteRune(c)
			last = c
		}
	}
	return b.String()
}

func caseOf(s string) string {
	var upper, lower int
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	first, _ := utf8.DecodeRuneInString(s)
	switch {
	case upper > 1 && lower == 0:
		return "upper"
	case unicode.IsUpper(first):
		return "cap"
	case lower > 0 && upper == 0:
		return "lower"
	case upper > 0:
		return "mixed"
	}
	return ""
}

func digitBucket(s string) string {
	n := len(s)
	if n > 4 {
		return "d5+"
	}
	return "d" + strconv.Itoa(n)
}
