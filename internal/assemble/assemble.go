// Package assemble turns a labelled token sequence into field values.
package assemble

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/matsen/citeparse/internal/label"
	"github.com/matsen/citeparse/internal/reference"
	"github.com/matsen/citeparse/internal/token"
)

// run is a maximal stretch of tokens sharing a label; first and last are
// inclusive token indexes.
type run struct {
	label       label.Label
	first, last int
	confSum     float64
}

func (r run) mean() float64 {
	return r.confSum / float64(r.last-r.first+1)
}

// Assemble merges contiguous same-label tokens of src into field values.
//
// Each value is the original text between its first and last token with
// enclosing punctuation stripped. When a label occurs in more than one run
// the run with the highest mean confidence wins and the others move to the
// "other" bucket. URL and DOI tokens found among "other" tokens become url
// and doi fields. toks, labels and conf must have the same length.
func Assemble(src string, toks []token.Token, labels []label.Label, conf []float64) reference.Parsed {
	out := reference.Parsed{
		Text:       src,
		Fields:     make(map[string][]string),
		Confidence: make(map[string]float64),
	}

	runs := splitRuns(toks, labels, conf)
	resolveConflicts(runs)

	var otherSum float64
	var otherN int
	for _, r := range runs {
		if r.label != label.Other {
			span := src[toks[r.first].Start:toks[r.last].End]
			v := Clean(span)
			if r.label == label.Title {
				v = CleanTitle(span)
			}
			if v == "" {
				continue
			}
			name := r.label.String()
			out.Fields[name] = append(out.Fields[name], v)
			out.Confidence[name] = r.mean()
			continue
		}

		// Other runs are split around URL and DOI tokens.
		start := r.first
		flush := func(end int) {
			if end < start {
				return
			}
			if v := Clean(src[toks[start].Start:toks[end].End]); v != "" {
				out.Fields[label.Other.String()] = append(out.Fields[label.Other.String()], v)
				for i := start; i <= end; i++ {
					otherSum += conf[i]
					otherN++
				}
			}
		}
		for i := r.first; i <= r.last; i++ {
			var field string
			switch toks[i].Class {
			case token.URL:
				field = reference.FieldURL
			case token.DOI:
				field = reference.FieldDOI
			default:
				continue
			}
			flush(i - 1)
			out.Fields[field] = append(out.Fields[field], toks[i].Text)
			if _, ok := out.Confidence[field]; !ok {
				out.Confidence[field] = conf[i]
			}
			start = i + 1
		}
		flush(r.last)
	}
	if otherN > 0 {
		out.Confidence[label.Other.String()] = otherSum / float64(otherN)
	}
	return out
}

func splitRuns(toks []token.Token, labels []label.Label, conf []float64) []run {
	n := min(len(toks), len(labels), len(conf))
	var runs []run
	for i := 0; i < n; i++ {
		if len(runs) > 0 && runs[len(runs)-1].label == labels[i] {
			runs[len(runs)-1].last = i
			runs[len(runs)-1].confSum += conf[i]
			continue
		}
		runs = append(runs, run{label: labels[i], first: i, last: i, confSum: conf[i]})
	}
	return runs
}

// resolveConflicts relabels all but the most confident run of each
// non-other label as other. Ties go to the earlier run.
func resolveConflicts(runs []run) {
	best := make(map[label.Label]int)
	for i, r := range runs {
		if r.label == label.Other {
			continue
		}
		if j, ok := best[r.label]; !ok || r.mean() > runs[j].mean() {
			best[r.label] = i
		}
	}
	for i := range runs {
		if runs[i].label != label.Other && best[runs[i].label] != i {
			runs[i].label = label.Other
		}
	}
}

var pairs = map[rune]rune{'(': ')', '[': ']', '{': '}', '<': '>', '“': '”', '‘': '’', '"': '"', '「': '」', '《': '》', '（': '）'}

var closers = func() map[rune]rune {
	m := make(map[rune]rune, len(pairs))
	for o, c := range pairs {
		m[c] = o
	}
	return m
}()

const (
	leadingPunct  = ",.;:!?·、，。"
	trailingPunct = ",;:!?·、，。"

	titleTrailingPunct = ",;:·、，。"
)

// keepPeriodAfter are words whose abbreviating period belongs to the value.
var keepPeriodAfter = map[string]bool{
	"al": true, "ed": true, "eds": true, "jr": true, "sr": true,
	"inc": true, "co": true, "ltd": true, "etc": true,
}

// Clean strips enclosing punctuation from a span. A trailing period is kept
// after an initial or a known abbreviation. A value wrapped in one bracket or
// quote pair is unwrapped; brackets that are balanced inside the value stay.
func Clean(s string) string {
	return clean(s, trailingPunct)
}

// CleanTitle is Clean for titles: a closing question or exclamation mark is
// part of the title.
func CleanTitle(s string) string {
	return clean(s, titleTrailingPunct)
}

func clean(s, trailing string) string {
	for {
		prev := s
		s = strings.TrimSpace(s)
		s = strings.TrimLeft(s, leadingPunct)
		s = strings.TrimRight(s, trailing)
		s = strings.TrimSpace(s)
		if strings.HasSuffix(s, ".") && !keepsPeriod(s) {
			s = s[:len(s)-1]
		}
		s = unwrap(s)
		s = dropUnbalanced(s)
		if s == prev {
			return s
		}
	}
}

func keepsPeriod(s string) bool {
	body := s[:len(s)-1]
	i := strings.LastIndexFunc(body, func(r rune) bool { return !unicode.IsLetter(r) })
	word := body[i+1:]
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 {
		r, _ := utf8.DecodeRuneInString(word)
		return unicode.IsUpper(r)
	}
	return keepPeriodAfter[strings.ToLower(word)]
}

// unwrap removes a bracket or quote pair enclosing all of s.
func unwrap(s string) string {
	open, size := utf8.DecodeRuneInString(s)
	want, ok := pairs[open]
	if !ok || len(s) <= size {
		return s
	}
	last, lsize := utf8.DecodeLastRuneInString(s)
	if last != want {
		return s
	}
	inner := s[size : len(s)-lsize]
	if open != want {
		// The opener must not close before the end.
		depth := 1
		for _, r := range inner {
			switch r {
			case open:
				depth++
			case want:
				depth--
				if depth == 0 {
					return s
				}
			}
		}
	} else if strings.ContainsRune(inner, open) {
		return s
	}
	return inner
}

// dropUnbalanced removes a leading opener or trailing closer without a
// partner in s, and any leading closer or trailing opener.
func dropUnbalanced(s string) string {
	if s == "" {
		return s
	}
	first, fsize := utf8.DecodeRuneInString(s)
	if c, ok := pairs[first]; ok && c != first && !strings.ContainsRune(s[fsize:], c) {
		return s[fsize:]
	}
	if _, ok := closers[first]; ok && pairs[first] != first {
		return s[fsize:]
	}

	last, lsize := utf8.DecodeLastRuneInString(s)
	if o, ok := closers[last]; ok && o != last {
		if strings.Count(s, string(o)) < strings.Count(s, string(last)) {
			return s[:len(s)-lsize]
		}
	}
	if c, ok := pairs[last]; ok && c != last {
		return s[:len(s)-lsize]
	}
	return s
}
