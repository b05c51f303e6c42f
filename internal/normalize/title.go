// Package normalize cleans assembled fields into a reference.Reference and
// compares titles.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/xrash/smetrics"
	"golang.org/x/text/unicode/norm"
)

// DefaultMatchThreshold is the similarity at or above which two cleaned
// titles are considered the same work.
const DefaultMatchThreshold = 0.85

var (
	standaloneNumber = regexp.MustCompile(`\b\d+\b`)
	titleYear        = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	titleNoiseWords  = regexp.MustCompile(`\b(?:arxiv|biorxiv|medrxiv|available|online|access)\b`)
)

func isDash(r rune) bool {
	switch r {
	case '-', '–', '—', '−', '‐', '‑', '‒', '―':
		return true
	}
	return false
}

// CleanTitle reduces a title to a comparison key: NFKC normalised, dashes
// removed, only letters, digits and spaces kept, lowercased and with runs
// of whitespace collapsed.
func CleanTitle(s string) string {
	return clean(norm.NFKC.String(s), false)
}

// CleanTitleForMatch is CleanTitle with standalone numbers removed as well.
func CleanTitleForMatch(s string) string {
	return clean(norm.NFKC.String(s), true)
}

func clean(s string, dropNumbers bool) string {
	s = strings.Map(func(r rune) rune {
		if isDash(r) {
			return -1
		}
		return r
	}, s)
	if dropNumbers {
		s = standaloneNumber.ReplaceAllString(s, "")
	}

	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsNumber(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.Is(unicode.Z, r), unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity is the Jaro-Winkler similarity of two cleaned titles.
func Similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return smetrics.JaroWinkler(a, b, 0.7, 4)
}

// MatchScore compares two raw titles: 1 when one cleaned title contains the
// other, their similarity otherwise.
func MatchScore(query, candidate string) float64 {
	q, c := CleanTitle(query), CleanTitle(candidate)
	if q == "" || c == "" {
		return 0
	}
	if strings.Contains(c, q) || strings.Contains(q, c) {
		return 1
	}
	return Similarity(q, c)
}

var matchStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "of": true, "in": true, "for": true, "with": true,
	"on": true, "at": true, "by": true, "and": true, "from": true, "to": true,
}

// TitlesMatch reports whether a title found by a lookup service is the title
// that was asked for. Years and preprint noise are ignored. A long query
// matches a shorter result it contains, and a query whose significant words
// all appear in the result matches (one missing word is tolerated for
// queries of five words or more).
func TitlesMatch(query, result string, threshold float64) bool {
	q := denoise(CleanTitle(query))
	r := denoise(CleanTitle(result))
	if q == "" || r == "" {
		return false
	}
	if len(q) > len(r)*3/2 && strings.Contains(q, r) {
		return true
	}
	if Similarity(q, r) >= threshold {
		return true
	}

	qWords := strings.Fields(q)
	rWords := make(map[string]bool)
	for _, w := range strings.Fields(r) {
		rWords[w] = true
	}
	missing := 0
	for _, w := range qWords {
		if !matchStopWords[w] && !rWords[w] {
			missing++
		}
	}
	if missing <= 1 && len(qWords) >= 5 {
		return true
	}
	return missing == 0 && len(q)*10 > len(r)*3
}

func denoise(s string) string {
	s = titleYear.ReplaceAllString(s, "")
	s = titleNoiseWords.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// ContainsHan reports whether s has any Han ideograph.
func ContainsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}
