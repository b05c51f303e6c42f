package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/matsen/citeparse/internal/reference"
)

var (
	etAl           = regexp.MustCompile(`(?i)[,\s]*\bet\.?\s+al\.?.*$`)
	authorSplitter = regexp.MustCompile(`\s*(?:;|&(?:amp;)?|\band\b|、)\s*`)
)

// SplitAuthors splits an author field into names. It handles lists of
// "Last, F." pairs ("Smith, J., Doe, A. & Roe, B.") and lists of
// "First Last" names separated by commas, semicolons, "&" or "and".
// "et al." and anything after it is dropped.
func SplitAuthors(s string) []reference.Author {
	s = etAl.ReplaceAllString(strings.TrimSpace(s), "")
	var out []reference.Author
	for _, chunk := range authorSplitter.Split(s, -1) {
		chunk = strings.Trim(chunk, " ,")
		if chunk == "" {
			continue
		}
		out = append(out, splitChunk(chunk)...)
	}
	return out
}

func splitChunk(chunk string) []reference.Author {
	var parts []string
	for _, p := range strings.Split(chunk, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}

	// Last, Initials[, Last, Initials...]
	if len(parts)%2 == 0 && pairsAreInitials(parts) {
		out := make([]reference.Author, 0, len(parts)/2)
		for i := 0; i < len(parts); i += 2 {
			out = append(out, reference.Author{Last: parts[i], First: parts[i+1]})
		}
		return out
	}

	// A single "Last, Given Names" pair.
	if len(parts) == 2 && !strings.Contains(parts[0], " ") && !strings.Contains(parts[1], " ") {
		return []reference.Author{{Last: parts[0], First: parts[1]}}
	}

	out := make([]reference.Author, 0, len(parts))
	for _, p := range parts {
		out = append(out, splitName(p))
	}
	return out
}

func pairsAreInitials(parts []string) bool {
	for i := 1; i < len(parts); i += 2 {
		if !isInitials(parts[i]) {
			return false
		}
	}
	return true
}

// isInitials reports whether s looks like "J.", "J. R." or "J.-P.".
func isInitials(s string) bool {
	letters := 0
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			letters++
		case r == '.' || r == '-' || r == ' ':
		default:
			return false
		}
	}
	return letters > 0 && letters <= 4
}

// splitName turns "Jane Q. Public" into First "Jane Q.", Last "Public".
// Name particles stay with the family name.
func splitName(name string) reference.Author {
	words := strings.Fields(name)
	if len(words) == 1 {
		return reference.Author{Last: words[0]}
	}
	cut := len(words) - 1
	for cut > 1 && isParticle(words[cut-1]) {
		cut--
	}
	return reference.Author{
		First: strings.Join(words[:cut], " "),
		Last:  strings.Join(words[cut:], " "),
	}
}

func isParticle(w string) bool {
	switch strings.ToLower(w) {
	case "van", "von", "der", "den", "de", "del", "della", "di", "da", "du", "la", "le", "ter", "ten":
		return true
	}
	return false
}
