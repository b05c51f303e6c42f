// Package export renders parsed references in the supported output formats.
package export

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/matsen/citeparse/internal/reference"
)

// ToBibTeX converts a reference to a BibTeX entry with the given citation key.
func ToBibTeX(ref reference.Reference, key string) string {
	entryType := determineEntryType(ref)
	var b strings.Builder

	b.WriteString(fmt.Sprintf("@%s{%s,\n", entryType, key))

	if len(ref.Authors) > 0 {
		b.WriteString(fmt.Sprintf("  author = {%s},\n", formatAuthors(ref.Authors)))
	}

	b.WriteString(fmt.Sprintf("  title = {%s},\n", escapeLatex(ref.Title)))

	if ref.Venue != "" {
		fieldName := "journal"
		switch entryType {
		case "inproceedings":
			fieldName = "booktitle"
		case "book":
			fieldName = "series"
		}
		b.WriteString(fmt.Sprintf("  %s = {%s},\n", fieldName, escapeLatex(ref.Venue)))
	}
	if ref.Publisher != "" {
		b.WriteString(fmt.Sprintf("  publisher = {%s},\n", escapeLatex(ref.Publisher)))
	}
	if ref.Volume != "" {
		b.WriteString(fmt.Sprintf("  volume = {%s},\n", escapeLatex(ref.Volume)))
	}
	if ref.Pages != "" {
		b.WriteString(fmt.Sprintf("  pages = {%s},\n", formatPages(ref.Pages)))
	}

	if ref.Published.Year > 0 {
		b.WriteString(fmt.Sprintf("  year = {%d},\n", ref.Published.Year))
	}
	if ref.Published.Month > 0 {
		b.WriteString(fmt.Sprintf("  month = {%d},\n", ref.Published.Month))
	}

	if ref.DOI != "" {
		b.WriteString(fmt.Sprintf("  doi = {%s},\n", ref.DOI))
	}
	if ref.URL != "" {
		b.WriteString(fmt.Sprintf("  url = {%s},\n", ref.URL))
	}

	b.WriteString("}\n")

	return b.String()
}

// ToBibTeXList converts multiple references to BibTeX, giving each entry a
// unique citation key.
func ToBibTeXList(refs []reference.Reference) string {
	keys := NewKeySet()
	var entries []string
	for _, ref := range refs {
		entries = append(entries, ToBibTeX(ref, keys.Next(ref)))
	}
	return strings.Join(entries, "\n")
}

// CiteKey builds the base citation key: first author's family name followed
// by the year, e.g. "Smith2020". References without authors use the first
// word of the title.
func CiteKey(ref reference.Reference) string {
	var stem string
	if a, ok := ref.FirstAuthor(); ok {
		stem = keyPart(a.Last)
	}
	if stem == "" {
		for _, w := range strings.Fields(ref.Title) {
			if stem = keyPart(w); stem != "" {
				break
			}
		}
	}
	if stem == "" {
		stem = "ref"
	}
	if ref.Published.Year > 0 {
		stem += strconv.Itoa(ref.Published.Year)
	}
	return stem
}

// keyPart keeps the letters and digits of s. Non-Latin names are kept as is
// since biber accepts UTF-8 keys.
func keyPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// KeySet hands out citation keys, suffixing repeats with a, b, c...
type KeySet struct {
	used map[string]bool
}

// NewKeySet creates an empty key set.
func NewKeySet() *KeySet {
	return &KeySet{used: make(map[string]bool)}
}

// Reserve marks key as taken.
func (k *KeySet) Reserve(key string) {
	k.used[key] = true
}

// Next returns an unused key for ref and reserves it.
func (k *KeySet) Next(ref reference.Reference) string {
	base := CiteKey(ref)
	key := base
	for i := 0; k.used[key]; i++ {
		key = base + suffix(i)
	}
	k.used[key] = true
	return key
}

// suffix maps 0, 1, ... 25, 26 ... to a, b, ... z, aa ...
func suffix(i int) string {
	s := ""
	for {
		s = string(rune('a'+i%26)) + s
		i = i/26 - 1
		if i < 0 {
			return s
		}
	}
}

// determineEntryType returns the BibTeX entry type for a reference.
func determineEntryType(ref reference.Reference) string {
	venue := strings.ToLower(ref.Venue)

	// Preprints
	if strings.Contains(venue, "arxiv") ||
		strings.Contains(venue, "biorxiv") ||
		strings.Contains(venue, "medrxiv") {
		return "article"
	}

	// Conference proceedings
	if strings.Contains(venue, "proceedings") ||
		strings.Contains(venue, "conference") ||
		strings.Contains(venue, "workshop") ||
		strings.Contains(venue, "symposium") {
		return "inproceedings"
	}

	// A publisher with no journal is a book
	if ref.Venue == "" && ref.Publisher != "" {
		return "book"
	}

	if ref.Venue == "" && ref.Publisher == "" {
		return "misc"
	}

	return "article"
}

// formatAuthors formats authors in BibTeX style: "Last, First and Last, First"
func formatAuthors(authors []reference.Author) string {
	var formatted []string
	for _, a := range authors {
		formatted = append(formatted, escapeLatex(a.String()))
	}
	return strings.Join(formatted, " and ")
}

// formatPages writes page ranges with the BibTeX en-dash "--".
func formatPages(pages string) string {
	p := strings.NewReplacer("–", "-", "—", "-", "−", "-").Replace(pages)
	if i := strings.Index(p, "-"); i > 0 && !strings.Contains(p, "--") {
		p = strings.TrimSpace(p[:i]) + "--" + strings.TrimSpace(strings.TrimLeft(p[i:], "-"))
	}
	return escapeLatex(p)
}

// escapeLatex escapes special LaTeX characters.
func escapeLatex(s string) string {
	// Order matters: & must be first (before other escapes that might produce &)
	replacer := strings.NewReplacer(
		"&", `\&`,
		"%", `\%`,
		"$", `\$`,
		"#", `\#`,
		"_", `\_`,
		"{", `\{`,
		"}", `\}`,
		"~", `\textasciitilde{}`,
		"^", `\textasciicircum{}`,
	)
	return replacer.Replace(s)
}
