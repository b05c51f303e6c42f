package export

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/matsen/citeparse/internal/normalize"
	"github.com/matsen/citeparse/internal/reference"
)

var (
	// Entry start: @type{key,
	entryStartRegex = regexp.MustCompile(`@\w+\{([^,]+),`)
	// doi = {value} or doi = "value"
	doiFieldRegex = regexp.MustCompile(`(?i)^\s*doi\s*=\s*[\{"]([^\}"]+)[\}"]`)
	// title = {value} or title = "value", single line only
	titleFieldRegex = regexp.MustCompile(`(?i)^\s*title\s*=\s*[\{"](.+)[\}"]\s*,?\s*$`)
)

// BibTeXIndex indexes existing BibTeX entries for deduplication.
type BibTeXIndex struct {
	// Keys maps citation keys to true for existence check
	Keys map[string]bool
	// DOIs maps normalized DOI values to citation keys
	DOIs map[string]string
	// Titles maps cleaned titles to citation keys
	Titles map[string]string
}

// NewBibTeXIndex creates an empty BibTeX index.
func NewBibTeXIndex() *BibTeXIndex {
	return &BibTeXIndex{
		Keys:   make(map[string]bool),
		DOIs:   make(map[string]string),
		Titles: make(map[string]string),
	}
}

// Has reports whether ref is already in the index. DOI is the primary match;
// the cleaned title is the fallback when ref has no DOI.
func (idx *BibTeXIndex) Has(ref reference.Reference) bool {
	if ref.DOI != "" {
		if _, ok := idx.DOIs[normalizeDOI(ref.DOI)]; ok {
			return true
		}
	}
	clean := normalize.CleanTitle(ref.Title)
	if clean == "" {
		return false
	}
	_, ok := idx.Titles[clean]
	return ok
}

// Add records an entry under key.
func (idx *BibTeXIndex) Add(key string, ref reference.Reference) {
	idx.Keys[key] = true
	if ref.DOI != "" {
		idx.DOIs[normalizeDOI(ref.DOI)] = key
	}
	if clean := normalize.CleanTitle(ref.Title); clean != "" {
		idx.Titles[clean] = key
	}
}

// ParseBibTeXFile builds an index from an existing .bib file.
// Returns an empty index if the file doesn't exist.
func ParseBibTeXFile(path string) (*BibTeXIndex, error) {
	idx := NewBibTeXIndex()

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("opening bib file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var currentKey string

	for scanner.Scan() {
		line := scanner.Text()

		if m := entryStartRegex.FindStringSubmatch(line); len(m) > 1 {
			currentKey = strings.TrimSpace(m[1])
			idx.Keys[currentKey] = true
		}
		if currentKey == "" {
			continue
		}
		if m := doiFieldRegex.FindStringSubmatch(line); len(m) > 1 {
			if doi := normalizeDOI(m[1]); doi != "" {
				idx.DOIs[doi] = currentKey
			}
		}
		if m := titleFieldRegex.FindStringSubmatch(line); len(m) > 1 {
			if clean := normalize.CleanTitle(unescapeLatex(m[1])); clean != "" {
				idx.Titles[clean] = currentKey
			}
		}
	}

	return idx, scanner.Err()
}

// normalizeDOI normalizes a DOI for comparison.
func normalizeDOI(doi string) string {
	if d := normalize.ExtractDOI(doi); d != "" {
		return strings.ToLower(d)
	}
	return strings.ToLower(strings.TrimSpace(doi))
}

func unescapeLatex(s string) string {
	return strings.NewReplacer(`\&`, "&", `\%`, "%", `\$`, "$", `\#`, "#", `\_`, "_", `\{`, "{", `\}`, "}").Replace(s)
}

// AppendToBibFile appends the references not already present in the .bib
// file at path, with keys that do not collide with existing ones. It returns
// how many entries were added and how many were skipped as duplicates.
func AppendToBibFile(path string, refs []reference.Reference) (added, skipped int, err error) {
	idx, err := ParseBibTeXFile(path)
	if err != nil {
		return 0, 0, err
	}
	keys := NewKeySet()
	for k := range idx.Keys {
		keys.Reserve(k)
	}

	var entries []string
	for _, ref := range refs {
		if idx.Has(ref) {
			skipped++
			continue
		}
		key := keys.Next(ref)
		idx.Add(key, ref)
		entries = append(entries, ToBibTeX(ref, key))
	}
	if len(entries) == 0 {
		return 0, skipped, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return 0, skipped, fmt.Errorf("opening bib file for append: %w", err)
	}
	defer file.Close()

	// Ensure we start on a new line
	if _, err := file.WriteString("\n" + strings.Join(entries, "\n")); err != nil {
		return 0, skipped, fmt.Errorf("writing bib file: %w", err)
	}
	return len(entries), skipped, nil
}
