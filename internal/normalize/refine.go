package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/matsen/citeparse/internal/label"
	"github.com/matsen/citeparse/internal/reference"
)

// edgeNoise is trimmed from both ends of doi, url, title and year values.
const edgeNoise = " ,.;)]}>"

// minTitleLen is the rune length below which a title is treated as missing.
const minTitleLen = 5

var (
	// "& Heinzl, A. (2021). Real title" left over from a misparsed author list.
	coauthorResidue = regexp.MustCompile(`(?i)^(?:&(?:amp;)?|and\s)\s*[^0-9]+?\(?\d{4}\)?[.\s]+(.*)$`)
	leadingYear     = regexp.MustCompile(`^\s*\d{4}\.[.\s]*`)
	trailingNoise   = regexp.MustCompile(`(?i)\.?\s*(?:\barxiv\b|\bavailable\s+(?:at|from|online)\b|\bavailable:).*$`)
	abbrevTitle     = regexp.MustCompile(`^([A-Z0-9\-.\s]{2,12}:\s*.+?)(?:\s*[,\[(]|\s*Available|\s*https?://|\.|$)`)
	doiPattern      = regexp.MustCompile(`10\.\d{4,9}/[-._;()/:a-zA-Z0-9]+`)
	yearPattern     = regexp.MustCompile(`\d{4}`)
)

// Refine builds a Reference from assembled fields, repairing the common
// ways a title gets mislabelled and filling the DOI from the URL.
func Refine(p reference.Parsed) reference.Reference {
	r := reference.Reference{
		Title:     p.Get(label.Title),
		Venue:     p.Get(label.Journal),
		Publisher: p.Get(label.Publisher),
		Volume:    p.Get(label.Volume),
		Pages:     p.Get(label.Pages),
		DOI:       strings.Trim(p.First(reference.FieldDOI), edgeNoise),
		URL:       strings.Trim(p.First(reference.FieldURL), edgeNoise),
		Raw:       strings.TrimSpace(p.Text),
	}
	year := strings.Trim(p.Get(label.Year), edgeNoise)
	if y := yearPattern.FindString(year); y != "" {
		r.Published.Year, _ = strconv.Atoi(y)
	}
	r.Authors = SplitAuthors(p.Get(label.Author))
	r.Title = RepairTitle(r.Title, r.Raw, year, r.Venue, r.Publisher)

	if doi := ExtractDOI(r.URL); doi != "" {
		r.DOI = doi
	}
	return r
}

// RepairTitle strips noise from an assembled title and, when little is
// left, recovers one from the raw text or a venue that was long enough to
// be a misplaced title.
func RepairTitle(title, raw, year string, venues ...string) string {
	title = strings.Trim(title, edgeNoise)

	if strings.HasPrefix(title, "&") || strings.HasPrefix(strings.ToLower(title), "and ") {
		if m := coauthorResidue.FindStringSubmatch(title); m != nil {
			if rest := strings.TrimSpace(m[1]); utf8.RuneCountInString(rest) > minTitleLen {
				title = rest
			}
		}
	}
	title = leadingYear.ReplaceAllString(title, "")
	title = trailingNoise.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)

	if utf8.RuneCountInString(title) >= minTitleLen {
		return title
	}

	if m := abbrevTitle.FindStringSubmatch(raw); m != nil {
		return strings.TrimSpace(m[1])
	}
	for _, v := range venues {
		if utf8.RuneCountInString(v) > 15 {
			return strings.TrimSpace(v)
		}
	}

	if title == "" && len(year) >= 4 {
		if _, err := strconv.Atoi(year[:4]); err == nil {
			after := regexp.MustCompile(regexp.QuoteMeta(year[:4]) + `\W+\s*(.+)`)
			if m := after.FindStringSubmatch(raw); m != nil {
				cand := trailingNoise.ReplaceAllString(strings.TrimSpace(m[1]), "")
				if utf8.RuneCountInString(cand) > minTitleLen {
					return strings.Trim(cand, " .")
				}
			}
		}
	}
	return title
}

// ExtractDOI returns the first DOI in s, without trailing periods.
func ExtractDOI(s string) string {
	return strings.TrimRight(doiPattern.FindString(s), ".")
}
