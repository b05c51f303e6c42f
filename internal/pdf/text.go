// Package pdf pulls the reference list out of PDF documents.
package pdf

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// ExtractText extracts the plain text of the first maxPages pages of a PDF
// file (all pages when maxPages <= 0). Pages that fail to decode are
// skipped. Extraction stops between pages when ctx is done.
func ExtractText(ctx context.Context, filePath string, maxPages int) (string, error) {
	f, r, err := pdf.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()
	return pagesText(ctx, r, maxPages)
}

// ExtractTextReader is ExtractText for an in-memory or already open PDF.
func ExtractTextReader(ctx context.Context, ra io.ReaderAt, size int64, maxPages int) (string, error) {
	r, err := pdf.NewReader(ra, size)
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}
	return pagesText(ctx, r, maxPages)
}

func pagesText(ctx context.Context, r *pdf.Reader, maxPages int) (string, error) {
	if maxPages <= 0 || maxPages > r.NumPage() {
		maxPages = r.NumPage()
	}

	var builder strings.Builder
	for i := 1; i <= maxPages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		builder.WriteString(text)
		builder.WriteString("\n")
	}
	return builder.String(), nil
}

// referenceHeading matches a line that introduces the reference list.
var referenceHeading = regexp.MustCompile(`(?i)^\s*(?:\d+\.?\s*)?(?:references|bibliography|works\s+cited|literature\s+cited|參考文獻|参考文献)\s*:?\s*$`)

// ReferenceSection returns the text after the last reference-list heading,
// or all of text when there is none.
func ReferenceSection(text string) string {
	lines := strings.Split(text, "\n")
	start := -1
	for i, l := range lines {
		if referenceHeading.MatchString(l) {
			start = i + 1
		}
	}
	if start < 0 {
		return text
	}
	return strings.Join(lines[start:], "\n")
}

// entryStart matches list markers such as "[12]" or "12." at the start of
// a line.
var entryStart = regexp.MustCompile(`^\s*(?:\[\d{1,4}\]|\d{1,4}\.\s)`)

// ReferenceLines rejoins the wrapped lines of a reference section into one
// line per reference. A line starts a new reference when it carries a list
// marker, or when the previous line ended a sentence and this one starts
// with a capital letter or an ideograph. A hyphen that ends a line joins
// the word across the break.
func ReferenceLines(section string) []string {
	var out []string
	var cur strings.Builder
	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}

	prev := ""
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cur.Len() == 0 || startsEntry(prev, line) {
			flush()
			cur.WriteString(line)
		} else if strings.HasSuffix(prev, "-") && startsLower(line) {
			s := strings.TrimSuffix(cur.String(), "-")
			cur.Reset()
			cur.WriteString(s)
			cur.WriteString(line)
		} else {
			cur.WriteByte(' ')
			cur.WriteString(line)
		}
		prev = line
	}
	flush()
	return out
}

func startsEntry(prev, line string) bool {
	if entryStart.MatchString(line) {
		return true
	}
	if !strings.HasSuffix(prev, ".") {
		return false
	}
	r, _ := utf8.DecodeRuneInString(line)
	return unicode.IsUpper(r) || unicode.Is(unicode.Han, r)
}

func startsLower(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsLower(r)
}

// ExtractReferences reads a PDF and returns its references, one per entry.
func ExtractReferences(ctx context.Context, filePath string) ([]string, error) {
	text, err := ExtractText(ctx, filePath, 0)
	if err != nil {
		return nil, err
	}
	return ReferenceLines(ReferenceSection(text)), nil
}
