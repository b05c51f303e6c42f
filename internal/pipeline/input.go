package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/traditionalchinese"

	"github.com/matsen/citeparse/internal/pdf"
	"github.com/matsen/citeparse/internal/token"
)

// listMarker matches "[12] " and "12. " numbering in front of an entry.
var listMarker = regexp.MustCompile(`^\s*(?:\[\d{1,4}\]|\d{1,3}\.)(?:\s+|$)`)

// SplitReferences splits a reference list into one citation per non-blank
// line, trimmed and without list numbering.
func SplitReferences(text string) []string {
	return cleanLines(strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n"))
}

// cleanLines trims lines, strips list numbering and drops lines left empty.
func cleanLines(lines []string) []string {
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// decodeText returns data as UTF-8, decoding it as Big5 when it is not
// valid UTF-8, and drops a leading byte order mark.
func decodeText(data []byte) (string, error) {
	if !utf8.Valid(data) {
		dec, err := traditionalchinese.Big5.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decoding input as Big5: %w", err)
		}
		data = dec
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}

// ReadReferences reads a plain-text reference list from r.
func ReadReferences(r io.Reader) ([]string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}
	return SplitReferences(text), nil
}

// ReadInput reads the references in the file at path. PDFs are cut at their
// reference section heading; anything else is read as one reference per
// line. "-" reads standard input. An input without any reference is
// rejected with token.ErrInvalidInput.
func ReadInput(ctx context.Context, path string) ([]string, error) {
	var (
		lines []string
		err   error
	)
	switch {
	case path == "-":
		lines, err = ReadReferences(os.Stdin)
	case strings.EqualFold(filepath.Ext(path), ".pdf"):
		lines, err = pdf.ExtractReferences(ctx, path)
		lines = cleanLines(lines)
	default:
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, fmt.Errorf("opening input: %w", err)
		}
		defer f.Close()
		lines, err = ReadReferences(f)
	}
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: no references in %s", token.ErrInvalidInput, path)
	}
	return lines, nil
}
