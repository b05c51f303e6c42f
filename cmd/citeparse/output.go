package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/reference"
	"github.com/matsen/citeparse/internal/token"
)

// Title truncation lengths by context
const (
	ParseTitleMaxLen = 60 // Used in parse --human output
	CheckTitleMaxLen = 70 // Used in check and verify output
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputHuman writes a human-readable string to stdout.
func outputHuman(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

// outputError writes an error message to stderr and returns the exit code.
func outputError(code int, format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	return code
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// exitError attaches an exit code to an error returned from a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

// withExitCode makes main exit with code when err reaches it.
func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// exitCodeFor maps an error to the exit code of the condition it wraps.
// A code attached with withExitCode wins.
func exitCodeFor(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, token.ErrInvalidInput):
		return ExitInvalidInput
	case errors.Is(err, modelstore.ErrCorruptModel), errors.Is(err, crf.ErrModelMismatch):
		return ExitModelError
	}
	return ExitError
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// openOutput returns stdout for "" or "-" and a new file otherwise.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", path, err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// truncateString truncates a string to maxLen runes, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

// formatAuthorsShort formats authors as "Last, Last, et al." beyond maxCount.
func formatAuthorsShort(authors []reference.Author, maxCount int) string {
	var names []string
	for i, a := range authors {
		if i >= maxCount {
			names = append(names, "et al.")
			break
		}
		names = append(names, a.Last)
	}
	return strings.Join(names, ", ")
}

// formatSummary renders a batch summary for stderr.
func formatSummary(s pipeline.Summary, took time.Duration) string {
	line := fmt.Sprintf("parsed %s of %s references in %s",
		humanize.Comma(int64(s.Parsed)), humanize.Comma(int64(s.Total)), formatDuration(took))
	if s.Failed() > 0 {
		line += fmt.Sprintf(" (%d invalid, %d undecodable, %d other)",
			s.InvalidInput, s.DecodeFailure, s.OtherFailure)
	}
	return line
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
