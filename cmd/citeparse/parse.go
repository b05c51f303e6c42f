package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/export"
	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/reference"
)

var (
	parseModel     modelFlags
	parseFormat    string
	parseOutput    string
	parseWorkers   int
	parseAppendBib string
)

func init() {
	parseModel.register(parseCmd)
	parseCmd.Flags().StringVarP(&parseFormat, "format", "f", "", "Output format: "+strings.Join(export.Formats(), ", ")+" (default: format from config)")
	parseCmd.Flags().StringVarP(&parseOutput, "output", "o", "", "Write results to this file instead of stdout")
	parseCmd.Flags().IntVarP(&parseWorkers, "workers", "w", 0, "Parallel parses (default: workers from config, else one per CPU)")
	parseCmd.Flags().StringVar(&parseAppendBib, "append-bib", "", "Also append parsed references to this BibTeX file, skipping ones already in it")
	rootCmd.AddCommand(parseCmd)
}

var parseCmd = &cobra.Command{
	Use:   "parse <input-file>",
	Short: "Parse a list of references",
	Long: `Parse a list of references, one per line, into labeled fields.

The input may be a text file (UTF-8, or Big5), a PDF whose reference
section is extracted, or "-" for standard input. Leading list markers
such as "[3]" or "3." are dropped.

A reference that cannot be parsed is reported in its result and the rest
of the batch continues.

Examples:
  citeparse parse refs.txt
  citeparse parse paper.pdf --format csv -o refs.csv
  citeparse parse refs.txt --format bibtex --append-bib library.bib
  cat refs.txt | citeparse parse - --human`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	format, err := export.ParseFormat(firstNonEmpty(parseFormat, cfg.Format))
	if err != nil {
		return err
	}

	start := time.Now()
	results, err := parseFile(ctx, args[0], &parseModel, parseWorkers)
	if err != nil {
		return err
	}
	summary := pipeline.Summarize(results)

	if humanOutput && parseOutput == "" && parseFormat == "" {
		printResultsHuman(results)
		fmt.Fprintln(os.Stderr, formatSummary(summary, time.Since(start)))
	} else if err := writeResultsTo(parseOutput, format, results); err != nil {
		return err
	}

	if parseAppendBib != "" {
		refs := parsedReferences(results)
		added, skipped, err := export.AppendToBibFile(parseAppendBib, refs)
		if err != nil {
			return fmt.Errorf("appending to %s: %w", parseAppendBib, err)
		}
		logger.Info("updated bibliography", "path", parseAppendBib, "added", added, "skipped", skipped)
	}
	return nil
}

// parseFile reads and parses every reference in path. An unreadable or
// empty input fails with ExitInvalidInput and a model that cannot be
// loaded with ExitModelError. Per-reference failures stay in the results.
func parseFile(ctx context.Context, path string, mf *modelFlags, workers int) ([]pipeline.Result, error) {
	lines, err := pipeline.ReadInput(ctx, path)
	if err != nil {
		return nil, withExitCode(ExitInvalidInput, fmt.Errorf("reading input: %w", err))
	}

	store, err := mf.openStore(ctx)
	if err != nil {
		return nil, withExitCode(ExitModelError, fmt.Errorf("loading model: %w", err))
	}
	if workers == 0 {
		workers = cfg.Workers
	}
	parser := pipeline.NewParser(store, workers)

	start := time.Now()
	results, err := parser.ParseAll(ctx, lines)
	if err != nil {
		return nil, fmt.Errorf("parsing: %w", err)
	}
	summary := pipeline.Summarize(results)
	logger.Info("parse finished",
		"references", summary.Total, "parsed", summary.Parsed, "failed", summary.Failed(),
		"workers", parser.Workers(), "took", time.Since(start))
	return results, nil
}

// mustParseFile is parseFile for commands that exit on the first error.
func mustParseFile(ctx context.Context, path string, mf *modelFlags, workers int) []pipeline.Result {
	results, err := parseFile(ctx, path, mf, workers)
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}
	return results
}

func writeResultsTo(path string, format export.Format, results []pipeline.Result) error {
	w, err := openOutput(path)
	if err != nil {
		return err
	}
	if err := export.WriteResults(w, format, results); err != nil {
		w.Close()
		return fmt.Errorf("writing results: %w", err)
	}
	return w.Close()
}

// parsedReferences returns the normalized references of the successful
// results.
func parsedReferences(results []pipeline.Result) []reference.Reference {
	var refs []reference.Reference
	for _, r := range results {
		if r.OK() {
			refs = append(refs, *r.Reference)
		}
	}
	return refs
}

func printResultsHuman(results []pipeline.Result) {
	for _, r := range results {
		if !r.OK() {
			outputHuman("%d. [failed] %s\n   %s\n\n", r.Index, truncateString(r.Text, ParseTitleMaxLen), r.Error)
			continue
		}
		ref := r.Reference
		outputHuman("%d. %s\n", r.Index, truncateString(firstNonEmpty(ref.Title, "(no title)"), ParseTitleMaxLen))
		if len(ref.Authors) > 0 || ref.Published.Year != 0 {
			outputHuman("   %s (%d)\n", formatAuthorsShort(ref.Authors, 3), ref.Published.Year)
		}
		if ref.Venue != "" {
			outputHuman("   %s\n", ref.Venue)
		}
		if ref.DOI != "" {
			outputHuman("   doi:%s\n", ref.DOI)
		}
		outputHuman("\n")
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
