package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/export"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/storage"
)

var (
	checkModel     modelFlags
	checkDB        string
	checkThreshold float64
	checkFormat    string
)

func init() {
	checkModel.register(checkCmd)
	checkCmd.Flags().StringVar(&checkDB, "db", "", "Catalog database path (default: catalog_path from config)")
	checkCmd.Flags().Float64Var(&checkThreshold, "threshold", 0, "Title similarity needed for a match (default: match_threshold from config)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "json", "Output format: json, jsonl, csv or yaml")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check <input-file>",
	Short: "Match parsed titles against the local catalog",
	Long: `Parse a list of references and look each title up in the local title
catalog built by "citeparse catalog build".

A title matches when one cleaned title contains the other or their
Jaro-Winkler similarity reaches the threshold.

Examples:
  citeparse check refs.txt --db catalog.db
  citeparse check refs.txt --threshold 0.9 --format csv`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

// CheckResult is one line of check output.
type CheckResult struct {
	Index   int                   `json:"index"`
	Title   string                `json:"title"`
	Matched bool                  `json:"matched"`
	Match   *storage.CatalogMatch `json:"match,omitempty" yaml:"match,omitempty"`
	Error   string                `json:"error,omitempty" yaml:"error,omitempty"`
}

// checkCatalog looks up every parsed title. Results without a title are
// reported unmatched.
func checkCatalog(c *storage.Catalog, results []pipeline.Result, threshold float64) ([]CheckResult, error) {
	out := make([]CheckResult, 0, len(results))
	for _, r := range results {
		cr := CheckResult{Index: r.Index, Error: r.Error}
		if r.OK() {
			cr.Title = r.Reference.Title
		}
		if cr.Title != "" {
			m, ok, err := c.Match(cr.Title, threshold)
			if err != nil {
				return nil, fmt.Errorf("matching reference %d: %w", r.Index, err)
			}
			if m.Score > 0 {
				cr.Match = &m
			}
			cr.Matched = ok
		}
		out = append(out, cr)
	}
	return out, nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	format, err := export.ParseFormat(checkFormat)
	if err != nil || format == export.FormatBibTeX {
		exitWithError(ExitError, "unsupported format %q for check", checkFormat)
	}
	threshold := checkThreshold
	if threshold == 0 {
		threshold = cfg.MatchThreshold
	}

	c := mustOpenCatalog(catalogPath(checkDB))
	defer c.Close()
	if n, err := c.Count(); err != nil {
		exitWithError(ExitError, "reading catalog: %v", err)
	} else if n == 0 {
		exitWithError(ExitError, "catalog is empty; run 'citeparse catalog build' first")
	}

	results := mustParseFile(ctx, args[0], &checkModel, 0)
	checked, err := checkCatalog(c, results, threshold)
	if err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		matched := 0
		for _, r := range checked {
			mark := "  "
			if r.Matched {
				mark = "✓ "
				matched++
			}
			outputHuman("%s%d. %s\n", mark, r.Index, truncateString(firstNonEmpty(r.Title, r.Error, "(no title)"), CheckTitleMaxLen))
			if r.Match != nil {
				outputHuman("     %.2f %s\n", r.Match.Score, truncateString(r.Match.Title, CheckTitleMaxLen))
			}
		}
		outputHuman("\n%d of %d titles found in the catalog\n", matched, len(checked))
		return nil
	}
	return writeChecks(format, checked)
}

func writeChecks(format export.Format, checked []CheckResult) error {
	w, _ := openOutput("")
	switch format {
	case export.FormatJSONL:
		return export.WriteJSONL(w, checked)
	case export.FormatYAML:
		return export.WriteYAML(w, checked)
	case export.FormatCSV:
		records := make([][]string, len(checked))
		for i, r := range checked {
			var title string
			var score string
			if r.Match != nil {
				title = r.Match.Title
				score = strconv.FormatFloat(r.Match.Score, 'f', 3, 64)
			}
			records[i] = []string{strconv.Itoa(r.Index), r.Title, strconv.FormatBool(r.Matched), title, score, r.Error}
		}
		return export.WriteCSV(w, []string{"index", "title", "matched", "catalog_title", "score", "error"}, records)
	}
	return export.WriteJSON(w, checked)
}
