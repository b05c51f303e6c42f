package main

import (
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/config"
	"github.com/matsen/citeparse/internal/crossref"
	"github.com/matsen/citeparse/internal/export"
	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/s2"
	"github.com/matsen/citeparse/internal/verify"
)

var (
	verifyModel     modelFlags
	verifyDB        string
	verifyThreshold float64
	verifyFormat    string
	verifyWorkers   int
	verifyNoURL     bool
	verifyMailto    string
	verifyNoS2      bool
)

func init() {
	verifyModel.register(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyDB, "db", "", "Catalog database for titles with Han characters (default: catalog_path from config)")
	verifyCmd.Flags().Float64Var(&verifyThreshold, "threshold", 0, "Title similarity needed for a match (default: match_threshold from config)")
	verifyCmd.Flags().StringVarP(&verifyFormat, "format", "f", "json", "Output format: json, jsonl, csv or yaml")
	verifyCmd.Flags().IntVarP(&verifyWorkers, "workers", "w", 4, "Concurrent lookups")
	verifyCmd.Flags().BoolVar(&verifyNoURL, "no-url-check", false, "Do not check the references' own URLs")
	verifyCmd.Flags().StringVar(&verifyMailto, "mailto", "", "Contact address sent to Crossref (default: crossref_mailto from config or CROSSREF_MAILTO)")
	verifyCmd.Flags().BoolVar(&verifyNoS2, "no-s2", false, "Skip Semantic Scholar even when an API key is configured")
	rootCmd.AddCommand(verifyCmd)
}

var verifyCmd = &cobra.Command{
	Use:   "verify <input-file>",
	Short: "Look parsed references up in the catalog, Crossref and Semantic Scholar",
	Long: `Parse a list of references and try to confirm each one exists.

Each reference is tried, in order, against:
  1. the local title catalog (titles with Han characters only)
  2. Crossref by DOI, when the reference has one and the titles agree
  3. Crossref bibliographic search, checking title and first author
  4. Semantic Scholar title search, checking title and first author, when
     s2_api_key (or S2_API_KEY, also read from .env) is set
  5. the reference's own URL, which counts as "url" when it answers and
     "url-dead" when it does not

Crossref requests are rate limited. Set crossref_mailto (or
CROSSREF_MAILTO) to be routed to Crossref's polite pool. Semantic Scholar
is queried at one request per second.

Examples:
  citeparse verify refs.txt
  citeparse verify refs.txt --db catalog.db --format csv > verified.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	format, err := export.ParseFormat(verifyFormat)
	if err != nil || format == export.FormatBibTeX {
		exitWithError(ExitError, "unsupported format %q for verify", verifyFormat)
	}

	v := &verify.Verifier{
		Threshold: verifyThreshold,
		Workers:   verifyWorkers,
	}
	if v.Threshold == 0 {
		v.Threshold = cfg.MatchThreshold
	}
	if p := firstNonEmpty(verifyDB, cfg.CatalogPath); p != "" {
		c := mustOpenCatalog(p)
		defer c.Close()
		v.Catalog = c
	}
	var opts []crossref.ClientOption
	if m := firstNonEmpty(verifyMailto, cfg.CrossrefMailto); m != "" {
		opts = append(opts, crossref.WithMailto(m))
	}
	v.Finder = crossref.NewClient(opts...)
	v.Papers = paperFinder(cfg, verifyNoS2)
	if !verifyNoURL {
		v.HTTP = &http.Client{Timeout: verify.URLTimeout}
	}

	results := mustParseFile(ctx, args[0], &verifyModel, 0)

	start := time.Now()
	outcomes, err := v.VerifyAll(ctx, results)
	if err != nil {
		exitWithError(ExitError, "verifying: %v", err)
	}
	tally := verify.Tally(outcomes)
	logger.Info("verify finished", "references", len(outcomes), "steps", tally, "took", time.Since(start))

	if humanOutput {
		printOutcomesHuman(outcomes, tally)
		return nil
	}
	return writeOutcomes(format, outcomes)
}

// paperFinder returns a Semantic Scholar client when a key is configured
// and the step is not skipped, and nil otherwise.
func paperFinder(c *config.Config, skip bool) verify.PaperFinder {
	if skip || c.S2APIKey == "" {
		return nil
	}
	logger.Debug("semantic scholar lookups enabled")
	return s2.NewClient(s2.WithAPIKey(c.S2APIKey))
}

func printOutcomesHuman(outcomes []verify.Outcome, tally map[string]int) {
	for _, o := range outcomes {
		step := o.Step
		if step == "" {
			step = "not found"
		}
		outputHuman("%d. [%s] %s\n", o.Index, step, truncateString(firstNonEmpty(o.Title, o.Text), CheckTitleMaxLen))
		if o.Source != "" {
			outputHuman("   %s\n", o.Source)
		}
		if o.Error != "" {
			outputHuman("   error: %s\n", o.Error)
		}
	}

	steps := make([]string, 0, len(tally))
	for s := range tally {
		steps = append(steps, s)
	}
	sort.Strings(steps)
	outputHuman("\n")
	for _, s := range steps {
		name := s
		if name == "" {
			name = "not found"
		}
		outputHuman("%-16s %d\n", name, tally[s])
	}
}

func writeOutcomes(format export.Format, outcomes []verify.Outcome) error {
	w, _ := openOutput("")
	switch format {
	case export.FormatJSONL:
		return export.WriteJSONL(w, outcomes)
	case export.FormatYAML:
		return export.WriteYAML(w, outcomes)
	case export.FormatCSV:
		records := make([][]string, len(outcomes))
		for i, o := range outcomes {
			records[i] = []string{strconv.Itoa(o.Index), o.Title, o.Step, o.Source, o.Error, o.Text}
		}
		return export.WriteCSV(w, []string{"index", "title", "step", "source", "error", "text"}, records)
	}
	return export.WriteJSON(w, outcomes)
}
