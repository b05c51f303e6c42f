package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the effective configuration",
	Long: `Show the effective configuration, or one value of it.

Usage:
  citeparse config                  # Show all config
  citeparse config model-path       # Get specific value

Keys:
  model-path       Default model file
  cjk-model-path   Model file for references with Han characters
  workers          Parallel parses (0 means one per CPU)
  load-timeout     Longest a model load may take
  format           Default parse output format
  catalog-path     Title catalog database
  match-threshold  Title similarity needed for a match
  crossref-mailto  Contact address sent to Crossref
  s2-api-key       Semantic Scholar API key (shown masked)
  serve-addr       Listen address for serve

` + config.HelpfulConfigMessage(),
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

func runConfig(cmd *cobra.Command, args []string) error {
	// No args: show all config
	if len(args) == 0 {
		if humanOutput {
			out, err := cfg.YAML()
			if err != nil {
				exitWithError(ExitError, "%v", err)
			}
			fmt.Print(out)
			return nil
		}
		return outputJSON(configMap(cfg))
	}

	key := normalizeKey(args[0])
	value, ok := configValue(cfg, key)
	if !ok {
		exitWithError(ExitError, "unknown configuration key: %s", args[0])
	}
	if humanOutput {
		fmt.Println(value)
		return nil
	}
	return outputJSON(map[string]string{strings.ReplaceAll(key, "-", "_"): value})
}

// configKeys lists the keys in display order.
var configKeys = []string{
	"model-path", "cjk-model-path", "workers", "load-timeout", "format",
	"catalog-path", "match-threshold", "crossref-mailto", "s2-api-key", "serve-addr",
}

func configValue(c *config.Config, key string) (string, bool) {
	switch key {
	case "model-path":
		return c.ModelPath, true
	case "cjk-model-path":
		return c.CJKModelPath, true
	case "workers":
		return strconv.Itoa(c.Workers), true
	case "load-timeout":
		return c.LoadTimeout.String(), true
	case "format":
		return c.Format, true
	case "catalog-path":
		return c.CatalogPath, true
	case "match-threshold":
		return strconv.FormatFloat(c.MatchThreshold, 'f', -1, 64), true
	case "crossref-mailto":
		return c.CrossrefMailto, true
	case "s2-api-key":
		return config.MaskSecret(c.S2APIKey), true
	case "serve-addr":
		return c.ServeAddr, true
	}
	return "", false
}

func configMap(c *config.Config) map[string]string {
	m := make(map[string]string, len(configKeys))
	for _, k := range configKeys {
		v, _ := configValue(c, k)
		m[strings.ReplaceAll(k, "-", "_")] = v
	}
	return m
}

// normalizeKey converts key formats (model-path, model_path, MODEL_PATH) to consistent format
func normalizeKey(key string) string {
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "-")
	return key
}
