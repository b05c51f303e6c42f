// Package main provides the citeparse CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/config"
	"github.com/matsen/citeparse/internal/logger"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	// humanOutput controls whether to use human-readable output
	humanOutput bool
	debugLog    bool
	quietLog    bool
	jsonLog     bool
)

// cfg is the effective configuration, loaded before any command runs.
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		// Print the error since we have SilenceErrors: true
		os.Exit(outputError(exitCodeFor(err), "%s", err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "citeparse",
	Short: "Parse free-text bibliographic references into fields",
	Long: `citeparse labels the parts of free-text references (authors, year,
title, journal, publisher, pages, volume) with a trained sequence model.

Core features:
  - Batch parsing of reference lists, text files and PDF reference sections
  - Training new models from labeled examples
  - HTTP service with hot model reload
  - Title checks against a local catalog and Crossref

All commands output JSON by default.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&humanOutput, "human", false, "Use human-readable output instead of JSON")
	rootCmd.PersistentFlags().BoolVar(&debugLog, "debug", false, "Log debug messages")
	rootCmd.PersistentFlags().BoolVar(&quietLog, "quiet", false, "Only log errors")
	rootCmd.PersistentFlags().BoolVar(&jsonLog, "log-json", false, "Log JSON lines to stderr")
	rootCmd.Version = Version
}

func setup(cmd *cobra.Command, args []string) error {
	logger.Init(logger.Options{Debug: debugLog, Quiet: quietLog, JSON: jsonLog})

	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	c, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, config.HelpfulConfigMessage())
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = c
	return nil
}
