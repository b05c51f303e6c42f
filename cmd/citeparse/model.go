package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/pipeline"
)

var modelDefaultOut string

func init() {
	modelDefaultCmd.Flags().StringVarP(&modelDefaultOut, "out", "o", "", "Write the model to this file (required)")
	modelDefaultCmd.MarkFlagRequired("out")
	modelCmd.AddCommand(modelInfoCmd, modelDefaultCmd)
	rootCmd.AddCommand(modelCmd)
}

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect and write model files",
}

var modelInfoCmd = &cobra.Command{
	Use:   "info <model-file>",
	Short: "Show a model file's header and contents",
	Long: `Load a model file, verify its checksum and label table, and print its
name, version, feature schema and size.

Exits with status 3 when the file is corrupt or was built for another
feature schema.`,
	Args: cobra.ExactArgs(1),
	RunE: runModelInfo,
}

var modelDefaultCmd = &cobra.Command{
	Use:   "default",
	Short: "Write the built-in model to a file",
	Long: `Write the built-in model to a file, for use as a starting point or to
check the file format.`,
	Args: cobra.NoArgs,
	RunE: runModelDefault,
}

// ModelInfo is the response for the model info command.
type ModelInfo struct {
	Path     string `json:"path"`
	Name     string `json:"name"`
	Version  string `json:"version"`
	Format   int    `json:"format"`
	Schema   int    `json:"schema"`
	Features int    `json:"features"`
	Weights  int    `json:"weights"`
	Bytes    int64  `json:"bytes"`
	Checksum string `json:"checksum"`
}

func runModelInfo(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		exitWithError(ExitModelError, "reading model: %v", err)
	}
	h, err := modelstore.ReadHeader(data)
	if err != nil {
		exitWithError(ExitModelError, "%v", err)
	}
	m, err := modelstore.Load(ctx, path)
	if err != nil {
		exitWithError(exitCodeFor(err), "%v", err)
	}

	info := ModelInfo{
		Path:     path,
		Name:     m.Name(),
		Version:  m.Version(),
		Format:   int(h.Format),
		Schema:   m.Schema(),
		Features: m.FeatureCount(),
		Weights:  m.WeightCount(),
		Bytes:    int64(len(data)),
		Checksum: hex.EncodeToString(h.Checksum[:]),
	}
	if humanOutput {
		printModelInfoHuman(info)
		return nil
	}
	return outputJSON(info)
}

func printModelInfoHuman(info ModelInfo) {
	fmt.Printf("%s\n", info.Path)
	fmt.Printf("  model:    %s@%s\n", info.Name, info.Version)
	fmt.Printf("  format:   %d (feature schema %d)\n", info.Format, info.Schema)
	fmt.Printf("  features: %s\n", humanize.Comma(int64(info.Features)))
	fmt.Printf("  weights:  %s\n", humanize.Comma(int64(info.Weights)))
	fmt.Printf("  size:     %s\n", humanize.Bytes(uint64(info.Bytes)))
	fmt.Printf("  blake2b:  %s\n", info.Checksum)
}

func runModelDefault(cmd *cobra.Command, args []string) error {
	if err := modelstore.Save(modelDefaultOut, pipeline.BuiltinModel()); err != nil {
		exitWithError(ExitError, "saving model: %v", err)
	}
	if humanOutput {
		fmt.Printf("Wrote %s@%s to %s\n", crf.DefaultName, pipeline.BuiltinVersion, modelDefaultOut)
		return nil
	}
	return outputJSON(StatusResponse{Status: "written", Path: modelDefaultOut})
}
