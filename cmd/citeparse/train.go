package main

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/storage"
)

var (
	trainOut     string
	trainEpochs  int
	trainRate    float64
	trainL2      float64
	trainName    string
	trainVersion string
	trainSeed    int64
	trainForbid  bool
	trainFrom    string
)

func init() {
	d := crf.DefaultTrainOptions()
	trainCmd.Flags().StringVarP(&trainOut, "out", "o", "", "Write the trained model to this file (required)")
	trainCmd.Flags().IntVar(&trainEpochs, "epochs", d.Epochs, "Passes over the training data")
	trainCmd.Flags().Float64Var(&trainRate, "rate", d.LearningRate, "Initial learning rate")
	trainCmd.Flags().Float64Var(&trainL2, "l2", d.L2, "L2 regularisation strength")
	trainCmd.Flags().StringVar(&trainName, "name", d.Name, "Model name recorded in the file")
	trainCmd.Flags().StringVar(&trainVersion, "model-version", d.Version, "Model version recorded in the file")
	trainCmd.Flags().Int64Var(&trainSeed, "seed", d.Seed, "Shuffle seed")
	trainCmd.Flags().BoolVar(&trainForbid, "forbid-unseen", false, "Forbid label transitions that never occur in the examples")
	trainCmd.Flags().StringVar(&trainFrom, "init", "", "Start from this model file instead of the built-in model")
	trainCmd.MarkFlagRequired("out")
	rootCmd.AddCommand(trainCmd)
}

var trainCmd = &cobra.Command{
	Use:   "train <examples.jsonl>",
	Short: "Train a model from labeled examples",
	Long: `Train a sequence model from hand-labeled references.

Each line of the examples file is one reference split into labeled
segments:

  {"segments":[{"label":"author","text":"Smith, J."},{"label":"year","text":"(2020)."}]}

Training starts from the built-in model unless --init names another.

Examples:
  citeparse train examples.jsonl --out model.bin
  citeparse train zh.jsonl --out zh.bin --name cjk --epochs 50`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

// TrainResult is the response for the train command.
type TrainResult struct {
	Status   string  `json:"status"`
	Path     string  `json:"path"`
	Name     string  `json:"name"`
	Version  string  `json:"version"`
	Examples int     `json:"examples"`
	Features int     `json:"features"`
	Accuracy float64 `json:"accuracy"`
	Loss     float64 `json:"loss"`
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	exs, err := storage.ReadExamples(args[0])
	if err != nil {
		exitWithError(ExitInvalidInput, "reading examples: %v", err)
	}
	if len(exs) == 0 {
		exitWithError(ExitInvalidInput, "no examples in %s", args[0])
	}
	data, err := pipeline.BuildInstances(exs)
	if err != nil {
		exitWithError(ExitInvalidInput, "%v", err)
	}

	opts := crf.TrainOptions{
		Name:         trainName,
		Version:      trainVersion,
		Epochs:       trainEpochs,
		LearningRate: trainRate,
		L2:           trainL2,
		Seed:         trainSeed,
		ForbidUnseen: trainForbid,
		Init:         pipeline.BuiltinModel(),
	}
	if trainFrom != "" {
		if opts.Init, err = modelstore.Load(ctx, trainFrom); err != nil {
			exitWithError(ExitModelError, "loading initial model: %v", err)
		}
	}
	var lastLoss float64
	opts.Progress = func(epoch int, loss float64) {
		lastLoss = loss
		logger.Debug("epoch done", "epoch", epoch, "loss", loss)
	}

	start := time.Now()
	m, err := crf.Train(ctx, data, opts)
	if err != nil {
		exitWithError(ExitError, "training: %v", err)
	}
	if err := modelstore.Save(trainOut, m); err != nil {
		exitWithError(ExitError, "saving model: %v", err)
	}

	result := TrainResult{
		Status:   "trained",
		Path:     trainOut,
		Name:     m.Name(),
		Version:  m.Version(),
		Examples: len(data),
		Features: m.FeatureCount(),
		Accuracy: m.Accuracy(data),
		Loss:     lastLoss,
	}
	if humanOutput {
		fmt.Printf("Trained %s@%s on %s examples in %s\n", result.Name, result.Version,
			humanize.Comma(int64(result.Examples)), formatDuration(time.Since(start)))
		fmt.Printf("  features: %s\n", humanize.Comma(int64(result.Features)))
		fmt.Printf("  training accuracy: %.1f%%\n", 100*result.Accuracy)
		fmt.Printf("  written to %s\n", result.Path)
	} else if err := outputJSON(result); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(ExitError)
	}
	return nil
}
