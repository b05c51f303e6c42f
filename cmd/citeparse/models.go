package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/crf"
	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/modelstore"
	"github.com/matsen/citeparse/internal/pipeline"
)

// modelFlags are the model selection flags shared by parse, check, verify
// and serve.
type modelFlags struct {
	model    string
	cjkModel string
	timeout  time.Duration
}

func (f *modelFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.model, "model", "", "Model file (default: model_path from config, else the built-in model)")
	cmd.Flags().StringVar(&f.cjkModel, "cjk-model", "", "Model file for references containing Han characters")
	cmd.Flags().DurationVar(&f.timeout, "load-timeout", 0, "Give up loading a model after this long (default: load_timeout from config)")
}

// resolve fills unset flags from the configuration.
func (f *modelFlags) resolve() {
	if f.model == "" {
		f.model = cfg.ModelPath
	}
	if f.cjkModel == "" {
		f.cjkModel = cfg.CJKModelPath
	}
	if f.timeout == 0 {
		f.timeout = cfg.LoadTimeout
	}
}

// openStore builds the model store. Without a model file the built-in
// model serves the default slot.
func (f *modelFlags) openStore(ctx context.Context) (*modelstore.Store, error) {
	f.resolve()

	store := modelstore.NewStore(pipeline.BuiltinModel())
	store.LoadTimeout = f.timeout
	if f.model == "" {
		logger.Debug("using built-in model", "model", crf.DefaultName, "version", pipeline.BuiltinVersion)
	} else if err := store.Reload(ctx, f.model); err != nil {
		return nil, err
	}
	if f.cjkModel != "" {
		if err := store.ReloadSlot(ctx, modelstore.SlotCJK, f.cjkModel); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// mustOpenStore opens the model store, exits on error.
func (f *modelFlags) mustOpenStore(ctx context.Context) *modelstore.Store {
	store, err := f.openStore(ctx)
	if err != nil {
		exitWithError(ExitModelError, "loading model: %v", err)
	}
	return store
}
