package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/citeparse/internal/logger"
	"github.com/matsen/citeparse/internal/pipeline"
	"github.com/matsen/citeparse/internal/server"
)

var (
	serveModel    modelFlags
	serveAddr     string
	serveWorkers  int
	serveWatch    bool
	serveDebounce time.Duration
	serveMaxLines int
)

func init() {
	serveModel.register(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: serve_addr from config)")
	serveCmd.Flags().IntVarP(&serveWorkers, "workers", "w", 0, "Parallel parses per request (default: workers from config, else one per CPU)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload models when their files change")
	serveCmd.Flags().DurationVar(&serveDebounce, "debounce", server.DefaultDebounce, "Quiet period before a changed model file is reloaded")
	serveCmd.Flags().IntVar(&serveMaxLines, "max-lines", server.DefaultMaxLines, "Most references accepted in one request")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the parser over HTTP",
	Long: `Serve the parser over HTTP.

Endpoints:
  POST /parse     JSON {"text": "..."} or {"lines": [...]}, or a plain-text
                  list; ?format=csv|jsonl|yaml|bibtex changes the reply
  POST /reload    JSON {"slot": "default|cjk", "path": "..."}; an empty path
                  re-reads the slot's file. A failed reload keeps the
                  current model and answers 500.
  GET  /model     loaded models
  GET  /healthz   liveness

With --watch, model files are reloaded when they change on disk.
Requests already being parsed finish on the model they started with.

Examples:
  citeparse serve --model model.bin
  citeparse serve --addr :9000 --model model.bin --cjk-model zh.bin --watch`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	store := serveModel.mustOpenStore(ctx)
	workers := serveWorkers
	if workers == 0 {
		workers = cfg.Workers
	}
	h := server.NewHandler(pipeline.NewParser(store, workers), Version, logger.With("component", "http"))
	h.MaxLines = serveMaxLines

	if serveWatch {
		w, err := server.NewWatcher(store, serveDebounce)
		if err != nil {
			exitWithError(ExitError, "watching models: %v", err)
		}
		go w.Run(ctx)
	}

	srv := server.New(firstNonEmpty(serveAddr, cfg.ServeAddr), h)
	if err := server.ListenAndServe(ctx, srv); err != nil {
		exitWithError(ExitError, "%v", err)
	}
	return nil
}
