package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joseph-ayodele/labreport/internal/async"
	"github.com/joseph-ayodele/labreport/internal/bootstrap"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
	"github.com/joseph-ayodele/labreport/internal/ingest"
	"github.com/joseph-ayodele/labreport/internal/pipeline"
	repo "github.com/joseph-ayodele/labreport/internal/repository"
)

func main() {
	os.Exit(run())
}

func run() int {
	path := flag.String("path", "", "lab report image or PDF to analyze")
	dir := flag.String("dir", "", "analyze every supported file under this directory")
	skipHidden := flag.Bool("skip-hidden", true, "skip hidden files and directories with -dir")
	noStore := flag.Bool("no-store", false, "do not write the result to history")
	flag.Parse()

	if (*path == "") == (*dir == "") {
		fmt.Fprintln(os.Stderr, "usage: analyze (-path <image> | -dir <folder>) [-no-store]")
		return 2
	}

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	logger := bootstrap.NewLogger(os.Stderr, cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var history pipeline.Recorder
	if !*noStore {
		store, err := repo.Open(ctx, repo.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}, logger)
		if err != nil {
			logger.Error("failed to open history store", "error", err)
			return 1
		}
		defer store.Close()
		history = repo.NewHistoryRepository(store, logger)
	}

	proc := bootstrap.NewProcessor(cfg, history, logger)
	creds := common.ResolveCredentials(cfg, logger)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if *dir != "" {
		queue := async.NewProcessorQueue(proc, logger,
			async.WithWorkers(cfg.Pipeline.Workers),
			async.WithQueueSize(cfg.Pipeline.QueueSize),
			async.WithProcessTimeout(cfg.Pipeline.RunTimeout),
		)
		results, stats, err := ingest.AnalyzeDirectory(ctx, queue, *dir, creds, *skipHidden, logger)
		queue.Shutdown(context.Background())
		if err != nil {
			logger.Error("batch analysis failed", "dir", *dir, "error", err)
			return 1
		}
		_ = enc.Encode(map[string]any{"stats": stats, "results": results})
		if stats.Failed > 0 {
			return 1
		}
		return 0
	}

	res := proc.Analyze(ctx, entity.AnalysisRequest{ImagePath: *path, Credentials: creds})
	_ = enc.Encode(res)
	if !res.OK() {
		return 1
	}
	return 0
}
