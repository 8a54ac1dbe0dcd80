package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/joseph-ayodele/labreport/internal/bootstrap"
	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/export"
	repo "github.com/joseph-ayodele/labreport/internal/repository"
)

func main() {
	os.Exit(run())
}

func run() int {
	out := flag.String("out", "labreport-history.xlsx", "output workbook path")
	flag.Parse()

	cfg, err := common.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 2
	}
	logger := bootstrap.NewLogger(os.Stderr, cfg.LogLevel, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := repo.Open(ctx, repo.Config{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}, logger)
	if err != nil {
		logger.Error("failed to open history store", "error", err)
		return 1
	}
	defer store.Close()

	data, err := export.NewService(repo.NewHistoryRepository(store, logger), nil, logger).ExportHistoryXLSX(ctx)
	if err != nil {
		logger.Error("export failed", "error", err)
		return 1
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write workbook", "path", *out, "error", err)
		return 1
	}
	logger.Info("history exported", "path", *out, "bytes", len(data))
	return 0
}
