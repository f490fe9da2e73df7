package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"

	"github.com/wolfman30/remitchat/cmd/mainconfig"
	"github.com/wolfman30/remitchat/internal/app/bootstrap"
	"github.com/wolfman30/remitchat/internal/config"
	"github.com/wolfman30/remitchat/internal/transfer"
	"github.com/wolfman30/remitchat/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.TrimSpace(cfg.TransferQueueURL) == "" || cfg.DatabaseURL == "" {
		logger.Error("transfer worker requires TRANSFER_QUEUE_URL and DATABASE_URL")
		os.Exit(1)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect postgres", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := transfer.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.TransferQueueURL)

	worker := transfer.NewWorker(queue, bootstrap.BuildLedger(pool), logger,
		transfer.WithWorkerCount(cfg.WorkerCount),
	)
	worker.Start(ctx)
	logger.Info("transfer worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("transfer worker shutting down")
	cancel()
	worker.Wait()
}
