package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/remitchat/cmd/mainconfig"
	"github.com/wolfman30/remitchat/internal/api/router"
	"github.com/wolfman30/remitchat/internal/app/bootstrap"
	appconfig "github.com/wolfman30/remitchat/internal/config"
	"github.com/wolfman30/remitchat/internal/dialogue"
	httpmiddleware "github.com/wolfman30/remitchat/internal/http/middleware"
	"github.com/wolfman30/remitchat/internal/messaging"
	"github.com/wolfman30/remitchat/internal/observability/metrics"
	"github.com/wolfman30/remitchat/internal/webchat"
	"github.com/wolfman30/remitchat/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting remitchat API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"session_backend", cfg.SessionBackend,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if a.sessions.Janitor != nil {
		go a.sessions.Janitor(ctx)
	}
	if a.limiter != nil {
		go a.limiter.RunEviction(ctx.Done())
	}
	if a.handoff.Worker != nil {
		a.handoff.Worker.Start(ctx)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	// Let accepted confirmations reach the queue before the worker stops.
	a.processor.Wait()
	cancel()
	if a.handoff.Worker != nil {
		a.handoff.Worker.Wait()
	}

	logger.Info("server stopped")
}

type app struct {
	handler   http.Handler
	processor *dialogue.Processor
	sessions  *bootstrap.SessionStore
	handoff   *bootstrap.Handoff
	limiter   *httpmiddleware.RateLimiter
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setupMetrics() (http.Handler, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), reg
}

func needsAWS(cfg *appconfig.Config) bool {
	return cfg.SessionBackend == bootstrap.BackendDynamo || !cfg.MemoryQueueEnabled()
}

func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()
	metricsHandler, reg := setupMetrics()
	messagingMetrics := metrics.NewMessagingMetrics(reg)
	dialogueMetrics := metrics.NewDialogueMetrics(reg)
	transferMetrics := metrics.NewTransferMetrics(reg)

	catalog, err := bootstrap.BuildCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	active, err := catalog.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active corridors: %w", err)
	}

	pool, err := bootstrap.BuildPostgresPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		a.closers = append(a.closers, pool.Close)
	}

	deps := bootstrap.SessionDeps{Postgres: pool}
	if cfg.SessionBackend == bootstrap.BackendRedis {
		deps.Redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
		if deps.Redis != nil {
			a.closers = append(a.closers, func() { _ = deps.Redis.Close() })
		}
	}

	var sqsClient *sqs.Client
	if needsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		deps.Dynamo = dynamodb.NewFromConfig(awsCfg)
		sqsClient = sqs.NewFromConfig(awsCfg)
	}

	a.sessions, err = bootstrap.BuildSessionStore(cfg, deps, logger)
	if err != nil {
		return nil, err
	}
	a.handoff, err = bootstrap.BuildHandoff(cfg, pool, sqsClient, transferMetrics, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("hand-off queue configured", "queue", a.handoff.Queue)

	engine := dialogue.NewEngine(catalog, dialogue.WithOfferLimit(cfg.CorridorOfferLimit))
	a.processor = dialogue.NewProcessor(
		a.sessions,
		dialogue.NewClassifier(active),
		engine,
		a.handoff.Submitter,
		logger,
		dialogue.WithMaxAttempts(cfg.SessionCASMaxAttempts),
		dialogue.WithDialogueMetrics(dialogueMetrics),
	)

	if cfg.RateLimitRPS > 0 {
		a.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	messagingHandler := messaging.NewHandler(cfg.TwilioWebhookSecret, a.processor, messagingMetrics, logger).
		WithPublicBaseURL(cfg.PublicBaseURL)
	a.handler = router.New(&router.Config{
		Logger:             logger,
		MessagingHandler:   messagingHandler,
		WebChatHandler:     webchat.NewHandler(a.processor, messagingMetrics, logger),
		TransferStatus:     a.handoff.Status,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        a.limiter,
	})
	return a, nil
}
