package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iconidentify/reelscribe/internal/api"
	"github.com/iconidentify/reelscribe/internal/api/handler"
	"github.com/iconidentify/reelscribe/internal/config"
	"github.com/iconidentify/reelscribe/internal/downloader"
	"github.com/iconidentify/reelscribe/internal/logging"
	"github.com/iconidentify/reelscribe/internal/preflight"
	"github.com/iconidentify/reelscribe/internal/service"
	"github.com/iconidentify/reelscribe/internal/transcriber"
	"github.com/iconidentify/reelscribe/internal/worker"
	"github.com/iconidentify/reelscribe/pkg/gemini"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "", "Path to config file")
	debug := flag.Bool("debug", false, "Enable debug logging")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reelscribe-server %s (built %s)\n", Version, BuildTime)
		os.Exit(0)
	}

	// Setup logger
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stdout, level)
	slog.SetDefault(logger)

	logger.Info("starting reelscribe server",
		"version", Version,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Pre-flight: the server cannot do anything useful without these
	ytdlpPath, err := preflight.NewChecker().RequireTool(cfg.Download.YtdlpPath)
	if err != nil {
		logger.Error("pre-flight failed", "error", err)
		os.Exit(3)
	}
	if !cfg.HasAPIKey() {
		logger.Error("pre-flight failed", "error", "GEMINI_API_KEY not set")
		os.Exit(3)
	}

	if err := os.MkdirAll(cfg.Download.TempPath, 0755); err != nil {
		logger.Error("failed to create temp directory", "error", err)
		os.Exit(1)
	}

	logger.Info("pre-flight passed",
		"ytdlp", ytdlpPath,
		"model", cfg.Gemini.Model,
		"temp_path", cfg.Download.TempPath,
		"temp_free_bytes", preflight.FreeDiskSpace(cfg.Download.TempPath),
	)

	// Initialize dependencies
	geminiClient, err := gemini.NewClient(context.Background(), gemini.Config{
		APIKey: cfg.Gemini.APIKey,
		Model:  cfg.Gemini.Model,
	})
	if err != nil {
		logger.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	defer geminiClient.Close()

	probe := preflight.NewProbe(cfg.Network.ProbeAddress, cfg.Network.ProbeTimeout)
	dl := downloader.NewYtdlpDownloader(cfg.Download, logger)
	tr := transcriber.New(geminiClient, cfg.Gemini, logger)
	proc := service.NewProcessor(probe, dl, tr, logger)

	// Single worker keeps server-side processing sequential
	queue := worker.NewQueue(worker.Config{Delay: cfg.Batch.Delay}, proc, logger)
	queue.Start()

	// Initialize handlers
	transcribeHandler := handler.NewTranscribeHandler(queue, *debug, logger)
	healthHandler := handler.NewHealthHandler(queue, cfg.Download.TempPath)
	uiHandler := handler.NewUIHandler()

	// Setup router
	router := api.NewRouter(transcribeHandler, healthHandler, uiHandler, cfg.Server.WriteTimeout, logger)

	// Setup HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting new requests
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	// Stop the worker (allow the in-flight request to finish cleanup)
	if err := queue.Stop(25 * time.Second); err != nil {
		logger.Error("worker queue shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}
