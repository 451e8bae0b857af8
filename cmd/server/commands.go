package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	h "github.com/veranemoloko/audio-downloader/internal/api/http"
	cfgpkg "github.com/veranemoloko/audio-downloader/internal/config"
	"github.com/veranemoloko/audio-downloader/internal/cookies"
	"github.com/veranemoloko/audio-downloader/internal/hub"
	"github.com/veranemoloko/audio-downloader/internal/process"
	repo "github.com/veranemoloko/audio-downloader/internal/repository"
	svc "github.com/veranemoloko/audio-downloader/internal/service"
	"github.com/veranemoloko/audio-downloader/internal/storage"
	"github.com/veranemoloko/audio-downloader/internal/worker"
)

var version = "dev"

func app() *cli.Command {
	return &cli.Command{
		Name:    "audio-downloader",
		Version: version,
		Usage:   "Convert online videos to audio files and stream download progress",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-file",
				Aliases: []string{"e"},
				Usage:   "Path to a .env file (ignored when missing)",
				Value:   ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides LOG_LEVEL",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and the retention sweeper",
				Action: serve,
			},
			{
				Name:   "sweep",
				Usage:  "Delete expired audio files once and exit",
				Action: sweepOnce,
			},
		},
	}
}

func loadConfig(cmd *cli.Command) (*cfgpkg.Config, *slog.Logger, error) {
	cfg, err := cfgpkg.Load(cmd.String("env-file"))
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	logger := cfgpkg.SetupLogger(cfg)
	logger.Info("configuration loaded successfully", "env", cfg.Environment)
	return cfg, logger, nil
}

func newCookieProvider(cfg *cfgpkg.Config, logger *slog.Logger) cookies.Provider {
	switch {
	case cookies.Policy(cfg.CookiePolicy) == cookies.PolicyNever:
		return nil
	case cfg.CookieCommand != "":
		return cookies.NewCommandProvider(cfg.CookieCommand, cfg.CookieFile, cfg.CookieTimeout, logger)
	default:
		return cookies.NewFileProvider(cfg.CookieFile)
	}
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	files := storage.NewFileStorage(cfg.DownloadDir)
	progressHub := hub.New(cfg.ObserverBuffer, logger)
	downloadService := svc.NewDownloadService(
		repo.NewJobStorage(),
		files,
		process.NewExecRunner(logger),
		progressHub,
		newCookieProvider(cfg, logger),
		cfg,
		logger,
	)
	sweeper := worker.NewRetentionSweeper(files, cfg.RetentionMaxAge, cfg.SweepInterval, logger)

	router := h.NewRouter(downloadService, progressHub, cfg, logger)
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.HTTPTimeout,
		WriteTimeout: cfg.HTTPTimeout,
		IdleTimeout:  cfg.HTTPTimeout,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		// Progress streams never end on their own.
		progressHub.Close()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		} else {
			logger.Info("server stopped gracefully")
		}
		if err := downloadService.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("download service shutdown: %w", err))
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

func sweepOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	sweeper := worker.NewRetentionSweeper(storage.NewFileStorage(cfg.DownloadDir), cfg.RetentionMaxAge, cfg.SweepInterval, logger)
	stats := sweeper.Sweep(ctx)
	logger.Info("sweep completed", "deleted", stats.Deleted, "kept", stats.Kept, "failed", stats.Failed)
	if stats.Failed > 0 {
		return fmt.Errorf("sweep: %d files could not be deleted", stats.Failed)
	}
	return nil
}
