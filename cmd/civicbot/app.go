package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/civicbot/internal/assistant"
	"github.com/kalambet/civicbot/internal/catalog"
	"github.com/kalambet/civicbot/internal/chat"
	"github.com/kalambet/civicbot/internal/config"
	"github.com/kalambet/civicbot/internal/governor"
	"github.com/kalambet/civicbot/internal/proxy"
	"github.com/kalambet/civicbot/internal/report"
	"github.com/kalambet/civicbot/internal/storage"
	"github.com/kalambet/civicbot/internal/transcript"
)

// reportNodeID is the snowflake node used for complaint ids. A single local
// process is the only writer.
const reportNodeID = 1

// app is the fully wired object graph shared by every command.
type app struct {
	cfg        config.Config
	store      *storage.Store
	governor   *governor.Governor
	client     *proxy.Client
	controller *chat.Controller
	logger     *slog.Logger
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(level string) *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(level)}))
	slog.SetDefault(logger)
	return logger
}

// openApp loads configuration, opens storage and builds the controller.
// ctx bounds the governor's lifetime.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogging(cfg.Log.Level)

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	a, err := buildApp(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	if !cfg.HasAPIKey() {
		printWarning("no OpenRouter API key: %s", config.MissingKeyHint())
	}
	return a, nil
}

func buildApp(ctx context.Context, cfg config.Config, store *storage.Store, logger *slog.Logger) (*app, error) {
	gov := governor.New(ctx, governor.Options{
		MinInterval:   cfg.Governor.MinInterval,
		CourtesyDelay: cfg.Governor.CourtesyDelay,
		Logger:        logger.With("component", "governor"),
	})

	client := proxy.NewClient(proxy.Options{
		APIKey:      cfg.OpenRouter.APIKey,
		BaseURL:     cfg.OpenRouter.BaseURL,
		Model:       cfg.OpenRouter.Model,
		SiteURL:     cfg.OpenRouter.SiteURL,
		SiteName:    cfg.OpenRouter.SiteName,
		MaxAttempts: cfg.Retry.MaxAttempts,
		Logger:      logger.With("component", "openrouter"),
	})

	history := transcript.New(store, logger)
	if err := history.Load(); err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}

	ids, err := report.NewIDGenerator(reportNodeID)
	if err != nil {
		return nil, fmt.Errorf("creating id generator: %w", err)
	}

	ctrl := chat.New(
		assistant.New(gov, client, logger),
		history,
		catalog.Default(),
		report.NewService(store, ids, logger),
		logger,
	)

	return &app{
		cfg:        cfg,
		store:      store,
		governor:   gov,
		client:     client,
		controller: ctrl,
		logger:     logger,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}
