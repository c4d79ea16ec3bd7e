package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tablepilot/tablepilot/internal/agent"
	"github.com/tablepilot/tablepilot/internal/api"
	"github.com/tablepilot/tablepilot/internal/auth"
	catalogpostgres "github.com/tablepilot/tablepilot/internal/catalog/postgres"
	"github.com/tablepilot/tablepilot/internal/config"
	"github.com/tablepilot/tablepilot/internal/dbexec"
	"github.com/tablepilot/tablepilot/internal/llm"
	"github.com/tablepilot/tablepilot/internal/observability"
	"github.com/tablepilot/tablepilot/internal/schema"
)

func main() {
	cfg, err := config.LoadFromEnv("tablepilot-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	catalogDB, err := catalogpostgres.Open(context.Background(), catalogpostgres.DBConfig{
		DSN:             cfg.Catalog.DSN,
		MaxOpenConns:    cfg.Catalog.MaxOpenConns,
		MaxIdleConns:    cfg.Catalog.MaxIdleConns,
		ConnMaxIdleTime: cfg.Catalog.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Catalog.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open catalog db", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = catalogDB.Close() }()

	catalogRepo := catalogpostgres.NewRepository(catalogDB)

	executor := dbexec.NewPool(4)
	defer func() { _ = executor.Close() }()

	llmOpts := llm.Options{
		MaxHistoryTurns: cfg.LLM.MaxHistoryTurns,
		Timeout:         cfg.LLM.Timeout,
		OllamaTimeout:   cfg.LLM.OllamaTimeout,
		Temperature:     cfg.LLM.Temperature,
		MaxTokens:       cfg.LLM.MaxTokens,
	}
	selector := func() (llm.Provider, error) {
		return llm.Select(cfg.LLM.Preference, os.LookupEnv, llmOpts)
	}

	schemaProvider := &schema.ContextProvider{Docs: catalogRepo}
	core := agent.New(schemaProvider, executor, selector, agent.Config{
		ExecTimeout:  cfg.Agent.ExecTimeout,
		WriteTimeout: cfg.Agent.WriteTimeout,
	}, logger)

	deps := api.Dependencies{
		Logger:     logger,
		Catalog:    catalogRepo,
		Agent:      core,
		ListTables: schema.ListTables,
		Readiness: api.CombineReadinessChecks(
			api.CheckCatalogDSN(cfg),
			catalogRepo.HealthCheck,
		),
		DependencyTimeout: time.Second,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", slog.String("addr", cfg.HTTP.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
