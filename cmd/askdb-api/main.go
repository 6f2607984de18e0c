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

	"github.com/joho/godotenv"

	"github.com/askdb/askdb/internal/api"
	"github.com/askdb/askdb/internal/api/uistatic"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/chat"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/query"
	"github.com/askdb/askdb/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv("askdb-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)

	translator, err := nl2sql.New(cfg.AI)
	if err != nil {
		logger.Error("failed to initialize sql translator", slog.Any("error", err))
		os.Exit(1)
	}

	uploads, err := storage.NewStore(cfg.Upload.Dir, cfg.Upload.MaxBytes)
	if err != nil {
		logger.Error("failed to initialize upload store", slog.Any("error", err))
		os.Exit(1)
	}

	sessions := chat.NewManager(chat.ManagerConfig{
		TTL:           cfg.Session.TTL,
		SweepInterval: cfg.Session.SweepInterval,
		MaxSessions:   cfg.Session.MaxSessions,
	}, logger, func(s *chat.Session) {
		if s.Source.Transient() && s.Source.Path != "" {
			if err := uploads.RemoveContaining(s.Source.Path); err != nil {
				logger.Warn("failed to remove session upload",
					slog.String("session_id", s.ID),
					slog.Any("error", err),
				)
			}
		}
	})

	chatService := &chat.Service{
		Translator: translator,
		Executor: query.NewExecutor(query.Options{
			ReadOnly: cfg.Query.ReadOnly,
			RowLimit: cfg.Query.RowLimit,
			Timeout:  cfg.Query.Timeout,
		}),
		Config: chat.ServiceConfig{
			HistoryWindow:  cfg.Chat.HistoryWindow,
			ReplayFailures: cfg.Chat.ReplayFailures,
		},
		Logger: logger,
	}

	deps := api.Dependencies{
		Logger:   logger,
		Sessions: sessions,
		Chat:     chatService,
		Uploads:  uploads,
		UI:       uistatic.Handler(),
		Readiness: api.CombineReadinessChecks(
			uploads.HealthCheck,
			api.CheckAIConfig(cfg),
		),
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
		if err := sessions.Run(ctx); err != nil {
			logger.Error("session sweeper failed", slog.Any("error", err))
		}
	}()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("ai_provider", cfg.AI.Provider),
		)
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
