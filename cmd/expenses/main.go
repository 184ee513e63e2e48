// Package main запускает HTTP-сервер сервиса учёта расходов.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/expense-system/internal/assistant"
	"github.com/mmeshcher/expense-system/internal/config"
	"github.com/mmeshcher/expense-system/internal/handler"
	"github.com/mmeshcher/expense-system/internal/llm"
	"github.com/mmeshcher/expense-system/internal/middleware"
	"github.com/mmeshcher/expense-system/internal/model"
	"github.com/mmeshcher/expense-system/internal/repository"
	"github.com/mmeshcher/expense-system/internal/service"
)

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

// openDatabase подключает хранилище. Ошибки подключения не останавливают сервис:
// без БД он работает на резервных данных.
func openDatabase(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*repository.Postgres, *sql.DB) {
	if cfg.DatabaseURI == "" {
		logger.Warn("DATABASE_URI is not set, serving sample data")
		return nil, nil
	}

	pg, err := repository.OpenPostgres(ctx, cfg.DatabaseURI)
	if err != nil {
		logger.Error("database initialization error", zap.Error(err))
		return nil, nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pg.Ping(pingCtx); err != nil {
		logger.Warn("database is unreachable, will retry on each request", zap.Error(err))
		return pg, pg.DB()
	}

	if cfg.RunMigrations {
		if err := repository.Migrate(ctx, pg.DB()); err != nil {
			logger.Error("database migration error", zap.Error(err))
		}
	}

	return pg, pg.DB()
}

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, db := openDatabase(ctx, cfg, logger)
	if pg != nil {
		defer pg.Close()
	}

	repo := repository.NewExpenseRepository(repository.NewConnector(db, logger))
	svc := service.NewExpenseService(repo, logger)

	defaults := model.Actors{SubmitterID: cfg.DefaultUserID, ReviewerID: cfg.DefaultReviewerID}

	var completer assistant.Completer
	if cfg.ChatConfigured() {
		completer = llm.NewClient(llm.Config{
			Endpoint:   cfg.OpenAIEndpoint,
			APIKey:     cfg.OpenAIAPIKey,
			Deployment: cfg.OpenAIDeployment,
			APIVersion: cfg.OpenAIAPIVersion,
			RetryMax:   cfg.OpenAIRetryMax,
		}, logger)
	} else {
		sugar.Info("OPENAI_ENDPOINT is not set, chat is disabled")
	}

	chat := assistant.NewChatService(
		completer,
		assistant.NewDispatcher(svc, defaults, logger),
		assistant.ChatOptions{MaxRounds: cfg.ChatMaxRounds, RoundTimeout: cfg.ChatRoundTimeout},
		logger,
	)

	actors := middleware.NewActorMiddleware(cfg.ActorSecret)
	h := handler.NewHandler(svc, chat, logger, actors, defaults)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting expense server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}
