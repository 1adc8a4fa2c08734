package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RichardoC/rfp-chat/internal/api"
	"github.com/RichardoC/rfp-chat/internal/config"
	"github.com/RichardoC/rfp-chat/internal/db"
	"github.com/RichardoC/rfp-chat/internal/document"
	"github.com/RichardoC/rfp-chat/internal/llm"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	logger, _ := zap.NewProduction()
	if cfg.Debug {
		logger, _ = zap.NewDevelopment()
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) (err error) {
	defer func() {
		// Sync fails on terminals with ENOTTY/EINVAL; only real failures matter.
		if syncErr := logger.Sync(); syncErr != nil && !errors.Is(syncErr, syscall.ENOTTY) && !errors.Is(syncErr, syscall.EINVAL) {
			err = multierr.Append(err, syncErr)
		}
	}()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database",
			zap.Error(err),
			zap.String("dbPath", cfg.DBPath))
		return err
	}
	defer func() {
		err = multierr.Append(err, database.Close())
	}()

	factory, err := llm.NewFactory(cfg.Provider, cfg.Model, cfg.OpenAIBaseURL)
	if err != nil {
		return err
	}
	llmService := llm.New(factory, logger.Named("llm"))
	loader := document.NewLoader(document.NewTiktokenCounter(logger), logger.Named("document"))

	handler, err := api.NewHandler(database, llmService, loader, cfg, logger.Named("api"))
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneSessions(ctx, handler, cfg.SessionIdle, logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown incomplete", zap.Error(err))
		}
	}()

	logger.Info("Starting server",
		zap.String("addr", cfg.Addr),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("variant", cfg.Branding.Variant),
		zap.Bool("keyFromSecret", cfg.APIKey != ""))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// pruneSessions ends sessions that have been idle for longer than idle.
func pruneSessions(ctx context.Context, handler *api.Handler, idle time.Duration, logger *zap.Logger) {
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := handler.PruneIdle(time.Now().UTC().Add(-idle))
			if err != nil {
				logger.Warn("failed to prune sessions", zap.Error(err))
				continue
			}
			if n > 0 {
				logger.Info("Pruned idle sessions", zap.Int("count", n))
			}
		}
	}
}
