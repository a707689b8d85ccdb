// Package main boots the Project Duet matchmaking service and wires
// application dependencies.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"github.com/easeaico/project-duet/internal/api"
	"github.com/easeaico/project-duet/internal/config"
	"github.com/easeaico/project-duet/internal/generation"
	"github.com/easeaico/project-duet/internal/memory"
	"github.com/easeaico/project-duet/internal/models"
	"github.com/easeaico/project-duet/internal/orchestrator"
	"github.com/easeaico/project-duet/internal/repository"
	"github.com/easeaico/project-duet/internal/session"
)

func main() {
	cfg := config.Load()

	logLevel := slog.LevelInfo
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))

	slog.Info("configuration loaded", "llm_model", cfg.LLMModel, "embedding_model", cfg.EmbeddingModel, "http_port", cfg.HTTPPort)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := repository.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	embedder, err := memory.NewEmbedder(ctx, cfg.GoogleAPIKey, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("failed to create embedder: %v", err)
	}
	memories := memory.NewStore(embedder, store.Records, cfg.TopK, cfg.BlendAlpha)

	llm, err := models.NewGrokModel(ctx, cfg.LLMModel, &genai.ClientConfig{APIKey: cfg.XAIAPIKey})
	if err != nil {
		log.Fatalf("failed to create chat model: %v", err)
	}
	gen := generation.NewLLMGenerator(llm, cfg.TurnTimeout)

	hub := orchestrator.NewHub(ctx, memories, store.Sessions, store.Reports, gen, orchestrator.Options{
		Session: session.Options{
			MaxTurns:       cfg.MaxTurns,
			TurnTimeout:    cfg.TurnTimeout,
			MaxDuration:    cfg.MaxDuration,
			LoopWindow:     cfg.LoopWindow,
			LoopSimilarity: cfg.LoopSimilarity,
			FallbackLimit:  cfg.FallbackLimit,
		},
		TopK:          cfg.TopK,
		Smoothing:     cfg.Smoothing,
		QuotaCooldown: cfg.QuotaCooldown,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           api.NewHandler(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		slog.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("http shutdown failed", "error", err.Error())
		}
		hub.Close()
		return nil
	})

	if err := group.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
	slog.Info("shutdown complete")
}
