package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/ephemera-box/catalog/internal/api"
	"github.com/ephemera-box/catalog/internal/classify"
	"github.com/ephemera-box/catalog/internal/config"
	"github.com/ephemera-box/catalog/internal/images"
	"github.com/ephemera-box/catalog/internal/process"
	"github.com/ephemera-box/catalog/internal/store"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	db, err := store.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	s, err := store.New(db)
	if err != nil {
		log.Fatalf("init store: %v", err)
	}

	// Items left processing by a crashed run go back to pending; retrying
	// them stays an explicit operation.
	if n, err := s.ResetStaleProcessing(context.Background()); err != nil {
		slog.Warn("reset stale processing", "error", err)
	} else if n > 0 {
		slog.Info("reset stale processing items to pending", "count", n)
	}

	files, err := images.New(cfg.StorageDir)
	if err != nil {
		log.Fatalf("init image storage: %v", err)
	}

	classifier := buildClassifier(cfg)
	processor := process.NewProcessor(s, s, classifier)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner := process.NewRunner(ctx, processor, cfg.MaxConcurrent)

	srv := api.New(s, files, runner, cfg.CORSOrigin)
	httpServer := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: srv.Handler(),
	}

	// Graceful shutdown: stop accepting requests, then drain item jobs.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		slog.Info("shutting down")
		httpServer.Shutdown(context.Background())
		cancel()
		runner.Drain()
	}()

	fmt.Printf("catalog server listening on http://localhost:%s\n", cfg.Port)
	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
	runner.Drain()
}

func buildClassifier(cfg config.Config) classify.Classifier {
	if cfg.UseStubs() {
		slog.Info("no classifier API key set, using stub classifier")
		return &classify.StubClassifier{}
	}
	switch cfg.Provider {
	case "gemini":
		slog.Info("using gemini classifier", "model", cfg.GeminiModel)
		return classify.NewGeminiClassifier(cfg.GeminiKey, classify.WithGeminiModel(cfg.GeminiModel))
	default:
		slog.Info("using openai classifier", "model", cfg.OpenAIModel)
		return classify.NewOpenAIClassifier(cfg.OpenAIKey,
			classify.WithModel(cfg.OpenAIModel),
			classify.WithTimeout(cfg.HTTPTimeout),
		)
	}
}
