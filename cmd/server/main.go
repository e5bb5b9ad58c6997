package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/qiniu/notegen/internal/config"
	"github.com/qiniu/notegen/internal/enrich"
	ghclient "github.com/qiniu/notegen/internal/github"
	"github.com/qiniu/notegen/internal/github/auth"
	"github.com/qiniu/notegen/internal/llm"
	"github.com/qiniu/notegen/internal/notes"
	"github.com/qiniu/notegen/internal/section"
	"github.com/qiniu/notegen/internal/store"
	"github.com/qiniu/notegen/internal/webhook"

	"github.com/qiniu/x/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	grammar, err := section.NewGrammar(cfg.SectionTags())
	if err != nil {
		log.Fatalf("Invalid section vocabulary: %v", err)
	}

	authenticator, err := auth.New(cfg)
	if err != nil {
		log.Fatalf("Failed to set up GitHub authentication: %v", err)
	}
	log.Infof("GitHub authentication initialized: type=%s", authenticator.Type())

	githubClient, err := ghclient.NewClient(cfg)
	if err != nil {
		log.Fatalf("Failed to create GitHub client: %v", err)
	}

	noteStore := store.NewMemoryStore()
	llmClient := llm.NewClient(cfg.LLM, grammar)
	consumer := notes.NewConsumer(llmClient, noteStore, grammar, cfg.Notes.StreamTimeout)

	enricher, err := enrich.New(authenticator, githubClient, noteStore)
	if err != nil {
		log.Fatalf("Failed to create enricher: %v", err)
	}

	handler := webhook.NewHandler(cfg, consumer, noteStore, githubClient, enricher)
	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: mux,
	}

	go func() {
		log.Infof("notegen server listening on %s (sections: %v, stream timeout: %s)",
			server.Addr, cfg.SectionTags(), cfg.Notes.StreamTimeout)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infof("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Errorf("Server shutdown error: %v", err)
	}
	log.Infof("Server stopped")
}
