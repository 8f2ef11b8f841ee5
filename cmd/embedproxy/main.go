package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imageclassifier/internal/config"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/middleware"
	"imageclassifier/internal/proxy"
	"imageclassifier/internal/service/embedding"
)

func main() {
	cfg := config.Load()
	if err := cfg.ValidateProxy(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	proxyLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer proxyLogger.Close()

	embedder := embedding.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel, cfg.OpenAIBaseURL,
		embedding.WithTimeout(cfg.HTTPTimeout))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.ProxyPort),
		Handler:           middleware.RequestIDMiddleware(proxyLogger, proxy.NewHandler(cfg.ProxyListenAPIKey, embedder, proxyLogger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	proxyLogger.Info("Embedding proxy listening on :%d (model %s)", cfg.ProxyPort, cfg.OpenAIEmbeddingModel)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		proxyLogger.Error("Embedding proxy stopped with error: %v", err)
		os.Exit(1)
	}
}
