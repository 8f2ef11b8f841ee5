package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"imageclassifier/internal/config"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/repository"
	"imageclassifier/internal/repository/postgres"
	"imageclassifier/internal/repository/sqlite"
	"imageclassifier/internal/route"
	"imageclassifier/internal/service/audit"
	"imageclassifier/internal/service/classification"
	"imageclassifier/internal/service/dedup"
	"imageclassifier/internal/service/embedding"
	"imageclassifier/internal/service/ratelimit"
	"imageclassifier/internal/service/vision"
	"imageclassifier/internal/service/websocket"
)

const (
	hubBuffer     = 64
	queueSize     = 64
	shutdownGrace = 10 * time.Second
)

// Stores groups the repositories backing one database.
type Stores struct {
	Classes   repository.ClassRepository
	Logs      repository.AnalysisLogRepository
	RateLimit repository.RateLimitRepository
	// Locker serializes class resolution across processes; nil for SQLite.
	Locker dedup.Locker
	closer io.Closer
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenStores opens the database selected by cfg.DBDriver and runs its migrations.
func OpenStores(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.DBDriver {
	case "postgres":
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		classes := postgres.NewClassRepository(db)
		return &Stores{
			Classes:   classes,
			Logs:      postgres.NewAnalysisLogRepository(db),
			RateLimit: postgres.NewRateLimitRepository(db),
			Locker:    classes,
			closer:    db,
		}, nil
	case "sqlite3", "":
		db, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Classes:   sqlite.NewClassRepository(db),
			Logs:      sqlite.NewAnalysisLogRepository(db),
			RateLimit: sqlite.NewRateLimitRepository(db),
			closer:    db,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

type App struct {
	config  *config.Config
	logger  *logger.Logger
	stores  *Stores
	hub     *websocket.HubService
	queue   *dedup.Queue
	handler http.Handler
}

// NewApp wires the classification server from cfg.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	annotator, err := vision.NewClient(cfg.GCPServiceAccount,
		vision.WithEndpoint(cfg.VisionAPIURL),
		vision.WithTimeout(cfg.HTTPTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vision client: %w", err)
	}

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &App{
		config: cfg,
		logger: log,
		stores: stores,
		hub:    websocket.NewHubService(hubBuffer, log),
	}

	var resolver dedup.ClassResolver = dedup.NewResolver(stores.Classes, cfg.SimilarityThreshold,
		dedup.WithLocker(stores.Locker))
	if cfg.DedupSerialize {
		a.queue = dedup.NewQueue(resolver, queueSize, log)
		resolver = a.queue
	}

	svc := classification.NewService(classification.Deps{
		Annotator: annotator,
		Embedder:  embedding.NewProxyClient(cfg.ProxyAPIURL, cfg.ProxyAPIKey, cfg.HTTPTimeout),
		Resolver:  resolver,
		Recorder:  audit.NewRecorder(stores.Logs),
		Classes:   stores.Classes,
		Events:    a.hub,
		Logger:    log,
	})
	limiter := ratelimit.NewLimiter(stores.RateLimit, cfg.RateLimitMax, cfg.RateLimitWindow)

	a.handler = route.SetupRoutes(cfg, log, svc, stores.Logs, a.hub, limiter)
	return a, nil
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Image classification API listening on :%d (db: %s)", a.config.Port, a.config.DBDriver)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	err := server.Shutdown(shutdownCtx)
	stopHub()
	if closeErr := a.Close(); err == nil {
		err = closeErr
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Close stops the dedup queue and closes the database.
func (a *App) Close() error {
	if a.queue != nil {
		a.queue.Stop()
	}
	return a.stores.Close()
}
