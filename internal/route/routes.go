package route

import (
	"net/http"

	"imageclassifier/internal/config"
	"imageclassifier/internal/handler"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/middleware"
)

// Service is what the HTTP surface needs from the classification service.
type Service interface {
	handler.Classifier
	handler.ClassCatalog
}

// SetupRoutes registers the API, class catalog and log endpoints and wraps
// each group with its authentication middleware.
func SetupRoutes(cfg *config.Config, logger *logger.Logger, svc Service, analysis handler.AnalysisLogReader,
	hub handler.ViewerHub, limiter middleware.Limiter) http.Handler {
	// API endpoints: bearer token, then rate limit
	api := http.NewServeMux()
	api.HandleFunc("GET /api", handler.HelloHandler)
	api.HandleFunc("POST /api/classification", handler.ClassifyHandler(svc, logger))
	api.HandleFunc("GET /api/classification/stream", handler.StreamHandler(hub, logger))
	apiHandler := middleware.BearerAuthMiddleware(cfg.APIToken,
		middleware.RateLimitMiddleware(limiter, logger, api))

	// Class catalog, audit log and log file endpoints: basic auth
	admin := http.NewServeMux()
	admin.HandleFunc("GET /classes", handler.ListClassesHandler(svc, logger))
	admin.HandleFunc("GET /classes/{classId}", handler.GetClassHandler(svc, logger))
	admin.HandleFunc("GET /logs/analysis", handler.AnalysisLogHandler(analysis, logger))
	admin.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(logger))
	admin.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(logger))
	adminHandler := middleware.BasicAuthMiddleware(cfg.Username, cfg.Password, admin)

	mux := http.NewServeMux()
	mux.Handle("/api", apiHandler)
	mux.Handle("/api/", apiHandler)
	mux.Handle("/classes", adminHandler)
	mux.Handle("/classes/", adminHandler)
	mux.Handle("/logs/", adminHandler)

	return middleware.RequestIDMiddleware(logger, mux)
}
