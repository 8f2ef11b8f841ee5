package handler

import (
	"context"
	"net/http"
	"strconv"

	"imageclassifier/internal/dto"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/model"
)

const (
	defaultAnalysisLimit = 50
	maxAnalysisLimit     = 500
)

// AnalysisLogReader reads the classification audit log.
type AnalysisLogReader interface {
	ListRecent(ctx context.Context, limit int) ([]model.AnalysisLogEntry, error)
}

// AnalysisLogHandler handles GET /logs/analysis?limit=N, newest entries first.
func AnalysisLogHandler(logs AnalysisLogReader, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultAnalysisLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeJSON(w, http.StatusBadRequest, dto.MessageResponse{Message: "invalid limit"})
				return
			}
			limit = min(n, maxAnalysisLimit)
		}

		entries, err := logs.ListRecent(r.Context(), limit)
		if err != nil {
			log.ErrorCtx(r.Context(), "Failed to read analysis log: %v", err)
			writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "internal server error"})
			return
		}
		if entries == nil {
			entries = []model.AnalysisLogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
