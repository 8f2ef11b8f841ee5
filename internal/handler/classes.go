package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"imageclassifier/internal/dto"
	"imageclassifier/internal/errs"
	"imageclassifier/internal/logger"
)

// ClassCatalog lists and looks up classes.
type ClassCatalog interface {
	ListClasses(ctx context.Context) ([]dto.ClassInfo, error)
	GetClass(ctx context.Context, id int64) (*dto.ClassInfo, error)
}

// ListClassesHandler handles GET /classes.
func ListClassesHandler(catalog ClassCatalog, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		classes, err := catalog.ListClasses(r.Context())
		if err != nil {
			log.ErrorCtx(r.Context(), "Failed to list classes: %v", err)
			writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "internal server error"})
			return
		}
		writeJSON(w, http.StatusOK, classes)
	}
}

// GetClassHandler handles GET /classes/{classId}.
func GetClassHandler(catalog ClassCatalog, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.PathValue("classId"), 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, dto.MessageResponse{Message: "invalid classId"})
			return
		}

		class, err := catalog.GetClass(r.Context(), id)
		switch {
		case errors.Is(err, errs.ErrClassNotFound):
			writeJSON(w, http.StatusNotFound, dto.MessageResponse{Message: "not found"})
		case err != nil:
			log.ErrorCtx(r.Context(), "Failed to get class %d: %v", id, err)
			writeJSON(w, http.StatusInternalServerError, dto.MessageResponse{Message: "internal server error"})
		default:
			writeJSON(w, http.StatusOK, class)
		}
	}
}
