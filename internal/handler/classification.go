package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"imageclassifier/internal/dto"
	"imageclassifier/internal/errs"
	"imageclassifier/internal/logger"
	"imageclassifier/internal/service/classification"
)

// Classifier runs the classification pipeline for one image.
type Classifier interface {
	Classify(ctx context.Context, imagePath string) (*classification.Result, error)
}

// ClassifyHandler handles POST /api/classification.
// Invalid bodies get 400 and are not recorded; pipeline failures get the error's status with only its code.
func ClassifyHandler(svc Classifier, log *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req dto.ClassificationRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			log.WarningCtx(r.Context(), "Invalid classification body: %v", err)
			writeClassificationError(w, errs.Wrap(errs.ErrInvalidRequest, err))
			return
		}
		if err := classification.ValidateImagePath(req.ImagePath); err != nil {
			log.WarningCtx(r.Context(), "Invalid image_path: %v", err)
			writeClassificationError(w, err)
			return
		}

		res, err := svc.Classify(r.Context(), req.ImagePath)
		if err != nil {
			writeClassificationError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, dto.ClassificationResponse{
			Success:       true,
			Message:       "success",
			EstimatedData: &dto.EstimatedData{Class: res.ClassID, Confidence: res.Confidence},
		})
	}
}

func writeClassificationError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	writeJSON(w, kind.HTTPStatus, dto.ClassificationResponse{Message: "Error:" + kind.Code})
}
