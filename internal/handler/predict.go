package handler

import (
	"errors"
	"net/http"

	"atcserver/internal/config"
	"atcserver/internal/dto"
	"atcserver/internal/logger"
	"atcserver/internal/service"
)

// Error messages of POST /predict.
const (
	msgNoFile        = "No file uploaded"
	msgEmptyFilename = "Empty filename"
	msgNotAllowed    = "File format not allowed"
	msgTooLarge      = "File too large"
	msgNoDetection   = "No cattle/buffalo detected"
	msgFailed        = "Prediction failed"
	msgTimedOut      = "Prediction timed out"
	msgBusy          = "Server busy"
)

const multipartMemory = 8 << 20

// PredictHandler accepts a multipart upload in the "file" field and replies
// with the stored result {id, animal, measurements}.
func PredictHandler(cfg *config.Config, predictions *service.PredictionService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.MaxUploadMB > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadMB<<20)
		}

		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				respondError(w, logger, http.StatusRequestEntityTooLarge, msgTooLarge)
				return
			}
			respondError(w, logger, http.StatusBadRequest, msgNoFile)
			return
		}
		defer r.MultipartForm.RemoveAll()

		file, header, err := r.FormFile("file")
		if err != nil {
			// A part without a filename is parsed as a plain form value.
			if _, ok := r.MultipartForm.Value["file"]; ok {
				respondError(w, logger, http.StatusBadRequest, msgEmptyFilename)
				return
			}
			respondError(w, logger, http.StatusBadRequest, msgNoFile)
			return
		}
		defer file.Close()

		if header.Filename == "" {
			respondError(w, logger, http.StatusBadRequest, msgEmptyFilename)
			return
		}
		if !cfg.IsAllowedFile(header.Filename) {
			respondError(w, logger, http.StatusBadRequest, msgNotAllowed)
			return
		}

		rec, err := predictions.Predict(r.Context(), header.Filename, file)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrNoDetection):
				respondError(w, logger, http.StatusBadRequest, msgNoDetection)
			case errors.Is(err, service.ErrTimeout):
				logger.Warning("Prediction of %s timed out", header.Filename)
				respondError(w, logger, http.StatusServiceUnavailable, msgTimedOut)
			case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrStopped):
				respondError(w, logger, http.StatusServiceUnavailable, msgBusy)
			default:
				logger.Error("Prediction of %s failed: %v", header.Filename, err)
				respondError(w, logger, http.StatusInternalServerError, msgFailed)
			}
			return
		}

		respondJSON(w, logger, http.StatusOK, dto.PredictResponse{
			ID:           rec.ID,
			Animal:       rec.Animal,
			Measurements: rec.Measurements,
		})
	}
}
