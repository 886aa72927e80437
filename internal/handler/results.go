package handler

import (
	"encoding/csv"
	"net/http"
	"os"
	"strconv"
	"time"

	"atcserver/internal/config"
	"atcserver/internal/dto"
	"atcserver/internal/logger"
	"atcserver/internal/repository"
	"atcserver/internal/service/storage"

	"github.com/gorilla/mux"
)

const (
	msgResultNotFound = "Result not found"
	msgCropNotFound   = "Crop not found"

	defaultPageSize = 20
	maxPageSize     = 100
)

// GetResultHandler returns one stored result by its numeric id.
func GetResultHandler(repo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil {
			respondError(w, logger, http.StatusNotFound, msgResultNotFound)
			return
		}

		rec, err := repo.Fetch(r.Context(), id)
		if err != nil {
			logger.Error("Error fetching result %d: %v", id, err)
			respondError(w, logger, http.StatusInternalServerError, "Failed to fetch result")
			return
		}
		if rec == nil {
			respondError(w, logger, http.StatusNotFound, msgResultNotFound)
			return
		}

		respondJSON(w, logger, http.StatusOK, rec)
	}
}

// ListResultsHandler lists stored results newest first, with an optional
// animal filter and page/limit pagination.
func ListResultsHandler(repo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), defaultPageSize)
		if limit > maxPageSize {
			limit = maxPageSize
		}

		filter := &dto.ResultFilters{
			Animal: q.Get("animal"),
			Limit:  limit,
			Offset: (page - 1) * limit,
		}

		total, err := repo.Count(r.Context(), filter)
		if err != nil {
			logger.Error("Error counting results: %v", err)
			respondError(w, logger, http.StatusInternalServerError, "Failed to list results")
			return
		}

		results, err := repo.List(r.Context(), filter)
		if err != nil {
			logger.Error("Error listing results: %v", err)
			respondError(w, logger, http.StatusInternalServerError, "Failed to list results")
			return
		}

		respondJSON(w, logger, http.StatusOK, dto.ResultsData{
			Results:     results,
			Length:      total,
			TotalPages:  (total + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
		})
	}
}

// ResultStatsHandler returns totals per animal and the failed measurement count.
func ResultStatsHandler(repo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.Stats(r.Context())
		if err != nil {
			logger.Error("Error computing stats: %v", err)
			respondError(w, logger, http.StatusInternalServerError, "Failed to compute stats")
			return
		}
		respondJSON(w, logger, http.StatusOK, stats)
	}
}

// ExportResultsHandler streams every matching result as a CSV attachment.
func ExportResultsHandler(repo repository.PredictionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results, err := repo.List(r.Context(), &dto.ResultFilters{Animal: r.URL.Query().Get("animal")})
		if err != nil {
			logger.Error("Error exporting results: %v", err)
			respondError(w, logger, http.StatusInternalServerError, "Failed to export results")
			return
		}

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="results.csv"`)

		cw := csv.NewWriter(w)
		cw.Write([]string{"id", "animal", "body_length", "chest_width", "rump_angle", "error", "created_at"})
		for _, rec := range results {
			m := rec.Measurements
			row := []string{strconv.FormatInt(rec.ID, 10), rec.Animal, "", "", "", m.Error, rec.CreatedAt.UTC().Format(time.RFC3339)}
			if !m.Failed() {
				row[2] = strconv.FormatFloat(m.BodyLength, 'f', -1, 64)
				row[3] = strconv.FormatFloat(m.ChestWidth, 'f', -1, 64)
				row[4] = m.RumpAngle
			}
			cw.Write(row)
		}
		cw.Flush()
		if err := cw.Error(); err != nil {
			logger.Error("Error writing CSV export: %v", err)
		}
	}
}

// ResultCropHandler serves the kept crop of a result. Crops exist only when
// KEEP_CROPS is enabled.
func ResultCropHandler(cfg *config.Config, workspaces *storage.WorkspaceService, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
		if err != nil || !cfg.KeepCrops {
			respondError(w, logger, http.StatusNotFound, msgCropNotFound)
			return
		}

		path := workspaces.CropPathFor(id)
		if _, err := os.Stat(path); err != nil {
			respondError(w, logger, http.StatusNotFound, msgCropNotFound)
			return
		}

		w.Header().Set("Content-Type", "image/jpeg")
		http.ServeFile(w, r, path)
	}
}
