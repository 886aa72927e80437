package handler

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"

	"atcserver/internal/dto"
	"atcserver/internal/model"

	"github.com/gorilla/mux"
)

func seedResults(t *testing.T, env *testEnv, animals ...string) []int64 {
	t.Helper()
	var ids []int64
	for _, animal := range animals {
		id, err := env.repo.Save(context.Background(), animal, model.MeasurementSet{BodyLength: 0.2, ChestWidth: 0.1, RumpAngle: model.PendingMeasurement})
		if err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}

func withID(req *http.Request, id string) *http.Request {
	return mux.SetURLVars(req, map[string]string{"id": id})
}

func TestGetResultHandler_Found(t *testing.T) {
	env := setupTestEnv(t)
	ids := seedResults(t, env, model.AnimalBuffalo)
	idStr := strconv.FormatInt(ids[0], 10)

	w := httptest.NewRecorder()
	GetResultHandler(env.repo, env.logger).ServeHTTP(w, withID(httptest.NewRequest(http.MethodGet, "/results/"+idStr, nil), idStr))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var rec model.PredictionRecord
	if err := json.NewDecoder(w.Body).Decode(&rec); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if rec.ID != ids[0] || rec.Animal != model.AnimalBuffalo {
		t.Errorf("Unexpected record: %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("Expected created_at to be set")
	}
}

func TestGetResultHandler_NotFound(t *testing.T) {
	env := setupTestEnv(t)

	for _, id := range []string{"0", "99999", "99999999999999999999999"} {
		w := httptest.NewRecorder()
		GetResultHandler(env.repo, env.logger).ServeHTTP(w, withID(httptest.NewRequest(http.MethodGet, "/results/"+id, nil), id))

		if w.Code != http.StatusNotFound {
			t.Errorf("id %s: expected 404, got %d", id, w.Code)
			continue
		}
		if msg := decodeError(t, w); msg != "Result not found" {
			t.Errorf("id %s: unexpected error %q", id, msg)
		}
	}
}

func TestListResultsHandler_Pagination(t *testing.T) {
	env := setupTestEnv(t)
	seedResults(t, env, model.AnimalCattle, model.AnimalBuffalo, model.AnimalCattle, model.AnimalCattle, model.AnimalBuffalo)

	w := httptest.NewRecorder()
	ListResultsHandler(env.repo, env.logger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/results?page=2&limit=2", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}

	var data dto.ResultsData
	if err := json.NewDecoder(w.Body).Decode(&data); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if data.Length != 5 || data.TotalPages != 3 || data.CurrentPage != 2 || data.Limit != 2 {
		t.Errorf("Unexpected pagination: %+v", data)
	}
	if len(data.Results) != 2 {
		t.Errorf("Expected 2 results on page 2, got %d", len(data.Results))
	}
}

func TestListResultsHandler_AnimalFilter(t *testing.T) {
	env := setupTestEnv(t)
	seedResults(t, env, model.AnimalCattle, model.AnimalBuffalo, model.AnimalCattle)

	w := httptest.NewRecorder()
	ListResultsHandler(env.repo, env.logger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/results?animal=buffalo", nil))

	var data dto.ResultsData
	if err := json.NewDecoder(w.Body).Decode(&data); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if data.Length != 1 || len(data.Results) != 1 || data.Results[0].Animal != model.AnimalBuffalo {
		t.Errorf("Unexpected filtered results: %+v", data)
	}
}

func TestResultStatsHandler(t *testing.T) {
	env := setupTestEnv(t)
	seedResults(t, env, model.AnimalCattle, model.AnimalCattle, model.AnimalBuffalo)
	if _, err := env.repo.Save(context.Background(), model.AnimalBuffalo, model.NoLandmarks()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	w := httptest.NewRecorder()
	ResultStatsHandler(env.repo, env.logger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/results/stats", nil))

	var stats dto.ResultStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if stats.TotalResults != 4 || stats.PerAnimal[model.AnimalCattle] != 2 || stats.PerAnimal[model.AnimalBuffalo] != 2 || stats.FailedMeasurements != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}

func TestExportResultsHandler(t *testing.T) {
	env := setupTestEnv(t)
	seedResults(t, env, model.AnimalCattle)
	if _, err := env.repo.Save(context.Background(), model.AnimalBuffalo, model.NoLandmarks()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	w := httptest.NewRecorder()
	ExportResultsHandler(env.repo, env.logger).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/results/export", nil))

	if ct := w.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Errorf("Unexpected content type %q", ct)
	}

	rows, err := csv.NewReader(w.Body).ReadAll()
	if err != nil {
		t.Fatalf("Failed to parse CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected header and 2 rows, got %d", len(rows))
	}
	// Newest first.
	if rows[1][1] != model.AnimalBuffalo || rows[1][5] != model.NoLandmarksError || rows[1][2] != "" {
		t.Errorf("Unexpected failed row: %v", rows[1])
	}
	if rows[2][1] != model.AnimalCattle || rows[2][2] != "0.2" || rows[2][4] != model.PendingMeasurement {
		t.Errorf("Unexpected measured row: %v", rows[2])
	}
}

func TestResultCropHandler(t *testing.T) {
	env := setupTestEnv(t)
	ids := seedResults(t, env, model.AnimalCattle)
	idStr := strconv.FormatInt(ids[0], 10)
	handler := ResultCropHandler(env.cfg, env.workspaces, env.logger)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, withID(httptest.NewRequest(http.MethodGet, "/results/"+idStr+"/crop", nil), idStr))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before crop exists, got %d", w.Code)
	}

	if err := os.WriteFile(env.workspaces.CropPathFor(ids[0]), []byte("jpeg"), 0644); err != nil {
		t.Fatalf("Failed to write crop: %v", err)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withID(httptest.NewRequest(http.MethodGet, "/results/"+idStr+"/crop", nil), idStr))
	if w.Code != http.StatusOK || w.Body.String() != "jpeg" {
		t.Errorf("Expected crop to be served, got %d %q", w.Code, w.Body.String())
	}

	env.cfg.KeepCrops = false
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, withID(httptest.NewRequest(http.MethodGet, "/results/"+idStr+"/crop", nil), idStr))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 with crops disabled, got %d", w.Code)
	}
}
