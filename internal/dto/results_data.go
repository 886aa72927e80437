package dto

import "atcserver/internal/model"

// ResultsData is a paginated response payload for the results listing.
type ResultsData struct {
	Results     []model.PredictionRecord `json:"results"`
	Length      int                      `json:"length"`
	TotalPages  int                      `json:"totalPages"`
	CurrentPage int                      `json:"currentPage"`
	Limit       int                      `json:"pageSize"`
}

// ResultStats summarizes stored results.
type ResultStats struct {
	TotalResults       int            `json:"total_results"`
	PerAnimal          map[string]int `json:"per_animal"`
	FailedMeasurements int            `json:"failed_measurements"`
}
