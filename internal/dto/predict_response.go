package dto

import "atcserver/internal/model"

// PredictResponse is the success payload of POST /predict.
type PredictResponse struct {
	ID           int64                `json:"id"`
	Animal       string               `json:"animal"`
	Measurements model.MeasurementSet `json:"measurements"`
}

// ErrorResponse is the payload of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
