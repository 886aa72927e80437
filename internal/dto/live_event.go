package dto

import "atcserver/internal/model"

// LiveEvent is pushed to websocket viewers when a result is stored.
type LiveEvent struct {
	Type   string                 `json:"type"`
	Record model.PredictionRecord `json:"record"`
}
