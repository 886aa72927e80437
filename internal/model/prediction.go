package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Animal labels returned by the classifier.
const (
	AnimalCattle  = "Cattle"
	AnimalBuffalo = "Buffalo"
)

// Measurement field values.
const (
	PendingMeasurement = "TBD"
	NoLandmarksError   = "No animal landmarks detected"
)

// MeasurementSet holds the body measurements derived from pose landmarks.
// When Error is set the extraction failed and the numeric fields are unused.
type MeasurementSet struct {
	BodyLength float64
	ChestWidth float64
	RumpAngle  string
	Error      string
}

type measurementJSON struct {
	BodyLength float64 `json:"Body Length"`
	ChestWidth float64 `json:"Chest Width"`
	RumpAngle  string  `json:"Rump Angle"`
}

type measurementErrorJSON struct {
	Error string `json:"error"`
}

// NoLandmarks returns the failure marker used when pose estimation finds nothing.
func NoLandmarks() MeasurementSet {
	return MeasurementSet{Error: NoLandmarksError}
}

// Failed reports whether the set carries an extraction failure marker.
func (m MeasurementSet) Failed() bool {
	return m.Error != ""
}

// MarshalJSON writes either the measurement record or the error marker.
func (m MeasurementSet) MarshalJSON() ([]byte, error) {
	if m.Failed() {
		return json.Marshal(measurementErrorJSON{Error: m.Error})
	}
	return json.Marshal(measurementJSON{
		BodyLength: m.BodyLength,
		ChestWidth: m.ChestWidth,
		RumpAngle:  m.RumpAngle,
	})
}

// UnmarshalJSON accepts both shapes produced by MarshalJSON.
func (m *MeasurementSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode measurements: %w", err)
	}
	if _, ok := raw["error"]; ok {
		var e measurementErrorJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode measurement error: %w", err)
		}
		*m = MeasurementSet{Error: e.Error}
		return nil
	}
	var v measurementJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decode measurement values: %w", err)
	}
	*m = MeasurementSet{BodyLength: v.BodyLength, ChestWidth: v.ChestWidth, RumpAngle: v.RumpAngle}
	return nil
}

// PredictionRecord is a persisted result. It is never modified after Save.
type PredictionRecord struct {
	ID           int64          `json:"id"`
	Animal       string         `json:"animal"`
	Measurements MeasurementSet `json:"measurements"`
	CreatedAt    time.Time      `json:"created_at"`
}
