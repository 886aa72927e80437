package vision

import (
	"math"

	"atcserver/internal/model"
)

// Pose landmark indices (BlazePose topology).
const (
	LeftShoulder  = 11
	RightShoulder = 12
	LeftHip       = 23
	RightHip      = 24

	NumLandmarks    = 33
	valuesPerPoint  = 5
	PoseInputSize   = 256
	PresenceMinimum = 0.5
)

// Landmark is a pose point with coordinates normalized to [0,1] of the input.
type Landmark struct {
	X          float64
	Y          float64
	Z          float64
	Visibility float64
	Presence   float64
}

// DecodeLandmarks converts raw pose output (x, y, z, visibility, presence per
// point, in input pixels) into normalized landmarks. Extra auxiliary points
// beyond the body topology are ignored. It returns nil when presence is below
// PresenceMinimum or the output is too short.
func DecodeLandmarks(raw []float32, presence float32, inputSize int) []Landmark {
	if float64(presence) < PresenceMinimum || len(raw) < NumLandmarks*valuesPerPoint || inputSize <= 0 {
		return nil
	}
	size := float64(inputSize)
	landmarks := make([]Landmark, NumLandmarks)
	for i := range landmarks {
		o := i * valuesPerPoint
		landmarks[i] = Landmark{
			X:          float64(raw[o]) / size,
			Y:          float64(raw[o+1]) / size,
			Z:          float64(raw[o+2]) / size,
			Visibility: float64(raw[o+3]),
			Presence:   float64(raw[o+4]),
		}
	}
	return landmarks
}

// Measure derives the body measurements from landmarks. An empty or short
// landmark list yields the no-landmarks marker.
func Measure(landmarks []Landmark) model.MeasurementSet {
	if len(landmarks) <= RightHip {
		return model.NoLandmarks()
	}
	bodyLength := math.Abs(landmarks[RightHip].X - landmarks[RightShoulder].X)
	chestWidth := math.Abs(landmarks[LeftShoulder].X - landmarks[RightShoulder].X)

	return model.MeasurementSet{
		BodyLength: Round3(bodyLength),
		ChestWidth: Round3(chestWidth),
		RumpAngle:  model.PendingMeasurement,
	}
}

// Round3 rounds to 3 decimal places, halves away from zero.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
