package vision

import (
	"fmt"
	"image"
	"sort"
)

// YOLOInputSize is the square input resolution of the detector.
const YOLOInputSize = 640

// DecodeYOLO decodes a YOLOv8 detection head output laid out as
// [4+len(classNames), anchors]: cx, cy, w, h rows followed by one score row per
// class. Boxes are scaled back to source image pixels with scaleX/scaleY.
// Only candidates whose best class score reaches confThreshold are returned.
func DecodeYOLO(output []float32, classNames []string, anchors int, confThreshold, scaleX, scaleY float64) ([]Detection, error) {
	rows := 4 + len(classNames)
	if len(classNames) == 0 || anchors <= 0 {
		return nil, fmt.Errorf("invalid output layout: %d classes, %d anchors", len(classNames), anchors)
	}
	if len(output) != rows*anchors {
		return nil, fmt.Errorf("unexpected output length: got %d, want %d", len(output), rows*anchors)
	}

	var detections []Detection
	for i := 0; i < anchors; i++ {
		classID := 0
		score := output[4*anchors+i]
		for c := 1; c < len(classNames); c++ {
			if s := output[(4+c)*anchors+i]; s > score {
				score = s
				classID = c
			}
		}
		if float64(score) < confThreshold {
			continue
		}

		cx := float64(output[i])
		cy := float64(output[anchors+i])
		w := float64(output[2*anchors+i])
		h := float64(output[3*anchors+i])

		detections = append(detections, Detection{
			Label:      classNames[classID],
			Confidence: float64(score),
			Box: Box{
				X1: (cx - w/2) * scaleX,
				Y1: (cy - h/2) * scaleY,
				X2: (cx + w/2) * scaleX,
				Y2: (cy + h/2) * scaleY,
			},
		})
	}
	return detections, nil
}

// SuppressFunc returns the indices of the boxes that survive non-maximum
// suppression.
type SuppressFunc func(boxes []image.Rectangle, scores []float32, scoreThreshold, iouThreshold float32) []int

// ApplyNMS runs suppress over the candidates and returns the survivors in
// their original order.
func ApplyNMS(candidates []Detection, suppress SuppressFunc, scoreThreshold, iouThreshold float64) []Detection {
	if len(candidates) == 0 {
		return []Detection{}
	}
	boxes := make([]image.Rectangle, len(candidates))
	scores := make([]float32, len(candidates))
	for i, c := range candidates {
		boxes[i] = image.Rect(int(c.Box.X1), int(c.Box.Y1), int(c.Box.X2), int(c.Box.Y2))
		scores[i] = float32(c.Confidence)
	}

	keep := suppress(boxes, scores, float32(scoreThreshold), float32(iouThreshold))
	sort.Ints(keep)

	kept := make([]Detection, 0, len(keep))
	for _, idx := range keep {
		if idx >= 0 && idx < len(candidates) {
			kept = append(kept, candidates[idx])
		}
	}
	return kept
}
