// Package vision holds the pure image geometry and tensor code shared by the
// model services: detection selection, crop clamping, YOLO output decoding,
// tensor preprocessing and pose measurements.
package vision

import "image"

// DetectorLabels are the only classes the detector reports.
var DetectorLabels = []string{"cattle", "buffalo"}

// Box is an axis-aligned bounding box in source image pixels (x1, y1, x2, y2).
type Box struct {
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// Detection is a single labeled, confidence-scored bounding box.
type Detection struct {
	Label      string  `json:"cls"`
	Confidence float64 `json:"conf"`
	Box        Box     `json:"box"`
}

// Rect converts the box to an integer rectangle, truncating toward zero.
func (b Box) Rect() image.Rectangle {
	return image.Rectangle{
		Min: image.Point{X: int(b.X1), Y: int(b.Y1)},
		Max: image.Point{X: int(b.X2), Y: int(b.Y2)},
	}
}

// FilterLabels keeps the detections whose label is in allowed.
func FilterLabels(detections []Detection, allowed []string) []Detection {
	filtered := make([]Detection, 0, len(detections))
	for _, det := range detections {
		for _, label := range allowed {
			if det.Label == label {
				filtered = append(filtered, det)
				break
			}
		}
	}
	return filtered
}

// SelectBest returns the detection with the highest confidence. Ties keep the
// first one encountered. ok is false for an empty list.
func SelectBest(detections []Detection) (best Detection, ok bool) {
	if len(detections) == 0 {
		return Detection{}, false
	}
	best = detections[0]
	for _, det := range detections[1:] {
		if det.Confidence > best.Confidence {
			best = det
		}
	}
	return best, true
}

// ClampBox truncates the box to integers and clamps every coordinate into
// [0, width-1] x [0, height-1]. The result may be empty but never reaches
// outside the image.
func ClampBox(box Box, width, height int) image.Rectangle {
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	r := box.Rect()
	return image.Rectangle{
		Min: image.Point{X: clamp(r.Min.X, 0, width-1), Y: clamp(r.Min.Y, 0, height-1)},
		Max: image.Point{X: clamp(r.Max.X, 0, width-1), Y: clamp(r.Max.Y, 0, height-1)},
	}
}

// CropRegion turns a clamped rectangle into a region that can be read from the
// image. Empty or inverted rectangles collapse to a 1x1 region at their origin.
func CropRegion(r image.Rectangle) image.Rectangle {
	if r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y {
		return image.Rectangle{Min: r.Min, Max: r.Min.Add(image.Point{X: 1, Y: 1})}
	}
	return r
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
