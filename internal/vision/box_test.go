package vision

import (
	"image"
	"testing"
)

func TestSelectBest_HighestConfidence(t *testing.T) {
	detections := []Detection{
		{Label: "cattle", Confidence: 0.9, Box: Box{X1: 1, Y1: 1, X2: 10, Y2: 10}},
		{Label: "buffalo", Confidence: 0.95, Box: Box{X1: 5, Y1: 5, X2: 50, Y2: 50}},
	}

	best, ok := SelectBest(detections)
	if !ok {
		t.Fatal("Expected a detection")
	}
	if best.Confidence != 0.95 || best.Label != "buffalo" {
		t.Errorf("Expected the 0.95 buffalo box, got %+v", best)
	}
}

func TestSelectBest_TieKeepsFirst(t *testing.T) {
	detections := []Detection{
		{Label: "cattle", Confidence: 0.8},
		{Label: "buffalo", Confidence: 0.8},
	}

	best, _ := SelectBest(detections)
	if best.Label != "cattle" {
		t.Errorf("Expected first detection on tie, got %s", best.Label)
	}
}

func TestSelectBest_Empty(t *testing.T) {
	if _, ok := SelectBest(nil); ok {
		t.Error("Expected no detection for empty list")
	}
}

func TestFilterLabels(t *testing.T) {
	detections := []Detection{
		{Label: "cattle"},
		{Label: "person"},
		{Label: "buffalo"},
		{Label: "dog"},
	}

	got := FilterLabels(detections, DetectorLabels)
	if len(got) != 2 || got[0].Label != "cattle" || got[1].Label != "buffalo" {
		t.Errorf("Unexpected filtered detections: %+v", got)
	}
}

func TestClampBox(t *testing.T) {
	tests := []struct {
		name     string
		box      Box
		expected image.Rectangle
	}{
		{"inside", Box{10.7, 20.2, 100.9, 200.5}, image.Rect(10, 20, 100, 200)},
		{"overflow", Box{-10, -5, 700, 500}, image.Rect(0, 0, 639, 479)},
		{"negative fraction truncates to zero", Box{-0.5, -0.9, 3, 3}, image.Rect(0, 0, 3, 3)},
		{"fully outside", Box{1000, 1000, 1200, 1100}, image.Rectangle{Min: image.Pt(639, 479), Max: image.Pt(639, 479)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampBox(tt.box, 640, 480)
			if got != tt.expected {
				t.Errorf("ClampBox(%+v) = %v, expected %v", tt.box, got, tt.expected)
			}
			for _, p := range []image.Point{got.Min, got.Max} {
				if p.X < 0 || p.X > 639 || p.Y < 0 || p.Y > 479 {
					t.Errorf("Point %v outside [0,639]x[0,479]", p)
				}
			}
		})
	}
}

func TestClampBox_ZeroSizedImage(t *testing.T) {
	if got := ClampBox(Box{1, 1, 5, 5}, 0, 0); got != (image.Rectangle{}) {
		t.Errorf("Expected empty rectangle, got %v", got)
	}
}

func TestCropRegion_StaysInsideImage(t *testing.T) {
	bounds := image.Rect(0, 0, 640, 480)

	tests := []Box{
		{1000, 1000, 1200, 1100},
		{-50, -50, -10, -10},
		{300, 200, 100, 50},
		{10, 10, 200, 100},
	}

	for _, box := range tests {
		region := CropRegion(ClampBox(box, 640, 480))
		if region.Empty() {
			t.Errorf("Region for %+v should not be empty", box)
		}
		if !region.In(bounds) {
			t.Errorf("Region %v for %+v reads outside %v", region, box, bounds)
		}
	}
}
