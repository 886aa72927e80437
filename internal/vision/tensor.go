package vision

import (
	"image"

	"github.com/disintegration/imaging"
)

// ImageNet normalization constants used by the classifier.
var (
	ImageNetMean = [3]float32{0.485, 0.456, 0.406}
	ImageNetStd  = [3]float32{0.229, 0.224, 0.225}
)

// ImageToNCHW resizes img to size x size, drops alpha, scales channels to
// [0,1], normalizes each channel with mean/std and returns a planar
// (1, 3, size, size) tensor.
func ImageToNCHW(img image.Image, size int, mean, std [3]float32) []float32 {
	resized := imaging.Resize(img, size, size, imaging.Linear)

	plane := size * size
	tensor := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := resized.PixOffset(x, y)
			i := y*size + x
			for c := 0; c < 3; c++ {
				v := float32(resized.Pix[p+c]) / 255.0
				tensor[c*plane+i] = (v - mean[c]) / std[c]
			}
		}
	}
	return tensor
}

// ImageToNHWC resizes img to size x size and returns an interleaved
// (1, size, size, 3) RGB tensor scaled to [0,1].
func ImageToNHWC(img image.Image, size int) []float32 {
	resized := imaging.Resize(img, size, size, imaging.Linear)

	tensor := make([]float32, size*size*3)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			p := resized.PixOffset(x, y)
			i := (y*size + x) * 3
			tensor[i] = float32(resized.Pix[p]) / 255.0
			tensor[i+1] = float32(resized.Pix[p+1]) / 255.0
			tensor[i+2] = float32(resized.Pix[p+2]) / 255.0
		}
	}
	return tensor
}

// Argmax returns the index of the largest value; the first one wins on ties.
func Argmax(values []float32) int {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return best
}
