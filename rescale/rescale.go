// Package rescale resamples label masks with nearest-neighbor interpolation.
//
// Category ids are never blended: every output pixel copies exactly one input
// pixel, so the set of values in the output is a subset of the input's.
package rescale

import (
	"image"

	"golang.org/x/image/draw"
)

// ScaledSize returns the size of a w x h mask scaled by s. Dimensions are
// truncated, so the caller must pick s such that neither rounds to zero.
func ScaledSize(w, h int, s float64) (int, int) {
	return int(float64(w) * s), int(float64(h) * s)
}

// Labels returns mask resized by scale s using nearest-neighbor sampling.
// The result always starts at the origin.
func Labels(mask *image.Gray, s float64) *image.Gray {
	b := mask.Bounds()
	w, h := ScaledSize(b.Dx(), b.Dy(), s)
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), mask, b, draw.Src, nil)
	return dst
}
