// Package geometry computes the source sampling rectangle for
// center-crop-to-fill thumbnail resizing.
package geometry

import "math"

// Rect is a source sampling rectangle in pixel coordinates.
type Rect struct {
	X int
	Y int
	W int
	H int
}

// Fill computes the output height and the source rectangle to sample so
// that resizing the rectangle to dstW x outH fills the requested box with
// no letterboxing and no distortion.
//
// When dstH <= 0 the height is derived from the source aspect ratio and
// the full source rectangle is returned (scale only, no crop). Otherwise
// the axis on which the source overflows the target aspect is cropped
// symmetrically around the center.
//
// Source dimensions must be positive; dstW must be positive. The returned
// rectangle always lies fully within [0, srcW] x [0, srcH], and its aspect
// ratio matches dstW:dstH within integer rounding.
func Fill(srcW, srcH, dstW, dstH int) (int, Rect) {
	full := Rect{X: 0, Y: 0, W: srcW, H: srcH}

	if dstH <= 0 {
		outH := int(math.Round(float64(dstW) * float64(srcH) / float64(srcW)))
		if outH < 1 {
			outH = 1
		}
		return outH, full
	}

	cmpX := float64(srcW) / float64(dstW)
	cmpY := float64(srcH) / float64(dstH)

	switch {
	case cmpX > cmpY:
		// source relatively wider than target: crop width, centered
		w := int(math.Round(float64(srcW) / cmpX * cmpY))
		w = clamp(w, 1, srcW)
		x := (srcW - w) / 2
		return dstH, Rect{X: x, Y: 0, W: w, H: srcH}
	case cmpY > cmpX:
		// source relatively taller than target: crop height, centered
		h := int(math.Round(float64(srcH) / cmpY * cmpX))
		h = clamp(h, 1, srcH)
		y := (srcH - h) / 2
		return dstH, Rect{X: 0, Y: y, W: srcW, H: h}
	default:
		return dstH, full
	}
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
