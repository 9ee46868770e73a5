// Package raster holds the pixel-level page operations: bounding-box
// normalization, rotation correction, cropping and image codecs.
package raster

import (
	"strings"

	"github.com/dgallion1/docstruct/internal/node"
)

// Padding is added around every transformed box so crops do not clip edges.
const Padding = 4

// ScaleTable maps a model-name prefix to the coordinate scale the model
// emits (1000 for normalized 0-1000 coordinates). Models without an entry
// emit pixel coordinates.
type ScaleTable map[string]int

// Scale returns the scale for model using the longest matching prefix, or 0
// when the model emits pixels.
func (t ScaleTable) Scale(model string) int {
	model = strings.ToLower(model)
	best, scale := -1, 0
	for prefix, s := range t {
		p := strings.ToLower(prefix)
		if strings.HasPrefix(model, p) && len(p) > best {
			best, scale = len(p), s
		}
	}
	return scale
}

// TransformBBox converts a model-space box to padded, clamped pixel
// coordinates on a width x height raster. A scale of 0 means the box is
// already in pixels. The second result is false when the clamped box has no
// area.
func TransformBBox(raw node.BBox, width, height, scale int) (node.BBox, bool) {
	b := raw
	if scale > 0 {
		b[0] = int(float64(raw[0]) * float64(width) / float64(scale))
		b[1] = int(float64(raw[1]) * float64(height) / float64(scale))
		b[2] = int(float64(raw[2]) * float64(width) / float64(scale))
		b[3] = int(float64(raw[3]) * float64(height) / float64(scale))
	}

	b[0] -= Padding
	b[1] -= Padding
	b[2] += Padding
	b[3] += Padding

	b[0] = clamp(b[0], 0, width)
	b[1] = clamp(b[1], 0, height)
	b[2] = clamp(b[2], 0, width)
	b[3] = clamp(b[3], 0, height)

	if !b.Valid() {
		return b, false
	}
	return b, true
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
