package raster

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Rotate turns img clockwise by degrees (0, 90, 180 or 270, taken mod 360).
// Zero returns img itself. The result is painted through an affine transform
// pivoted at the destination centre onto a white canvas.
func Rotate(img image.Image, degrees int) (image.Image, error) {
	degrees = ((degrees % 360) + 360) % 360

	var cos, sin float64
	switch degrees {
	case 0:
		return img, nil
	case 90:
		cos, sin = 0, 1
	case 180:
		cos, sin = -1, 0
	case 270:
		cos, sin = 0, -1
	default:
		return nil, fmt.Errorf("unsupported rotation %d", degrees)
	}

	sb := img.Bounds()
	w, h := sb.Dx(), sb.Dy()
	dw, dh := w, h
	if degrees != 180 {
		dw, dh = h, w
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	// translate(dst centre) * rotate * translate(-src centre)
	scx := float64(sb.Min.X) + float64(w)/2
	scy := float64(sb.Min.Y) + float64(h)/2
	dcx := float64(dw) / 2
	dcy := float64(dh) / 2
	m := f64.Aff3{
		cos, -sin, dcx - cos*scx + sin*scy,
		sin, cos, dcy - sin*scx - cos*scy,
	}
	draw.NearestNeighbor.Transform(dst, m, img, sb, draw.Over, nil)
	return dst, nil
}
