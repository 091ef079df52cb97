// Package colorramp recolors grayscale suitability tiles with a red to
// green ramp.
package colorramp

import (
	"image"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

var (
	// Low is the color of the smallest value in a tile.
	Low = colorful.Color{R: 1, G: 0, B: 0}
	// High is the color of the largest value in a tile.
	High = colorful.Color{R: 0, G: 1, B: 0}
)

// At returns the ramp color for t in [0, 1].
func At(t float64) colorful.Color {
	return Low.BlendRgb(High, max(0, min(1, t)))
}

// Apply maps the luminance of every pixel, normalized by the brightest
// pixel of the image, onto the ramp. An all-black image maps entirely to
// Low. Alpha is carried over so nodata stays transparent.
func Apply(src image.Image) *image.NRGBA {
	b := src.Bounds()
	gray := make([]uint8, b.Dx()*b.Dy())
	alpha := make([]uint8, len(gray))

	var peak uint8
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			g := color.GrayModel.Convert(color.RGBA{c.R, c.G, c.B, 255}).(color.Gray).Y
			gray[i], alpha[i] = g, c.A
			peak = max(peak, g)
			i++
		}
	}

	var lut [256]color.NRGBA
	for v := range lut {
		t := 0.0
		if peak > 0 {
			t = float64(v) / float64(peak)
		}
		r, g, bl := At(t).RGB255()
		lut[v] = color.NRGBA{R: r, G: g, B: bl, A: 255}
	}

	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for i, g := range gray {
		c := lut[g]
		c.A = alpha[i]
		dst.Pix[i*4+0] = c.R
		dst.Pix[i*4+1] = c.G
		dst.Pix[i*4+2] = c.B
		dst.Pix[i*4+3] = c.A
	}
	return dst
}
