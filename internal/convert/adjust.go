package convert

import (
	"image"
	"math"
)

// Adjustments are picture controls applied to an RGBA image in place.
// The zero value is not neutral; start from Neutral.
type Adjustments struct {
	Brightness float64 // -1..1, added to every channel
	Contrast   float64 // 0..2, scale around mid grey
	Saturation float64 // 0..2, 0 is greyscale
	Hue        float64 // degrees
	Gamma      float64 // > 0, 1 is linear
}

// Neutral returns adjustments that leave pixels unchanged
func Neutral() Adjustments {
	return Adjustments{Contrast: 1, Saturation: 1, Gamma: 1}
}

// IsNeutral reports whether Apply would be a no-op
func (a Adjustments) IsNeutral() bool {
	return a.Brightness == 0 && a.Contrast == 1 && a.Saturation == 1 && a.Hue == 0 && a.Gamma == 1
}

func (a Adjustments) lut() [256]uint8 {
	var t [256]uint8
	g := a.Gamma
	if g <= 0 {
		g = 1
	}
	for i := range t {
		v := float64(i) / 255
		v = math.Pow(v, 1/g)
		v = (v-0.5)*a.Contrast + 0.5 + a.Brightness
		t[i] = clamp8(v * 255)
	}
	return t
}

// Apply modifies img in place
func (a Adjustments) Apply(img *image.RGBA) {
	if a.IsNeutral() {
		return
	}
	t := a.lut()
	chroma := a.Saturation != 1 || a.Hue != 0
	sin, cos := math.Sincos(a.Hue * math.Pi / 180)

	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			r, g, bl := float64(t[row[i]]), float64(t[row[i+1]]), float64(t[row[i+2]])
			if chroma {
				// rotate and scale chroma in YIQ
				yy := 0.299*r + 0.587*g + 0.114*bl
				ii := 0.596*r - 0.274*g - 0.322*bl
				qq := 0.211*r - 0.523*g + 0.312*bl
				ii, qq = (ii*cos-qq*sin)*a.Saturation, (ii*sin+qq*cos)*a.Saturation
				r = yy + 0.956*ii + 0.621*qq
				g = yy - 0.272*ii - 0.647*qq
				bl = yy - 1.106*ii + 1.703*qq
			}
			row[i] = clamp8(r)
			row[i+1] = clamp8(g)
			row[i+2] = clamp8(bl)
		}
	}
}

func clamp8(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
