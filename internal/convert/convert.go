// Package convert turns pooled frames into images for drivers and grabs:
// plane wrapping, cropping, scaling and picture adjustments.
package convert

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"golang.org/x/image/draw"
)

// Image wraps f's planes as an image.Image. YV12 and RGBA frames are wrapped
// without copying; YUY2 is unpacked into planar 4:2:2.
func Image(f *frame.Frame) (image.Image, error) {
	r := image.Rect(0, 0, f.Width, f.Height)
	switch f.Format {
	case frame.FormatYV12:
		return &image.YCbCr{
			Y:              f.Planes[0],
			Cb:             f.Planes[1],
			Cr:             f.Planes[2],
			YStride:        f.Pitches[0],
			CStride:        f.Pitches[1],
			SubsampleRatio: image.YCbCrSubsampleRatio420,
			Rect:           r,
		}, nil
	case frame.FormatRGBA:
		return &image.RGBA{Pix: f.Planes[0], Stride: f.Pitches[0], Rect: r}, nil
	case frame.FormatYUY2:
		return unpackYUY2(f), nil
	}
	return nil, fmt.Errorf("%w: %s", frame.ErrUnsupportedFormat, f.Format)
}

func unpackYUY2(f *frame.Frame) *image.YCbCr {
	img := image.NewYCbCr(image.Rect(0, 0, f.Width, f.Height), image.YCbCrSubsampleRatio422)
	src, pitch := f.Planes[0], f.Pitches[0]
	for y := 0; y < f.Height; y++ {
		row := src[y*pitch:]
		for x := 0; x < f.Width; x += 2 {
			i := x * 2
			img.Y[y*img.YStride+x] = row[i]
			if x+1 < f.Width {
				img.Y[y*img.YStride+x+1] = row[i+2]
			}
			c := y*img.CStride + x/2
			img.Cb[c] = row[i+1]
			img.Cr[c] = row[i+3]
		}
	}
	return img
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// Crop returns the part of img inside the margins. Margins larger than the
// image are ignored.
func Crop(img image.Image, c frame.Crop) image.Image {
	b := img.Bounds()
	r := image.Rect(b.Min.X+c.Left, b.Min.Y+c.Top, b.Max.X-c.Right, b.Max.Y-c.Bottom)
	if r.Empty() || r == b {
		return img
	}
	if s, ok := img.(subImager); ok {
		return s.SubImage(r)
	}
	return img
}

// FrameRGBA converts f, cropped by its margins, into a new RGBA image
func FrameRGBA(f *frame.Frame) (*image.RGBA, error) {
	img, err := Image(f)
	if err != nil {
		return nil, err
	}
	img = Crop(img, f.Crop)
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// Into converts f into dst, reallocating dst when the cropped size changed.
// It returns the image to use.
func Into(dst *image.RGBA, f *frame.Frame) (*image.RGBA, error) {
	img, err := Image(f)
	if err != nil {
		return nil, err
	}
	img = Crop(img, f.Crop)
	b := img.Bounds()
	if dst == nil || dst.Bounds().Dx() != b.Dx() || dst.Bounds().Dy() != b.Dy() {
		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	}
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst, nil
}

// FitRect returns the largest rectangle with the source's display aspect
// centered inside a dstW x dstH area. ratio overrides the pixel aspect when > 0.
func FitRect(srcW, srcH int, ratio float64, dstW, dstH int) image.Rectangle {
	if srcW <= 0 || srcH <= 0 || dstW <= 0 || dstH <= 0 {
		return image.Rectangle{}
	}
	if ratio <= 0 {
		ratio = float64(srcW) / float64(srcH)
	}
	w := dstW
	h := int(float64(dstW)/ratio + 0.5)
	if h > dstH {
		h = dstH
		w = int(float64(dstH)*ratio + 0.5)
	}
	x := (dstW - w) / 2
	y := (dstH - h) / 2
	return image.Rect(x, y, x+w, y+h)
}

// Letterbox scales src into a black dstW x dstH canvas, reusing dst when it
// already has that size.
func Letterbox(dst *image.RGBA, src image.Image, ratio float64, dstW, dstH int, s draw.Scaler) *image.RGBA {
	if dst == nil || dst.Bounds().Dx() != dstW || dst.Bounds().Dy() != dstH {
		dst = image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	}
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	sb := src.Bounds()
	r := FitRect(sb.Dx(), sb.Dy(), ratio, dstW, dstH)
	if r.Empty() {
		return dst
	}
	if s == nil {
		s = draw.ApproxBiLinear
	}
	if r.Dx() == sb.Dx() && r.Dy() == sb.Dy() {
		draw.Draw(dst, r, src, sb.Min, draw.Src)
	} else {
		s.Scale(dst, r, src, sb, draw.Src, nil)
	}
	return dst
}

// Scale resizes src to exactly w x h
func Scale(src image.Image, w, h int, s draw.Scaler) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if s == nil {
		s = draw.CatmullRom
	}
	s.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// ScalerByName maps a config name to an x/image scaler
func ScalerByName(name string) draw.Scaler {
	switch name {
	case "nearest":
		return draw.NearestNeighbor
	case "catmullrom", "best":
		return draw.CatmullRom
	case "bilinear":
		return draw.BiLinear
	}
	return draw.ApproxBiLinear
}
