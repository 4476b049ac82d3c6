package convert

import (
	"image"
	"image/color"
	"testing"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
)

func solidYV12(t *testing.T, w, h int, y, cb, cr byte) *frame.Frame {
	t.Helper()
	f := frame.New(0, nil)
	if err := f.AllocPlanes(w, h, frame.FormatYV12); err != nil {
		t.Fatal(err)
	}
	fill := func(p []byte, v byte) {
		for i := range p {
			p[i] = v
		}
	}
	fill(f.Planes[0], y)
	fill(f.Planes[1], cb)
	fill(f.Planes[2], cr)
	return f
}

func TestFrameRGBAFromYV12(t *testing.T) {
	f := solidYV12(t, 6, 4, 235, 128, 128)
	img, err := FrameRGBA(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds().Dx() != 6 || img.Bounds().Dy() != 4 {
		t.Fatalf("bounds %v", img.Bounds())
	}
	c := img.RGBAAt(3, 2)
	want := color.YCbCr{Y: 235, Cb: 128, Cr: 128}
	wr, wg, wb, _ := want.RGBA()
	if c.R != uint8(wr>>8) || c.G != uint8(wg>>8) || c.B != uint8(wb>>8) {
		t.Errorf("pixel %v, want %d,%d,%d", c, wr>>8, wg>>8, wb>>8)
	}
}

func TestFrameRGBAAppliesCrop(t *testing.T) {
	f := solidYV12(t, 8, 8, 16, 128, 128)
	f.Crop = frame.Crop{Left: 2, Right: 2, Top: 1, Bottom: 3}
	img, err := FrameRGBA(f)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, 4, 4) {
		t.Errorf("cropped bounds %v", img.Bounds())
	}
}

func TestYUY2Unpack(t *testing.T) {
	f := frame.New(0, nil)
	if err := f.AllocPlanes(2, 1, frame.FormatYUY2); err != nil {
		t.Fatal(err)
	}
	copy(f.Planes[0], []byte{10, 100, 20, 200})
	img, err := Image(f)
	if err != nil {
		t.Fatal(err)
	}
	ycc := img.(*image.YCbCr)
	if ycc.Y[0] != 10 || ycc.Y[1] != 20 || ycc.Cb[0] != 100 || ycc.Cr[0] != 200 {
		t.Errorf("unpacked Y=%v Cb=%v Cr=%v", ycc.Y[:2], ycc.Cb[:1], ycc.Cr[:1])
	}
}

func TestRGBAFrameWrapsWithoutCopy(t *testing.T) {
	f := frame.New(0, nil)
	if err := f.AllocPlanes(2, 2, frame.FormatRGBA); err != nil {
		t.Fatal(err)
	}
	img, err := Image(f)
	if err != nil {
		t.Fatal(err)
	}
	f.Planes[0][0] = 77
	if img.(*image.RGBA).Pix[0] != 77 {
		t.Error("RGBA image does not alias the frame plane")
	}
}

func TestFitRect(t *testing.T) {
	tests := []struct {
		name       string
		sw, sh     int
		ratio      float64
		dw, dh     int
		want       image.Rectangle
	}{
		{"same aspect", 640, 360, 0, 1280, 720, image.Rect(0, 0, 1280, 720)},
		{"pillarbox", 400, 400, 0, 800, 400, image.Rect(200, 0, 600, 400)},
		{"letterbox", 800, 200, 0, 400, 400, image.Rect(0, 150, 400, 250)},
		{"ratio override", 720, 576, 16.0 / 9.0, 1600, 900, image.Rect(0, 0, 1600, 900)},
		{"empty", 0, 10, 0, 10, 10, image.Rectangle{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FitRect(tt.sw, tt.sh, tt.ratio, tt.dw, tt.dh); got != tt.want {
				t.Errorf("FitRect = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLetterboxReusesCanvas(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range src.Pix {
		src.Pix[i] = 255
	}
	dst := Letterbox(nil, src, 0, 8, 4, nil)
	if dst.RGBAAt(0, 0) != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("bar pixel %v, want black", dst.RGBAAt(0, 0))
	}
	if dst.RGBAAt(4, 2).R != 255 {
		t.Errorf("picture pixel %v", dst.RGBAAt(4, 2))
	}
	if again := Letterbox(dst, src, 0, 8, 4, nil); again != dst {
		t.Error("canvas reallocated for same size")
	}
}

func TestAdjustments(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.SetRGBA(0, 0, color.RGBA{100, 150, 200, 255})

	Neutral().Apply(img)
	if img.RGBAAt(0, 0) != (color.RGBA{100, 150, 200, 255}) {
		t.Errorf("neutral changed pixel to %v", img.RGBAAt(0, 0))
	}

	a := Neutral()
	a.Saturation = 0
	a.Apply(img)
	c := img.RGBAAt(0, 0)
	if c.R != c.G || c.G != c.B {
		t.Errorf("desaturated pixel not grey: %v", c)
	}

	b := Neutral()
	b.Brightness = 1
	b.Apply(img)
	if img.RGBAAt(0, 0).R != 255 {
		t.Errorf("full brightness pixel %v", img.RGBAAt(0, 0))
	}
}
