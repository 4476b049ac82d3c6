package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/bryanchriswhite/FramePacer/internal/output"
)

func TestParseProperty(t *testing.T) {
	for _, p := range Properties() {
		got, err := ParseProperty(string(p))
		if err != nil || got != p {
			t.Errorf("ParseProperty(%q) = %q, %v", p, got, err)
		}
	}
	if _, err := ParseProperty("volume"); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("err = %v, want ErrUnknownProperty", err)
	}
}

func TestNormalizeRoundTrip(t *testing.T) {
	r := output.Range{Min: -180, Max: 180}
	tests := []struct {
		in, device, out int
	}{
		{in: 0, device: -180, out: 0},
		{in: PictureMax, device: 180, out: PictureMax},
		{in: PictureMax / 2, device: -1, out: 32585},
		{in: -5, device: -180, out: 0},
		{in: PictureMax + 10, device: 180, out: PictureMax},
	}
	for _, tt := range tests {
		d := denormalize(r, tt.in)
		if d != tt.device {
			t.Errorf("denormalize(%d) = %d, want %d", tt.in, d, tt.device)
		}
		if n := normalize(r, d); n != tt.out {
			t.Errorf("normalize(%d) = %d, want %d", d, n, tt.out)
		}
	}
	if normalize(output.Range{Min: 5, Max: 5}, 5) != 0 {
		t.Error("empty range should normalize to 0")
	}
}

func TestPictureProperties(t *testing.T) {
	e, _, drv := newTestEngine(t, 2, nil)
	ctx := context.Background()

	got, err := e.SetProperty(ctx, PropHue, PictureMax)
	if err != nil || got != PictureMax {
		t.Fatalf("set hue = %d, %v", got, err)
	}
	if drv.GetProperty(output.PropHue) != 100 {
		t.Errorf("device hue = %d, want 100", drv.GetProperty(output.PropHue))
	}

	got, err = e.SetProperty(ctx, PropContrast, 32768)
	if err != nil {
		t.Fatal(err)
	}
	if drv.GetProperty(output.PropContrast) != 50 || got != 32767 {
		t.Errorf("contrast device=%d normalized=%d", drv.GetProperty(output.PropContrast), got)
	}
	if v, _ := e.GetProperty(PropContrast); v != 32767 {
		t.Errorf("get contrast = %d", v)
	}
}

func TestUnsupportedPictureProperty(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	e.ReplaceDriver(output.NewMJPEG(output.Config{}))

	if _, err := e.GetProperty(PropSharpness); !errors.Is(err, ErrUnsupportedProperty) {
		t.Errorf("get err = %v", err)
	}
	if _, err := e.SetProperty(context.Background(), PropSharpness, 10); !errors.Is(err, ErrUnsupportedProperty) {
		t.Errorf("set err = %v", err)
	}

	for _, info := range e.PropertyList() {
		if info.Name == PropSharpness && info.Supported {
			t.Error("sharpness listed as supported")
		}
	}
}

func TestReadOnlyProperties(t *testing.T) {
	e, _, _ := newTestEngine(t, 3, nil)
	drawAt(t, e, 90000, 3000)

	for p, want := range map[Property]int{
		PropBuffersTotal:    3,
		PropBuffersFree:     2,
		PropBuffersInFlight: 1,
		PropNumStreams:      0,
	} {
		if got, err := e.GetProperty(p); err != nil || got != want {
			t.Errorf("%s = %d, %v, want %d", p, got, err, want)
		}
		if _, err := e.SetProperty(context.Background(), p, 1); !errors.Is(err, ErrReadOnlyProperty) {
			t.Errorf("set %s err = %v", p, err)
		}
	}
}

func TestCropProperties(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	ctx := context.Background()
	e.SetProperty(ctx, PropCropLeft, 8)
	e.SetProperty(ctx, PropCropBottom, -3)

	c := e.Crop()
	if c.Left != 8 || c.Bottom != 0 {
		t.Errorf("crop = %+v", c)
	}
	if v, _ := e.GetProperty(PropCropLeft); v != 8 {
		t.Errorf("crop_left = %d", v)
	}
}

func TestDiscardFramesProperty(t *testing.T) {
	e, _, _ := newTestEngine(t, 2, nil)
	ctx := context.Background()
	if d, _ := e.SetProperty(ctx, PropDiscardFrames, 1); d != 1 {
		t.Fatalf("depth = %d", d)
	}
	if v, _ := e.GetProperty(PropDiscardFrames); v != 1 {
		t.Errorf("get = %d", v)
	}
	if d, _ := e.SetProperty(ctx, PropDiscardFrames, 0); d != 0 {
		t.Errorf("depth = %d", d)
	}
}
