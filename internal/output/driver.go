// Package output holds the video output drivers the render loop presents
// frames through.
package output

import (
	"fmt"

	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
)

// Driver is a pixel output device.
//
// The render loop calls OverlayBlend then DisplayFrame for every presented
// frame. DisplayFrame takes over the caller's reference and must Release the
// frame once the driver no longer reads its planes. Drivers never write into
// frame planes: overlays and picture controls are applied to a private copy.
type Driver interface {
	Name() string
	Open() error
	Close() error

	// UpdateFrameFormat prepares f's planes for p. A driver that cannot
	// provide a surface leaves f.Width at zero.
	UpdateFrameFormat(f *frame.Frame, p frame.Params)
	OverlayBlend(f *frame.Frame, layers []overlay.Layer)
	DisplayFrame(f *frame.Frame)
	// RedrawNeeded reports whether the device wants the current picture again
	RedrawNeeded() bool

	PropertyRange(p Property) (Range, bool)
	GetProperty(p Property) int
	SetProperty(p Property, value int) int
}

// Property is a device picture control
type Property int

const (
	PropHue Property = iota
	PropSaturation
	PropContrast
	PropBrightness
	PropGamma
	PropSharpness
	PropNoiseReduction
	numProperties
)

var propertyNames = [numProperties]string{
	PropHue:            "hue",
	PropSaturation:     "saturation",
	PropContrast:       "contrast",
	PropBrightness:     "brightness",
	PropGamma:          "gamma",
	PropSharpness:      "sharpness",
	PropNoiseReduction: "noise_reduction",
}

func (p Property) String() string {
	if p < 0 || p >= numProperties {
		return fmt.Sprintf("property(%d)", int(p))
	}
	return propertyNames[p]
}

// Properties lists every picture control in order
func Properties() []Property {
	out := make([]Property, numProperties)
	for i := range out {
		out[i] = Property(i)
	}
	return out
}

// Range is the device-native span of a property
type Range struct {
	Min     int `json:"min"`
	Max     int `json:"max"`
	Default int `json:"default"`
}

// Clamp limits v to the range
func (r Range) Clamp(v int) int {
	return min(max(v, r.Min), r.Max)
}

// Config holds common configuration for all output types
type Config struct {
	Width   int
	Height  int
	Quality int
	Title   string
	// MaxSurface is the largest frame dimension the device accepts
	MaxSurface int
}

// New builds the driver named in the config
func New(name string, cfg Config) (Driver, error) {
	switch name {
	case "mjpeg":
		return NewMJPEG(cfg), nil
	case "x11":
		return NewX11(cfg), nil
	case "null", "":
		return NewNull(), nil
	}
	return nil, fmt.Errorf("unknown output driver: %s", name)
}
