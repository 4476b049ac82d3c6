package engine

import (
	"context"
	"fmt"

	"github.com/bryanchriswhite/FramePacer/internal/output"
)

// Property is a named control on the engine
type Property string

const (
	PropCropLeft   Property = "crop_left"
	PropCropRight  Property = "crop_right"
	PropCropTop    Property = "crop_top"
	PropCropBottom Property = "crop_bottom"

	PropDiscardFrames Property = "discard_frames"
	PropSingleStep    Property = "single_step"

	PropHue            Property = "hue"
	PropSaturation     Property = "saturation"
	PropContrast       Property = "contrast"
	PropBrightness     Property = "brightness"
	PropGamma          Property = "gamma"
	PropSharpness      Property = "sharpness"
	PropNoiseReduction Property = "noise_reduction"

	PropBuffersInFlight Property = "buffers_in_flight"
	PropBuffersFree     Property = "buffers_free"
	PropBuffersTotal    Property = "buffers_total"
	PropNumStreams      Property = "num_streams"
)

// PictureMax is the top of the normalized range picture controls use
const PictureMax = 65535

var pictureProps = map[Property]output.Property{
	PropHue:            output.PropHue,
	PropSaturation:     output.PropSaturation,
	PropContrast:       output.PropContrast,
	PropBrightness:     output.PropBrightness,
	PropGamma:          output.PropGamma,
	PropSharpness:      output.PropSharpness,
	PropNoiseReduction: output.PropNoiseReduction,
}

var allProperties = []Property{
	PropCropLeft, PropCropRight, PropCropTop, PropCropBottom,
	PropDiscardFrames, PropSingleStep,
	PropHue, PropSaturation, PropContrast, PropBrightness, PropGamma, PropSharpness, PropNoiseReduction,
	PropBuffersInFlight, PropBuffersFree, PropBuffersTotal, PropNumStreams,
}

// Properties lists every property name
func Properties() []Property {
	return append([]Property(nil), allProperties...)
}

// ParseProperty validates a property name
func ParseProperty(name string) (Property, error) {
	for _, p := range allProperties {
		if string(p) == name {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProperty, name)
}

// ReadOnly reports whether a property is diagnostics only
func (p Property) ReadOnly() bool {
	switch p {
	case PropBuffersInFlight, PropBuffersFree, PropBuffersTotal, PropNumStreams:
		return true
	}
	return false
}

// PropertyInfo describes one property for listings
type PropertyInfo struct {
	Name      Property `json:"name"`
	Value     int      `json:"value"`
	ReadOnly  bool     `json:"read_only"`
	Supported bool     `json:"supported"`
}

// normalize maps a device value into 0..PictureMax
func normalize(r output.Range, v int) int {
	if r.Max <= r.Min {
		return 0
	}
	return int(int64(v-r.Min) * PictureMax / int64(r.Max-r.Min))
}

// denormalize maps 0..PictureMax onto the device range
func denormalize(r output.Range, v int) int {
	v = min(max(v, 0), PictureMax)
	return r.Min + int(int64(v)*int64(r.Max-r.Min)/PictureMax)
}

// GetProperty reads a property
func (e *Engine) GetProperty(p Property) (int, error) {
	if op, ok := pictureProps[p]; ok {
		drv := e.Driver()
		r, ok := drv.PropertyRange(op)
		if !ok {
			return 0, fmt.Errorf("%s on %s: %w", p, drv.Name(), ErrUnsupportedProperty)
		}
		return normalize(r, drv.GetProperty(op)), nil
	}

	switch p {
	case PropCropLeft:
		return e.Crop().Left, nil
	case PropCropRight:
		return e.Crop().Right, nil
	case PropCropTop:
		return e.Crop().Top, nil
	case PropCropBottom:
		return e.Crop().Bottom, nil
	case PropDiscardFrames:
		return e.DiscardDepth(), nil
	case PropSingleStep:
		return 0, nil
	case PropBuffersInFlight:
		return e.InFlight(), nil
	case PropBuffersFree:
		return e.FreeCount(), nil
	case PropBuffersTotal:
		return e.PoolSize(), nil
	case PropNumStreams:
		return e.NumStreams(), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProperty, p)
}

// SetProperty writes a property and returns the value now in effect
func (e *Engine) SetProperty(ctx context.Context, p Property, value int) (int, error) {
	if p.ReadOnly() {
		return 0, fmt.Errorf("%s: %w", p, ErrReadOnlyProperty)
	}

	if op, ok := pictureProps[p]; ok {
		e.driverMu.Lock()
		defer e.driverMu.Unlock()
		r, ok := e.driver.PropertyRange(op)
		if !ok {
			return 0, fmt.Errorf("%s on %s: %w", p, e.driver.Name(), ErrUnsupportedProperty)
		}
		value = min(max(value, 0), PictureMax)
		e.picture[op] = value
		actual := e.driver.SetProperty(op, denormalize(r, value))
		return normalize(r, actual), nil
	}

	switch p {
	case PropCropLeft, PropCropRight, PropCropTop, PropCropBottom:
		value = max(value, 0)
		e.display.Lock()
		switch p {
		case PropCropLeft:
			e.crop.Left = value
		case PropCropRight:
			e.crop.Right = value
		case PropCropTop:
			e.crop.Top = value
		case PropCropBottom:
			e.crop.Bottom = value
		}
		e.display.Unlock()
		return value, nil
	case PropDiscardFrames:
		return e.DiscardFrames(value != 0), nil
	case PropSingleStep:
		if value == 0 {
			return 0, nil
		}
		if err := e.SingleStep(ctx); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProperty, p)
}

// PropertyList returns every property with its current value
func (e *Engine) PropertyList() []PropertyInfo {
	out := make([]PropertyInfo, 0, len(allProperties))
	for _, p := range allProperties {
		v, err := e.GetProperty(p)
		out = append(out, PropertyInfo{
			Name:      p,
			Value:     v,
			ReadOnly:  p.ReadOnly(),
			Supported: err == nil,
		})
	}
	return out
}
