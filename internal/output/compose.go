package output

import (
	"image"
	"sync"

	"github.com/bryanchriswhite/FramePacer/internal/convert"
	"github.com/bryanchriswhite/FramePacer/internal/frame"
	"github.com/bryanchriswhite/FramePacer/internal/logger"
	"github.com/bryanchriswhite/FramePacer/internal/overlay"
	"golang.org/x/image/draw"
)

const defaultMaxSurface = 8192

// pictureRanges are the controls software compositing can honor
var pictureRanges = map[Property]Range{
	PropHue:        {Min: -180, Max: 180, Default: 0},
	PropSaturation: {Min: 0, Max: 200, Default: 100},
	PropContrast:   {Min: 0, Max: 200, Default: 100},
	PropBrightness: {Min: -100, Max: 100, Default: 0},
	PropGamma:      {Min: 10, Max: 300, Default: 100},
}

// compositor is the software path shared by drivers that show RGBA: it
// converts a frame into a private picture, blends the pending overlay,
// applies picture controls and letterboxes into the output canvas.
type compositor struct {
	mu         sync.Mutex
	ranges     map[Property]Range
	values     map[Property]int
	layers     []overlay.Layer
	picture    *image.RGBA
	canvas     *image.RGBA
	scaler     draw.Scaler
	maxSurface int
}

func newCompositor(ranges map[Property]Range, maxSurface int) *compositor {
	if maxSurface <= 0 {
		maxSurface = defaultMaxSurface
	}
	c := &compositor{
		ranges:     ranges,
		values:     make(map[Property]int, len(ranges)),
		scaler:     draw.ApproxBiLinear,
		maxSurface: maxSurface,
	}
	for p, r := range ranges {
		c.values[p] = r.Default
	}
	return c
}

func (c *compositor) updateFrameFormat(f *frame.Frame, p frame.Params) {
	if p.Width > c.maxSurface || p.Height > c.maxSurface {
		logger.WithComponent("output").Warn().
			Int("width", p.Width).
			Int("height", p.Height).
			Int("max", c.maxSurface).
			Msg("Frame exceeds device surface limit")
		f.Width, f.Height = 0, 0
		return
	}
	if err := f.AllocPlanes(p.Width, p.Height, p.Format); err != nil {
		logger.WithComponent("output").Warn().Err(err).Msg("Failed to allocate frame planes")
		f.Width, f.Height = 0, 0
	}
}

func (c *compositor) overlayBlend(layers []overlay.Layer) {
	c.mu.Lock()
	c.layers = layers
	c.mu.Unlock()
}

// render returns the composited picture, scaled into outW x outH when both
// are positive. The image is reused by the next call.
func (c *compositor) render(f *frame.Frame, outW, outH int) (*image.RGBA, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pic, err := convert.Into(c.picture, f)
	if err != nil {
		return nil, err
	}
	c.picture = pic

	for _, l := range c.layers {
		if l.Image != nil {
			overlay.BlendImage(pic, l.Image, l.X, l.Y, l.Opacity)
		}
	}
	c.layers = nil

	c.adjustmentsLocked().Apply(pic)

	if outW <= 0 || outH <= 0 {
		return pic, nil
	}
	c.canvas = convert.Letterbox(c.canvas, pic, f.Ratio, outW, outH, c.scaler)
	return c.canvas, nil
}

func (c *compositor) adjustmentsLocked() convert.Adjustments {
	a := convert.Neutral()
	if v, ok := c.values[PropHue]; ok {
		a.Hue = float64(v)
	}
	if v, ok := c.values[PropSaturation]; ok {
		a.Saturation = float64(v) / 100
	}
	if v, ok := c.values[PropContrast]; ok {
		a.Contrast = float64(v) / 100
	}
	if v, ok := c.values[PropBrightness]; ok {
		a.Brightness = float64(v) / 100
	}
	if v, ok := c.values[PropGamma]; ok {
		a.Gamma = float64(v) / 100
	}
	return a
}

func (c *compositor) propertyRange(p Property) (Range, bool) {
	r, ok := c.ranges[p]
	return r, ok
}

func (c *compositor) getProperty(p Property) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[p]
}

func (c *compositor) setProperty(p Property, v int) int {
	r, ok := c.ranges[p]
	if !ok {
		return 0
	}
	v = r.Clamp(v)
	c.mu.Lock()
	c.values[p] = v
	c.mu.Unlock()
	return v
}
