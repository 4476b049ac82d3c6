package overlay

import (
	"image"
	"image/color"
	"image/draw"
)

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto a transparent canvas the size of the picture
	Render(img *image.RGBA) error

	// GetConfig returns the widget's configuration as a map
	GetConfig() map[string]interface{}

	// UpdateConfig updates the widget's configuration
	UpdateConfig(config map[string]interface{}) error

	IsEnabled() bool
	SetEnabled(enabled bool)
}

// Layer is one composited overlay plane in picture coordinates
type Layer struct {
	Image   *image.RGBA
	X, Y    int
	Opacity float64
}

// BaseWidget provides common functionality for all widgets
type BaseWidget struct {
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	return &BaseWidget{
		id:      id,
		enabled: true,
		x:       x,
		y:       y,
		opacity: opacity,
	}
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

func (w *BaseWidget) IsEnabled() bool {
	return w.enabled
}

func (w *BaseWidget) SetEnabled(enabled bool) {
	w.enabled = enabled
}

// GetPosition returns the widget's position
func (w *BaseWidget) GetPosition() (int, int) {
	return w.x, w.y
}

// SetPosition sets the widget's position
func (w *BaseWidget) SetPosition(x, y int) {
	w.x = x
	w.y = y
}

// SetOpacity sets the widget's opacity, clamped to 0..1
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.opacity = min(max(opacity, 0), 1)
}

// applyCommon reads the position, opacity and enabled keys every widget shares
func (w *BaseWidget) applyCommon(config map[string]interface{}) {
	if _, ok := config["x"]; ok {
		w.x = getInt(config["x"])
	}
	if _, ok := config["y"]; ok {
		w.y = getInt(config["y"])
	}
	if opacity, ok := config["opacity"].(float64); ok {
		w.SetOpacity(opacity)
	}
	if enabled, ok := config["enabled"].(bool); ok {
		w.SetEnabled(enabled)
	}
}

func (w *BaseWidget) commonConfig(kind string) map[string]interface{} {
	return map[string]interface{}{
		"id":      w.id,
		"type":    kind,
		"enabled": w.enabled,
		"x":       w.x,
		"y":       w.y,
		"opacity": w.opacity,
	}
}

// BlendImage alpha-blends src onto dst with its top-left corner at x, y,
// scaling src alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	sb := src.Bounds()
	r := image.Rect(x, y, x+sb.Dx(), y+sb.Dy()).Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	if opacity >= 1 {
		draw.Draw(dst, r, src, sb.Min.Add(r.Min.Sub(image.Pt(x, y))), draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, r, src, sb.Min.Add(r.Min.Sub(image.Pt(x, y))), mask, image.Point{}, draw.Over)
}

// DrawRectangle draws a filled rectangle with the specified color and opacity
func DrawRectangle(dst *image.RGBA, x, y, width, height int, c color.Color, opacity float64) {
	r := image.Rect(x, y, x+width, y+height).Intersect(dst.Bounds())
	if r.Empty() || opacity <= 0 {
		return
	}
	src := image.NewUniform(c)
	if opacity >= 1 {
		draw.Draw(dst, r, src, image.Point{}, draw.Over)
		return
	}
	mask := image.NewUniform(color.Alpha{A: uint8(opacity*255 + 0.5)})
	draw.DrawMask(dst, r, src, image.Point{}, mask, image.Point{}, draw.Over)
}

// getInt extracts an integer value from an interface{} that might be int or float64
func getInt(v interface{}) int {
	switch val := v.(type) {
	case int:
		return val
	case float64:
		return int(val)
	case int64:
		return int(val)
	case uint8:
		return int(val)
	default:
		return 0
	}
}

func getColor(v interface{}, def color.RGBA) color.RGBA {
	m, ok := v.(map[string]interface{})
	if !ok {
		return def
	}
	return color.RGBA{
		R: uint8(getInt(m["r"])),
		G: uint8(getInt(m["g"])),
		B: uint8(getInt(m["b"])),
		A: uint8(getInt(m["a"])),
	}
}

func colorConfig(c color.RGBA) map[string]interface{} {
	return map[string]interface{}{"r": c.R, "g": c.G, "b": c.B, "a": c.A}
}
