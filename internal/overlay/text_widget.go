package overlay

import (
	"fmt"
	"image"
	"image/color"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// lineHeight is the advance of basicfont.Face7x13
const lineHeight = 13

// TextWidget displays one or more lines of text
type TextWidget struct {
	*BaseWidget
	mu        sync.RWMutex
	text      string
	textColor color.RGBA
	bgColor   *color.RGBA
	padding   int
}

// NewTextWidget creates a new text widget
func NewTextWidget(id string, config map[string]interface{}) (*TextWidget, error) {
	w := &TextWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 1.0),
		text:       "Text Widget",
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    5,
	}

	if err := w.UpdateConfig(config); err != nil {
		return nil, err
	}

	return w, nil
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text box onto img
func (w *TextWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	text, fg, bg, pad := w.text, w.textColor, w.bgColor, w.padding
	x, y, opacity, enabled := w.x, w.y, w.opacity, w.enabled
	w.mu.RUnlock()

	if !enabled || text == "" {
		return nil
	}
	renderTextBox(img, strings.Split(text, "\n"), x, y, pad, fg, bg, opacity)
	return nil
}

// renderTextBox draws lines with basicfont at x, y with an optional background
func renderTextBox(img *image.RGBA, lines []string, x, y, pad int, fg color.RGBA, bg *color.RGBA, opacity float64) {
	face := basicfont.Face7x13
	d := &font.Drawer{Face: face}
	widest := 0
	for _, l := range lines {
		if px := d.MeasureString(l).Ceil(); px > widest {
			widest = px
		}
	}
	if widest == 0 {
		return
	}

	boxW := widest + pad*2
	boxH := len(lines)*lineHeight + pad*2
	box := image.NewRGBA(image.Rect(0, 0, boxW, boxH))
	if bg != nil {
		DrawRectangle(box, 0, 0, boxW, boxH, *bg, 1)
	}

	d.Dst = box
	d.Src = image.NewUniform(fg)
	for i, l := range lines {
		d.Dot = fixed.Point26_6{
			X: fixed.I(pad),
			Y: fixed.I(pad + (i+1)*lineHeight - face.Descent),
		}
		d.DrawString(l)
	}

	BlendImage(img, box, x, y, opacity)
}

// GetConfig returns the widget configuration
func (w *TextWidget) GetConfig() map[string]interface{} {
	w.mu.RLock()
	defer w.mu.RUnlock()

	config := w.commonConfig(w.Type())
	config["text"] = w.text
	config["padding"] = w.padding
	config["color"] = colorConfig(w.textColor)
	if w.bgColor != nil {
		config["background"] = colorConfig(*w.bgColor)
	}
	return config
}

// UpdateConfig updates the widget configuration
func (w *TextWidget) UpdateConfig(config map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.applyCommon(config)
	if text, ok := config["text"].(string); ok {
		w.text = text
	}
	if _, ok := config["padding"]; ok {
		w.padding = getInt(config["padding"])
	}
	if c, ok := config["color"]; ok {
		w.textColor = getColor(c, w.textColor)
	}
	if c, ok := config["background"]; ok {
		bg := getColor(c, color.RGBA{})
		w.bgColor = &bg
	}
	return nil
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.mu.Lock()
	w.text = text
	w.mu.Unlock()
}

// GetText returns the current text
func (w *TextWidget) GetText() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

// Validate ensures the widget configuration is valid
func (w *TextWidget) Validate() error {
	if w.GetText() == "" {
		return fmt.Errorf("text widget requires non-empty text")
	}
	return nil
}
